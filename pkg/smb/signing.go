package smb

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/ineffectivecoder/smbclient/internal/encoding"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// SMB2 header signature offset and size
const (
	signatureOffset = 48
	signatureSize   = 16
)

// signer computes SMB2 header signatures. The signature field is treated
// as zero during computation.
type signer interface {
	sign(message []byte) [signatureSize]byte
}

// newSigner returns the signer for dialect, keyed from the session key.
// A nil result means signing is unavailable (anonymous or guest sessions).
func newSigner(dialect types.Dialect, sessionKey []byte) signer {
	if len(sessionKey) == 0 {
		return nil
	}
	if dialect < types.DialectSMB3_0 {
		key := make([]byte, 16)
		copy(key, sessionKey)
		return &hmacSigner{key: key}
	}
	key := kdf(sessionKey, []byte("SMB2AESCMAC\x00"), []byte("SmbSign\x00"), 128)
	s, err := newCMACSigner(key)
	if err != nil {
		return nil
	}
	return s
}

// signMessage zeroes and fills the signature field of message in place and
// sets the SIGNED flag.
func signMessage(s signer, message []byte) {
	if len(message) < types.SMB2HeaderSize {
		return
	}
	flags := encoding.Uint32LE(message[16:]) | uint32(types.FlagsSigned)
	encoding.PutUint32LE(message[16:], flags)

	clear(message[signatureOffset : signatureOffset+signatureSize])
	sig := s.sign(message)
	copy(message[signatureOffset:], sig[:])
}

// verifySignature checks the signature of a received message.
func verifySignature(s signer, message []byte) bool {
	if len(message) < types.SMB2HeaderSize {
		return false
	}
	var got [signatureSize]byte
	copy(got[:], message[signatureOffset:])
	clear(message[signatureOffset : signatureOffset+signatureSize])
	want := s.sign(message)
	copy(message[signatureOffset:], got[:])
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// hmacSigner implements SMB 2.x HMAC-SHA256 signing.
type hmacSigner struct {
	key []byte
}

func (s *hmacSigner) sign(message []byte) [signatureSize]byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(message)
	var sig [signatureSize]byte
	copy(sig[:], mac.Sum(nil))
	return sig
}

// cmacSigner implements SMB 3.x AES-128-CMAC signing (RFC 4493).
type cmacSigner struct {
	block  cipher.Block
	k1, k2 [16]byte
}

func newCMACSigner(key []byte) (*cmacSigner, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	s := &cmacSigner{block: block}

	// L = AES(K, 0^128); K1 = L<<1, K2 = K1<<1, each conditionally ^ Rb
	var l [16]byte
	block.Encrypt(l[:], l[:])
	s.k1 = shiftLeft(l)
	s.k2 = shiftLeft(s.k1)
	return s, nil
}

func (s *cmacSigner) sign(message []byte) [signatureSize]byte {
	return s.mac(message)
}

// mac computes the raw AES-CMAC of data.
func (s *cmacSigner) mac(data []byte) [16]byte {
	var x, last [16]byte

	n := (len(data) + 15) / 16
	complete := n > 0 && len(data)%16 == 0
	if n == 0 {
		n = 1
	}

	for i := 0; i < n-1; i++ {
		subtle.XORBytes(x[:], x[:], data[i*16:(i+1)*16])
		s.block.Encrypt(x[:], x[:])
	}

	tail := data[(n-1)*16:]
	copy(last[:], tail)
	if complete {
		subtle.XORBytes(last[:], last[:], s.k1[:])
	} else {
		last[len(tail)] = 0x80
		subtle.XORBytes(last[:], last[:], s.k2[:])
	}

	subtle.XORBytes(x[:], x[:], last[:])
	s.block.Encrypt(x[:], x[:])
	return x
}

// shiftLeft doubles b in GF(2^128).
func shiftLeft(b [16]byte) [16]byte {
	var out [16]byte
	for i := 0; i < 15; i++ {
		out[i] = b[i]<<1 | b[i+1]>>7
	}
	out[15] = b[15] << 1
	if b[0]&0x80 != 0 {
		out[15] ^= 0x87
	}
	return out
}

// kdf implements the SP800-108 counter-mode KDF with HMAC-SHA256 used by
// SMB 3.0 and 3.0.2:
// K = PRF(Ki, [1]_32 || Label || 0x00 || Context || [L]_32)
func kdf(ki, label, context []byte, bitLen int) []byte {
	h := hmac.New(sha256.New, ki)
	h.Write([]byte{0x00, 0x00, 0x00, 0x01})
	h.Write(label)
	h.Write([]byte{0x00})
	h.Write(context)
	l := uint32(bitLen)
	h.Write([]byte{byte(l >> 24), byte(l >> 16), byte(l >> 8), byte(l)})
	return h.Sum(nil)[:bitLen/8]
}
