package smb

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/ineffectivecoder/smbclient/internal/encoding"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// TransformHeaderSize is the size of SMB2_TRANSFORM_HEADER.
const TransformHeaderSize = 52

// transformFlagEncrypted is the SMB 3.0.x Flags value.
const transformFlagEncrypted = 0x0001

const (
	ccmNonceSize = 11
	ccmTagSize   = 16
)

var errDecrypt = errors.New("smb: message authentication failed")

// TransformHeader represents an SMB2_TRANSFORM_HEADER (MS-SMB2 2.2.41).
type TransformHeader struct {
	Signature           [16]byte
	Nonce               [16]byte
	OriginalMessageSize uint32
	Flags               uint16
	SessionID           uint64
}

// Marshal serializes the transform header
func (h *TransformHeader) Marshal() []byte {
	w := encoding.NewWriter(TransformHeaderSize)
	w.Raw(types.SMB2TransformID[:]).Raw(h.Signature[:]).Raw(h.Nonce[:])
	w.U32(h.OriginalMessageSize).U16(0).U16(h.Flags).U64(h.SessionID)
	return w.Bytes()
}

// Unmarshal deserializes a transform header
func (h *TransformHeader) Unmarshal(buf []byte) error {
	if len(buf) < TransformHeaderSize {
		return types.ErrBufferTooSmall
	}
	if !isEncryptedMessage(buf) {
		return errors.New("smb: invalid transform header protocol ID")
	}
	r := encoding.NewReader(buf[4:])
	copy(h.Signature[:], r.Bytes(16))
	copy(h.Nonce[:], r.Bytes(16))
	h.OriginalMessageSize = r.U32()
	r.Skip(2)
	h.Flags = r.U16()
	h.SessionID = r.U64()
	return r.Err()
}

// isEncryptedMessage checks if a message starts with a transform header
func isEncryptedMessage(msg []byte) bool {
	return len(msg) >= 4 && [4]byte(msg[:4]) == types.SMB2TransformID
}

// sealer encrypts and decrypts whole SMB2 messages for one session.
type sealer struct {
	sessionID uint64
	enc, dec  cipher.AEAD
}

// newSealer derives the SMB 3.0.x client keys from the session key.
func newSealer(sessionKey []byte, sessionID uint64) (*sealer, error) {
	encKey := kdf(sessionKey, []byte("SMB2AESCCM\x00"), []byte("ServerIn \x00"), 128)
	decKey := kdf(sessionKey, []byte("SMB2AESCCM\x00"), []byte("ServerOut\x00"), 128)

	enc, err := newCCM(encKey, ccmNonceSize, ccmTagSize)
	if err != nil {
		return nil, err
	}
	dec, err := newCCM(decKey, ccmNonceSize, ccmTagSize)
	if err != nil {
		return nil, err
	}
	return &sealer{sessionID: sessionID, enc: enc, dec: dec}, nil
}

// seal wraps plaintext in a transform header.
func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	h := TransformHeader{
		OriginalMessageSize: uint32(len(plaintext)),
		Flags:               transformFlagEncrypted,
		SessionID:           s.sessionID,
	}
	if _, err := rand.Read(h.Nonce[:ccmNonceSize]); err != nil {
		return nil, fmt.Errorf("smb: generate nonce: %w", err)
	}

	hdr := h.Marshal()
	sealed := s.enc.Seal(nil, h.Nonce[:ccmNonceSize], plaintext, hdr[20:])
	tagAt := len(sealed) - ccmTagSize
	copy(hdr[4:20], sealed[tagAt:])

	out := make([]byte, 0, TransformHeaderSize+tagAt)
	out = append(out, hdr...)
	return append(out, sealed[:tagAt]...), nil
}

// open verifies and decrypts a transformed message.
func (s *sealer) open(msg []byte) ([]byte, error) {
	var h TransformHeader
	if err := h.Unmarshal(msg); err != nil {
		return nil, err
	}
	if h.SessionID != s.sessionID {
		return nil, fmt.Errorf("smb: encrypted message for session %#x", h.SessionID)
	}
	body := msg[TransformHeaderSize:]
	if uint32(len(body)) != h.OriginalMessageSize {
		return nil, fmt.Errorf("smb: transform size mismatch: %d != %d", len(body), h.OriginalMessageSize)
	}
	in := make([]byte, 0, len(body)+ccmTagSize)
	in = append(append(in, body...), h.Signature[:]...)
	return s.dec.Open(nil, h.Nonce[:ccmNonceSize], in, msg[20:TransformHeaderSize])
}

// ccm implements AES-CCM (RFC 3610) as a cipher.AEAD.
type ccm struct {
	block     cipher.Block
	nonceSize int
	tagSize   int
}

func newCCM(key []byte, nonceSize, tagSize int) (cipher.AEAD, error) {
	if nonceSize < 7 || nonceSize > 13 || tagSize < 4 || tagSize > 16 || tagSize%2 != 0 {
		return nil, errors.New("smb: invalid CCM parameters")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ccm{block: block, nonceSize: nonceSize, tagSize: tagSize}, nil
}

func (c *ccm) NonceSize() int { return c.nonceSize }
func (c *ccm) Overhead() int  { return c.tagSize }

// lenSize is L, the width of the message length field.
func (c *ccm) lenSize() int { return 15 - c.nonceSize }

func (c *ccm) maxLen() uint64 {
	if c.lenSize() >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*c.lenSize()) - 1
}

// counter returns the CTR block A_i.
func (c *ccm) counter(nonce []byte, i uint64) [16]byte {
	var a [16]byte
	a[0] = byte(c.lenSize() - 1)
	copy(a[1:], nonce)
	for j := 15; j > c.nonceSize; j-- {
		a[j] = byte(i)
		i >>= 8
	}
	return a
}

// mac computes the raw CBC-MAC T over B_0, the encoded AAD, and plaintext.
func (c *ccm) mac(nonce, plaintext, aad []byte) [16]byte {
	var x [16]byte
	x[0] = byte((c.tagSize-2)/2)<<3 | byte(c.lenSize()-1)
	if len(aad) > 0 {
		x[0] |= 0x40
	}
	copy(x[1:], nonce)
	n := uint64(len(plaintext))
	for j := 15; j > c.nonceSize; j-- {
		x[j] = byte(n)
		n >>= 8
	}
	c.block.Encrypt(x[:], x[:])

	absorb := func(data []byte) {
		for len(data) > 0 {
			k := min(16, len(data))
			subtle.XORBytes(x[:k], x[:k], data[:k])
			c.block.Encrypt(x[:], x[:])
			data = data[k:]
		}
	}

	if len(aad) > 0 {
		// Only the short form is needed: SMB AAD is 32 bytes.
		hdr := []byte{byte(len(aad) >> 8), byte(len(aad))}
		first := append(hdr, aad[:min(14, len(aad))]...)
		absorb(first)
		if len(aad) > 14 {
			absorb(aad[14:])
		}
	}
	absorb(plaintext)
	return x
}

// ctr XORs src with the key stream starting at A_1.
func (c *ccm) ctr(dst, src, nonce []byte) {
	var s [16]byte
	for i := 0; len(src) > 0; i++ {
		a := c.counter(nonce, uint64(i+1))
		c.block.Encrypt(s[:], a[:])
		k := min(16, len(src))
		subtle.XORBytes(dst[:k], src[:k], s[:k])
		dst, src = dst[k:], src[k:]
	}
}

func (c *ccm) tag(nonce, plaintext, aad []byte) []byte {
	t := c.mac(nonce, plaintext, aad)
	a0 := c.counter(nonce, 0)
	var s0 [16]byte
	c.block.Encrypt(s0[:], a0[:])
	subtle.XORBytes(t[:], t[:], s0[:])
	return t[:c.tagSize]
}

func (c *ccm) Seal(dst, nonce, plaintext, aad []byte) []byte {
	if len(nonce) != c.nonceSize {
		panic("smb: ccm: incorrect nonce length")
	}
	if uint64(len(plaintext)) > c.maxLen() {
		panic("smb: ccm: message too large")
	}
	tag := c.tag(nonce, plaintext, aad)
	ret, out := sliceForAppend(dst, len(plaintext)+c.tagSize)
	c.ctr(out, plaintext, nonce)
	copy(out[len(plaintext):], tag)
	return ret
}

func (c *ccm) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.nonceSize || len(ciphertext) < c.tagSize {
		return nil, errDecrypt
	}
	body := ciphertext[:len(ciphertext)-c.tagSize]
	tag := ciphertext[len(body):]

	ret, out := sliceForAppend(dst, len(body))
	c.ctr(out, body, nonce)
	if subtle.ConstantTimeCompare(c.tag(nonce, out, aad), tag) != 1 {
		clear(out)
		return nil, errDecrypt
	}
	return ret, nil
}

// sliceForAppend extends in by n bytes, returning the whole slice and the
// new tail.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	return head, head[len(in):]
}
