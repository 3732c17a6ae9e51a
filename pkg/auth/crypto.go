package auth

import (
	"crypto/md5"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/ineffectivecoder/smbclient/internal/crypto"
	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// filetimeEpochDelta is the number of 100ns intervals between 1601-01-01 and
// the Unix epoch.
const filetimeEpochDelta = 116444736000000000

// randomBytes returns n bytes from the system CSPRNG
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// NTHash computes the NT hash from a password
// NT Hash = MD4(UTF-16LE(password))
func NTHash(password string) []byte {
	return crypto.MD4Hash(encoding.ToUTF16LE(password))
}

// NTLMv2Hash computes the NTLMv2 hash
// NTLMv2 Hash = HMAC-MD5(NT Hash, UPPERCASE(username) + domain)
func NTLMv2Hash(ntHash []byte, username, domain string) []byte {
	return crypto.HMACMD5(ntHash, encoding.ToUTF16LE(strings.ToUpper(username)+domain))
}

// nowFiletime returns the current time as little-endian FILETIME bytes.
func nowFiletime() []byte {
	return encoding.AppendUint64LE(nil, uint64(time.Now().UnixNano()/100+filetimeEpochDelta))
}

// ntlmv2Blob builds the NTLMv2_CLIENT_CHALLENGE structure.
func ntlmv2Blob(clientChallenge, timestamp, targetInfo []byte) []byte {
	w := encoding.NewWriter(32 + len(targetInfo))
	w.U8(1).U8(1).U16(0).U32(0)
	w.Raw(timestamp)
	w.Raw(clientChallenge)
	w.U32(0)
	w.Raw(targetInfo)
	w.U32(0)
	return w.Bytes()
}

// ntlmv2Response computes the NT challenge response and the session base key.
func ntlmv2Response(v2Hash, serverChallenge, clientChallenge, timestamp, targetInfo []byte) (resp, sessionBaseKey []byte) {
	blob := ntlmv2Blob(clientChallenge, timestamp, targetInfo)
	proof := crypto.HMACMD5(v2Hash, serverChallenge, blob)
	resp = append(append([]byte{}, proof...), blob...)
	return resp, crypto.HMACMD5(v2Hash, proof)
}

// lmv2Response computes the LMv2 response sent alongside NTLMv2.
func lmv2Response(v2Hash, serverChallenge, clientChallenge []byte) []byte {
	return append(crypto.HMACMD5(v2Hash, serverChallenge, clientChallenge), clientChallenge...)
}

// signKey derives the client-to-server NTLM signing key.
func signKey(exportedKey []byte) []byte {
	h := md5.Sum(append(append([]byte{}, exportedKey...), "session key to client-to-server signing key magic constant\x00"...))
	return h[:]
}

// sealKey derives the client-to-server NTLM sealing key.
func sealKey(exportedKey []byte) []byte {
	h := md5.Sum(append(append([]byte{}, exportedKey...), "session key to client-to-server sealing key magic constant\x00"...))
	return h[:]
}

// messageSignature computes an NTLMSSP_MESSAGE_SIGNATURE over msg with
// extended session security.
func messageSignature(exportedKey []byte, seq uint32, msg []byte, keyExch bool) ([]byte, error) {
	seqBytes := encoding.AppendUint32LE(nil, seq)
	checksum := crypto.HMACMD5(signKey(exportedKey), seqBytes, msg)[:8]
	if keyExch {
		sealed, err := crypto.RC4(sealKey(exportedKey), checksum)
		if err != nil {
			return nil, err
		}
		checksum = sealed
	}
	w := encoding.NewWriter(16)
	w.U32(1).Raw(checksum).Raw(seqBytes)
	return w.Bytes(), nil
}
