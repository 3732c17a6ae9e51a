// Package crypto wraps the hash and stream primitives NTLM needs.
package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"

	"golang.org/x/crypto/md4"
)

// MD4Hash returns MD4(data).
func MD4Hash(data []byte) []byte {
	h := md4.New()
	h.Write(data)
	return h.Sum(nil)
}

// HMACMD5 returns HMAC-MD5(key, data...).
func HMACMD5(key []byte, data ...[]byte) []byte {
	h := hmac.New(md5.New, key)
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// RC4 encrypts (or decrypts) data with key in a fresh keystream.
func RC4(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}
