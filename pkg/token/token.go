// Package token generates opaque, URL-safe random tokens used as bearer
// secrets (session identifiers, password-reset tokens, OAuth state).
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

var ErrGeneration = errors.New("token: random generation failed")

// New returns a URL-safe token carrying byteLen bytes of entropy.
func New(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewHex returns a hex-encoded token carrying byteLen bytes of entropy.
// Hex keeps tokens safe to embed in emailed URLs and query strings.
func NewHex(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrGeneration, err)
	}
	return hex.EncodeToString(b), nil
}
