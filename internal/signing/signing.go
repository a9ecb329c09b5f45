// Package signing implements the HMAC-SHA256 primitive used to sign QR payloads.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyKey is returned when a Signer is constructed without a key.
var ErrEmptyKey = errors.New("signing key must not be empty")

// Sign returns the lowercase hex HMAC-SHA256 of payload under key.
// The result is deterministic in (payload, key).
func Sign(payload, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the hex HMAC-SHA256 of payload under key.
// A signature that is not valid hex or has the wrong length is simply reported
// as not matching. The comparison runs in constant time.
func Verify(payload []byte, signature string, key []byte) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// Signer binds a secret key so callers never pass it around.
type Signer struct {
	key []byte
}

func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &Signer{key: []byte(key)}, nil
}

func (s *Signer) Sign(payload []byte) string { return Sign(payload, s.key) }

func (s *Signer) Verify(payload []byte, signature string) bool {
	return Verify(payload, signature, s.key)
}
