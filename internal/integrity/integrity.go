// Package integrity signs and verifies request payloads with a keyed
// MAC over a canonical JSON form, so a payload cannot be altered in
// transit without detection.
package integrity

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// minKeyLen is the minimum accepted secret length in bytes. Shorter
// secrets are stretched to a fixed-length key with SHA-256.
const minKeyLen = 32

// Signer computes and verifies HMAC-SHA256 signatures over canonical
// payload bytes.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer from the server secret.
func NewSigner(secret []byte) *Signer {
	key := secret
	if len(key) < minKeyLen {
		sum := sha256.Sum256(secret)
		key = sum[:]
	}
	return &Signer{key: key}
}

// Canonicalize rewrites a JSON payload into its canonical form: object
// keys sorted, no incidental whitespace, number text preserved.
func Canonicalize(payload []byte) ([]byte, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode canonical payload: %w", err)
	}
	return out, nil
}

// Sign returns the hex HMAC-SHA256 signature of the payload's
// canonical form.
func (s *Signer) Sign(payload []byte) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches the payload. The comparison
// is constant time. Malformed payloads never verify.
func (s *Signer) Verify(payload []byte, signature string) bool {
	expected, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
