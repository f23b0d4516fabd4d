package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprinter produces the keyed, one-way signature of an
// identity-establishing value (the SSN). Only the signature is ever
// persisted; the uniqueness check in the profile store compares signatures.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter constructs a Fingerprinter with the server-held HMAC key.
func NewFingerprinter(key []byte) *Fingerprinter {
	return &Fingerprinter{key: append([]byte(nil), key...)}
}

// Fingerprint returns the hex HMAC-SHA256 of the normalized value, or ""
// when the value contains no digits (nothing to fingerprint).
func (f *Fingerprinter) Fingerprint(value string) string {
	normalized := normalizeSSN(value)
	if normalized == "" {
		return ""
	}
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizeSSN strips everything but digits so "666-66-1234" and
// "666661234" fingerprint identically.
func normalizeSSN(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
