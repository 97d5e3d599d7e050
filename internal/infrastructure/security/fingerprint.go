package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Fingerprinter produces deterministic keyed hashes of PII values so leads
// can be matched by equality without ever storing plaintext. Field keys are
// derived per version via HKDF from the tenant's fingerprint secret, which
// keeps email and phone fingerprint spaces disjoint and lets the secret
// rotate alongside the encryption keys.
type Fingerprinter struct {
	secret        []byte
	activeVersion int
}

// NewFingerprinter builds a Fingerprinter for the tenant secret. The
// version should track the encryption Codec's active version.
func NewFingerprinter(secret string, activeVersion int) (*Fingerprinter, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	if activeVersion <= 0 {
		return nil, fmt.Errorf("fingerprint key version %d must be positive", activeVersion)
	}
	return &Fingerprinter{secret: []byte(secret), activeVersion: activeVersion}, nil
}

// ActiveVersion returns the version new fingerprints are produced under.
func (f *Fingerprinter) ActiveVersion() int {
	return f.activeVersion
}

// Email fingerprints a normalized email address under the active version.
func (f *Fingerprinter) Email(email string) (string, error) {
	return f.Fingerprint("email", NormalizeEmail(email), f.activeVersion)
}

// Phone fingerprints a normalized phone number under the active version.
func (f *Fingerprinter) Phone(phone string) (string, error) {
	return f.Fingerprint("phone", NormalizePhone(phone), f.activeVersion)
}

// Fingerprint computes the keyed hash of value under the field/version
// derived key. The same inputs always produce the same output.
func (f *Fingerprinter) Fingerprint(field, value string, version int) (string, error) {
	key, err := f.deriveKey(field, version)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (f *Fingerprinter) deriveKey(field string, version int) ([]byte, error) {
	info := fmt.Sprintf("pulsetrack/fingerprint/%s/v%d", field, version)
	reader := hkdf.New(sha256.New, f.secret, nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive fingerprint key: %w", err)
	}
	return key, nil
}

// NormalizeEmail lowercases and trims an email so equivalent spellings
// fingerprint identically.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips every character except digits and a leading plus.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
