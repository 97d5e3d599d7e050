// Package security provides AES encryption, searchable PII fingerprints,
// and token utilities
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
)

var (
	ErrEmptyKey         = errors.New("empty encryption key")
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrUnknownVersion   = errors.New("unknown key version")
	ErrInvalidPayload   = errors.New("invalid ciphertext")
)

// keyBytes normalizes a configured key. Keys may be supplied hex encoded
// (the provisioning tooling emits hex) or as raw bytes.
func keyBytes(key string) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	var kb []byte
	if len(key) == 32 || len(key) == 48 || len(key) == 64 {
		decoded, err := hex.DecodeString(key)
		if err == nil && (len(decoded) == 16 || len(decoded) == 24 || len(decoded) == 32) {
			kb = decoded
		} else {
			kb = []byte(key)
		}
	} else {
		kb = []byte(key)
	}
	if len(kb) != 16 && len(kb) != 24 && len(kb) != 32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKeyLength, len(kb))
	}
	return kb, nil
}

// Encrypt encrypts data using AES-GCM with the provided key.
func Encrypt(data, key string) (string, error) {
	kb, err := keyBytes(key)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(kb)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(data), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts data using AES-GCM with the provided key.
func Decrypt(encrypted, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	kb, err := keyBytes(key)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(kb)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidPayload
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// Codec encrypts PII under a versioned key ring. New writes use the active
// version; reads accept any configured version, so keys rotate without
// re-encrypting historical rows.
type Codec struct {
	keys          map[int]string
	activeVersion int
}

// NewCodec builds a Codec from a version→key map. The highest version is
// active. Every key is validated up front so a misconfigured tenant fails at
// activation rather than on the first identify call.
func NewCodec(keys map[int]string) (*Codec, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKey
	}
	versions := make([]int, 0, len(keys))
	for v, k := range keys {
		if v <= 0 {
			return nil, fmt.Errorf("key version %d must be positive", v)
		}
		if _, err := keyBytes(k); err != nil {
			return nil, fmt.Errorf("key version %d: %w", v, err)
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return &Codec{keys: keys, activeVersion: versions[len(versions)-1]}, nil
}

// ActiveVersion returns the version new ciphertext is produced under.
func (c *Codec) ActiveVersion() int {
	return c.activeVersion
}

// EncryptPII encrypts plaintext under the active key and returns the
// ciphertext together with the key version that produced it.
func (c *Codec) EncryptPII(plaintext string) (ciphertext string, version int, err error) {
	ciphertext, err = Encrypt(plaintext, c.keys[c.activeVersion])
	if err != nil {
		return "", 0, err
	}
	return ciphertext, c.activeVersion, nil
}

// DecryptPII decrypts ciphertext produced under any configured key version.
func (c *Codec) DecryptPII(ciphertext string, version int) (string, error) {
	key, ok := c.keys[version]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	return Decrypt(ciphertext, key)
}
