package security

import (
	"errors"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef" // 32 hex chars → 16-byte key

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ciphertext, err := Encrypt("jane@example.com", testKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == "jane@example.com" {
		t.Fatal("ciphertext equals plaintext")
	}

	plaintext, err := Decrypt(ciphertext, testKey)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "jane@example.com" {
		t.Fatalf("plaintext = %q", plaintext)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	a, err := Encrypt("same input", testKey)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same input", testKey)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestEncryptRejectsBadKeys(t *testing.T) {
	if _, err := Encrypt("x", ""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("empty key: err = %v", err)
	}
	if _, err := Encrypt("x", "short"); !errors.Is(err, ErrInvalidKeyLength) {
		t.Fatalf("short key: err = %v", err)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	if _, err := Decrypt("not base64!!", testKey); err == nil {
		t.Fatal("garbage input accepted")
	}
	if _, err := Decrypt("AAAA", testKey); err == nil {
		t.Fatal("truncated ciphertext accepted")
	}
}

func TestCodecVersioning(t *testing.T) {
	codec, err := NewCodec(map[int]string{
		1: testKey,
		2: "fedcba9876543210fedcba9876543210",
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if codec.ActiveVersion() != 2 {
		t.Fatalf("active version = %d, want 2", codec.ActiveVersion())
	}

	ciphertext, version, err := codec.EncryptPII("+15551234567")
	if err != nil {
		t.Fatalf("EncryptPII: %v", err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}

	plaintext, err := codec.DecryptPII(ciphertext, version)
	if err != nil {
		t.Fatalf("DecryptPII: %v", err)
	}
	if plaintext != "+15551234567" {
		t.Fatalf("plaintext = %q", plaintext)
	}

	// Old-version ciphertext stays readable after rotation.
	oldCiphertext, err := Encrypt("old@example.com", testKey)
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err = codec.DecryptPII(oldCiphertext, 1)
	if err != nil {
		t.Fatalf("DecryptPII v1: %v", err)
	}
	if plaintext != "old@example.com" {
		t.Fatalf("plaintext = %q", plaintext)
	}

	if _, err := codec.DecryptPII(ciphertext, 9); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("unknown version err = %v", err)
	}
}

func TestNewCodecValidatesKeys(t *testing.T) {
	if _, err := NewCodec(nil); err == nil {
		t.Fatal("empty key ring accepted")
	}
	if _, err := NewCodec(map[int]string{1: "bad"}); err == nil {
		t.Fatal("invalid key accepted")
	}
	if _, err := NewCodec(map[int]string{0: testKey}); err == nil {
		t.Fatal("non-positive version accepted")
	}
}
