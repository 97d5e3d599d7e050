package security

import "testing"

func TestFingerprintIsDeterministic(t *testing.T) {
	fp, err := NewFingerprinter("tenant-secret", 1)
	if err != nil {
		t.Fatalf("NewFingerprinter: %v", err)
	}

	a, err := fp.Email("Jane@Example.com ")
	if err != nil {
		t.Fatal(err)
	}
	b, err := fp.Email("jane@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("equivalent emails produced different fingerprints")
	}

	c, err := fp.Email("john@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if a == c {
		t.Fatal("different emails produced the same fingerprint")
	}
}

func TestFingerprintFieldsAreDisjoint(t *testing.T) {
	fp, err := NewFingerprinter("tenant-secret", 1)
	if err != nil {
		t.Fatal(err)
	}
	email, err := fp.Fingerprint("email", "5551234", 1)
	if err != nil {
		t.Fatal(err)
	}
	phone, err := fp.Fingerprint("phone", "5551234", 1)
	if err != nil {
		t.Fatal(err)
	}
	if email == phone {
		t.Fatal("email and phone fingerprint spaces overlap")
	}
}

func TestFingerprintVersionsAreDisjoint(t *testing.T) {
	fp, err := NewFingerprinter("tenant-secret", 2)
	if err != nil {
		t.Fatal(err)
	}
	v1, err := fp.Fingerprint("email", "jane@example.com", 1)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := fp.Fingerprint("email", "jane@example.com", 2)
	if err != nil {
		t.Fatal(err)
	}
	if v1 == v2 {
		t.Fatal("rotating the version did not change the fingerprint")
	}
}

func TestFingerprintSecretsAreDisjoint(t *testing.T) {
	fpA, err := NewFingerprinter("tenant-a", 1)
	if err != nil {
		t.Fatal(err)
	}
	fpB, err := NewFingerprinter("tenant-b", 1)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := fpA.Email("jane@example.com")
	b, _ := fpB.Email("jane@example.com")
	if a == b {
		t.Fatal("two tenants produced the same fingerprint for the same email")
	}
}

func TestNewFingerprinterValidation(t *testing.T) {
	if _, err := NewFingerprinter("", 1); err == nil {
		t.Fatal("empty secret accepted")
	}
	if _, err := NewFingerprinter("secret", 0); err == nil {
		t.Fatal("zero version accepted")
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct{ in, want string }{
		{"+1 (555) 123-4567", "+15551234567"},
		{"555.123.4567", "5551234567"},
		{" 555 123 4567 ", "5551234567"},
		{"+49-30-1234", "+49301234"},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
