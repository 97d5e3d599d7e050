package events

import (
	"testing"
	"time"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		ok    bool
	}{
		{"simple", "page_view", true},
		{"single letter", "x", true},
		{"digits after letter", "step2_done", true},
		{"empty", "", false},
		{"leading digit", "2fast", false},
		{"leading underscore", "_hidden", false},
		{"uppercase", "PageView", false},
		{"hyphen", "page-view", false},
		{"space", "page view", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			if tc.ok && err != nil {
				t.Fatalf("ValidateName(%q) = %v, want nil", tc.input, err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("ValidateName(%q) = nil, want error", tc.input)
				}
				var verr *ValidationError
				if !asValidationError(err, &verr) || verr.Code != CodeInvalidEventName {
					t.Fatalf("ValidateName(%q) code = %v, want %s", tc.input, err, CodeInvalidEventName)
				}
			}
		})
	}
}

func TestValidateAnonymousID(t *testing.T) {
	if err := ValidateAnonymousID("a_12345"); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	for _, bad := range []string{"", "12345", "b_12345"} {
		err := ValidateAnonymousID(bad)
		if err == nil {
			t.Fatalf("ValidateAnonymousID(%q) = nil, want error", bad)
		}
		var verr *ValidationError
		if !asValidationError(err, &verr) || verr.Code != CodeInvalidAnonymousID {
			t.Fatalf("ValidateAnonymousID(%q) code = %v, want %s", bad, err, CodeInvalidAnonymousID)
		}
	}
}

func TestValidateTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	skew := 5 * time.Minute

	if err := ValidateTimestamp(time.Time{}, now, skew); err != nil {
		t.Fatalf("zero timestamp should pass: %v", err)
	}
	if err := ValidateTimestamp(now.Add(-4*time.Minute), now, skew); err != nil {
		t.Fatalf("timestamp within skew rejected: %v", err)
	}
	if err := ValidateTimestamp(now.Add(4*time.Minute), now, skew); err != nil {
		t.Fatalf("future timestamp within skew rejected: %v", err)
	}
	if err := ValidateTimestamp(now.Add(-6*time.Minute), now, skew); err == nil {
		t.Fatal("stale timestamp accepted")
	}
	if err := ValidateTimestamp(now.Add(6*time.Minute), now, skew); err == nil {
		t.Fatal("far-future timestamp accepted")
	}
}

func asValidationError(err error, target **ValidationError) bool {
	verr, ok := err.(*ValidationError)
	if ok {
		*target = verr
	}
	return ok
}
