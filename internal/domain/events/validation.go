package events

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Validation error codes reported per item in batch responses.
const (
	CodeInvalidEventName   = "invalid_event_name"
	CodeInvalidTimestamp   = "invalid_timestamp"
	CodeInvalidAnonymousID = "invalid_anonymous_id"
	CodeBatchTooLarge      = "batch_too_large"
	CodePayloadTooLarge    = "payload_too_large"
	CodeProcessingFailed   = "processing_failed"
)

var eventNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidationError carries the structured code surfaced to clients.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidateName checks the event name against the required slug shape.
func ValidateName(name string) error {
	if !eventNamePattern.MatchString(name) {
		return newValidationError(CodeInvalidEventName, "event name %q must match [a-z][a-z0-9_]*", name)
	}
	return nil
}

// ValidateAnonymousID checks that the visitor identifier is present and
// carries the client namespace prefix.
func ValidateAnonymousID(id string) error {
	if id == "" {
		return newValidationError(CodeInvalidAnonymousID, "anonymous id is required")
	}
	if !strings.HasPrefix(id, AnonymousIDPrefix) {
		return newValidationError(CodeInvalidAnonymousID, "anonymous id %q must be prefixed %q", id, AnonymousIDPrefix)
	}
	return nil
}

// ValidateTimestamp checks event time against server time within the
// configured skew. A zero timestamp is allowed; intake substitutes the
// server clock.
func ValidateTimestamp(occurredAt, now time.Time, skew time.Duration) error {
	if occurredAt.IsZero() {
		return nil
	}
	drift := now.Sub(occurredAt)
	if drift < 0 {
		drift = -drift
	}
	if drift > skew {
		return newValidationError(CodeInvalidTimestamp, "timestamp %s outside ±%s of server time", occurredAt.Format(time.RFC3339), skew)
	}
	return nil
}

// Validate runs all per-event boundary checks.
func Validate(e *Event, now time.Time, skew time.Duration) error {
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if err := ValidateAnonymousID(e.AnonymousID); err != nil {
		return err
	}
	return ValidateTimestamp(e.OccurredAt, now, skew)
}
