package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestUpstreamKeepsDomainErrors(t *testing.T) {
	domain := []error{
		NewValidationError("bad"),
		&NotFoundError{Resource: "version", Key: 1},
		&ConflictError{Reason: ReasonAnotherPrimaryExists},
		&InvalidStateError{Reason: ReasonVersionNotEditable},
		&MissingFieldsError{},
		fmt.Errorf("wrapped: %w", &ConflictError{Reason: ReasonVersionHasResponses}),
	}
	for _, err := range domain {
		if got := upstream("op", err); got != err {
			t.Errorf("upstream(%v) = %v, want the error unchanged", err, got)
		}
	}

	if upstream("op", nil) != nil {
		t.Error("upstream(nil) should be nil")
	}

	cause := errors.New("connection refused")
	err := upstream("save answers", cause)
	var up *UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %T", err)
	}
	if up.Op != "save answers" || !errors.Is(err, cause) {
		t.Errorf("unexpected upstream error %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{
		Message: "invalid answers",
		Fields:  map[string]string{"b": "bad", "a": "worse"},
		Unknown: []string{"x"},
	}
	want := "invalid answers (a: worse; b: bad; unknown question codes: x)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if NewValidationError("plain %d", 1).Error() != "plain 1" {
		t.Error("unexpected message without details")
	}
}

func TestNormalizeUserCode(t *testing.T) {
	if code, err := NormalizeUserCode("  A001 "); err != nil || code != "A001" {
		t.Errorf("NormalizeUserCode = %q, %v", code, err)
	}
	if _, err := NormalizeUserCode("   "); err == nil {
		t.Error("expected error for blank code")
	}
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := NormalizeUserCode(string(long)); err == nil {
		t.Error("expected error for long code")
	}
}
