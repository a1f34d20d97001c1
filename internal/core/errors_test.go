package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrBadRequest:           400,
		ErrInvalidPath:          400,
		ErrSecurityViolation:    400,
		ErrInvalidRepo:          400,
		ErrInvalidCleanupTarget: 400,
		ErrUnauthorized:         401,
		ErrNotFound:             404,
		ErrVersionConflict:      409,
		ErrSizeLimit:            413,
		ErrQuotaExceeded:        429,
		ErrTimeout:              504,
		ErrInternal:             500,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s: expected status %d, got %d", code, want, got)
		}
	}
}

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrInvalidPath, "invalid workspace path")
	if err.Error() != "SESS_INVALID_PATH: invalid workspace path" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestVersionConflictError_ErrorsAs(t *testing.T) {
	var conflict *VersionConflictError
	wrapped := fmt.Errorf("update session: %w", &VersionConflictError{SessionID: "s-1", ExpectedVersion: 3})

	if !errors.As(wrapped, &conflict) {
		t.Fatal("errors.As did not match wrapped VersionConflictError")
	}
	if conflict.SessionID != "s-1" || conflict.ExpectedVersion != 3 {
		t.Errorf("conflict fields lost through wrapping: %+v", conflict)
	}
}

func TestSessionStatus_IsTerminal(t *testing.T) {
	if StatusActive.IsTerminal() {
		t.Error("active must not be terminal")
	}
	for _, s := range []SessionStatus{StatusCompleted, StatusError, StatusStale, StatusCrashed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if SessionStatus("bogus").Valid() {
		t.Error("unknown status must not validate")
	}
}
