package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestCtlError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeNotConnected, "controller offline")
	if err.Code != ErrCodeNotConnected {
		t.Errorf("expected code %s, got %s", ErrCodeNotConnected, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeCommandFailed, "command failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeCommandFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeNotConnected) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("host", "bbctrl.local").WithDetail("port", 80)
	if detailed.Details["host"] != "bbctrl.local" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrap(t *testing.T) {
	inner := PermissionDenied("upgrade")
	outer := fmt.Errorf("upgrade: %w", inner)

	if !Is(outer, ErrCodePermissionDenied) {
		t.Error("Is should unwrap fmt wrapped errors")
	}
	if GetCode(outer) != ErrCodePermissionDenied {
		t.Errorf("expected code %s, got %s", ErrCodePermissionDenied, GetCode(outer))
	}
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := CommandFailed("home/x", 500, fmt.Errorf("boom"))
	if err.Code != ErrCodeCommandFailed {
		t.Errorf("expected code %s, got %s", ErrCodeCommandFailed, err.Code)
	}
	if err.Details["status"] != 500 {
		t.Error("CommandFailed should include status detail")
	}

	err = CommandFailed("start", 0, fmt.Errorf("dial tcp: refused"))
	if _, ok := err.Details["status"]; ok {
		t.Error("CommandFailed without a status should not record one")
	}

	err = ProtocolViolation([]string{"axes.x", "pr"})
	if err.Code != ErrCodeProtocolViolation {
		t.Errorf("expected code %s, got %s", ErrCodeProtocolViolation, err.Code)
	}

	err = InvalidAxis("q")
	if err.Details["axis"] != "q" {
		t.Error("InvalidAxis should include axis detail")
	}

	err = Timeout("wait for state", 5*time.Second)
	if err.Details["timeout"] != "5s" {
		t.Errorf("unexpected timeout detail %v", err.Details["timeout"])
	}
}
