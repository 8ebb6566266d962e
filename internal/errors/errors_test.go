package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "job not found",
			},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to enqueue job",
				Cause:   errors.New("connection refused"),
			},
			want: "failed to enqueue job: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &AppError{
		Code:    ErrCodeInternal,
		Message: "wrapped error",
		Cause:   cause,
	}

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantCode ErrorCode
		wantMsg  string
	}{
		{"not found", NotFound("job not found"), ErrCodeNotFound, "job not found"},
		{"conflict", Conflict("job is not paused"), ErrCodeConflict, "job is not paused"},
		{"validation", Validation("total rows must be positive"), ErrCodeValidation, "total rows must be positive"},
		{"validationf", Validationf("prompt %d: missing model", 2), ErrCodeValidation, "prompt 2: missing model"},
		{"internal", Internal("unexpected state"), ErrCodeInternal, "unexpected state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
			if tt.err.Cause != nil {
				t.Errorf("Cause = %v, want nil", tt.err.Cause)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	err := Wrap(cause, ErrCodeUnavailable, "cache unreachable")
	if err.Code != ErrCodeUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnavailable)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}

	if wrapped := Wrap(nil, ErrCodeInternal, "ignored"); wrapped != nil {
		t.Errorf("Wrap(nil) = %v, want nil", wrapped)
	}

	errf := Wrapf(cause, ErrCodeInternal, "load row %d", 7)
	if errf.Message != "load row 7" {
		t.Errorf("Wrapf message = %q, want %q", errf.Message, "load row 7")
	}
	if wrapped := Wrapf(nil, ErrCodeInternal, "ignored"); wrapped != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", wrapped)
	}
}

func TestCodePredicates(t *testing.T) {
	notFound := NotFound("missing")
	conflict := Conflict("guard rejected")
	validation := Validation("bad input")
	plain := errors.New("plain")

	if !IsNotFound(notFound) || IsNotFound(conflict) || IsNotFound(plain) {
		t.Error("IsNotFound misclassified")
	}
	if !IsConflict(conflict) || IsConflict(notFound) {
		t.Error("IsConflict misclassified")
	}
	if !IsValidation(validation) || IsValidation(plain) {
		t.Error("IsValidation misclassified")
	}

	// Predicates see through fmt.Errorf wrapping.
	wrapped := fmt.Errorf("enqueue: %w", validation)
	if !IsValidation(wrapped) {
		t.Error("IsValidation should unwrap nested errors")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(NotFound("missing")); got != ErrCodeNotFound {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeNotFound)
	}
	if got := GetCode(fmt.Errorf("outer: %w", Conflict("inner"))); got != ErrCodeConflict {
		t.Errorf("GetCode through wrap = %v, want %v", got, ErrCodeConflict)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %v, want empty", got)
	}
}
