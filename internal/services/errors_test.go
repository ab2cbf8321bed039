package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"evalpanel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "worker", "agent", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"worker", "agent", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

type kindError struct{}

func (kindError) Error() string     { return "custom" }
func (kindError) ErrorKind() string { return "custom_kind" }

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", services.Validation("teams", "commit", "weights must sum to 100"), services.KindValidation},
		{"not found", services.NotFound("jobs", "get", "missing"), services.KindNotFound},
		{"conflict", services.Wrap(services.ErrConflict, "jobs", "claim", "already claimed", nil), services.KindConflict},
		{"transient wrapped twice", fmt.Errorf("outer: %w", services.Wrap(services.ErrTransient, "worker", "run", "", errors.New("x"))), services.KindTransient},
		{"classifier", fmt.Errorf("wrap: %w", kindError{}), "custom_kind"},
		{"plain", errors.New("plain"), services.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.ErrorKind(tt.err); got != tt.want {
				t.Fatalf("ErrorKind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !services.IsRetryable(services.Wrap(services.ErrTimeout, "reasoning", "complete", "deadline", nil)) {
		t.Fatal("expected timeout to be retryable")
	}
	if services.IsRetryable(services.Validation("jobs", "submit", "bad")) {
		t.Fatal("expected validation error to be terminal")
	}
}

func TestCallerScope(t *testing.T) {
	if err := (services.Caller{}).Validate(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty tenant, got %v", err)
	}
	caller := services.Caller{UserID: "u1", TenantID: "t1", Role: "Restricted"}
	if err := caller.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !caller.Restricted() {
		t.Fatal("expected restricted role to be detected case-insensitively")
	}
}
