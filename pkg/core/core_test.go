package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", ErrNotFound, "NotFound"},
		{"wrapped not found", fmt.Errorf("agent %q: %w", "a1", ErrNotFound), "NotFound"},
		{"already exists", ErrAlreadyExists, "AlreadyExists"},
		{"busy", ErrBusy, "Busy"},
		{"precondition", fmt.Errorf("phase pseudocode: %w", ErrPreconditionFailed), "PreconditionFailed"},
		{"timeout", ErrTimeout, "Timeout"},
		{"concurrency", ErrConcurrencyLimit, "ConcurrencyLimit"},
		{"gate rejected", ErrGateRejected, "GateRejected"},
		{"validation", ErrValidationFailed, "ValidationFailed"},
		{"backend", fmt.Errorf("sqlite: %w", ErrBackend), "BackendError"},
		{"cancelled", ErrCancelled, "Cancelled"},
		{"unknown", errors.New("boom"), "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}
