package core

import "errors"

// --- Common Errors ---
//
// Every kernel subsystem reports failures through these sentinels, wrapped
// with fmt.Errorf("...: %w", err) so errors.Is works across package
// boundaries. The MCP layer maps them to envelope error kinds via Kind.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrBusy               = errors.New("busy")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrTimeout            = errors.New("timeout")
	ErrConcurrencyLimit   = errors.New("concurrency limit exceeded")
	ErrGateRejected       = errors.New("gate rejected")
	ErrValidationFailed   = errors.New("validation failed")
	ErrBackend            = errors.New("backend error")
	ErrCancelled          = errors.New("cancelled")
	ErrInternal           = errors.New("internal error")
)

// --- Error Kinds ---

// Kind returns the stable kind name for a kernel error, or "Internal" for
// anything unrecognized. Kind names appear in MCP envelopes and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrBusy):
		return "Busy"
	case errors.Is(err, ErrPreconditionFailed):
		return "PreconditionFailed"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrConcurrencyLimit):
		return "ConcurrencyLimit"
	case errors.Is(err, ErrGateRejected):
		return "GateRejected"
	case errors.Is(err, ErrValidationFailed):
		return "ValidationFailed"
	case errors.Is(err, ErrBackend):
		return "BackendError"
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	default:
		return "Internal"
	}
}
