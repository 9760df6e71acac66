package generation

import "errors"

// Errors returned by the completion boundary.
var (
	// ErrInvalidConfig indicates the completion client was constructed
	// with missing or malformed settings.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrExternalCall indicates the completion call itself failed or
	// returned output that could not be parsed. Callers inside the
	// pipeline recover from it locally; it never aborts a run.
	ErrExternalCall = errors.New("external completion call failed")

	// ErrTransientFailure indicates the call failed after exhausting
	// retries on transient errors.
	ErrTransientFailure = errors.New("transient completion failure")

	// ErrInvalidResponse indicates the service answered with an empty
	// or structurally unusable response.
	ErrInvalidResponse = errors.New("invalid completion response")

	// ErrNoItems indicates a plan or section was requested for zero
	// items; rejected before any external call.
	ErrNoItems = errors.New("cannot generate for an empty item list")
)
