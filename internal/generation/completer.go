package generation

import "context"

// CompletionRequest is one text-completion call: a system prompt fixing
// the model's role, a user prompt carrying the content, and an optional
// model override (clients fall back to their configured default).
type CompletionRequest struct {
	System string
	User   string
	Model  string
}

// Completer is the external text-completion collaborator. The call may
// fail or time out; integrators apply timeouts through ctx.
type Completer interface {
	// Complete issues one completion call and returns the raw response
	// text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
