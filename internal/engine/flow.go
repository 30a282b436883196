package engine

import "github.com/google/uuid"

// FlowTokenGenerator names the flow of a request that arrives without a
// flow token. One CLI invocation or one scenario is one flow; the call
// quota is counted per flow.
type FlowTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 flow tokens, so flows
// listed by token come out in the order they started.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// flowToken returns the flow of req, generating one when it has none.
func (e *Engine) flowToken(req Request) string {
	if req.FlowToken != "" {
		return req.FlowToken
	}
	return e.flowGen.Generate()
}
