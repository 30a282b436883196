package testutil

import "sync/atomic"

// DefaultFlowToken is the flow of scenarios and tests that do not name one.
const DefaultFlowToken = "test-flow-default"

// FixedFlowGenerator names every generated flow the same, so all calls of a
// scenario share one flow and golden traces stay byte-stable. It counts how
// often the engine had to generate a token.
type FixedFlowGenerator struct {
	token     string
	generated atomic.Int64
}

// NewFixedFlowGenerator creates a generator for token, or DefaultFlowToken if empty.
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = DefaultFlowToken
	}
	return &FixedFlowGenerator{token: token}
}

// Generate implements engine.FlowTokenGenerator.
func (g *FixedFlowGenerator) Generate() string {
	g.generated.Add(1)
	return g.token
}

// Generated returns how many tokens have been handed out.
func (g *FixedFlowGenerator) Generated() int {
	return int(g.generated.Load())
}
