// Package toolbroker defines the port for authoritative external tools
// (calculator, web search, code execution). Tool results feed the
// verifier's domain-specific checks; the engine never interprets tool
// semantics beyond that.
package toolbroker

import "context"

// Result is the authoritative output of one tool invocation.
type Result struct {
	Tool  string
	Value string
}

// Broker invokes a named tool with structured arguments.
type Broker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (*Result, error)
}
