// Package retrieval defines the port to the external RAG subsystem.
// Passages come back ranked; the engine only concatenates them into
// prompts before dispatch and implements no retrieval itself.
package retrieval

import "context"

// Passage is one retrieved context snippet.
type Passage struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Retriever returns ranked passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}
