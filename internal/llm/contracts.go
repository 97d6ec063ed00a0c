// Package llm turns OCR text into a structured receipt draft by calling a
// chat-completion provider and validating the reply against a JSON Schema.
// Providers live in subpackages (openai, gemini) behind CompletionClient.
package llm

import "context"

// CompletionRequest is one structured-output request. Schema travels with the
// request so a provider can embed it in whatever form its API expects.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Schema       map[string]any
}

// CompletionClient is the provider seam. Complete returns the raw JSON
// document produced by the model; transport and API errors come back as
// errors, content problems are left for the caller to detect.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) ([]byte, error)
}
