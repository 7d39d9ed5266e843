package domain

import "context"

// GenerationConfig tunes a single reasoning call.
type GenerationConfig struct {
	MaxTokens   int
	Temperature float32
}

// Reasoner is the shared text-generation contract between layers.
// Stateless per call: given a prompt, returns text.
type Reasoner interface {
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}

// StructuredEngine answers via generated queries against tabular data.
type StructuredEngine interface {
	Query(ctx context.Context, text string) ([]EvidenceItem, error)
}

// UnstructuredEngine answers via semantic similarity search over chunked text.
type UnstructuredEngine interface {
	Search(ctx context.Context, text string, topK int) ([]EvidenceItem, error)
}

// HealthChecker verifies external collaborator availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
