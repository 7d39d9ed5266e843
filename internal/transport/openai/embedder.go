package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnisource/internal/domain"
)

// Embedder vectorizes query text via the OpenAI-compatible embeddings API.
// Used by the unstructured engine; document-side embedding is owned by the
// ingestion pipeline, not by this service.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// EmbedderConfig holds the embedding provider settings.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible query embedder.
func NewEmbedder(cfg *EmbedderConfig) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}
}

// Embed returns the embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		// Provider failures are availability-class: a plain query string
		// has no semantic reason to be unembeddable.
		return nil, domain.NewEngineError(domain.SourceUnstructured,
			fmt.Errorf("embed query: %w", errors.Join(domain.ErrEngineUnavailable, err)))
	}
	if len(resp.Data) == 0 {
		return nil, domain.NewEngineError(domain.SourceUnstructured,
			fmt.Errorf("empty embedding response: %w", domain.ErrEngineUnavailable))
	}

	return resp.Data[0].Embedding, nil
}
