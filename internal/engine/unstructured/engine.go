// Package unstructured implements the semantic retrieval engine over
// document chunks held in the vector index by the ingestion pipeline.
package unstructured

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnisource/internal/db"
	"github.com/kailas-cloud/omnisource/internal/domain"
)

// store is the consumer interface for vector search operations.
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine answers questions via KNN similarity search over ingested chunks.
type Engine struct {
	store  store
	embed  Embedder
	index  string
	logger *zap.Logger
}

// New creates an unstructured engine over the given FT index.
func New(s store, embed Embedder, index string, logger *zap.Logger) *Engine {
	return &Engine{store: s, embed: embed, index: index, logger: logger}
}

var _ domain.UnstructuredEngine = (*Engine)(nil)

// Search implements domain.UnstructuredEngine.
func (e *Engine) Search(ctx context.Context, text string, topK int) ([]domain.EvidenceItem, error) {
	if topK <= 0 {
		topK = 5
	}

	vector, err := e.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	res, err := e.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    e.index,
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"__content", "file", "page", "__vector_score"},
	})
	if err != nil {
		// Store failures are availability-class: the index may come back.
		return nil, domain.NewEngineError(domain.SourceUnstructured,
			fmt.Errorf("search knn: %w", errors.Join(domain.ErrEngineUnavailable, err)))
	}

	items := make([]domain.EvidenceItem, 0, len(res.Entries))
	for _, entry := range res.Entries {
		page, _ := strconv.Atoi(entry.Fields["page"])
		items = append(items, domain.EvidenceItem{
			Source: domain.SourceUnstructured,
			Locator: domain.Locator{
				Document: entry.Fields["file"],
				Page:     page,
				Chunk:    entry.Key,
			},
			Content: entry.Fields["__content"],
			Score:   entry.Score,
		})
	}
	return items, nil
}

// HealthCheck verifies the vector index is present.
func (e *Engine) HealthCheck(ctx context.Context) error {
	ok, err := e.store.IndexExists(ctx, e.index)
	if err != nil {
		return fmt.Errorf("index probe: %w", err)
	}
	if !ok {
		return fmt.Errorf("index %s: %w", e.index, db.ErrIndexNotFound)
	}
	return nil
}
