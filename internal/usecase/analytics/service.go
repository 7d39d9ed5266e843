// Package analytics exposes the usage summary report.
package analytics

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/omnisource/internal/domain"
)

// Repository reads the aggregated usage counters.
type Repository interface {
	Summary(ctx context.Context) (*domain.UsageSummary, error)
}

// Service handles usage reporting.
type Service struct {
	repo Repository
}

// New creates a Service.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Summary returns the aggregated usage report.
func (s *Service) Summary(ctx context.Context) (*domain.UsageSummary, error) {
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("read usage counters: %w", err)
	}
	return summary, nil
}
