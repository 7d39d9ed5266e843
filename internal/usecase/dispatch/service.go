// Package dispatch fans a query out to the targeted retrieval engines
// and joins their results into one deterministically ordered bundle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/omnisource/internal/domain"
	"github.com/kailas-cloud/omnisource/internal/logger"
	"github.com/kailas-cloud/omnisource/internal/metrics"
)

// Bundle is the joined retrieval output handed to the synthesizer.
type Bundle struct {
	Items []domain.EvidenceItem
	// Notes carries one caveat per failed source, in source order.
	Notes  []string
	Counts map[domain.Source]int
}

// HadFailures reports whether any targeted engine failed.
func (b *Bundle) HadFailures() bool { return len(b.Notes) > 0 }

// Service invokes retrieval engines and assembles evidence bundles.
type Service struct {
	structured   domain.StructuredEngine
	unstructured domain.UnstructuredEngine
	topK         int
	maxEvidence  int
	maxRetries   int
	retryBase    time.Duration
}

// Option tunes a dispatch service.
type Option func(*Service)

// WithRetryBase overrides the first backoff delay. Used by tests.
func WithRetryBase(d time.Duration) Option {
	return func(s *Service) { s.retryBase = d }
}

// New creates a dispatcher. topK caps each engine's contribution and
// maxEvidence caps the whole bundle.
func New(structured domain.StructuredEngine, unstructured domain.UnstructuredEngine,
	topK, maxEvidence, maxRetries int, opts ...Option,
) *Service {
	if topK <= 0 {
		topK = 5
	}
	if maxEvidence <= 0 {
		maxEvidence = 20
	}
	s := &Service{
		structured:   structured,
		unstructured: unstructured,
		topK:         topK,
		maxEvidence:  maxEvidence,
		maxRetries:   maxRetries,
		retryBase:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve runs every targeted engine and joins the results. Targets run
// concurrently but the bundle order is fixed: structured evidence first,
// each group sorted by descending score with locator tie-break, so the
// synthesis prompt does not depend on completion order.
func (s *Service) Retrieve(ctx context.Context, query domain.Query, decision domain.RouteDecision) (*Bundle, error) {
	var (
		structuredItems, unstructuredItems []domain.EvidenceItem
		structuredErr, unstructuredErr     error
	)

	// The group is a join point only. Per-slot errors are collected so one
	// engine failing never cancels or discards the other's results.
	g, gctx := errgroup.WithContext(ctx)
	if decision.Has(domain.SourceStructured) {
		g.Go(func() error {
			structuredItems, structuredErr = s.withRetry(gctx, domain.SourceStructured, func(ctx context.Context) ([]domain.EvidenceItem, error) {
				return s.structured.Query(ctx, query.Text)
			})
			return nil
		})
	}
	if decision.Has(domain.SourceUnstructured) {
		g.Go(func() error {
			unstructuredItems, unstructuredErr = s.withRetry(gctx, domain.SourceUnstructured, func(ctx context.Context) ([]domain.EvidenceItem, error) {
				return s.unstructured.Search(ctx, query.Text, s.topK)
			})
			return nil
		})
	}
	_ = g.Wait()

	bundle := &Bundle{Counts: make(map[domain.Source]int)}
	failed := 0
	for _, slot := range []struct {
		source domain.Source
		items  []domain.EvidenceItem
		err    error
	}{
		{domain.SourceStructured, structuredItems, structuredErr},
		{domain.SourceUnstructured, unstructuredItems, unstructuredErr},
	} {
		if !decision.Has(slot.source) {
			continue
		}
		if slot.err != nil {
			failed++
			metrics.EngineRequestsTotal.WithLabelValues(string(slot.source), "error").Inc()
			logger.FromContext(ctx).Warn("engine failed",
				zap.String("engine", string(slot.source)), zap.Error(slot.err))
			bundle.Notes = append(bundle.Notes,
				fmt.Sprintf("the %s source was unavailable for this answer", slot.source))
			continue
		}
		metrics.EngineRequestsTotal.WithLabelValues(string(slot.source), "ok").Inc()

		items := orderGroup(slot.items, s.topK)
		bundle.Items = append(bundle.Items, items...)
		bundle.Counts[slot.source] = len(items)
		metrics.EvidenceItemsTotal.WithLabelValues(string(slot.source)).Add(float64(len(items)))
	}

	if failed == len(decision.Targets) {
		return bundle, fmt.Errorf("all %d targeted engines failed: %w", failed, domain.ErrNoEvidence)
	}

	if len(bundle.Items) > s.maxEvidence {
		bundle.Items = bundle.Items[:s.maxEvidence]
		recount(bundle)
	}
	return bundle, nil
}

// withRetry retries transient engine failures with exponential backoff.
// Context cancellation and semantic outcomes (no error, empty evidence)
// are never retried.
func (s *Service) withRetry(ctx context.Context, source domain.Source,
	call func(context.Context) ([]domain.EvidenceItem, error),
) ([]domain.EvidenceItem, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryBase << (attempt - 1)):
			}
		}
		items, err := call(ctx)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
	}
	var engErr *domain.EngineError
	if errors.As(lastErr, &engErr) {
		return nil, lastErr
	}
	return nil, domain.NewEngineError(source, lastErr)
}

// isTransient reports whether the failure may succeed on retry.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrEngineUnavailable) ||
		errors.Is(err, domain.ErrReasoningRateLimited) ||
		errors.Is(err, domain.ErrReasoningUnavailable)
}

// orderGroup sorts one source's evidence by descending score, breaking
// ties on the locator string, and caps the group at k items.
func orderGroup(items []domain.EvidenceItem, k int) []domain.EvidenceItem {
	sorted := make([]domain.EvidenceItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Locator.String() < sorted[j].Locator.String()
	})
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func recount(b *Bundle) {
	counts := make(map[domain.Source]int, len(b.Counts))
	for _, item := range b.Items {
		counts[item.Source]++
	}
	b.Counts = counts
}
