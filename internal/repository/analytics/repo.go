// Package analytics keeps per-turn usage records and the running
// counters behind the summary endpoint.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/omnisource/internal/db"
	"github.com/kailas-cloud/omnisource/internal/domain"
)

// store is the consumer interface for analytics records (ISP).
type store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) ([]byte, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
}

// Repo implements usecase/analytics.Repository.
type Repo struct {
	store  store
	prefix string
}

// New creates an analytics repository. Keys are namespaced by prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// routeLabels are the counter suffixes tracked per route shape.
var routeLabels = []string{"structured", "unstructured", "both"}

// Log stores the per-turn record and bumps the summary counters.
func (r *Repo) Log(ctx context.Context, event *domain.TurnEvent) error {
	key := r.key("turn:" + event.TurnID)
	fields := map[string]string{
		"session_id": event.SessionID,
		"route":      routeLabel(event.Route),
		"latency_ms": strconv.FormatInt(event.LatencyMS, 10),
		"had_errors": strconv.FormatBool(event.HadErrors),
	}
	for source, n := range event.EvidenceCount {
		fields["evidence_"+string(source)] = strconv.Itoa(n)
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}

	if err := r.store.IncrBy(ctx, r.key("turns_total"), 1); err != nil {
		return fmt.Errorf("incr turns_total: %w", err)
	}
	if err := r.store.IncrBy(ctx, r.key("route:"+routeLabel(event.Route)), 1); err != nil {
		return fmt.Errorf("incr route counter: %w", err)
	}
	if err := r.store.IncrBy(ctx, r.key("latency_ms_total"), event.LatencyMS); err != nil {
		return fmt.Errorf("incr latency_ms_total: %w", err)
	}
	return nil
}

// RecordFeedback bumps the up or down counter for a rated turn. When the
// turn was rated before, the previous counter is decremented so each turn
// contributes at most one vote; resubmitting the same rating is a no-op.
func (r *Repo) RecordFeedback(ctx context.Context, rating int, previous *int) error {
	if previous != nil && *previous == rating {
		return nil
	}
	if err := r.store.IncrBy(ctx, r.key(feedbackCounter(rating)), 1); err != nil {
		return fmt.Errorf("incr %s: %w", feedbackCounter(rating), err)
	}
	if previous != nil {
		if err := r.store.IncrBy(ctx, r.key(feedbackCounter(*previous)), -1); err != nil {
			return fmt.Errorf("decr %s: %w", feedbackCounter(*previous), err)
		}
	}
	return nil
}

func feedbackCounter(rating int) string {
	if rating < 0 {
		return "feedback_down"
	}
	return "feedback_up"
}

// Summary reads the running counters. Absent counters read as zero.
func (r *Repo) Summary(ctx context.Context) (*domain.UsageSummary, error) {
	total, err := r.counter(ctx, "turns_total")
	if err != nil {
		return nil, err
	}
	latency, err := r.counter(ctx, "latency_ms_total")
	if err != nil {
		return nil, err
	}
	up, err := r.counter(ctx, "feedback_up")
	if err != nil {
		return nil, err
	}
	down, err := r.counter(ctx, "feedback_down")
	if err != nil {
		return nil, err
	}

	byRoute := make(map[string]int64, len(routeLabels))
	for _, label := range routeLabels {
		n, err := r.counter(ctx, "route:"+label)
		if err != nil {
			return nil, err
		}
		byRoute[label] = n
	}

	summary := &domain.UsageSummary{
		TotalTurns:   total,
		ByRoute:      byRoute,
		FeedbackUp:   up,
		FeedbackDown: down,
	}
	if total > 0 {
		summary.AvgLatencyMS = float64(latency) / float64(total)
	}
	return summary, nil
}

// counter reads a single integer counter, treating a missing key as zero.
func (r *Repo) counter(ctx context.Context, name string) (int64, error) {
	key := r.key(name)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %s: %w", key, err)
	}
	return n, nil
}

func (r *Repo) key(name string) string {
	return r.prefix + "analytics:" + name
}

// routeLabel collapses a route into one of the tracked counter labels.
func routeLabel(route []domain.Source) string {
	if len(route) >= 2 {
		return "both"
	}
	if len(route) == 1 {
		return string(route[0])
	}
	return "none"
}
