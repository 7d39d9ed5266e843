package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/omnisource/internal/domain"
)

type fakeStructured struct {
	items []domain.EvidenceItem
	errs  []error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeStructured) Query(ctx context.Context, _ string) ([]domain.EvidenceItem, error) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if n <= len(f.errs) && f.errs[n-1] != nil {
		return nil, f.errs[n-1]
	}
	return f.items, nil
}

type fakeUnstructured struct {
	items []domain.EvidenceItem
	err   error
	topK  int
}

func (f *fakeUnstructured) Search(_ context.Context, _ string, topK int) ([]domain.EvidenceItem, error) {
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func tableItem(row string, score float64) domain.EvidenceItem {
	return domain.EvidenceItem{
		Source:  domain.SourceStructured,
		Locator: domain.Locator{Table: "social_listening", Row: row},
		Content: "row " + row,
		Score:   score,
	}
}

func docItem(page int, score float64) domain.EvidenceItem {
	return domain.EvidenceItem{
		Source:  domain.SourceUnstructured,
		Locator: domain.Locator{Document: "reviews.pdf", Page: page},
		Content: "chunk",
		Score:   score,
	}
}

func both() domain.RouteDecision {
	return domain.RouteBoth("test")
}

func mustQuery(t *testing.T) domain.Query {
	t.Helper()
	q, err := domain.NewQuery("sess-1", "battery complaints")
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	return q
}

func TestRetrieveOrdersStructuredFirst(t *testing.T) {
	// The structured engine answers slower, so a completion-order join
	// would put documents first.
	structured := &fakeStructured{
		items: []domain.EvidenceItem{tableItem("2", 1.0), tableItem("1", 1.0)},
		delay: 20 * time.Millisecond,
	}
	unstructured := &fakeUnstructured{
		items: []domain.EvidenceItem{docItem(3, 0.7), docItem(1, 0.9)},
	}
	svc := New(structured, unstructured, 5, 20, 0)

	bundle, err := svc.Retrieve(context.Background(), mustQuery(t), both())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(bundle.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(bundle.Items))
	}
	if bundle.Items[0].Source != domain.SourceStructured || bundle.Items[1].Source != domain.SourceStructured {
		t.Errorf("structured evidence not first: %v, %v", bundle.Items[0].Source, bundle.Items[1].Source)
	}
	// Equal scores break ties on locator string, so row 1 precedes row 2.
	if bundle.Items[0].Locator.Row != "1" {
		t.Errorf("items[0] row = %s, want 1", bundle.Items[0].Locator.Row)
	}
	// Documents sorted by descending score.
	if bundle.Items[2].Score != 0.9 || bundle.Items[3].Score != 0.7 {
		t.Errorf("document scores out of order: %v, %v", bundle.Items[2].Score, bundle.Items[3].Score)
	}
	if bundle.Counts[domain.SourceStructured] != 2 || bundle.Counts[domain.SourceUnstructured] != 2 {
		t.Errorf("counts = %v", bundle.Counts)
	}
	if bundle.HadFailures() {
		t.Errorf("unexpected failure notes: %v", bundle.Notes)
	}
}

func TestRetrieveSingleTarget(t *testing.T) {
	structured := &fakeStructured{items: []domain.EvidenceItem{tableItem("1", 1.0)}}
	unstructured := &fakeUnstructured{items: []domain.EvidenceItem{docItem(1, 0.9)}}
	svc := New(structured, unstructured, 5, 20, 0)

	decision := domain.RouteDecision{Targets: []domain.Source{domain.SourceUnstructured}}
	bundle, err := svc.Retrieve(context.Background(), mustQuery(t), decision)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(bundle.Items) != 1 || bundle.Items[0].Source != domain.SourceUnstructured {
		t.Fatalf("bundle = %+v", bundle.Items)
	}
	if structured.calls.Load() != 0 {
		t.Error("structured engine called for unstructured-only route")
	}
	if unstructured.topK != 5 {
		t.Errorf("topK = %d", unstructured.topK)
	}
}

func TestRetrievePartialFailure(t *testing.T) {
	structured := &fakeStructured{errs: []error{errors.New("sqlite locked")}}
	unstructured := &fakeUnstructured{items: []domain.EvidenceItem{docItem(1, 0.9)}}
	svc := New(structured, unstructured, 5, 20, 0)

	bundle, err := svc.Retrieve(context.Background(), mustQuery(t), both())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(bundle.Items) != 1 {
		t.Fatalf("expected surviving evidence, got %d items", len(bundle.Items))
	}
	if !bundle.HadFailures() || len(bundle.Notes) != 1 {
		t.Fatalf("notes = %v", bundle.Notes)
	}
}

func TestRetrieveAllEnginesFail(t *testing.T) {
	structured := &fakeStructured{errs: []error{errors.New("down")}}
	unstructured := &fakeUnstructured{err: errors.New("down")}
	svc := New(structured, unstructured, 5, 20, 0)

	bundle, err := svc.Retrieve(context.Background(), mustQuery(t), both())
	if !errors.Is(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence, got %v", err)
	}
	if len(bundle.Items) != 0 {
		t.Errorf("expected empty bundle, got %d items", len(bundle.Items))
	}
	if len(bundle.Notes) != 2 {
		t.Errorf("notes = %v", bundle.Notes)
	}
}

func TestRetrieveRetriesTransientFailure(t *testing.T) {
	structured := &fakeStructured{
		items: []domain.EvidenceItem{tableItem("1", 1.0)},
		errs: []error{domain.NewEngineError(domain.SourceStructured,
			errors.Join(domain.ErrEngineUnavailable, errors.New("timeout")))},
	}
	unstructured := &fakeUnstructured{}
	svc := New(structured, unstructured, 5, 20, 1, WithRetryBase(time.Millisecond))

	decision := domain.RouteDecision{Targets: []domain.Source{domain.SourceStructured}}
	bundle, err := svc.Retrieve(context.Background(), mustQuery(t), decision)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if structured.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", structured.calls.Load())
	}
	if len(bundle.Items) != 1 {
		t.Errorf("expected evidence after retry, got %d items", len(bundle.Items))
	}
}

func TestRetrieveNoRetryOnSemanticFailure(t *testing.T) {
	// A rejected generated statement is wrapped in an EngineError but
	// carries no availability sentinel; it must fail on the first call.
	semantic := domain.NewEngineError(domain.SourceStructured,
		errors.New(`execute: near "FORM": syntax error`))
	structured := &fakeStructured{errs: []error{semantic, nil, nil}}
	svc := New(structured, &fakeUnstructured{}, 5, 20, 2, WithRetryBase(time.Millisecond))

	decision := domain.RouteDecision{Targets: []domain.Source{domain.SourceStructured}}
	_, err := svc.Retrieve(context.Background(), mustQuery(t), decision)
	if !errors.Is(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence, got %v", err)
	}
	if structured.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry for semantic failure)", structured.calls.Load())
	}
}

func TestRetrieveRetriesReasoningOutage(t *testing.T) {
	// The structured engine surfaces reasoner outages with the reasoning
	// sentinel intact; those stay retryable through the EngineError wrap.
	outage := domain.NewEngineError(domain.SourceStructured,
		errors.Join(domain.ErrReasoningUnavailable, errors.New("generate sql: 503")))
	structured := &fakeStructured{
		items: []domain.EvidenceItem{tableItem("1", 1.0)},
		errs:  []error{outage},
	}
	svc := New(structured, &fakeUnstructured{}, 5, 20, 1, WithRetryBase(time.Millisecond))

	decision := domain.RouteDecision{Targets: []domain.Source{domain.SourceStructured}}
	bundle, err := svc.Retrieve(context.Background(), mustQuery(t), decision)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if structured.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", structured.calls.Load())
	}
	if len(bundle.Items) != 1 {
		t.Errorf("expected evidence after retry, got %d items", len(bundle.Items))
	}
}

func TestRetrieveCapsEvidence(t *testing.T) {
	structured := &fakeStructured{items: []domain.EvidenceItem{
		tableItem("1", 1.0), tableItem("2", 1.0), tableItem("3", 1.0),
	}}
	unstructured := &fakeUnstructured{items: []domain.EvidenceItem{
		docItem(1, 0.9), docItem(2, 0.8), docItem(3, 0.7),
	}}
	svc := New(structured, unstructured, 2, 3, 0)

	bundle, err := svc.Retrieve(context.Background(), mustQuery(t), both())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// Per-engine cap of 2, then a global cap of 3.
	if len(bundle.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(bundle.Items))
	}
	if bundle.Counts[domain.SourceStructured] != 2 || bundle.Counts[domain.SourceUnstructured] != 1 {
		t.Errorf("counts = %v", bundle.Counts)
	}
}

func TestRetrieveCancellation(t *testing.T) {
	structured := &fakeStructured{delay: time.Second, items: []domain.EvidenceItem{tableItem("1", 1.0)}}
	svc := New(structured, &fakeUnstructured{}, 5, 20, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision := domain.RouteDecision{Targets: []domain.Source{domain.SourceStructured}}
	_, err := svc.Retrieve(ctx, mustQuery(t), decision)
	if !errors.Is(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence after cancellation, got %v", err)
	}
}
