// Package orchestrator drives one conversational turn through routing,
// retrieval, and synthesis, and owns per-session serialization.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnisource/internal/domain"
	"github.com/kailas-cloud/omnisource/internal/logger"
	"github.com/kailas-cloud/omnisource/internal/metrics"
	"github.com/kailas-cloud/omnisource/internal/usecase/dispatch"
	"github.com/kailas-cloud/omnisource/internal/usecase/synthesis"
)

// state names a phase of the turn lifecycle, for logs.
type state string

const (
	stateReceived     state = "received"
	stateRouting      state = "routing"
	stateRetrieving   state = "retrieving"
	stateSynthesizing state = "synthesizing"
	stateCompleted    state = "completed"
	stateFailed       state = "failed"
)

// Router classifies a query to its target engines.
type Router interface {
	Classify(ctx context.Context, query domain.Query, history []domain.Turn) (domain.RouteDecision, error)
}

// Retriever fans out to engines and joins evidence.
type Retriever interface {
	Retrieve(ctx context.Context, query domain.Query, decision domain.RouteDecision) (*dispatch.Bundle, error)
}

// Synthesizer composes the grounded answer.
type Synthesizer interface {
	Compose(ctx context.Context, query domain.Query, bundle *dispatch.Bundle, history []domain.Turn) (*synthesis.Answer, error)
}

// Conversations is the consumer interface for the turn log (ISP).
type Conversations interface {
	Append(ctx context.Context, sessionID string, turn *domain.Turn) error
	History(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	RecordFeedback(ctx context.Context, sessionID, turnID string, rating int) (previous *int, err error)
}

// Analytics is the consumer interface for usage records (ISP).
type Analytics interface {
	Log(ctx context.Context, event *domain.TurnEvent) error
	RecordFeedback(ctx context.Context, rating int, previous *int) error
}

// Result is the completed-turn payload returned to the transport.
type Result struct {
	TurnID     string
	Answer     string
	Citations  []domain.Citation
	Route      []string
	LatencyMS  int64
	Unverified bool
}

// Service is the turn orchestrator.
type Service struct {
	router       Router
	retriever    Retriever
	synthesizer  Synthesizer
	convs        Conversations
	analytics    Analytics
	historyLimit int

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// New creates an orchestrator.
func New(router Router, retriever Retriever, synthesizer Synthesizer,
	convs Conversations, analytics Analytics, historyLimit int,
) *Service {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Service{
		router:       router,
		retriever:    retriever,
		synthesizer:  synthesizer,
		convs:        convs,
		analytics:    analytics,
		historyLimit: historyLimit,
		sessions:     make(map[string]*sync.Mutex),
	}
}

// Ask runs one turn for a session. Turns within a session are serialized:
// a second Ask blocks until the first turn is durably appended. Turns for
// different sessions run concurrently.
func (s *Service) Ask(ctx context.Context, sessionID, text string) (*Result, error) {
	started := time.Now()

	query, err := domain.NewQuery(sessionID, text)
	if err != nil {
		return nil, err
	}

	lock := s.sessionLock(query.SessionID)
	lock.Lock()
	defer lock.Unlock()

	log := logger.FromContext(ctx).With(zap.String("session_id", query.SessionID))
	hadErrors := false

	// Received: history is required for routing and synthesis, so a store
	// failure fails the turn before any engine is called.
	s.transition(log, stateReceived)
	history, err := s.convs.History(ctx, query.SessionID, s.historyLimit)
	if err != nil {
		return nil, s.fail(log, started, nil, err)
	}

	// Routing: classification failure degrades to both engines.
	s.transition(log, stateRouting)
	decision, err := s.router.Classify(ctx, query, history)
	if err != nil {
		if !errors.Is(err, domain.ErrRouterUnavailable) {
			return nil, s.fail(log, started, nil, err)
		}
		hadErrors = true
	}
	if len(decision.Targets) == 0 {
		// Targets must never be empty, whatever the router returned.
		decision = domain.RouteBoth("classification unavailable")
	}

	// Retrieving: an empty or partial bundle still proceeds to synthesis.
	s.transition(log, stateRetrieving)
	bundle, err := s.retriever.Retrieve(ctx, query, decision)
	if err != nil {
		if !errors.Is(err, domain.ErrNoEvidence) {
			return nil, s.fail(log, started, decision.Targets, err)
		}
		hadErrors = true
	}
	if bundle != nil && bundle.HadFailures() {
		hadErrors = true
	}

	s.transition(log, stateSynthesizing)
	answer, err := s.synthesizer.Compose(ctx, query, bundle, history)
	if err != nil {
		return nil, s.fail(log, started, decision.Targets, err)
	}

	turn := &domain.Turn{
		ID:            uuid.NewString(),
		Query:         query.Text,
		Route:         decision.Targets,
		Answer:        answer.Text,
		Citations:     answer.Citations,
		EvidenceCount: evidenceCounts(bundle),
		LatencyMS:     time.Since(started).Milliseconds(),
		CreatedAt:     query.ReceivedAt,
	}

	// The append is the turn's commit point. If it fails the turn never
	// happened: no history entry, no analytics record.
	if err := s.convs.Append(ctx, query.SessionID, turn); err != nil {
		return nil, s.fail(log, started, decision.Targets, err)
	}

	s.transition(log, stateCompleted)
	s.recordCompleted(ctx, log, query.SessionID, turn, hadErrors || answer.Unverified)

	return &Result{
		TurnID:     turn.ID,
		Answer:     turn.Answer,
		Citations:  turn.Citations,
		Route:      decision.Sources(),
		LatencyMS:  turn.LatencyMS,
		Unverified: answer.Unverified,
	}, nil
}

// SubmitFeedback records a rating for a completed turn. rating is +1 or -1.
func (s *Service) SubmitFeedback(ctx context.Context, sessionID, turnID string, rating int) error {
	if sessionID == "" || turnID == "" || (rating != 1 && rating != -1) {
		return fmt.Errorf("%w: feedback needs a session, a turn, and a +1/-1 rating", domain.ErrInvalidInput)
	}
	previous, err := s.convs.RecordFeedback(ctx, sessionID, turnID, rating)
	if err != nil {
		return err
	}
	if err := s.analytics.RecordFeedback(ctx, rating, previous); err != nil {
		logger.FromContext(ctx).Warn("feedback counter update failed", zap.Error(err))
	}
	return nil
}

// sessionLock returns the mutex serializing one session's turns.
func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.sessions[sessionID] = lock
	}
	return lock
}

func (s *Service) transition(log *zap.Logger, to state) {
	log.Debug("turn state", zap.String("state", string(to)))
}

func (s *Service) fail(log *zap.Logger, started time.Time, route []domain.Source, err error) error {
	label := routeLabel(route)
	metrics.TurnsTotal.WithLabelValues(label, "failed").Inc()
	metrics.TurnDuration.WithLabelValues(label).Observe(time.Since(started).Seconds())
	log.Error("turn failed", zap.String("state", string(stateFailed)), zap.Error(err))
	return err
}

func (s *Service) recordCompleted(ctx context.Context, log *zap.Logger, sessionID string, turn *domain.Turn, hadErrors bool) {
	label := routeLabel(turn.Route)
	metrics.TurnsTotal.WithLabelValues(label, "completed").Inc()
	metrics.TurnDuration.WithLabelValues(label).Observe(float64(turn.LatencyMS) / 1000)

	event := &domain.TurnEvent{
		SessionID:     sessionID,
		TurnID:        turn.ID,
		Route:         turn.Route,
		EvidenceCount: turn.EvidenceCount,
		LatencyMS:     turn.LatencyMS,
		HadErrors:     hadErrors,
	}
	if err := s.analytics.Log(ctx, event); err != nil {
		log.Warn("analytics record failed", zap.Error(err))
	}
}

func evidenceCounts(bundle *dispatch.Bundle) map[domain.Source]int {
	if bundle == nil {
		return map[domain.Source]int{}
	}
	return bundle.Counts
}

func routeLabel(route []domain.Source) string {
	switch len(route) {
	case 0:
		return "none"
	case 1:
		return string(route[0])
	default:
		return "both"
	}
}
