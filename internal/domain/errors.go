package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals an empty query or malformed session id.
	// Rejected immediately; no engine calls are attempted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRouterUnavailable signals that classification could not complete.
	// The orchestrator degrades to routing both engines.
	ErrRouterUnavailable = errors.New("router unavailable")
	// ErrEngineUnavailable signals a retrieval engine failure.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrNoEvidence signals that every targeted engine failed or returned nothing.
	ErrNoEvidence = errors.New("no evidence available")
	// ErrReasoningUnavailable signals a reasoning service timeout or outage.
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")
	// ErrReasoningRateLimited signals a reasoning service rate limit hit.
	ErrReasoningRateLimited = errors.New("reasoning service rate limited")
	// ErrConversationStore signals a conversation state store failure.
	// Fatal for the turn: multi-turn context cannot be guaranteed.
	ErrConversationStore = errors.New("conversation store error")
	// ErrTurnNotFound signals a feedback submission for an unknown turn.
	ErrTurnNotFound = errors.New("turn not found")
)

// EngineError tags a retrieval failure with the failed engine's source kind,
// so partial-failure caveats can name the missing data. The underlying error
// keeps its own classification: availability-class failures carry
// ErrEngineUnavailable or a reasoning sentinel in their chain, semantic
// failures such as a rejected generated statement carry no sentinel and
// must not be retried.
type EngineError struct {
	Source Source
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s engine: %s", e.Source, e.Err.Error())
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewEngineError creates an engine failure error for the given source.
func NewEngineError(source Source, err error) error {
	return &EngineError{Source: source, Err: err}
}
