package domain

import (
	"strings"
	"time"
)

// Source identifies a retrieval engine kind.
type Source string

const (
	// SourceStructured is the NL-to-SQL engine over tabular data.
	SourceStructured Source = "structured"
	// SourceUnstructured is the semantic search engine over document chunks.
	SourceUnstructured Source = "unstructured"
)

// Query is a single user turn input. Immutable once created.
type Query struct {
	SessionID  string
	Text       string
	ReceivedAt time.Time
}

// NewQuery validates and creates a Query.
func NewQuery(sessionID, text string) (Query, error) {
	sessionID = strings.TrimSpace(sessionID)
	text = strings.TrimSpace(text)
	if sessionID == "" {
		return Query{}, ErrInvalidInput
	}
	if text == "" {
		return Query{}, ErrInvalidInput
	}
	return Query{
		SessionID:  sessionID,
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// RouteDecision is the set of engines selected for a query.
// Targets is never empty: ambiguous classification falls open to both engines.
type RouteDecision struct {
	Targets   []Source
	Rationale string
}

// RouteBoth is the fail-open decision used when classification is
// unavailable or does not parse.
func RouteBoth(rationale string) RouteDecision {
	return RouteDecision{
		Targets:   []Source{SourceStructured, SourceUnstructured},
		Rationale: rationale,
	}
}

// Has reports whether the decision includes the given source.
func (d RouteDecision) Has(s Source) bool {
	for _, t := range d.Targets {
		if t == s {
			return true
		}
	}
	return false
}

// Sources returns the targets as plain strings for logging and transport.
func (d RouteDecision) Sources() []string {
	out := make([]string, len(d.Targets))
	for i, t := range d.Targets {
		out[i] = string(t)
	}
	return out
}
