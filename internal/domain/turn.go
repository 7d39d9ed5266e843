package domain

import "time"

// Turn is one completed question/answer exchange within a session.
// Appended to conversation history atomically on completion; Feedback is
// the only field mutated afterwards.
type Turn struct {
	ID            string         `json:"id"`
	Query         string         `json:"query"`
	Route         []Source       `json:"route"`
	Answer        string         `json:"answer"`
	Citations     []Citation     `json:"citations"`
	EvidenceCount map[Source]int `json:"evidence_count"`
	LatencyMS     int64          `json:"latency_ms"`
	Feedback      *int           `json:"feedback,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// UsageSummary aggregates the turn and feedback counters behind the
// summary report.
type UsageSummary struct {
	TotalTurns   int64            `json:"total_turns"`
	ByRoute      map[string]int64 `json:"by_route"`
	AvgLatencyMS float64          `json:"avg_latency_ms"`
	FeedbackUp   int64            `json:"feedback_up"`
	FeedbackDown int64            `json:"feedback_down"`
}

// TurnEvent is the per-turn analytics record emitted to the analytics sink.
type TurnEvent struct {
	SessionID     string         `json:"session_id"`
	TurnID        string         `json:"turn_id"`
	Route         []Source       `json:"route"`
	EvidenceCount map[Source]int `json:"evidence_count_per_source"`
	LatencyMS     int64          `json:"latency_ms"`
	HadErrors     bool           `json:"had_errors"`
}
