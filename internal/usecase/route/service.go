// Package route classifies a query to the retrieval engines that
// should serve it. Classification fails open: any failure or
// unparseable label degrades to routing both engines.
package route

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnisource/internal/domain"
	"github.com/kailas-cloud/omnisource/internal/logger"
)

const systemPrompt = `You are a routing controller for a multi-source analytics assistant.
Decide the best primary source for answering the user's question:
- 'structured' for numeric, tabular, or metric-oriented questions about products, KPIs, or statistics.
- 'unstructured' for conceptual, policy, or long-form document questions.
- 'both' if you clearly need quantitative evidence from tables and narrative context from documents.

Answer with a single word: structured, unstructured, or both.`

// Service decides which engines a query targets.
type Service struct {
	reasoner domain.Reasoner
	window   int
}

// New creates a router. window caps how many recent turns inform the decision.
func New(reasoner domain.Reasoner, window int) *Service {
	if window <= 0 {
		window = 6
	}
	return &Service{reasoner: reasoner, window: window}
}

// Classify picks the target engines for a query. On reasoning failure or an
// out-of-set label it returns a both-engine decision together with
// ErrRouterUnavailable so the caller can record the degradation and proceed.
func (s *Service) Classify(ctx context.Context, query domain.Query, history []domain.Turn) (domain.RouteDecision, error) {
	prompt := s.buildPrompt(query, history)

	raw, err := s.reasoner.Generate(ctx, prompt, domain.GenerationConfig{
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("router degraded to both engines", zap.Error(err))
		return domain.RouteBoth("classification unavailable"),
			fmt.Errorf("%w: %w", domain.ErrRouterUnavailable, err)
	}

	decision, ok := parseLabel(raw)
	if !ok {
		logger.FromContext(ctx).Warn("router label out of set",
			zap.String("label", strings.TrimSpace(raw)))
		return domain.RouteBoth("unrecognized label"), nil
	}
	return decision, nil
}

// buildPrompt embeds the recent conversation so follow-up questions
// route on their resolved meaning, not their literal wording.
func (s *Service) buildPrompt(query domain.Query, history []domain.Turn) string {
	var b strings.Builder
	b.WriteString(systemPrompt)

	if len(history) > 0 {
		start := 0
		if len(history) > s.window {
			start = len(history) - s.window
		}
		b.WriteString("\n\nRecent conversation:\n")
		for _, turn := range history[start:] {
			fmt.Fprintf(&b, "user: %s\nassistant: %s\n", turn.Query, turn.Answer)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s", query.Text)
	return b.String()
}

// parseLabel maps the model output onto the closed label set.
func parseLabel(raw string) (domain.RouteDecision, bool) {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Trim(label, `."'`)

	switch label {
	case "structured":
		return domain.RouteDecision{
			Targets:   []domain.Source{domain.SourceStructured},
			Rationale: "classified structured",
		}, true
	case "unstructured":
		return domain.RouteDecision{
			Targets:   []domain.Source{domain.SourceUnstructured},
			Rationale: "classified unstructured",
		}, true
	case "both":
		return domain.RouteBoth("classified both"), true
	}
	return domain.RouteDecision{}, false
}
