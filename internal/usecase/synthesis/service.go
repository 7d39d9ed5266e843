// Package synthesis turns an evidence bundle into a grounded answer
// with verified citations.
package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnisource/internal/domain"
	"github.com/kailas-cloud/omnisource/internal/logger"
	"github.com/kailas-cloud/omnisource/internal/metrics"
	"github.com/kailas-cloud/omnisource/internal/usecase/dispatch"
)

const systemPrompt = `You are OmniSource, a multi-source analytics assistant.
You have access to:
- Structured query results over tabular data.
- Passages from long-form documents.

Guidelines:
- Use the provided evidence as factual grounding; do not invent data.
- If information is missing, say you are not sure and propose what additional data is needed.
- Maintain conversational, concise answers.
- Present multi-row structured results as a small markdown table.
- When a source caveat is listed, mention that part of the data was unavailable.
- Cite every claim with the evidence locator in the exact form [source: <locator>],
  e.g. [source: table=social_listening row=3] or [source: doc=report.pdf page=12].
- Only cite locators that appear in the evidence list.`

// NoEvidenceAnswer is returned verbatim when there is nothing to ground
// an answer in. No reasoning call is made in that case.
const NoEvidenceAnswer = "I could not find this in the available data. " +
	"Try rephrasing the question, or ask about the ingested tables and documents."

// citationToken matches [source: <locator>] tokens emitted by the model.
var citationToken = regexp.MustCompile(`\[source:\s*([^\]]+)\]`)

// Answer is a synthesized reply with its verified provenance.
type Answer struct {
	Text      string
	Citations []domain.Citation
	// Unverified is set when the model cited a locator absent from the
	// evidence bundle. Such citations are dropped, not rendered.
	Unverified bool
}

// Config holds synthesis settings.
type Config struct {
	MaxTokens     int
	Temperature   float32
	HistoryWindow int // most recent turns embedded in the prompt
}

// Service composes answers from evidence bundles.
type Service struct {
	reasoner    domain.Reasoner
	maxTokens   int
	temperature float32
	window      int
}

// New creates a synthesizer.
func New(reasoner domain.Reasoner, cfg Config) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.2
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	return &Service{
		reasoner:    reasoner,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		window:      cfg.HistoryWindow,
	}
}

// Compose generates a grounded answer. Every citation in the result refers
// to an item present in the bundle; tokens the model fabricated are
// stripped and flagged.
func (s *Service) Compose(ctx context.Context, query domain.Query, bundle *dispatch.Bundle, history []domain.Turn) (*Answer, error) {
	if bundle == nil || len(bundle.Items) == 0 {
		return &Answer{Text: NoEvidenceAnswer}, nil
	}

	prompt := s.buildPrompt(query, bundle, history)
	raw, err := s.reasoner.Generate(ctx, prompt, domain.GenerationConfig{
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("compose answer: %w", err)
	}

	return s.verify(ctx, raw, bundle), nil
}

// buildPrompt lays out history, evidence, and caveats in a fixed order so
// identical bundles produce identical prompts. History is bounded to the
// configured window of most recent turns to keep the prompt size stable.
func (s *Service) buildPrompt(query domain.Query, bundle *dispatch.Bundle, history []domain.Turn) string {
	var b strings.Builder
	b.WriteString(systemPrompt)

	if len(history) > s.window {
		history = history[len(history)-s.window:]
	}
	if len(history) > 0 {
		b.WriteString("\n\nRecent conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "user: %s\nassistant: %s\n", turn.Query, turn.Answer)
		}
	}

	b.WriteString("\nEvidence:\n")
	for _, item := range bundle.Items {
		fmt.Fprintf(&b, "[source: %s]\n%s\n\n", item.Locator, item.Content)
	}

	if len(bundle.Notes) > 0 {
		b.WriteString("Source caveats:\n")
		for _, note := range bundle.Notes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\nAnswer the question using only the evidence above.", query.Text)
	return b.String()
}

// verify extracts citation tokens from the answer and keeps only those
// whose locator matches an evidence item, at most once per item.
func (s *Service) verify(ctx context.Context, text string, bundle *dispatch.Bundle) *Answer {
	byLocator := make(map[string]domain.EvidenceItem, len(bundle.Items))
	for _, item := range bundle.Items {
		byLocator[domain.CanonicalLocator(item.Locator.String())] = item
	}

	answer := &Answer{Text: strings.TrimSpace(text)}
	seen := make(map[string]bool)
	for _, match := range citationToken.FindAllStringSubmatch(text, -1) {
		locator := domain.CanonicalLocator(match[1])
		item, ok := byLocator[locator]
		if !ok {
			answer.Unverified = true
			metrics.UnverifiedCitationsTotal.Inc()
			logger.FromContext(ctx).Warn("dropped unverified citation",
				zap.String("locator", locator))
			continue
		}
		if seen[locator] {
			continue
		}
		seen[locator] = true
		answer.Citations = append(answer.Citations, domain.CitationFromEvidence(item))
	}
	return answer
}
