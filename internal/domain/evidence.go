package domain

import (
	"fmt"
	"strings"
)

// Locator pins an evidence item to its origin: a table row for structured
// hits, or a document page/chunk for text passages. Exactly one of the two
// groups is populated, matching the evidence's Source.
type Locator struct {
	Table string `json:"table,omitempty"`
	Row   string `json:"row,omitempty"`

	Document string `json:"document,omitempty"`
	Page     int    `json:"page,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
}

// String renders the canonical form used in synthesis prompts and citation
// matching: "table=<t> row=<k>" or "doc=<file> page=<n>".
func (l Locator) String() string {
	if l.Table != "" {
		if l.Row != "" {
			return fmt.Sprintf("table=%s row=%s", l.Table, l.Row)
		}
		return fmt.Sprintf("table=%s", l.Table)
	}
	if l.Page > 0 {
		return fmt.Sprintf("doc=%s page=%d", l.Document, l.Page)
	}
	return fmt.Sprintf("doc=%s", l.Document)
}

// Label renders the human-readable citation label shown to the user.
func (l Locator) Label() string {
	if l.Table != "" {
		return fmt.Sprintf("Table %s", l.Table)
	}
	if l.Page > 0 {
		return fmt.Sprintf("PDF %s, page %d", l.Document, l.Page)
	}
	return fmt.Sprintf("PDF %s", l.Document)
}

// EvidenceItem is a single retrieved fact or passage with provenance.
// Owned by the dispatcher for the duration of one turn; only the answer
// and citation locators outlive the turn.
type EvidenceItem struct {
	Source  Source
	Locator Locator
	Content string
	Score   float64
}

// Citation is a rendering-ready reference derived 1:1 from an evidence
// item actually used in the answer.
type Citation struct {
	Source  Source  `json:"source_kind"`
	Locator Locator `json:"locator"`
	Label   string  `json:"label"`
}

// CitationFromEvidence builds the citation for an evidence item.
func CitationFromEvidence(ev EvidenceItem) Citation {
	return Citation{
		Source:  ev.Source,
		Locator: ev.Locator,
		Label:   ev.Locator.Label(),
	}
}

// CanonicalLocator normalizes a locator string for comparison by trimming
// and collapsing runs of whitespace. Case is preserved: document names and
// table names are matched exactly as the evidence reported them.
func CanonicalLocator(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
