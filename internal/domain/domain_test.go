package domain

import "testing"

func TestLocatorString(t *testing.T) {
	tests := []struct {
		name string
		loc  Locator
		want string
	}{
		{"table row", Locator{Table: "social_listening", Row: "17"}, "table=social_listening row=17"},
		{"table only", Locator{Table: "social_listening"}, "table=social_listening"},
		{"doc page", Locator{Document: "omnisource_1.pdf", Page: 42}, "doc=omnisource_1.pdf page=42"},
		{"doc only", Locator{Document: "omnisource_2.pdf"}, "doc=omnisource_2.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocatorLabel(t *testing.T) {
	if got := (Locator{Table: "revenue"}).Label(); got != "Table revenue" {
		t.Errorf("Label() = %q", got)
	}
	if got := (Locator{Document: "a.pdf", Page: 3}).Label(); got != "PDF a.pdf, page 3" {
		t.Errorf("Label() = %q", got)
	}
}

func TestNewQueryValidation(t *testing.T) {
	if _, err := NewQuery("", "hello"); err != ErrInvalidInput {
		t.Errorf("empty session: got %v", err)
	}
	if _, err := NewQuery("s1", "   "); err != ErrInvalidInput {
		t.Errorf("blank text: got %v", err)
	}
	q, err := NewQuery(" s1 ", " hello ")
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	if q.SessionID != "s1" || q.Text != "hello" {
		t.Errorf("fields not trimmed: %+v", q)
	}
}

func TestRouteBothNeverEmpty(t *testing.T) {
	d := RouteBoth("fallback")
	if len(d.Targets) != 2 {
		t.Fatalf("targets = %v", d.Targets)
	}
	if !d.Has(SourceStructured) || !d.Has(SourceUnstructured) {
		t.Errorf("missing source in %v", d.Targets)
	}
}

func TestCanonicalLocator(t *testing.T) {
	got := CanonicalLocator("  doc=a.pdf   page=3 ")
	if got != "doc=a.pdf page=3" {
		t.Errorf("CanonicalLocator = %q", got)
	}
	// Case must be preserved so document names match exactly.
	if got := CanonicalLocator("doc=Report.PDF page=3"); got != "doc=Report.PDF page=3" {
		t.Errorf("CanonicalLocator changed case: %q", got)
	}
}
