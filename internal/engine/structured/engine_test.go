package structured

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/omnisource/internal/domain"
)

type fakeReasoner struct {
	out string
	err error
}

func (f *fakeReasoner) Generate(_ context.Context, _ string, _ domain.GenerationConfig) (string, error) {
	return f.out, f.err
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE social_listening (
			ProductCategory TEXT,
			RetailerName TEXT,
			ProductPrice REAL,
			ReviewRating REAL
		);
		INSERT INTO social_listening VALUES
			('Smart Phone', 'Bestbuy', 899.0, 4.5),
			('Smart Phone', 'Bestbuy', 699.0, 4.0),
			('Laptop', 'Walmart', 1299.0, 3.5);
	`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T, r domain.Reasoner) *Engine {
	t.Helper()
	e, err := New(context.Background(), newTestDB(t), r, Config{
		Table:   "social_listening",
		MaxRows: 50,
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestQueryAggregate(t *testing.T) {
	e := newTestEngine(t, &fakeReasoner{
		out: "SELECT AVG(ProductPrice) AS avg_price FROM social_listening WHERE ProductCategory = 'Smart Phone';",
	})

	items, err := e.Query(context.Background(), "average smart phone price?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	it := items[0]
	if it.Source != domain.SourceStructured {
		t.Errorf("source = %s", it.Source)
	}
	if it.Locator.Table != "social_listening" || it.Locator.Row != "1" {
		t.Errorf("locator = %+v", it.Locator)
	}
	if !strings.Contains(it.Content, "avg_price=799") {
		t.Errorf("content = %q", it.Content)
	}
}

func TestQueryMultipleRowsCapped(t *testing.T) {
	e, err := New(context.Background(), newTestDB(t), &fakeReasoner{
		out: "SELECT ProductCategory, RetailerName FROM social_listening",
	}, Config{Table: "social_listening", MaxRows: 2, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	items, err := e.Query(context.Background(), "list products")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want cap 2", len(items))
	}
	if items[1].Locator.Row != "2" {
		t.Errorf("row locator = %q", items[1].Locator.Row)
	}
}

func TestQueryRejectsNonSelect(t *testing.T) {
	e := newTestEngine(t, &fakeReasoner{out: "DROP TABLE social_listening;"})

	items, err := e.Query(context.Background(), "drop everything")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if items != nil {
		t.Errorf("expected no evidence for rejected statement, got %d items", len(items))
	}

	// Table must still exist.
	var n int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM social_listening").Scan(&n); err != nil {
		t.Fatalf("table was modified: %v", err)
	}
	if n != 3 {
		t.Errorf("rows = %d", n)
	}
}

func TestQueryNoAnswerSentinel(t *testing.T) {
	e := newTestEngine(t, &fakeReasoner{out: "SELECT 'NO_ANSWER' AS note;"})

	items, err := e.Query(context.Background(), "unanswerable")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected zero evidence, got %d", len(items))
	}
}

func TestQueryGenerationFailure(t *testing.T) {
	e := newTestEngine(t, &fakeReasoner{err: domain.ErrReasoningUnavailable})

	_, err := e.Query(context.Background(), "anything")
	if !errors.Is(err, domain.ErrReasoningUnavailable) {
		t.Fatalf("expected the reasoning sentinel to survive the wrap, got %v", err)
	}
	var engErr *domain.EngineError
	if !errors.As(err, &engErr) || engErr.Source != domain.SourceStructured {
		t.Errorf("expected structured EngineError, got %v", err)
	}
}

func TestQueryExecutionFailure(t *testing.T) {
	e := newTestEngine(t, &fakeReasoner{out: "SELECT missing_column FROM social_listening"})

	_, err := e.Query(context.Background(), "bad column")
	var engErr *domain.EngineError
	if !errors.As(err, &engErr) || engErr.Source != domain.SourceStructured {
		t.Fatalf("expected structured EngineError, got %v", err)
	}
	// Bad generated SQL is semantic; it must not look retryable.
	if errors.Is(err, domain.ErrEngineUnavailable) {
		t.Errorf("execution failure carries the availability sentinel: %v", err)
	}
}

func TestSanitizeSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1;", "SELECT 1;"},
		{"fenced", "```sql\nSELECT 1;\n```", "SELECT 1;"},
		{"lowercase", "select * from t", "select * from t"},
		{"update rejected", "UPDATE t SET a = 1;", "SELECT 'NO_ANSWER' AS note;"},
		{"chatter rejected", "Here is the SQL: SELECT 1;", "SELECT 'NO_ANSWER' AS note;"},
		{"trailing statement dropped", "SELECT 1; DROP TABLE t;", "SELECT 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeSQL(tt.in); got != tt.want {
				t.Errorf("sanitizeSQL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
