// Package structured implements the NL-to-SQL retrieval engine over
// tabular data loaded into SQLite by the ingestion pipeline.
package structured

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnisource/internal/domain"
)

// Engine turns a natural-language question into a single SELECT statement,
// executes it, and returns the result rows as evidence with table provenance.
type Engine struct {
	db       *sql.DB
	reasoner domain.Reasoner
	table    string
	columns  []column
	maxRows  int
	logger   *zap.Logger
}

type column struct {
	Name string
	Type string
}

// Config holds structured engine settings.
type Config struct {
	Table   string
	MaxRows int
	Logger  *zap.Logger
}

// New creates a structured engine and introspects the table schema for the
// generation prompt.
func New(ctx context.Context, db *sql.DB, reasoner domain.Reasoner, cfg Config) (*Engine, error) {
	cols, err := introspectColumns(ctx, db, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", cfg.Table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns", cfg.Table)
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 50
	}

	return &Engine{
		db:       db,
		reasoner: reasoner,
		table:    cfg.Table,
		columns:  cols,
		maxRows:  maxRows,
		logger:   cfg.Logger,
	}, nil
}

var _ domain.StructuredEngine = (*Engine)(nil)

// Query implements domain.StructuredEngine.
func (e *Engine) Query(ctx context.Context, text string) ([]domain.EvidenceItem, error) {
	raw, err := e.reasoner.Generate(ctx, buildSQLPrompt(e.table, e.columns, text), domain.GenerationConfig{
		MaxTokens: 512,
	})
	if err != nil {
		return nil, domain.NewEngineError(domain.SourceStructured, fmt.Errorf("generate sql: %w", err))
	}

	stmt := sanitizeSQL(raw)
	e.logger.Debug("structured query generated", zap.String("sql", stmt))

	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, domain.NewEngineError(domain.SourceStructured, fmt.Errorf("execute: %w", err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, domain.NewEngineError(domain.SourceStructured, fmt.Errorf("columns: %w", err))
	}

	var items []domain.EvidenceItem
	rowNum := 0
	for rows.Next() && rowNum < e.maxRows {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, domain.NewEngineError(domain.SourceStructured, fmt.Errorf("scan: %w", err))
		}

		rowNum++
		content, isNoAnswer := renderRow(cols, values)
		if isNoAnswer {
			// Schema cannot answer: zero evidence, not a failure.
			return nil, nil
		}

		items = append(items, domain.EvidenceItem{
			Source: domain.SourceStructured,
			Locator: domain.Locator{
				Table: e.table,
				Row:   strconv.Itoa(rowNum),
			},
			Content: content,
			Score:   1.0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewEngineError(domain.SourceStructured, fmt.Errorf("iterate: %w", err))
	}

	return items, nil
}

// HealthCheck verifies the tabular database is reachable.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

// renderRow formats one result row as "col=value" pairs for the synthesis
// prompt, and detects the no-answer sentinel row.
func renderRow(cols []string, values []any) (string, bool) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v := formatValue(values[i])
		if c == "note" && v == noAnswerSentinel {
			return "", true
		}
		parts[i] = c + "=" + v
	}
	return strings.Join(parts, " | "), false
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func introspectColumns(ctx context.Context, db *sql.DB, table string) ([]column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info: %w", err)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info: %w", err)
		}
		cols = append(cols, column{Name: name, Type: typ})
	}
	return cols, rows.Err()
}
