package structured

import (
	"fmt"
	"strings"
)

// noAnswerSentinel is what the generator must return when the schema
// cannot answer the question. Treated as zero evidence, not an error.
const noAnswerSentinel = "NO_ANSWER"

const sqlPromptTemplate = `You translate natural language questions into safe SQL queries for a SQLite database.

Database:
- Single table: %s
- Columns (case sensitive):
%s

Rules:
- Only output a single valid SQLite SELECT statement, nothing else.
- Never modify data (no INSERT/UPDATE/DELETE).
- Use WHERE filters that match the natural language (e.g. retailer, category, etc.).
- For aggregations like averages, use SQL functions such as AVG, COUNT, etc.
- If the question truly cannot be answered from this schema, return exactly:
  SELECT '%s' AS note;

Question:
%s

Only output the final SQL query.`

// buildSQLPrompt renders the generation prompt for a question against the
// introspected table schema.
func buildSQLPrompt(table string, columns []column, question string) string {
	var b strings.Builder
	for _, c := range columns {
		fmt.Fprintf(&b, "  - %s (%s)\n", c.Name, c.Type)
	}
	return fmt.Sprintf(sqlPromptTemplate, table, strings.TrimRight(b.String(), "\n"), noAnswerSentinel, question)
}

// sanitizeSQL strips markdown code fences and surrounding noise from a
// generated statement, then enforces the SELECT-only contract. Returns the
// no-answer sentinel statement for anything else: the model's output is
// untrusted and never executed verbatim unless it is a single SELECT.
func sanitizeSQL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(strings.ToLower(s), "select") {
		return fmt.Sprintf("SELECT '%s' AS note;", noAnswerSentinel)
	}

	// A single statement only: anything after the first terminator is dropped.
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i+1]
	}
	return s
}
