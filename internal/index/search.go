package index

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// QueryParams holds the search filters. All fields are optional; an empty
// params value returns the most recent rows.
type QueryParams struct {
	Query   string // substring of the object content
	Type    string // message, system, context, summary
	Role    string // user, assistant
	Session string
	Since   string // inclusive RFC3339 lower bound on time
	Until   string // inclusive RFC3339 upper bound on time
	Limit   int
}

// DefaultLimit bounds queries that do not ask for one.
const DefaultLimit = 10

// Query returns indexed rows matching the filters, newest first. Ordering
// is deterministic: equal times fall back to hash order.
func (d *DB) Query(ctx context.Context, p QueryParams) ([]Row, error) {
	if err := d.checkFresh(); err != nil {
		return nil, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	where := []string{"1=1"}
	args := []interface{}{}

	if p.Query != "" {
		where = append(where, "content LIKE ?")
		args = append(args, "%"+p.Query+"%")
	}
	if p.Type != "" {
		where = append(where, "type = ?")
		args = append(args, p.Type)
	}
	if p.Role != "" {
		where = append(where, "role = ?")
		args = append(args, p.Role)
	}
	if p.Session != "" {
		where = append(where, "session = ?")
		args = append(args, p.Session)
	}
	if p.Since != "" {
		where = append(where, "time >= ?")
		args = append(args, p.Since)
	}
	if p.Until != "" {
		where = append(where, "time <= ?")
		args = append(args, p.Until)
	}

	query := fmt.Sprintf(`
		SELECT hash, type, role, time, session, context, level, content
		FROM objects
		WHERE %s
		ORDER BY time DESC, hash
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RankedResult is an FTS match with its bm25 score. Lower scores rank
// better, matching SQLite's convention.
type RankedResult struct {
	Row
	Score float64 `json:"score"`
}

// SearchRanked runs a full-text query over object content, best match
// first. The user query is quoted term-by-term so FTS operator syntax in
// user input cannot break the statement.
func (d *DB) SearchRanked(ctx context.Context, query string, limit int) ([]RankedResult, error) {
	if err := d.checkFresh(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT o.hash, o.type, o.role, o.time, o.session, o.context, o.level, o.content,
		       bm25(objects_fts) AS score
		FROM objects_fts
		JOIN objects o ON o.rowid = objects_fts.rowid
		WHERE objects_fts MATCH ?
		ORDER BY score, o.time DESC, o.hash
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RankedResult
	for rows.Next() {
		var r RankedResult
		err := rows.Scan(&r.Hash, &r.Type, &r.Role, &r.Time, &r.Session, &r.Context,
			&r.Level, &r.Content, &r.Score)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery turns free text into a safe FTS5 match expression: each
// whitespace-separated term becomes a quoted phrase, terms AND together.
// Terms with no letters or digits are dropped; the tokenizer would
// reduce them to empty phrases anyway.
func ftsQuery(q string) string {
	var quoted []string
	for _, f := range strings.Fields(q) {
		if !strings.ContainsFunc(f, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
