package index

import (
	"context"
	"fmt"
	"testing"
)

func seedSearchRows(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()
	rows := []Row{
		{Hash: "a1", Type: "message", Role: "user", Time: "2026-08-20T10:00:00Z", Session: "garden", Content: "water the tomato plants"},
		{Hash: "a2", Type: "message", Role: "assistant", Time: "2026-08-20T10:00:05Z", Session: "garden", Content: "tomatoes need an inch per week"},
		{Hash: "a3", Type: "message", Role: "user", Time: "2026-08-22T09:00:00Z", Session: "kitchen", Content: "tomato soup recipe"},
		{Hash: "a4", Type: "summary", Time: "2026-08-22T12:00:00Z", Session: "garden", Level: 1, Content: "planning the vegetable beds"},
		{Hash: "a5", Type: "system", Content: "you are a helpful gardener"},
	}
	for _, r := range rows {
		if err := d.Upsert(ctx, r); err != nil {
			t.Fatalf("seed %s: %v", r.Hash, err)
		}
	}
}

func TestQuerySubstring(t *testing.T) {
	d := newTestDB(t)
	seedSearchRows(t, d)

	rows, err := d.Query(context.Background(), QueryParams{Query: "tomato"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	// Newest first.
	if rows[0].Hash != "a3" {
		t.Errorf("first row = %s, want a3", rows[0].Hash)
	}
}

func TestQueryFilters(t *testing.T) {
	d := newTestDB(t)
	seedSearchRows(t, d)
	ctx := context.Background()

	cases := []struct {
		name string
		p    QueryParams
		want []string
	}{
		{"by type", QueryParams{Type: "summary"}, []string{"a4"}},
		{"by role", QueryParams{Query: "tomato", Role: "assistant"}, []string{"a2"}},
		{"by session", QueryParams{Session: "kitchen"}, []string{"a3"}},
		{"since", QueryParams{Since: "2026-08-22T00:00:00Z"}, []string{"a4", "a3"}},
		{"until", QueryParams{Until: "2026-08-20T23:59:59Z", Type: "message"}, []string{"a2", "a1"}},
		{"limit", QueryParams{Query: "tomato", Limit: 1}, []string{"a3"}},
	}

	for _, tc := range cases {
		rows, err := d.Query(ctx, tc.p)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		var got []string
		for _, r := range rows {
			got = append(got, r.Hash)
		}
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestQueryDeterministicOrderOnEqualTimes(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	same := "2026-08-23T10:00:00Z"
	for _, h := range []string{"b2", "b1", "b3"} {
		err := d.Upsert(ctx, Row{Hash: h, Type: "message", Time: same, Session: "s", Content: "same moment"})
		if err != nil {
			t.Fatalf("upsert %s: %v", h, err)
		}
	}

	rows, err := d.Query(ctx, QueryParams{Query: "same moment"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"b1", "b2", "b3"}
	for i, r := range rows {
		if r.Hash != want[i] {
			t.Errorf("position %d = %s, want %s", i, r.Hash, want[i])
		}
	}
}

func TestQueryDoesNotMatchSnapshots(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	// Context snapshots index with empty content and must stay invisible
	// to text search while remaining reachable by type.
	if err := d.Upsert(ctx, Row{Hash: "c1", Type: "context", Time: "2026-08-23T10:00:00Z", Session: "s"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := d.Query(ctx, QueryParams{Query: "c1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("snapshot matched a text query: %+v", rows)
	}

	rows, err = d.Query(ctx, QueryParams{Type: "context"})
	if err != nil {
		t.Fatalf("query by type: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d snapshots by type, want 1", len(rows))
	}
}

func TestSearchRanked(t *testing.T) {
	d := newTestDB(t)
	seedSearchRows(t, d)

	results, err := d.SearchRanked(context.Background(), "tomato", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no full-text matches")
	}
	for _, r := range results {
		if r.Hash == "a4" || r.Hash == "a5" {
			t.Errorf("unexpected match %s", r.Hash)
		}
	}
}

func TestSearchRankedMultipleTermsAnd(t *testing.T) {
	d := newTestDB(t)
	seedSearchRows(t, d)

	results, err := d.SearchRanked(context.Background(), "tomato soup", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Hash != "a3" {
		t.Errorf("got %+v, want just a3", results)
	}
}

func TestSearchRankedSurvivesOperatorInput(t *testing.T) {
	d := newTestDB(t)
	seedSearchRows(t, d)
	ctx := context.Background()

	// FTS5 syntax in user input must not produce SQL-level errors.
	for _, q := range []string{`tomato AND`, `"unclosed`, `NEAR(`, `col:value`, `-`, `*`} {
		if _, err := d.SearchRanked(ctx, q, 5); err != nil {
			t.Errorf("SearchRanked(%q) = %v", q, err)
		}
	}

	if results, err := d.SearchRanked(ctx, "   ", 5); err != nil || results != nil {
		t.Errorf("blank query: results=%v err=%v", results, err)
	}
}
