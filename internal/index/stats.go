package index

import (
	"context"
)

// Stats holds index-level counts. Object and session totals come from
// the stores themselves; these are what the database knows.
type Stats struct {
	TotalRows  int            `json:"total_rows"`
	ByType     map[string]int `json:"by_type"`
	Sessions   int            `json:"sessions"`
	Unattached int            `json:"unattached"`
}

// Stats summarizes the indexed rows.
func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	if err := d.checkFresh(); err != nil {
		return nil, err
	}
	st := &Stats{ByType: map[string]int{}}

	d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&st.TotalRows)
	d.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session) FROM objects WHERE session != ''`).Scan(&st.Sessions)
	d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE session = ''`).Scan(&st.Unattached)

	rows, err := d.db.QueryContext(ctx, `
		SELECT type, COUNT(*) as cnt
		FROM objects
		GROUP BY type ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var cnt int
		rows.Scan(&typ, &cnt)
		st.ByType[typ] = cnt
	}
	return st, rows.Err()
}
