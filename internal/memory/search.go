package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/openhearth/chronicle/internal/index"
	"github.com/openhearth/chronicle/internal/model"
)

// Search runs a filtered query against the index. Queued index writes
// are flushed first so a caller sees its own records, and a stale index
// is rebuilt once before the query is retried; the stores remain the
// source of truth.
func (a *Archive) Search(ctx context.Context, p index.QueryParams) ([]index.Row, error) {
	a.Flush()
	rows, err := a.idx.Query(ctx, p)
	if errors.Is(err, model.ErrIndexStale) {
		if err := a.Rebuild(ctx); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		rows, err = a.idx.Query(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return rows, nil
}

// SearchRanked is Search with bm25 relevance ordering instead of
// recency.
func (a *Archive) SearchRanked(ctx context.Context, query string, limit int) ([]index.RankedResult, error) {
	a.Flush()
	res, err := a.idx.SearchRanked(ctx, query, limit)
	if errors.Is(err, model.ErrIndexStale) {
		if err := a.Rebuild(ctx); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		res, err = a.idx.SearchRanked(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return res, nil
}

// Rebuild derives the index from the stores. It holds the directory
// lock so the scan never races a sync merge rewriting session files.
func (a *Archive) Rebuild(ctx context.Context) error {
	a.Flush()
	release, err := a.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	defer release()
	if err := a.idx.Rebuild(ctx, a.objects, a.sessions); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	return nil
}
