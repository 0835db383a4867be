package memory

import (
	"context"
	"fmt"

	"github.com/openhearth/chronicle/internal/model"
	"github.com/openhearth/chronicle/internal/object"
)

// RecentParams bounds how much of a session Recent returns.
type RecentParams struct {
	Session string

	// Limit caps the number of entries, newest kept. Zero means all.
	Limit int

	// MaxChars caps the total message text, packing from the tail so
	// the newest turns survive. Zero means unlimited. The newest entry
	// is always included even when it alone exceeds the budget.
	MaxChars int
}

// Recent returns the tail of a session resolved through the content
// store, in log order. A missing body surfaces as ErrNotFound and a
// damaged one as ErrCorrupted; conversation text is never silently
// dropped.
func (a *Archive) Recent(ctx context.Context, p RecentParams) ([]model.Message, error) {
	if err := model.ValidateSessionID(p.Session); err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	sess, err := a.sessions.Load(p.Session)
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}

	entries := sess.Messages
	if p.Limit > 0 && len(entries) > p.Limit {
		entries = entries[len(entries)-p.Limit:]
	}

	// Resolve newest first so the char budget keeps the end of the
	// conversation, then flip back to log order.
	msgs := make([]model.Message, 0, len(entries))
	used := 0
	for i := len(entries) - 1; i >= 0; i-- {
		m, err := a.resolveEntry(entries[i])
		if err != nil {
			return nil, fmt.Errorf("recent: %w", err)
		}
		if p.MaxChars > 0 && len(msgs) > 0 && used+len(m.Content) > p.MaxChars {
			break
		}
		msgs = append(msgs, m)
		used += len(m.Content)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Transcript resolves a whole session for display or export.
func (a *Archive) Transcript(ctx context.Context, id string) (*model.Transcript, error) {
	if err := model.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	sess, err := a.sessions.Load(id)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}

	t := &model.Transcript{
		SessionID: id,
		Summary:   sess.Summary,
		LastTime:  sess.LastTime,
		Messages:  make([]model.Message, 0, len(sess.Messages)),
	}
	for _, e := range sess.Messages {
		m, err := a.resolveEntry(e)
		if err != nil {
			return nil, fmt.Errorf("transcript %s: %w", id, err)
		}
		t.Messages = append(t.Messages, m)
	}
	return t, nil
}

func (a *Archive) resolveEntry(e model.Entry) (model.Message, error) {
	obj, err := a.objects.Get(e.ContentHash)
	if err != nil {
		return model.Message{}, fmt.Errorf("entry %s: %w", e.ContentHash, err)
	}
	return model.Message{
		Hash:        e.ContentHash,
		Role:        e.Role,
		Content:     obj.Content,
		Time:        e.Time,
		ContextHash: e.ContextHash,
	}, nil
}

// ReconstructContext expands a context snapshot back into messages, the
// system prompt first when the snapshot names one. Roles are filled in
// from the index when it has an observation for a hash; a snapshot can
// reference material recorded on another device, so members that have
// not arrived yet are skipped with a warning rather than failing the
// whole reconstruction.
func (a *Archive) ReconstructContext(ctx context.Context, contextHash string) ([]model.Message, error) {
	if !object.ValidHash(contextHash) {
		return nil, fmt.Errorf("reconstruct context: invalid hash %q", contextHash)
	}
	snap, err := a.objects.Get(contextHash)
	if err != nil {
		return nil, fmt.Errorf("reconstruct context: %w", err)
	}
	if snap.Type != model.TypeContext {
		return nil, fmt.Errorf("reconstruct context: %s is a %s object", contextHash, snap.Type)
	}

	var msgs []model.Message
	if snap.System != "" {
		sys, err := a.objects.Get(snap.System)
		if err != nil {
			a.log.Warn("context references unavailable system prompt",
				"context", contextHash, "hash", snap.System, "error", err)
		} else {
			msgs = append(msgs, model.Message{
				Hash:    snap.System,
				Role:    model.RoleSystem,
				Content: sys.Content,
			})
		}
	}
	for _, h := range snap.Messages {
		obj, err := a.objects.Get(h)
		if err != nil {
			a.log.Warn("context references unavailable message",
				"context", contextHash, "hash", h, "error", err)
			continue
		}
		m := model.Message{Hash: h, Content: obj.Content}
		if row, err := a.idx.Get(ctx, h); err == nil && row != nil {
			m.Role = model.Role(row.Role)
			m.Time = row.Time
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Object fetches one stored object by hash.
func (a *Archive) Object(ctx context.Context, hash string) (*model.Object, error) {
	if !object.ValidHash(hash) {
		return nil, fmt.Errorf("object: invalid hash %q", hash)
	}
	obj, err := a.objects.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", hash, err)
	}
	return obj, nil
}

// Session returns one session's listing entry without resolving any
// message bodies.
func (a *Archive) Session(ctx context.Context, id string) (model.SessionInfo, error) {
	if err := model.ValidateSessionID(id); err != nil {
		return model.SessionInfo{}, fmt.Errorf("session: %w", err)
	}
	sess, err := a.sessions.Load(id)
	if err != nil {
		return model.SessionInfo{}, fmt.Errorf("session: %w", err)
	}
	return model.SessionInfo{
		ID:           id,
		MessageCount: len(sess.Messages),
		LastTime:     sess.LastTime,
		Summary:      sess.Summary,
	}, nil
}

// Sessions lists known sessions, most recently active first. A positive
// limit truncates the listing.
func (a *Archive) Sessions(ctx context.Context, limit int) ([]model.SessionInfo, error) {
	infos, err := a.sessions.List()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}
