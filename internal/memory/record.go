package memory

import (
	"context"
	"fmt"

	"github.com/openhearth/chronicle/internal/index"
	"github.com/openhearth/chronicle/internal/model"
	"github.com/openhearth/chronicle/internal/object"
	"github.com/openhearth/chronicle/internal/session"
)

// RecordParams describes one conversational turn.
type RecordParams struct {
	Session string
	Role    model.Role
	Text    string

	// ContextHash optionally names the context snapshot the turn was
	// generated against; normally set on assistant turns.
	ContextHash string

	// Time defaults to the current UTC time.
	Time string
}

// Record stores the message body and appends the turn to the session
// log. The returned hash identifies the body in the content store; the
// same text recorded anywhere yields the same hash. The search index is
// updated asynchronously.
func (a *Archive) Record(ctx context.Context, p RecordParams) (string, error) {
	if err := model.ValidateSessionID(p.Session); err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	if p.Text == "" {
		return "", fmt.Errorf("record: empty message text")
	}
	if p.ContextHash != "" && !object.ValidHash(p.ContextHash) {
		return "", fmt.Errorf("record: invalid context hash %q", p.ContextHash)
	}
	if p.Time == "" {
		p.Time = model.Now()
	} else if _, err := model.ParseTime(p.Time); err != nil {
		return "", fmt.Errorf("record: %w", err)
	}

	hash, err := a.objects.Put(&model.Object{
		Type:    model.TypeMessage,
		Content: p.Text,
	})
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}

	// The object is durable before the log references it, so a crash
	// between the two leaves an unreferenced object, never a dangling
	// hash.
	release, err := a.lock.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	err = a.sessions.Append(p.Session, session.AppendParams{
		Role:        p.Role,
		ContentHash: hash,
		ContextHash: p.ContextHash,
		Time:        p.Time,
		Device:      a.opts.Device,
	})
	release()
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}

	row := index.Row{
		Hash:    hash,
		Type:    string(model.TypeMessage),
		Content: p.Text,
		Role:    string(p.Role),
		Time:    p.Time,
		Session: p.Session,
		Context: p.ContextHash,
	}
	a.enqueue(func(ctx context.Context) {
		if err := a.idx.Upsert(ctx, row); err != nil {
			a.log.Warn("index message", "hash", row.Hash, "error", err)
			return
		}
		if row.Context == "" {
			return
		}
		// The referenced snapshot, and the system prompt inside it,
		// inherit this entry's observation, exactly as a rebuild would
		// assign them.
		ref := index.Attribution{Time: row.Time, Session: row.Session}
		if err := a.idx.Attribute(ctx, row.Context, ref); err != nil {
			a.log.Warn("attribute context", "hash", row.Context, "error", err)
			return
		}
		if snap, err := a.objects.Get(row.Context); err == nil && snap.System != "" {
			if err := a.idx.Attribute(ctx, snap.System, ref); err != nil {
				a.log.Warn("attribute system prompt", "hash", snap.System, "error", err)
			}
		}
	})

	a.log.Debug("recorded message",
		"session", p.Session, "role", p.Role, "hash", hash)
	return hash, nil
}

// ContextParams describes a context snapshot: the message hashes that
// were in the model's window, plus the system prompt hash when one was
// set.
type ContextParams struct {
	Messages []string
	System   string
}

// RecordContext stores a context snapshot object. The snapshot is not
// appended to any session; it rides on the next recorded turn's
// ContextHash, and its session attribution in the index arrives through
// that entry.
func (a *Archive) RecordContext(ctx context.Context, p ContextParams) (string, error) {
	for _, h := range p.Messages {
		if !object.ValidHash(h) {
			return "", fmt.Errorf("record context: invalid message hash %q", h)
		}
	}
	if p.System != "" && !object.ValidHash(p.System) {
		return "", fmt.Errorf("record context: invalid system hash %q", p.System)
	}

	hash, err := a.objects.Put(&model.Object{
		Type:     model.TypeContext,
		Messages: p.Messages,
		System:   p.System,
	})
	if err != nil {
		return "", fmt.Errorf("record context: %w", err)
	}
	a.enqueueEnsure(hash, model.TypeContext, 0, "")
	return hash, nil
}

// RecordSystem stores a system prompt object. Prompts are shared across
// sessions through context snapshots, so the object carries no session
// of its own.
func (a *Archive) RecordSystem(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("record system: empty prompt")
	}
	hash, err := a.objects.Put(&model.Object{
		Type:    model.TypeSystem,
		Content: text,
	})
	if err != nil {
		return "", fmt.Errorf("record system: %w", err)
	}
	a.enqueueEnsure(hash, model.TypeSystem, 0, text)
	return hash, nil
}

// RecordSummaryParams describes a stored summary object.
type RecordSummaryParams struct {
	Text string

	// Sources are the hashes the summary condenses: message objects at
	// level 1, lower-level summaries above that.
	Sources []string

	// Level defaults to 1.
	Level int
}

// RecordSummary stores a summary object. Attaching it to a session is a
// separate step (UpdateSummary with the returned hash), because
// summaries can also condense material across sessions.
func (a *Archive) RecordSummary(ctx context.Context, p RecordSummaryParams) (string, error) {
	if p.Text == "" {
		return "", fmt.Errorf("record summary: empty text")
	}
	for _, h := range p.Sources {
		if !object.ValidHash(h) {
			return "", fmt.Errorf("record summary: invalid source hash %q", h)
		}
	}
	if p.Level <= 0 {
		p.Level = 1
	}

	hash, err := a.objects.Put(&model.Object{
		Type:    model.TypeSummary,
		Content: p.Text,
		Sources: p.Sources,
		Level:   p.Level,
	})
	if err != nil {
		return "", fmt.Errorf("record summary: %w", err)
	}
	a.enqueueEnsure(hash, model.TypeSummary, p.Level, p.Text)
	return hash, nil
}

// SummaryUpdate replaces a session's summary.
type SummaryUpdate struct {
	Text string

	// Hash optionally points at a stored summary object for this text,
	// letting a rebuilt index re-attribute it to the session.
	Hash string

	// Time defaults to now. It decides the winner when two devices
	// summarize the same session independently.
	Time string
}

// UpdateSummary sets the session summary. The session must exist.
func (a *Archive) UpdateSummary(ctx context.Context, id string, u SummaryUpdate) error {
	if err := model.ValidateSessionID(id); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if u.Hash != "" && !object.ValidHash(u.Hash) {
		return fmt.Errorf("update summary: invalid hash %q", u.Hash)
	}
	if u.Time == "" {
		u.Time = model.Now()
	} else if _, err := model.ParseTime(u.Time); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}

	release, err := a.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	err = a.sessions.UpdateSummary(id, session.SummaryParams{
		Text: u.Text,
		Hash: u.Hash,
		Time: u.Time,
	})
	release()
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}

	if u.Hash != "" {
		hash, attr := u.Hash, index.Attribution{Time: u.Time, Session: id}
		a.enqueue(func(ctx context.Context) {
			if err := a.idx.Attribute(ctx, hash, attr); err != nil {
				a.log.Warn("attribute summary", "hash", hash, "error", err)
			}
		})
	}
	return nil
}

// enqueueEnsure queues a payload-only index row for a freshly stored
// object.
func (a *Archive) enqueueEnsure(hash string, typ model.ObjectType, level int, content string) {
	row := index.Row{Hash: hash, Type: string(typ), Level: level, Content: content}
	a.enqueue(func(ctx context.Context) {
		if err := a.idx.Ensure(ctx, row); err != nil {
			a.log.Warn("index object", "hash", row.Hash, "type", row.Type, "error", err)
		}
	})
}
