package session

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestAppendCreatesSession(t *testing.T) {
	s := newTestStore(t)

	err := s.Append("chat-1", AppendParams{
		Role:        model.RoleUser,
		ContentHash: "aaa",
		Time:        "2026-08-23T10:00:00Z",
		Device:      "dev-1",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	sess, err := s.Load("chat-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(sess.Messages))
	}
	e := sess.Messages[0]
	if e.Role != model.RoleUser || e.ContentHash != "aaa" || e.Device != "dev-1" {
		t.Errorf("entry = %+v", e)
	}
	if sess.LastTime != "2026-08-23T10:00:00Z" {
		t.Errorf("last_time = %q", sess.LastTime)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		err := s.Append("chat-1", AppendParams{
			Role:        model.RoleUser,
			ContentHash: fmt.Sprintf("h%d", i),
			Time:        fmt.Sprintf("2026-08-23T10:00:0%dZ", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	sess, err := s.Load("chat-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, e := range sess.Messages {
		if want := fmt.Sprintf("h%d", i); e.ContentHash != want {
			t.Errorf("message %d = %s, want %s", i, e.ContentHash, want)
		}
	}
	if sess.LastTime != "2026-08-23T10:00:04Z" {
		t.Errorf("last_time = %q", sess.LastTime)
	}
}

func TestAppendNeverRewindsLastTime(t *testing.T) {
	s := newTestStore(t)

	if err := s.Append("chat-1", AppendParams{Role: model.RoleUser, ContentHash: "new", Time: "2026-08-23T12:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// A merged-in entry can carry an older timestamp.
	if err := s.Append("chat-1", AppendParams{Role: model.RoleUser, ContentHash: "old", Time: "2026-08-23T09:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	sess, _ := s.Load("chat-1")
	if sess.LastTime != "2026-08-23T12:00:00Z" {
		t.Errorf("last_time rewound to %q", sess.LastTime)
	}
}

func TestAppendValidation(t *testing.T) {
	s := newTestStore(t)

	if err := s.Append("chat-1", AppendParams{Role: "narrator", ContentHash: "aaa"}); err == nil {
		t.Error("expected error for unknown role")
	}
	if err := s.Append("chat-1", AppendParams{Role: model.RoleUser}); err == nil {
		t.Error("expected error for empty content hash")
	}
	if err := s.Append("../escape", AppendParams{Role: model.RoleUser, ContentHash: "aaa"}); err == nil {
		t.Error("expected error for traversal id")
	}
}

func TestUpdateSummaryDoesNotTouchMessages(t *testing.T) {
	s := newTestStore(t)

	if err := s.Append("chat-1", AppendParams{Role: model.RoleUser, ContentHash: "aaa", Time: "2026-08-23T10:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	err := s.UpdateSummary("chat-1", SummaryParams{
		Text: "a short exchange",
		Hash: "fff",
		Time: "2026-08-23T10:05:00Z",
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	sess, err := s.Load("chat-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Summary != "a short exchange" || sess.SummaryTime != "2026-08-23T10:05:00Z" {
		t.Errorf("summary fields: %+v", sess)
	}
	if sess.SummaryHash != "fff" {
		t.Errorf("summary hash = %q", sess.SummaryHash)
	}
	if len(sess.Messages) != 1 || sess.Messages[0].ContentHash != "aaa" {
		t.Errorf("messages disturbed: %+v", sess.Messages)
	}
	if sess.LastTime != "2026-08-23T10:00:00Z" {
		t.Errorf("last_time changed by summary update: %q", sess.LastTime)
	}
}

func TestUpdateSummaryUnknownSession(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateSummary("ghost", SummaryParams{Text: "whatever"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestLoadErrors(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("ghost")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing session: got %v, want ErrNotFound", err)
	}

	path, _ := s.Path("broken")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatalf("plant: %v", err)
	}
	_, err = s.Load("broken")
	if !errors.Is(err, model.ErrSessionCorrupt) {
		t.Errorf("corrupt session: got %v, want ErrSessionCorrupt", err)
	}
}

func TestListOrdersByRecency(t *testing.T) {
	s := newTestStore(t)
	s.log = logging.Discard()

	times := map[string]string{
		"oldest": "2026-08-21T08:00:00Z",
		"middle": "2026-08-22T08:00:00Z",
		"newest": "2026-08-23T08:00:00Z",
	}
	for id, ts := range times {
		if err := s.Append(id, AppendParams{Role: model.RoleUser, ContentHash: "h", Time: ts}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	// A corrupt log must not break listing.
	path, _ := s.Path("broken")
	os.WriteFile(path, []byte("nope"), 0o644)

	infos, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("got %d sessions, want 3", len(infos))
	}
	want := []string{"newest", "middle", "oldest"}
	for i, info := range infos {
		if info.ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, info.ID, want[i])
		}
	}
	if infos[0].MessageCount != 1 {
		t.Errorf("message count = %d", infos[0].MessageCount)
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	s := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Append("chat-1", AppendParams{
				Role:        model.RoleUser,
				ContentHash: fmt.Sprintf("h%02d", i),
			})
			if err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	sess, err := s.Load("chat-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.Messages) != n {
		t.Errorf("got %d messages, want %d", len(sess.Messages), n)
	}
	seen := make(map[string]bool)
	for _, e := range sess.Messages {
		seen[e.ContentHash] = true
	}
	if len(seen) != n {
		t.Errorf("lost entries: %d distinct hashes, want %d", len(seen), n)
	}
}

func TestReplaceInstallsMergedLog(t *testing.T) {
	s := newTestStore(t)

	if err := s.Append("chat-1", AppendParams{Role: model.RoleUser, ContentHash: "aaa", Time: "2026-08-23T10:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	merged := &model.Session{
		Messages: []model.Entry{
			{Role: model.RoleUser, ContentHash: "aaa", Time: "2026-08-23T10:00:00Z"},
			{Role: model.RoleUser, ContentHash: "bbb", Time: "2026-08-23T10:00:01Z", Device: "other"},
		},
		LastTime: "2026-08-23T10:00:01Z",
	}
	if err := s.Replace("chat-1", merged); err != nil {
		t.Fatalf("replace: %v", err)
	}

	sess, _ := s.Load("chat-1")
	if len(sess.Messages) != 2 || sess.Messages[1].Device != "other" {
		t.Errorf("replace did not stick: %+v", sess)
	}
}
