package gitsync

import (
	"fmt"
	"testing"

	"github.com/openhearth/chronicle/internal/model"
)

func entry(role model.Role, hash, time, device string) model.Entry {
	return model.Entry{Role: role, ContentHash: hash, Time: time, Device: device}
}

// mergeBothWays checks the symmetry requirement: both devices run the
// same function with the sides swapped and must produce identical logs.
func mergeBothWays(t *testing.T, base, a, b *model.Session) *model.Session {
	t.Helper()
	ab, err := MergeSessions("s", base, a, b)
	if err != nil {
		t.Fatalf("merge a<-b: %v", err)
	}
	ba, err := MergeSessions("s", base, b, a)
	if err != nil {
		t.Fatalf("merge b<-a: %v", err)
	}
	abBytes, _ := ab.Encode()
	baBytes, _ := ba.Encode()
	if string(abBytes) != string(baBytes) {
		t.Fatalf("merge is not symmetric:\n a<-b: %s\n b<-a: %s", abBytes, baBytes)
	}
	return ab
}

func hashesOf(s *model.Session) []string {
	var out []string
	for _, e := range s.Messages {
		out = append(out, e.ContentHash)
	}
	return out
}

func TestMergeInterleavesDivergentTails(t *testing.T) {
	base := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "h0", "2026-08-23T10:00:00Z", "dev-a"),
	}}
	ours := &model.Session{
		Messages: append(append([]model.Entry{}, base.Messages...),
			entry(model.RoleUser, "a1", "2026-08-23T10:00:02Z", "dev-a"),
			entry(model.RoleAssistant, "a2", "2026-08-23T10:00:04Z", "dev-a"),
		),
		LastTime: "2026-08-23T10:00:04Z",
	}
	theirs := &model.Session{
		Messages: append(append([]model.Entry{}, base.Messages...),
			entry(model.RoleUser, "b1", "2026-08-23T10:00:03Z", "dev-b"),
			entry(model.RoleAssistant, "b2", "2026-08-23T10:00:05Z", "dev-b"),
		),
		LastTime: "2026-08-23T10:00:05Z",
	}

	merged := mergeBothWays(t, base, ours, theirs)

	want := []string{"h0", "a1", "b1", "a2", "b2"}
	if fmt.Sprint(hashesOf(merged)) != fmt.Sprint(want) {
		t.Errorf("merged order = %v, want %v", hashesOf(merged), want)
	}
	if merged.LastTime != "2026-08-23T10:00:05Z" {
		t.Errorf("last_time = %q", merged.LastTime)
	}
}

func TestMergeBothTailsAlwaysRetained(t *testing.T) {
	// The two-devices-said-different-things case: nothing may be dropped.
	base := &model.Session{Messages: []model.Entry{}}
	ours := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "from-a", "2026-08-23T10:00:01Z", "dev-a"),
	}}
	theirs := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "from-b", "2026-08-23T10:00:01Z", "dev-b"),
	}}

	merged := mergeBothWays(t, base, ours, theirs)
	if len(merged.Messages) != 2 {
		t.Fatalf("got %d entries, want both retained", len(merged.Messages))
	}
	// Equal times: device id decides, identically on both sides.
	if merged.Messages[0].ContentHash != "from-a" || merged.Messages[1].ContentHash != "from-b" {
		t.Errorf("order = %v", hashesOf(merged))
	}
}

func TestMergeNilBase(t *testing.T) {
	ours := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "a1", "2026-08-23T10:00:01Z", "dev-a"),
	}}
	theirs := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "b1", "2026-08-23T10:00:02Z", "dev-b"),
	}}

	merged := mergeBothWays(t, nil, ours, theirs)
	want := []string{"a1", "b1"}
	if fmt.Sprint(hashesOf(merged)) != fmt.Sprint(want) {
		t.Errorf("merged = %v, want %v", hashesOf(merged), want)
	}
}

func TestMergeCollapsesEntriesSeenOnBothSides(t *testing.T) {
	// A partial earlier sync can leave the same appended entry on both
	// devices with no common ancestor recording it.
	shared := entry(model.RoleUser, "dup", "2026-08-23T10:00:01Z", "dev-a")
	ours := &model.Session{Messages: []model.Entry{
		shared,
		entry(model.RoleUser, "a2", "2026-08-23T10:00:02Z", "dev-a"),
	}}
	theirs := &model.Session{Messages: []model.Entry{
		shared,
		entry(model.RoleUser, "b2", "2026-08-23T10:00:03Z", "dev-b"),
	}}

	merged := mergeBothWays(t, nil, ours, theirs)
	want := []string{"dup", "a2", "b2"}
	if fmt.Sprint(hashesOf(merged)) != fmt.Sprint(want) {
		t.Errorf("merged = %v, want %v", hashesOf(merged), want)
	}
}

func TestMergeRejectsRewrittenHistory(t *testing.T) {
	base := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "h0", "2026-08-23T10:00:00Z", "dev-a"),
		entry(model.RoleUser, "h1", "2026-08-23T10:00:01Z", "dev-a"),
	}}
	rewritten := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "h0", "2026-08-23T10:00:00Z", "dev-a"),
		// h1 edited in place.
		entry(model.RoleUser, "h1-changed", "2026-08-23T10:00:01Z", "dev-a"),
	}}
	intact := &model.Session{Messages: append([]model.Entry{}, base.Messages...)}

	if _, err := MergeSessions("s", base, rewritten, intact); err == nil {
		t.Error("expected error for rewritten local history")
	}
	if _, err := MergeSessions("s", base, intact, rewritten); err == nil {
		t.Error("expected error for rewritten remote history")
	}

	truncated := &model.Session{Messages: base.Messages[:1]}
	if _, err := MergeSessions("s", base, truncated, intact); err == nil {
		t.Error("expected error for truncated history")
	}
}

func TestMergePreservesDeviceOrderUnderClockStep(t *testing.T) {
	// dev-a's clock stepped backwards between its two appends. Its own
	// order must survive the merge anyway.
	ours := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "a-first", "2026-08-23T10:00:05Z", "dev-a"),
		entry(model.RoleUser, "a-second", "2026-08-23T10:00:03Z", "dev-a"),
	}}
	theirs := &model.Session{Messages: []model.Entry{
		entry(model.RoleUser, "b1", "2026-08-23T10:00:04Z", "dev-b"),
	}}

	merged := mergeBothWays(t, nil, ours, theirs)

	posA1, posA2 := -1, -1
	for i, e := range merged.Messages {
		switch e.ContentHash {
		case "a-first":
			posA1 = i
		case "a-second":
			posA2 = i
		}
	}
	if posA1 == -1 || posA2 == -1 || posA1 > posA2 {
		t.Errorf("dev-a order not preserved: %v", hashesOf(merged))
	}
}

func TestMergeSummaryLastWriterWins(t *testing.T) {
	mk := func(text, hash, time string) *model.Session {
		return &model.Session{
			Messages:    []model.Entry{},
			Summary:     text,
			SummaryHash: hash,
			SummaryTime: time,
		}
	}

	merged := mergeBothWays(t, nil,
		mk("older summary", "h-old", "2026-08-23T10:00:00Z"),
		mk("newer summary", "h-new", "2026-08-23T11:00:00Z"))
	if merged.Summary != "newer summary" || merged.SummaryHash != "h-new" {
		t.Errorf("later summary lost: %+v", merged)
	}
	if merged.SummaryTime != "2026-08-23T11:00:00Z" {
		t.Errorf("summary_time = %q", merged.SummaryTime)
	}

	// Timestamp tie: the greater text wins on both devices.
	merged = mergeBothWays(t, nil,
		mk("alpha", "h1", "2026-08-23T10:00:00Z"),
		mk("beta", "h2", "2026-08-23T10:00:00Z"))
	if merged.Summary != "beta" {
		t.Errorf("tie broke to %q, want beta", merged.Summary)
	}

	// One side never summarized.
	merged = mergeBothWays(t, nil,
		mk("", "", ""),
		mk("only one", "h", "2026-08-23T10:00:00Z"))
	if merged.Summary != "only one" {
		t.Errorf("existing summary lost: %q", merged.Summary)
	}
}

func TestMergeIdenticalSidesIsIdentity(t *testing.T) {
	s := &model.Session{
		Messages: []model.Entry{
			entry(model.RoleUser, "h0", "2026-08-23T10:00:00Z", "dev-a"),
		},
		LastTime: "2026-08-23T10:00:00Z",
		Summary:  "same",
	}
	merged := mergeBothWays(t, s, s, s)
	mergedBytes, _ := merged.Encode()
	origBytes, _ := s.Encode()
	if string(mergedBytes) != string(origBytes) {
		t.Errorf("merging identical sides changed the log:\n%s\nvs\n%s", mergedBytes, origBytes)
	}
}
