package gitsync

import (
	"fmt"

	"github.com/openhearth/chronicle/internal/model"
)

// MergeSessions reconciles two divergent copies of one session log.
// base is the last common version (nil when the session was created
// independently on both devices). The result is symmetric: both devices
// compute byte-identical output no matter which side they call "ours",
// which is what lets every device resolve the conflict locally without
// coordination.
//
// Rules:
//   - base's entries must be a prefix of both sides; session logs are
//     append-only, so anything else means a rewritten history and the
//     merge refuses rather than guess.
//   - the divergent tails interleave by (time, device, content hash),
//     preserving each device's own ordering; an identical entry recorded
//     on both sides collapses to one.
//   - last_time is the maximum; the summary with the later summary_time
//     wins whole.
func MergeSessions(id string, base, ours, theirs *model.Session) (*model.Session, error) {
	if ours == nil || theirs == nil {
		return nil, fmt.Errorf("merge session %s: missing side", id)
	}
	var baseEntries []model.Entry
	if base != nil {
		baseEntries = base.Messages
	}

	if !isPrefix(baseEntries, ours.Messages) {
		return nil, fmt.Errorf("merge session %s: local history rewritten since common ancestor", id)
	}
	if !isPrefix(baseEntries, theirs.Messages) {
		return nil, fmt.Errorf("merge session %s: remote history rewritten since common ancestor", id)
	}

	oursTail := ours.Messages[len(baseEntries):]
	theirsTail := theirs.Messages[len(baseEntries):]

	merged := &model.Session{
		Messages: make([]model.Entry, 0, len(baseEntries)+len(oursTail)+len(theirsTail)),
	}
	merged.Messages = append(merged.Messages, baseEntries...)
	merged.Messages = appendInterleaved(merged.Messages, oursTail, theirsTail)

	merged.LastTime = maxString(ours.LastTime, theirs.LastTime)

	winner := summaryWinner(ours, theirs)
	merged.Summary = winner.Summary
	merged.SummaryHash = winner.SummaryHash
	merged.SummaryTime = winner.SummaryTime

	return merged, nil
}

// appendInterleaved merges two tails with a stable two-list merge. Only
// the head of each tail is ever taken, so entries from one device keep
// their recorded order even when a clock step put their timestamps out of
// sequence.
func appendInterleaved(dst, a, b []model.Entry) []model.Entry {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			// Same entry landed on both devices (an earlier partial sync).
			dst = append(dst, a[i])
			i++
			j++
		case entryLess(a[i], b[j]):
			dst = append(dst, a[i])
			i++
		default:
			dst = append(dst, b[j])
			j++
		}
	}
	dst = append(dst, a[i:]...)
	dst = append(dst, b[j:]...)
	return dst
}

// entryLess is a total order over distinct entries. Time first, then the
// device that wrote the entry, then the content hash, then the remaining
// fields so that no two distinct entries ever compare equal.
func entryLess(a, b model.Entry) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if a.Device != b.Device {
		return a.Device < b.Device
	}
	if a.ContentHash != b.ContentHash {
		return a.ContentHash < b.ContentHash
	}
	if a.Role != b.Role {
		return a.Role < b.Role
	}
	return a.ContextHash < b.ContextHash
}

// isPrefix reports whether every entry of prefix opens full, in order.
func isPrefix(prefix, full []model.Entry) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}

// summaryWinner picks the summary that was written later; on a timestamp
// tie the lexicographically greater text wins, then the greater hash.
// Every comparison reads the same on both devices.
func summaryWinner(ours, theirs *model.Session) *model.Session {
	if ours.SummaryTime != theirs.SummaryTime {
		if ours.SummaryTime > theirs.SummaryTime {
			return ours
		}
		return theirs
	}
	if ours.Summary != theirs.Summary {
		if ours.Summary > theirs.Summary {
			return ours
		}
		return theirs
	}
	if ours.SummaryHash > theirs.SummaryHash {
		return ours
	}
	return theirs
}

func maxString(a, b string) string {
	if a > b {
		return a
	}
	return b
}
