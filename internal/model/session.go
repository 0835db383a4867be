package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entry is one record in a session's append-only message sequence. The
// entry, not the object, carries role and time so that identical message
// bodies dedup across sessions. Device is the stable ID of the device that
// appended the entry; it is the tiebreak for merging divergent tails.
type Entry struct {
	Role        Role   `json:"role"`
	ContentHash string `json:"content_hash"`
	ContextHash string `json:"context_hash,omitempty"`
	Time        string `json:"time"`
	Device      string `json:"device,omitempty"`
}

// Session is the on-disk record at sessions/<id>.json. Messages is
// append-only; the summary fields and LastTime are the only fields ever
// overwritten in place. SummaryHash points at the summary object in the
// content store so a rebuilt index can re-attribute it to this session.
type Session struct {
	Messages    []Entry `json:"messages"`
	LastTime    string  `json:"last_time,omitempty"`
	Summary     string  `json:"summary,omitempty"`
	SummaryHash string  `json:"summary_hash,omitempty"`
	SummaryTime string  `json:"summary_time,omitempty"`
}

// SessionInfo is a listing row for one session.
type SessionInfo struct {
	ID           string `json:"session_id"`
	MessageCount int    `json:"message_count"`
	LastTime     string `json:"last_time,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// Message is a session entry resolved through the content store.
type Message struct {
	Hash        string `json:"hash" yaml:"hash"`
	Role        Role   `json:"role" yaml:"role"`
	Content     string `json:"content" yaml:"content"`
	Time        string `json:"time,omitempty" yaml:"time,omitempty"`
	ContextHash string `json:"context_hash,omitempty" yaml:"context_hash,omitempty"`
}

// Transcript is a fully resolved session, the unit handed to exporters.
type Transcript struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	Summary   string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	LastTime  string    `json:"last_time,omitempty" yaml:"last_time,omitempty"`
	Messages  []Message `json:"messages" yaml:"messages"`
}

// ParseSession decodes a session file.
func ParseSession(b []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Encode renders the session as pretty-printed JSON with a trailing
// newline, the format the sync transport diffs and merges.
func (s *Session) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return append(b, '\n'), nil
}

// Now returns the current UTC time in the on-disk timestamp format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ParseTime parses an on-disk timestamp, accepting sub-second precision.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

const maxSessionIDLen = 128

// ValidateSessionID rejects IDs that cannot safely become file names.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	if len(id) > maxSessionIDLen {
		return fmt.Errorf("session id %q too long", id)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("session id %q is reserved", id)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("session id %q contains a path separator", id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("session id %q contains invalid character %q", id, r)
		}
	}
	return nil
}
