// Package model defines the durable data types shared across the chronicle packages.
package model

import (
	"encoding/json"
	"fmt"
)

// ObjectType classifies a stored object.
type ObjectType string

const (
	TypeMessage ObjectType = "message"
	TypeSystem  ObjectType = "system"
	TypeContext ObjectType = "context"
	TypeSummary ObjectType = "summary"
)

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem appears only on reconstructed context output; session
	// entries never carry it because the system prompt rides on the
	// context snapshot, not the message sequence.
	RoleSystem Role = "system"
)

// ValidRoles are the roles accepted on a session entry.
var ValidRoles = map[Role]bool{
	RoleUser:      true,
	RoleAssistant: true,
}

// Object is the envelope for every content-addressed artifact. Only the
// fields relevant to the object's type are set; role and timestamp are
// deliberately absent so identical content hashes identically no matter
// which session or moment produced it.
//
// Fields stay declared in alphabetical key order: the canonical encoding
// is plain json.Marshal output, and sorted keys keep it byte-stable.
type Object struct {
	Content  string     `json:"content,omitempty"`
	Level    int        `json:"level,omitempty"`
	Messages []string   `json:"messages,omitempty"`
	Sources  []string   `json:"sources,omitempty"`
	System   string     `json:"system,omitempty"`
	Type     ObjectType `json:"type"`
}

// Canonical returns the canonical byte encoding of the object, the exact
// bytes that are hashed and written to disk.
func (o *Object) Canonical() ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	return b, nil
}

// DecodeObject parses the canonical encoding back into an Object.
func DecodeObject(b []byte) (*Object, error) {
	var o Object
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if o.Type == "" {
		return nil, fmt.Errorf("decode object: missing type")
	}
	return &o, nil
}

// SearchableText returns the portion of an object worth indexing for text
// search. Context snapshots are hash lists and contribute nothing.
func (o *Object) SearchableText() string {
	switch o.Type {
	case TypeContext:
		return ""
	default:
		return o.Content
	}
}
