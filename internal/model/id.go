package model

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NewSessionID returns a fresh time-sortable ULID. Sessions created later
// sort later, which keeps directory listings in conversation order. The
// ID is lowercased because it becomes a file name, and case-insensitive
// filesystems would fold two IDs differing only in case.
func NewSessionID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}
