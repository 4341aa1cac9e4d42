package core

// cache.go holds staged imports between preview and commit/cancel.
//
// A session leaves the cache through exactly one terminal transition:
// commit, cancel or expiry. Take removes the entry under the lock, so when
// two callers race for the same id only one receives the session and the
// other observes ErrNotFound.

import (
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/imaging"
)

// Session is one staged import.
type Session struct {
	ID       string
	FileName string
	TempPath string
	Headers  []string
	Rows     [][]string
	Images   imaging.ImageMap

	CreatedAt time.Time
}

// Total returns the number of staged data rows.
func (s *Session) Total() int {
	return len(s.Rows)
}

// PreviewCache is the in-memory store of staged sessions.
type PreviewCache struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPreviewCache creates an empty cache.
func NewPreviewCache() *PreviewCache {
	return &PreviewCache{sessions: make(map[string]*Session)}
}

// Put stores s under s.ID, replacing any entry with the same id.
func (c *PreviewCache) Put(s *Session) {
	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()
}

// Get returns the session without removing it.
func (c *PreviewCache) Get(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Take removes and returns the session. Only one caller per id succeeds.
func (c *PreviewCache) Take(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if ok {
		delete(c.sessions, id)
	}
	return s, ok
}

// TakeExpired removes and returns every session created before cutoff.
func (c *PreviewCache) TakeExpired(cutoff time.Time) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Session
	for id, s := range c.sessions {
		if s.CreatedAt.Before(cutoff) {
			out = append(out, s)
			delete(c.sessions, id)
		}
	}
	return out
}

// Len returns the number of staged sessions.
func (c *PreviewCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// IDs returns the staged session ids, sorted.
func (c *PreviewCache) IDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)
	return ids
}
