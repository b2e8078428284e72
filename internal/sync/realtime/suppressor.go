// Package realtime applies inbound change-feed events to the local
// store, suppressing echoes of this device's own writes.
package realtime

import (
	"sync"
	"time"

	"github.com/brewkit/brewsync/internal/models"
)

// Markers expire this long after the local write; an inbound event for
// the same record inside the window is treated as an echo.
const suppressionTTL = 5 * time.Second

// Suppressor tracks short-lived (table, id) markers for local writes.
// Expired markers are pruned lazily on lookup.
type Suppressor struct {
	mu    sync.Mutex
	marks map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
}

// NewSuppressor creates a Suppressor with the default 5s window.
func NewSuppressor() *Suppressor {
	return &Suppressor{
		marks: make(map[string]time.Time),
		ttl:   suppressionTTL,
		now:   time.Now,
	}
}

func markKey(table models.Table, id string) string {
	return string(table) + "/" + id
}

// Mark records a local write of (table, id), refreshing the expiry.
func (s *Suppressor) Mark(table models.Table, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[markKey(table, id)] = s.now().Add(s.ttl)
}

// Suppressed reports whether an inbound event for (table, id) falls
// inside an unexpired marker window. Expired markers are removed.
func (s *Suppressor) Suppressed(table models.Table, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := markKey(table, id)
	expiry, ok := s.marks[key]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.marks, key)
		return false
	}
	return true
}

// Clear drops all markers. Called on disconnect.
func (s *Suppressor) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = make(map[string]time.Time)
}
