package presence

import (
	"context"
	"sync"
	"time"
)

// Status is a user's connection status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// DefaultGraceWindow is how long an offline entry lingers before eviction.
// A reconnect within the window supersedes the pending eviction.
const DefaultGraceWindow = 5 * time.Minute

// Entry is the canonical presence record for one user. At most one entry
// exists per user; a newer connection replaces, never duplicates, it.
type Entry struct {
	UserID   int64
	ConnID   string
	Status   Status
	LastSeen time.Time
}

// Registry tracks which users currently hold a live connection. It is
// advisory state: the fan-out dispatcher consults it to choose between
// live delivery and the notification sink. Implementations must be safe
// for concurrent use.
type Registry interface {
	// MarkOnline upserts the canonical entry for the user. Last connect
	// wins: any previous connection's entry is replaced, and its conn ID
	// is returned so the caller can retire the old connection.
	MarkOnline(ctx context.Context, userID int64, connID string) (replaced string, err error)

	// MarkOffline flips the entry to offline and schedules eviction after
	// the grace window. A MarkOnline before the deadline cancels the
	// eviction. Calls carrying a conn ID other than the canonical one are
	// ignored (a stale disconnect must not knock a newer connection offline).
	MarkOffline(ctx context.Context, userID int64, connID string) error

	// IsOnline reports whether the user has a live connection.
	IsOnline(ctx context.Context, userID int64) (bool, error)

	// Get returns the entry for the user, or nil if evicted/never seen.
	Get(ctx context.Context, userID int64) (*Entry, error)

	// Close releases registry resources.
	Close() error
}

// MemoryRegistry is the default single-process Registry. State lives for
// the life of the server process; after a restart every user is offline
// until they reconnect.
type MemoryRegistry struct {
	mu          sync.Mutex
	entries     map[int64]*Entry
	evictions   map[int64]*time.Timer
	graceWindow time.Duration
	closed      bool
}

// NewMemoryRegistry creates an in-memory registry. A non-positive grace
// window falls back to DefaultGraceWindow.
func NewMemoryRegistry(graceWindow time.Duration) *MemoryRegistry {
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}
	return &MemoryRegistry{
		entries:     make(map[int64]*Entry),
		evictions:   make(map[int64]*time.Timer),
		graceWindow: graceWindow,
	}
}

// MarkOnline upserts the canonical entry, cancelling any pending eviction.
func (r *MemoryRegistry) MarkOnline(_ context.Context, userID int64, connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.evictions[userID]; ok {
		t.Stop()
		delete(r.evictions, userID)
	}

	var replaced string
	if prev, ok := r.entries[userID]; ok && prev.Status == StatusOnline && prev.ConnID != connID {
		replaced = prev.ConnID
	}

	r.entries[userID] = &Entry{
		UserID:   userID,
		ConnID:   connID,
		Status:   StatusOnline,
		LastSeen: time.Now(),
	}

	return replaced, nil
}

// MarkOffline flips the entry to offline and arms the eviction timer.
func (r *MemoryRegistry) MarkOffline(_ context.Context, userID int64, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		return nil
	}
	if connID != "" && entry.ConnID != connID {
		// A newer connection already owns this entry.
		return nil
	}

	entry.Status = StatusOffline
	entry.LastSeen = time.Now()

	if t, ok := r.evictions[userID]; ok {
		t.Stop()
	}
	if !r.closed {
		r.evictions[userID] = time.AfterFunc(r.graceWindow, func() {
			r.evict(userID, connID)
		})
	}

	return nil
}

func (r *MemoryRegistry) evict(userID int64, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.Status != StatusOffline {
		return
	}
	if connID != "" && entry.ConnID != connID {
		return
	}
	delete(r.entries, userID)
	delete(r.evictions, userID)
}

// IsOnline reports whether the user has a live connection.
func (r *MemoryRegistry) IsOnline(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	return ok && entry.Status == StatusOnline, nil
}

// Get returns a copy of the entry, or nil.
func (r *MemoryRegistry) Get(_ context.Context, userID int64) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

// Close stops all pending eviction timers.
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, t := range r.evictions {
		t.Stop()
		delete(r.evictions, id)
	}
	return nil
}

var _ Registry = (*MemoryRegistry)(nil)
