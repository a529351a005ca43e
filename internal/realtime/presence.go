package realtime

import (
	"sync"
	"time"

	"course_messaging/internal/domain"
)

// PresenceRegistry derives online/offline from live connection membership.
// The in-memory implementation is process-local; a shared store can replace it.
type PresenceRegistry interface {
	Connect(userID int64, connectionID string) domain.Presence
	Disconnect(userID int64, connectionID string) domain.Presence
	Snapshot(userID int64) domain.Presence
}

type presenceEntry struct {
	connections map[string]struct{}
	lastSeen    *time.Time
}

type MemoryPresence struct {
	mu      sync.Mutex
	entries map[int64]*presenceEntry
	now     func() time.Time
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		entries: make(map[int64]*presenceEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *MemoryPresence) Connect(userID int64, connectionID string) domain.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.entries[userID]
	if entry == nil {
		entry = &presenceEntry{connections: make(map[string]struct{})}
		p.entries[userID] = entry
	}
	entry.connections[connectionID] = struct{}{}
	return entry.snapshot(userID)
}

func (p *MemoryPresence) Disconnect(userID int64, connectionID string) domain.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.entries[userID]
	if entry == nil {
		return domain.Presence{UserID: userID}
	}
	if _, ok := entry.connections[connectionID]; ok {
		delete(entry.connections, connectionID)
		if len(entry.connections) == 0 {
			seen := p.now()
			entry.lastSeen = &seen
		}
	}
	return entry.snapshot(userID)
}

func (p *MemoryPresence) Snapshot(userID int64) domain.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.entries[userID]
	if entry == nil {
		return domain.Presence{UserID: userID}
	}
	return entry.snapshot(userID)
}

func (e *presenceEntry) snapshot(userID int64) domain.Presence {
	presence := domain.Presence{
		UserID: userID,
		Online: len(e.connections) > 0,
	}
	if e.lastSeen != nil {
		seen := *e.lastSeen
		presence.LastSeen = &seen
	}
	return presence
}
