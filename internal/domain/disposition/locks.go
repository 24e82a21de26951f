package disposition

import (
	"sync"

	"github.com/google/uuid"
)

// caseLocks serializes disposition operations per case. TryAcquire is
// non-blocking: losing a race is surfaced as ConcurrencyConflict rather
// than queueing behind human latency.
type caseLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func newCaseLocks() *caseLocks {
	return &caseLocks{held: make(map[uuid.UUID]bool)}
}

func (l *caseLocks) TryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[id] {
		return false
	}
	l.held[id] = true
	return true
}

func (l *caseLocks) Release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}
