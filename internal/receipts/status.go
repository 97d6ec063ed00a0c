package receipts

import (
	"sync"

	"github.com/google/uuid"
)

// ProcessingStatus is the live view of one extraction job, served by Status
// and refreshed on every transition.
type ProcessingStatus struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
}

// statusTracker caches the latest ProcessingStatus per receipt. Entries are
// written after the row they shadow, so a cache hit is always at least as
// fresh as the database.
type statusTracker struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]ProcessingStatus
}

func newStatusTracker() *statusTracker {
	return &statusTracker{entries: make(map[uuid.UUID]ProcessingStatus)}
}

func (t *statusTracker) set(st ProcessingStatus) {
	t.mu.Lock()
	t.entries[st.ReceiptID] = st
	t.mu.Unlock()
}

func (t *statusTracker) get(id uuid.UUID) (ProcessingStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.entries[id]
	return st, ok
}

func (t *statusTracker) drop(id uuid.UUID) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}
