package convcore

import "sync"

// ThreadOwnerMap is a capacity-bounded LRU from conversation_id to the
// instance name that owns it (or RoundtableSentinel). Adapted from
// internal/cache.DedupeCache's touch-on-write/prune-oldest shape: that
// cache stores a timestamp keyed by a dedup key with a TTL; this one
// stores an instance name keyed by conversation id with no TTL at all,
// evicting purely by capacity.
type ThreadOwnerMap struct {
	mu       sync.Mutex
	owners   map[string]string
	order    []string // insertion/touch order, oldest first
	capacity int
}

// NewThreadOwnerMap creates a map bounded at the given capacity. A
// non-positive capacity falls back to 10,000, the default spec §3 names.
func NewThreadOwnerMap(capacity int) *ThreadOwnerMap {
	if capacity <= 0 {
		capacity = 10000
	}
	return &ThreadOwnerMap{
		owners:   make(map[string]string),
		capacity: capacity,
	}
}

// Set records the owning instance for a conversation, evicting the oldest
// entry if capacity is exceeded.
func (m *ThreadOwnerMap) Set(conversationID, instance string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.owners[conversationID]; exists {
		m.removeFromOrder(conversationID)
	}
	m.owners[conversationID] = instance
	m.order = append(m.order, conversationID)

	for len(m.order) > m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.owners, oldest)
	}
}

// Get returns the owning instance for a conversation, if any.
func (m *ThreadOwnerMap) Get(conversationID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[conversationID]
	return owner, ok
}

// IsRoundtable reports whether the conversation's owner is the roundtable
// sentinel.
func (m *ThreadOwnerMap) IsRoundtable(conversationID string) bool {
	owner, ok := m.Get(conversationID)
	return ok && owner == RoundtableSentinel
}

func (m *ThreadOwnerMap) removeFromOrder(conversationID string) {
	for i, id := range m.order {
		if id == conversationID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// Size returns the current number of tracked conversations.
func (m *ThreadOwnerMap) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners)
}
