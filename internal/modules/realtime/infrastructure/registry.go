package infrastructure

import "sync"

// ConnectionRegistry holds the live connections by id.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{connections: make(map[string]*Connection)}
}

func (r *ConnectionRegistry) Add(c *Connection) {
	r.mu.Lock()
	r.connections[c.id] = c
	r.mu.Unlock()
}

// Remove deletes id and reports whether it was present. Removing an id twice
// is a no-op the second time.
func (r *ConnectionRegistry) Remove(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
	}
	return c, ok
}

func (r *ConnectionRegistry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connections[id]
	return c, ok
}

// ForEach calls fn for a snapshot of the registry, outside the lock, so fn
// may add or remove connections. Iteration order is unspecified.
func (r *ConnectionRegistry) ForEach(fn func(*Connection)) {
	r.mu.RLock()
	snapshot := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()
	for _, c := range snapshot {
		fn(c)
	}
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
