package chat

import "sync"

// Registry maps user ids to their live connections. It is the single
// in-process source of truth for who is connected; mutations happen only on
// connect and disconnect.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Conn // user id -> conn id -> conn
	byConn map[string]*Conn            // conn id -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Conn),
		byConn: make(map[string]*Conn),
	}
}

// Add registers c and returns how many connections its user now has.
func (r *Registry) Add(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Conn)
		r.byUser[c.UserID] = m
	}
	m[c.ID] = c
	r.byConn[c.ID] = c
	return len(m)
}

// Remove deregisters c and returns how many connections its user still has;
// zero means the user went offline.
func (r *Registry) Remove(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, c.ID)
	m := r.byUser[c.UserID]
	if m == nil {
		return 0
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(r.byUser, c.UserID)
		return 0
	}
	return len(m)
}

// ListByUser snapshots the user's live connections.
func (r *Registry) ListByUser(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Get(connID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// Len reports the total number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
