package chat

import "sync"

// Rooms maps conversation ids to the connections currently subscribed to
// that conversation's events. Membership is rebuilt by each client after
// reconnect; nothing here is persisted.
type Rooms struct {
	mu     sync.RWMutex
	byConv map[string]map[string]*Conn    // conversation id -> conn id -> conn
	byConn map[string]map[string]struct{} // conn id -> conversation ids
}

func NewRooms() *Rooms {
	return &Rooms{
		byConv: make(map[string]map[string]*Conn),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes c to the conversation. Re-joining is a no-op.
func (r *Rooms) Join(convID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byConv[convID]
	if m == nil {
		m = make(map[string]*Conn)
		r.byConv[convID] = m
	}
	m[c.ID] = c

	set := r.byConn[c.ID]
	if set == nil {
		set = make(map[string]struct{})
		r.byConn[c.ID] = set
	}
	set[convID] = struct{}{}
}

// LeaveAll removes c from every conversation it joined.
func (r *Rooms) LeaveAll(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for convID := range r.byConn[c.ID] {
		if m := r.byConv[convID]; m != nil {
			delete(m, c.ID)
			if len(m) == 0 {
				delete(r.byConv, convID)
			}
		}
	}
	delete(r.byConn, c.ID)
}

// Connections snapshots the subscribers of a conversation.
func (r *Rooms) Connections(convID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byConv[convID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// Joined reports whether c is subscribed to the conversation.
func (r *Rooms) Joined(convID string, c *Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[c.ID][convID]
	return ok
}
