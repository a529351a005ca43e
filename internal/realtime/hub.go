package realtime

import "sync"

// Hub tracks live connections, each user's personal channel and the
// per-conversation broadcast groups.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]*Connection
	users       map[int64]map[string]*Connection
	groups      map[int64]map[string]*Connection
	memberships map[string]map[int64]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions:    make(map[string]*Connection),
		users:       make(map[int64]map[string]*Connection),
		groups:      make(map[int64]map[string]*Connection),
		memberships: make(map[string]map[int64]struct{}),
	}
}

// Attach registers conn and subscribes it to its user's personal channel.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[conn.ID] = conn
	channel := h.users[conn.UserID]
	if channel == nil {
		channel = make(map[string]*Connection)
		h.users[conn.UserID] = channel
	}
	channel[conn.ID] = conn
}

// Detach removes conn from every channel and group. It reports false when the
// connection was not tracked, so callers can run disconnect handling exactly once.
func (h *Hub) Detach(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[conn.ID]; !ok {
		return false
	}
	delete(h.sessions, conn.ID)

	if channel := h.users[conn.UserID]; channel != nil {
		delete(channel, conn.ID)
		if len(channel) == 0 {
			delete(h.users, conn.UserID)
		}
	}

	for conversationID := range h.memberships[conn.ID] {
		h.leaveLocked(conversationID, conn.ID)
	}
	delete(h.memberships, conn.ID)
	return true
}

func (h *Hub) Join(conversationID int64, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[conn.ID]; !ok {
		return
	}

	group := h.groups[conversationID]
	if group == nil {
		group = make(map[string]*Connection)
		h.groups[conversationID] = group
	}
	group[conn.ID] = conn

	joined := h.memberships[conn.ID]
	if joined == nil {
		joined = make(map[int64]struct{})
		h.memberships[conn.ID] = joined
	}
	joined[conversationID] = struct{}{}
}

func (h *Hub) Leave(conversationID int64, conn *Connection) {
	h.mu.Lock()
	h.leaveLocked(conversationID, conn.ID)
	h.mu.Unlock()
}

// BroadcastAll delivers payload to every live connection.
func (h *Hub) BroadcastAll(payload []byte) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.sessions))
	for _, conn := range h.sessions {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	return deliver(targets, payload, nil)
}

// BroadcastGroup delivers payload to the conversation group. exclude, when set,
// skips that single connection; the same user's other devices still receive it.
func (h *Hub) BroadcastGroup(conversationID int64, payload []byte, exclude *Connection) int {
	h.mu.RLock()
	targets := snapshot(h.groups[conversationID])
	h.mu.RUnlock()

	return deliver(targets, payload, exclude)
}

// NotifyUser delivers payload to every connection on the user's personal channel.
func (h *Hub) NotifyUser(userID int64, payload []byte) int {
	h.mu.RLock()
	targets := snapshot(h.users[userID])
	h.mu.RUnlock()

	return deliver(targets, payload, nil)
}

func (h *Hub) Connections() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.sessions))
	for _, conn := range h.sessions {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) GroupSize(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[conversationID])
}

func (h *Hub) leaveLocked(conversationID int64, sessionID string) {
	group := h.groups[conversationID]
	if group == nil {
		return
	}
	delete(group, sessionID)
	if len(group) == 0 {
		delete(h.groups, conversationID)
	}
	if joined, ok := h.memberships[sessionID]; ok {
		delete(joined, conversationID)
	}
}

func snapshot(set map[string]*Connection) []*Connection {
	out := make([]*Connection, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

func deliver(targets []*Connection, payload []byte, exclude *Connection) int {
	delivered := 0
	for _, conn := range targets {
		if conn == exclude {
			continue
		}
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}
