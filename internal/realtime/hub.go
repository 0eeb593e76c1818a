package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/metrics"
)

// Sender is the minimal interface the hub needs from a connection.
type Sender interface {
	SessionID() string
	// Send queues frame without blocking and reports false when the
	// connection can no longer take it.
	Send(frame []byte) bool
	Close()
}

// Targets selects rooms for one emit. A session in several selected rooms
// receives the frame once.
type Targets struct {
	Users []string
	Chats []string
}

type membership struct {
	userID string
	chats  map[string]struct{}
}

// Hub keeps two independent subscription sets: personal rooms keyed by user
// id, joined by every connection on authentication, and chat rooms keyed by
// chat id, joined on request. A user may have several sessions (devices).
type Hub struct {
	mu       sync.RWMutex
	personal map[string]map[string]Sender
	chats    map[string]map[string]Sender
	sessions map[string]*membership

	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewHub creates a new hub instance.
func NewHub(m *metrics.Metrics, log *zap.Logger) *Hub {
	return &Hub{
		personal: make(map[string]map[string]Sender),
		chats:    make(map[string]map[string]Sender),
		sessions: make(map[string]*membership),
		metrics:  m,
		log:      log,
	}
}

// JoinPersonal registers s in the personal room of userID.
func (h *Hub) JoinPersonal(userID string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	add(h.personal, userID, s)
	if _, ok := h.sessions[s.SessionID()]; !ok {
		h.sessions[s.SessionID()] = &membership{userID: userID, chats: map[string]struct{}{}}
	}
}

// JoinChat adds s to the room of chatID. Sessions must join their personal
// room first.
func (h *Hub) JoinChat(chatID string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.sessions[s.SessionID()]
	if !ok {
		return
	}
	add(h.chats, chatID, s)
	m.chats[chatID] = struct{}{}
}

// LeaveChat removes s from the room of chatID.
func (h *Hub) LeaveChat(chatID string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	remove(h.chats, chatID, s.SessionID())
	if m, ok := h.sessions[s.SessionID()]; ok {
		delete(m.chats, chatID)
	}
}

// PruneChat removes from the room of chatID every session whose user is not
// in keep and returns how many were removed.
func (h *Hub) PruneChat(chatID string, keep []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	allowed := make(map[string]struct{}, len(keep))
	for _, u := range keep {
		allowed[u] = struct{}{}
	}
	var pruned int
	for id := range h.chats[chatID] {
		m, ok := h.sessions[id]
		if ok {
			if _, member := allowed[m.userID]; member {
				continue
			}
			delete(m.chats, chatID)
		}
		remove(h.chats, chatID, id)
		pruned++
	}
	return pruned
}

// Remove drops s from every room.
func (h *Hub) Remove(s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s.SessionID())
}

func (h *Hub) removeLocked(id string) {
	m, ok := h.sessions[id]
	if !ok {
		return
	}
	remove(h.personal, m.userID, id)
	for chatID := range m.chats {
		remove(h.chats, chatID, id)
	}
	delete(h.sessions, id)
}

// InChat reports whether s is subscribed to chatID.
func (h *Hub) InChat(chatID string, s Sender) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.chats[chatID][s.SessionID()]
	return ok
}

// Emit sends frame to every session in the selected rooms and returns how
// many sessions took it. Delivery is best-effort: a session that cannot take
// the frame is unregistered and closed, and the caller is not told. Offline
// users reconcile through the REST read path.
func (h *Hub) Emit(frame []byte, t Targets) int {
	h.mu.RLock()
	seen := make(map[string]Sender)
	for _, u := range t.Users {
		for id, s := range h.personal[u] {
			seen[id] = s
		}
	}
	for _, c := range t.Chats {
		for id, s := range h.chats[c] {
			seen[id] = s
		}
	}
	h.mu.RUnlock()

	var (
		delivered int
		failed    []Sender
	)
	for _, s := range seen {
		if s.Send(frame) {
			delivered++
			continue
		}
		failed = append(failed, s)
	}

	// drop stale or saturated connections so later emits skip them
	for _, s := range failed {
		h.Remove(s)
		s.Close()
		h.metrics.Dropped()
		h.log.Warn("dropped session with full send queue", zap.String("session_id", s.SessionID()))
	}
	return delivered
}

func add(rooms map[string]map[string]Sender, key string, s Sender) {
	conns, ok := rooms[key]
	if !ok {
		conns = make(map[string]Sender)
		rooms[key] = conns
	}
	conns[s.SessionID()] = s
}

func remove(rooms map[string]map[string]Sender, key, id string) {
	if conns, ok := rooms[key]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(rooms, key)
		}
	}
}
