package gateway

import (
	"sync"

	"github.com/Andy963/ads-sub001/internal/common/logger"
	"go.uber.org/zap"
)

// Hub enforces one-live-client-per-session plus a global concurrent-client
// cap, in place of the teacher's many-clients-broadcast hub (spec.md §4.8,
// §5 "at-most-one gateway per workspace" extended here to at-most-one live
// connection per session).
type Hub struct {
	mu         sync.Mutex
	bySession  map[string]*Client
	maxClients int
	log        *logger.Logger
}

// NewHub builds a Hub bounded to maxClients concurrent live connections.
func NewHub(maxClients int, log *logger.Logger) *Hub {
	if maxClients <= 0 {
		maxClients = 1
	}
	return &Hub{
		bySession:  make(map[string]*Client),
		maxClients: maxClients,
		log:        log.WithFields(zap.String("component", "gateway_hub")),
	}
}

// Register admits client, evicting any prior live connection for the same
// session id (reconnect handover) and enforcing the concurrent-client cap
// against every other session. Returns CapacityError when the cap is
// exceeded.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prior, ok := h.bySession[c.SessionID]; ok {
		h.log.Debug("evicting prior connection for session", zap.String("session_id", c.SessionID))
		delete(h.bySession, c.SessionID)
		go prior.closeWithCode(closeCodeReplaced, "superseded by new connection")
	} else if len(h.bySession) >= h.maxClients {
		return &CapacityError{MaxClients: h.maxClients}
	}

	h.bySession[c.SessionID] = c
	return nil
}

// Unregister removes client if it is still the live connection for its
// session (a superseded connection unregistering itself is a no-op, since
// the new connection already took the slot).
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.bySession[c.SessionID]; ok && cur == c {
		delete(h.bySession, c.SessionID)
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bySession)
}

// closeCodeReplaced is a private WebSocket close code for handover; it is
// not one of the codes spec.md §4.8 names for client-facing rejection.
const closeCodeReplaced = 4000
