package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cmsconsole/cmd/internal/notify"
	v1 "cmsconsole/shared/contracts/notices/v1"
)

// Hub tracks open notice streams per tab session and fans notices out to them.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Publish.
// - Publish never blocks (drops under backpressure).
// - Publish is panic-safe because Client.Send is never closed by the server.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	tabs map[string]map[string]*Client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log,
		tabs: make(map[string]map[string]*Client),
	}
}

// Join registers client under its tab.
func (h *Hub) Join(client *Client) {
	if h == nil || client == nil || client.ConnID == "" || client.TabID == "" {
		return
	}

	h.mu.Lock()
	conns := h.tabs[client.TabID]
	if conns == nil {
		conns = make(map[string]*Client)
		h.tabs[client.TabID] = conns
	}
	conns[client.ConnID] = client
	h.mu.Unlock()

	h.log.Debug("realtime.stream.join", "conn_id", client.ConnID)
}

// Leave removes a client and signals its shutdown.
func (h *Hub) Leave(tabID, connID string) {
	if h == nil || connID == "" {
		return
	}

	var cl *Client

	h.mu.Lock()
	if conns := h.tabs[tabID]; conns != nil {
		cl = conns[connID]
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.tabs, tabID)
		}
	}
	h.mu.Unlock()

	// Signal shutdown after removing from the tab set so publishers never hold a
	// client that is being torn down.
	if cl != nil {
		cl.Close()
	}

	h.log.Debug("realtime.stream.leave", "conn_id", connID)
}

// DisconnectTab closes every stream of tabID (logout, eviction).
func (h *Hub) DisconnectTab(tabID string) {
	h.mu.Lock()
	conns := h.tabs[tabID]
	delete(h.tabs, tabID)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Streams returns the number of open streams for tabID.
func (h *Hub) Streams(tabID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tabs[tabID])
}

// Publish delivers n to every open stream of tabID. It implements notify.Publisher.
func (h *Hub) Publish(tabID string, n notify.Notice) {
	if h == nil {
		return
	}

	payload, err := json.Marshal(noticePayload(n))
	if err != nil {
		h.log.Warn("realtime.publish.encode_fail", "err", err)
		return
	}
	env := newEnvelope(v1.TypeNotice, payload, time.Now().UTC())

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.tabs[tabID] {
		if c == nil {
			continue
		}
		if !c.offer(env) {
			h.log.Debug("realtime.publish.dropped", "conn_id", c.ConnID)
		}
	}
}

func noticePayload(n notify.Notice) v1.NoticePayload {
	return v1.NoticePayload{
		ID:    n.ID,
		Level: string(n.Level),
		Text:  n.Text,
		At:    n.At,
	}
}
