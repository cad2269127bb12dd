// SwarmFlow - Multi-agent orchestration kernel
// Websocket fan-out of the coordination event stream
// License: MIT
//
// Copyright (c) 2026 SwarmFlow contributors

package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swarmflow/swarmflow/pkg/bus"
	"github.com/swarmflow/swarmflow/pkg/logger"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	clientSendBuf   = 32
	busSubscribeBuf = 256
)

// hub fans bus events out to websocket clients. Each client gets a
// buffered send channel; a client whose buffer fills is dropped rather
// than allowed to stall the stream.
type hub struct {
	events   *bus.EventBus
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newHub(events *bus.EventBus) *hub {
	return &hub{
		events:  events,
		clients: make(map[*wsClient]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// start subscribes to the bus and launches the fan-out loop. Without a
// bus the stream endpoint reports unavailable and there is nothing to
// run.
func (h *hub) start() {
	h.started = true
	if h.events == nil {
		close(h.doneCh)
		return
	}
	ch, cancel := h.events.Subscribe(busSubscribeBuf)
	go h.run(ch, cancel)
}

func (h *hub) run(ch <-chan bus.Event, cancel func()) {
	defer close(h.doneCh)
	defer cancel()

	for {
		select {
		case <-h.stopCh:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				logger.WarnCF("dashboard", "Event marshal failed", map[string]any{
					"type":  string(evt.Type),
					"error": err.Error(),
				})
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *hub) broadcast(payload []byte) {
	h.mu.RLock()
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.WarnC("dashboard", "Dropping slow websocket client")
		h.remove(c)
	}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// remove unregisters a client and closes its send channel exactly once.
// The connection close kicks the client's readPump loose.
func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		c.once.Do(func() { close(c.send) })
		c.conn.Close()
	}
}

// stop ends the fan-out loop and disconnects every client. Safe to call
// without a prior start.
func (h *hub) stop() {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
	if h.started {
		<-h.doneCh
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

// handleWS upgrades the request and streams bus events until the client
// disconnects or falls behind.
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("dashboard", "Websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientSendBuf)}
	h.add(c)
	logger.InfoCF("dashboard", "Websocket client connected", map[string]any{
		"remote": r.RemoteAddr,
	})

	go h.writePump(c)
	go h.readPump(c, r.RemoteAddr)
}

// writePump drains the client's send channel and keeps the connection
// alive with pings.
func (h *hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump discards client input and enforces the pong deadline. The
// stream is one-way; reads exist to detect disconnects.
func (h *hub) readPump(c *wsClient, remote string) {
	defer func() {
		h.remove(c)
		logger.InfoCF("dashboard", "Websocket client disconnected", map[string]any{
			"remote": remote,
		})
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	c.conn.SetReadLimit(1024)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
