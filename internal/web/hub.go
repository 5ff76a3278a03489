package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"Lantern-Tales/server/internal/events"
	"Lantern-Tales/server/internal/metrics"
	"Lantern-Tales/server/internal/scenes"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBufferSize = 64
)

// SubmitFunc hands an inbound signal to the dispatcher.
type SubmitFunc func(ctx context.Context, signal events.Signal, id int) error

// Client represents a WebSocket client connection
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *TransitionHub
	mu     sync.Mutex
	closed bool
}

// StreamMessage is one frame on the transition stream.
type StreamMessage struct {
	Type       string             `json:"type"`
	ID         string             `json:"id,omitempty"`
	Transition *scenes.Transition `json:"transition,omitempty"`
	Error      string             `json:"error,omitempty"`
	Time       int64              `json:"time"`
}

// TransitionHub manages WebSocket connections and broadcasts scene transitions.
// It is a scenes.Sink.
type TransitionHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan scenes.Transition
	mu         sync.RWMutex

	done chan struct{}

	submit  SubmitFunc
	current func() (scenes.Transition, bool)
	logger  *zap.Logger

	sent    *atomic.Int64
	dropped *atomic.Int64
}

// NewTransitionHub creates a hub. submit may be nil, in which case inbound
// frames are ignored; current feeds new clients the last transition.
func NewTransitionHub(submit SubmitFunc, current func() (scenes.Transition, bool), logger *zap.Logger) *TransitionHub {
	return &TransitionHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan scenes.Transition, 256),
		done:       make(chan struct{}),
		submit:     submit,
		current:    current,
		logger:     logger.Named("hub"),
		sent:       atomic.NewInt64(0),
		dropped:    atomic.NewInt64(0),
	}
}

// Run starts the hub's event loop
func (h *TransitionHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case t := <-h.broadcast:
			h.broadcastTransition(t)
		}
	}
}

func (h *TransitionHub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	h.logger.Info("client connected", zap.String("client", client.ID), zap.Int("total", total))

	h.enqueue(client, StreamMessage{Type: "connected", ID: client.ID, Time: time.Now().Unix()})
	if h.current != nil {
		if t, ok := h.current(); ok {
			h.enqueue(client, StreamMessage{Type: "transition", Transition: &t, Time: time.Now().Unix()})
		}
	}

	go client.writePump()
}

func (h *TransitionHub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WebSocketClients.Set(float64(total))
		h.logger.Info("client disconnected", zap.String("client", client.ID), zap.Int("total", total))
	}
}

func (h *TransitionHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
	metrics.WebSocketClients.Set(0)
}

func (h *TransitionHub) broadcastTransition(t scenes.Transition) {
	data, err := json.Marshal(StreamMessage{Type: "transition", Transition: &t, Time: time.Now().Unix()})
	if err != nil {
		h.logger.Error("failed to marshal transition", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
			h.sent.Inc()
		default:
			h.dropped.Inc()
			h.logger.Warn("client send buffer full", zap.String("client", client.ID))
		}
	}
}

// enqueue sends one frame to a single client. Clients the hub already let go
// of are skipped: their Send channel is closed.
func (h *TransitionHub) enqueue(client *Client, msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
		h.dropped.Inc()
	}
}

// Send queues a transition for every connected client without blocking.
func (h *TransitionHub) Send(t scenes.Transition) {
	select {
	case h.broadcast <- t:
	default:
		h.dropped.Inc()
		h.logger.Warn("broadcast channel full, dropping transition", zap.Uint64("seq", t.Seq))
	}
}

// Attach registers an upgraded connection and starts its pumps. It returns
// nil once the hub has stopped.
func (h *TransitionHub) Attach(conn *websocket.Conn) *Client {
	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
		Hub:  h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}
	go client.readPump()
	return client
}

// GetClientCount returns the number of connected clients
func (h *TransitionHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns delivered and dropped frame counts.
func (h *TransitionHub) Stats() (sent, dropped int64) {
	return h.sent.Load(), h.dropped.Load()
}

// inboundFrame is what clients send: an inbound progression signal.
type inboundFrame struct {
	Signal events.Signal `json:"signal"`
	ID     int           `json:"id"`
}

func (h *TransitionHub) handleFrame(client *Client, raw []byte) {
	if h.submit == nil {
		return
	}
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || !events.IsInbound(frame.Signal) {
		h.enqueue(client, StreamMessage{Type: "error", Error: "expected {\"signal\": <inbound signal>, \"id\": <int>}", Time: time.Now().Unix()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := h.submit(ctx, frame.Signal, frame.ID); err != nil {
		h.logger.Warn("failed to submit signal",
			zap.String("client", client.ID),
			zap.String("signal", string(frame.Signal)),
			zap.Error(err),
		)
		h.enqueue(client, StreamMessage{Type: "error", Error: err.Error(), Time: time.Now().Unix()})
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("write failed", zap.String("client", c.ID), zap.Error(err))
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Hub.logger.Debug("ping failed", zap.String("client", c.ID), zap.Error(err))
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.Conn.Close()
}

// readPump reads inbound signal frames until the connection drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("unexpected close", zap.String("client", c.ID), zap.Error(err))
			}
			break
		}
		c.Hub.handleFrame(c, message)
	}
}
