package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RuFFyGTLP/TC/pkg/agent"
	"github.com/RuFFyGTLP/TC/pkg/api/events"
	"github.com/RuFFyGTLP/TC/pkg/chat"
	"github.com/RuFFyGTLP/TC/pkg/logger"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 32
)

// Chat frame types sent to the client that asked for a reply.
const (
	FrameChatDelta = "chat.delta"
	FrameChatDone  = "chat.done"
	FrameChatError = "chat.error"
)

// ChatStreamer streams an agent reply. *agent.Service implements it.
type ChatStreamer interface {
	Stream(ctx context.Context, agent, message string, onDelta chat.DeltaFunc) (agent.Reply, error)
}

// WebSocketConfig configures websocket handler behavior.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration

	// Chat serves {"type":"chat"} messages. Nil rejects them.
	Chat ChatStreamer

	// Metrics records client and frame counts. Nil disables it.
	Metrics WebSocketRecorder
}

// WebSocketRecorder records websocket activity. *metrics.Manager
// implements it.
type WebSocketRecorder interface {
	WebSocketConnected()
	WebSocketDisconnected()
	RecordWebSocketMessage(direction, msgType string)
}

type nopWSRecorder struct{}

func (nopWSRecorder) WebSocketConnected()                   {}
func (nopWSRecorder) WebSocketDisconnected()                {}
func (nopWSRecorder) RecordWebSocketMessage(string, string) {}

// EventMessage is the websocket event format.
type EventMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type incomingMessage struct {
	Type    string   `json:"type"`
	Events  []string `json:"events,omitempty"`
	Event   string   `json:"event,omitempty"`
	ID      string   `json:"id,omitempty"`
	Agent   string   `json:"agent,omitempty"`
	Message string   `json:"message,omitempty"`
}

type chatDelta struct {
	ID    string `json:"id,omitempty"`
	Agent string `json:"agent"`
	Delta string `json:"delta"`
}

type chatDone struct {
	ID    string      `json:"id,omitempty"`
	Reply agent.Reply `json:"reply"`
}

type chatFailure struct {
	ID    string `json:"id,omitempty"`
	Agent string `json:"agent"`
	Error string `json:"error"`
}

type wsClient struct {
	conn          *websocket.Conn
	send          chan []byte
	done          chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	subscriptions map[string]struct{}
	mu            sync.RWMutex
	closeOnce     sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsClient{
		conn:          conn,
		send:          make(chan []byte, defaultSendBuffer),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]struct{}),
	}
}

// close stops the client. The write pump closes the connection.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}

// trySend queues payload without blocking.
func (c *wsClient) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendWait queues payload, waiting while the client is alive.
func (c *wsClient) sendWait(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	}
}

// subscribe adds an event type ("index.updated") or category ("index").
func (c *wsClient) subscribe(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			c.subscriptions[topic] = struct{}{}
		}
	}
}

func (c *wsClient) unsubscribe(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subscriptions, strings.TrimSpace(topic))
	}
}

// shouldReceive reports whether eventType matches a subscription. A client
// without subscriptions receives everything.
func (c *wsClient) shouldReceive(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	if _, ok := c.subscriptions[eventType]; ok {
		return true
	}
	category, _, _ := strings.Cut(eventType, ".")
	_, ok := c.subscriptions[category]
	return ok
}

// ConnectionManager manages active websocket clients.
type ConnectionManager struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	maxConnections int
	rec            WebSocketRecorder
}

// NewConnectionManager creates a manager with max connection limit.
func NewConnectionManager(maxConnections int) *ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = defaultWSMaxConnections
	}
	return &ConnectionManager{
		clients:        make(map[*wsClient]struct{}),
		maxConnections: maxConnections,
		rec:            nopWSRecorder{},
	}
}

// Register registers a websocket client.
func (m *ConnectionManager) Register(client *wsClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return errors.New("websocket connection limit reached")
	}
	m.clients[client] = struct{}{}
	m.rec.WebSocketConnected()
	return nil
}

// Unregister unregisters a websocket client.
func (m *ConnectionManager) Unregister(client *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	client.close()
	m.rec.WebSocketDisconnected()
}

// Count returns active connection count.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CanAccept reports whether there is capacity for one more connection.
func (m *ConnectionManager) CanAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.maxConnections
}

// Broadcast broadcasts event to subscribed clients. Clients that cannot keep
// up are disconnected.
func (m *ConnectionManager) Broadcast(event EventMessage) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	m.mu.RLock()
	clients := make([]*wsClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		if !client.shouldReceive(event.Type) {
			continue
		}
		if !client.trySend(payload) {
			m.rec.RecordWebSocketMessage("dropped", event.Type)
			m.Unregister(client)
			continue
		}
		m.rec.RecordWebSocketMessage("out", event.Type)
	}

	return nil
}

// Close closes all active websocket connections.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		client.close()
		delete(m.clients, client)
		m.rec.WebSocketDisconnected()
	}
}

// WebSocketHandler handles /ws.
type WebSocketHandler struct {
	log          logger.Logger
	manager      *ConnectionManager
	upgrader     websocket.Upgrader
	chat         ChatStreamer
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	mu     sync.Mutex
	feeds  []*events.Broadcaster
	subs   []chan events.Event
	closed bool
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultWSMaxConnections
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}

	manager := NewConnectionManager(cfg.MaxConnections)
	if cfg.Metrics != nil {
		manager.rec = cfg.Metrics
	}

	handler := &WebSocketHandler{
		log:          log,
		manager:      manager,
		chat:         cfg.Chat,
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	handler.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, allowedOrigins)
		},
	}

	return handler
}

// Attach forwards every event of b to the connected clients until b or the
// handler is closed.
func (h *WebSocketHandler) Attach(b *events.Broadcaster) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	ch := b.Subscribe(64)
	h.feeds = append(h.feeds, b)
	h.subs = append(h.subs, ch)
	h.mu.Unlock()

	go func() {
		for event := range ch {
			if err := h.Broadcast(EventMessage(event)); err != nil && h.log != nil {
				h.log.Warn("websocket broadcast failed", "type", event.Type, "error", err)
			}
		}
	}()
}

// Connections returns the number of connected clients.
func (h *WebSocketHandler) Connections() int {
	return h.manager.Count()
}

// ServeHTTP upgrades HTTP to websocket and starts client loops.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !h.manager.CanAccept() {
		http.Error(w, "websocket connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	client := newWSClient(conn)
	if err := h.manager.Register(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many websocket connections"),
			time.Now().Add(h.writeTimeout),
		)
		_ = conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

func (h *WebSocketHandler) readPump(client *wsClient) {
	defer h.manager.Unregister(client)

	readDeadline := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(1 << 20)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(_ string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && h.log != nil {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		h.handleIncomingMessage(client, data)
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.manager.Unregister(client)
		_ = client.conn.Close()
	}()

	for {
		select {
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.done:
			_ = client.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeTimeout),
			)
			return
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleIncomingMessage(client *wsClient, raw []byte) {
	var message incomingMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		return
	}

	topics := message.Events
	if message.Event != "" {
		topics = append(topics, message.Event)
	}

	msgType := strings.ToLower(strings.TrimSpace(message.Type))
	switch msgType {
	case "subscribe", "unsubscribe", "chat":
		h.manager.rec.RecordWebSocketMessage("in", msgType)
	default:
		h.manager.rec.RecordWebSocketMessage("in", "unknown")
	}
	switch msgType {
	case "subscribe":
		client.subscribe(topics...)
	case "unsubscribe":
		client.unsubscribe(topics...)
	case "chat":
		go h.streamChat(client, message)
	}
}

// streamChat answers a chat message with delta frames followed by a done
// or error frame, sent to the requesting client only.
func (h *WebSocketHandler) streamChat(client *wsClient, msg incomingMessage) {
	if h.chat == nil {
		h.sendFrame(client, FrameChatError, chatFailure{ID: msg.ID, Agent: msg.Agent, Error: "chat is not available"})
		return
	}

	reply, err := h.chat.Stream(client.ctx, msg.Agent, msg.Message, func(delta, _ string) {
		h.sendFrame(client, FrameChatDelta, chatDelta{ID: msg.ID, Agent: msg.Agent, Delta: delta})
	})
	if err != nil {
		if h.log != nil && client.ctx.Err() == nil {
			h.log.Warn("websocket chat failed", "agent", msg.Agent, "error", err)
		}
		h.sendFrame(client, FrameChatError, chatFailure{ID: msg.ID, Agent: msg.Agent, Error: err.Error()})
		return
	}
	h.sendFrame(client, FrameChatDone, chatDone{ID: msg.ID, Reply: reply})
}

func (h *WebSocketHandler) sendFrame(client *wsClient, frameType string, payload any) {
	data, err := json.Marshal(EventMessage{Type: frameType, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		return
	}
	if client.sendWait(data) {
		h.manager.rec.RecordWebSocketMessage("out", frameType)
	}
}

// Broadcast sends an event to matching websocket clients.
func (h *WebSocketHandler) Broadcast(event EventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return h.manager.Broadcast(event)
}

// Close detaches from every broadcaster and closes all websocket clients.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	h.closed = true
	for i, b := range h.feeds {
		b.Unsubscribe(h.subs[i])
	}
	h.feeds, h.subs = nil, nil
	h.mu.Unlock()

	h.manager.Close()
}

func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
