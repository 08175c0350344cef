package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/co-flight/internal/metrics"
	"github.com/yegors/co-flight/pkg/logger"
)

// Outgoing message types
const (
	MessageTypeTelemetry       = "telemetry"
	MessageTypeNavigationEvent = "navigation_event"
	MessageTypeAudio           = "audio"
	MessageTypeScene           = "scene"
)

// Incoming message types
const (
	MessageTypeKeyDown     = "key_down"
	MessageTypeKeyUp       = "key_up"
	MessageTypePointerDown = "pointer_down"
	MessageTypePointerMove = "pointer_move"
	MessageTypePointerUp   = "pointer_up"
	MessageTypeWheel       = "wheel"
	MessageTypeViewMode    = "view_mode"
	MessageTypeAudioUnlock = "audio_unlock"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096 // input messages are tiny
	queueSize      = 256
)

// Message is one frame pushed to the browser
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// inbound is one frame received from the browser. Data stays raw until
// the handler knows its type.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessageHandler receives every inbound message
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data json.RawMessage) error
}

// Client is one browser connection
type Client struct {
	conn   *websocket.Conn
	hub    *Server
	queue  chan *Message
	mu     sync.Mutex // guards queue close
	gone   bool
	once   sync.Once
	closed chan struct{}
}

// Server fans messages out to every connected browser. A single
// goroutine (Run) owns the client set; the mutex only serves readers
// such as ClientCount.
type Server struct {
	peers   map[*Client]struct{}
	joins   chan *Client
	leaves  chan *Client
	outbox  chan *Message
	handler MessageHandler
	dropped atomic.Int64

	upgrader websocket.Upgrader
	logger   *logger.Logger
	mu       sync.RWMutex
	done     chan struct{}
}

// NewServer creates the hub. Call Run before accepting connections.
func NewServer(logger *logger.Logger) *Server {
	return &Server{
		peers:  make(map[*Client]struct{}),
		joins:  make(chan *Client),
		leaves: make(chan *Client),
		outbox: make(chan *Message, queueSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the simulator is served to local browsers only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("web-socket"),
		done:   make(chan struct{}),
	}
}

// SetMessageHandler installs the inbound handler. Call it before Run.
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.handler = handler
}

// ClientCount returns the number of connected browsers
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Run owns the client set until ctx is cancelled
func (s *Server) Run(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("WebSocket hub running")

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for c := range s.peers {
				s.evict(c)
			}
			s.mu.Unlock()
			metrics.SetWebSocketClients(0)
			s.logger.Info("WebSocket hub stopped")
			return

		case c := <-s.joins:
			s.mu.Lock()
			s.peers[c] = struct{}{}
			n := len(s.peers)
			s.mu.Unlock()
			metrics.SetWebSocketClients(n)
			s.logger.Debug("Browser connected", Int("clients", n))

		case c := <-s.leaves:
			s.mu.Lock()
			s.evict(c)
			n := len(s.peers)
			s.mu.Unlock()
			metrics.SetWebSocketClients(n)
			s.logger.Debug("Browser disconnected", Int("clients", n))

		case msg := <-s.outbox:
			s.fanOut(msg)
		}
	}
}

// fanOut hands msg to every client. A client whose queue is full is
// evicted rather than stalling the others.
func (s *Server) fanOut(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.peers)
	for c := range s.peers {
		select {
		case c.queue <- msg:
		default:
			s.evict(c)
		}
	}
	if n := len(s.peers); n != before {
		metrics.SetWebSocketClients(n)
		s.logger.Warn("Evicted slow browsers", Int("evicted", before-n), Int("clients", n))
	}
}

// evict removes c from the set and closes its queue. Caller holds s.mu.
func (s *Server) evict(c *Client) {
	if _, ok := s.peers[c]; !ok {
		return
	}
	delete(s.peers, c)
	c.mu.Lock()
	if !c.gone {
		c.gone = true
		close(c.queue)
	}
	c.mu.Unlock()
}

// HandleConnection upgrades the request and attaches the browser to the hub
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	c := &Client{
		conn:   conn,
		hub:    s,
		queue:  make(chan *Message, queueSize),
		closed: make(chan struct{}),
	}

	select {
	case s.joins <- c:
	case <-s.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	s.logger.Info("WebSocket connection accepted",
		String("remote_addr", r.RemoteAddr),
		String("user_agent", r.UserAgent()))

	go c.writeLoop()
	go c.readLoop()
}

// Broadcast queues msg for every client without blocking. While the
// queue is full messages are discarded and counted.
func (s *Server) Broadcast(msg *Message) {
	select {
	case s.outbox <- msg:
	default:
		if n := s.dropped.Add(1); n%1000 == 1 {
			s.logger.Warn("Broadcast queue full, discarding messages",
				String("type", msg.Type),
				Int64("discarded", n))
		}
	}
}

// Send queues msg for this client only. It reports false when the
// client is gone or its queue is full.
func (c *Client) Send(msg *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return false
	}
	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}

// readLoop decodes inbound frames until the connection fails
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.leaves <- c:
		case <-c.hub.done:
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WebSocket read failed", Error(err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.hub.logger.Debug("Ignoring malformed frame", Error(err))
			continue
		}
		if c.hub.handler == nil {
			continue
		}
		if err := c.hub.handler.HandleMessage(c, in.Type, in.Data); err != nil {
			c.hub.logger.Warn("Rejected inbound message",
				Error(err),
				String("type", in.Type))
		}
	}
}

// writeLoop drains the queue and keeps the connection alive with pings
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debug("WebSocket write failed",
					Error(err),
					String("type", msg.Type))
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			return
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

var (
	String = logger.String
	Int    = logger.Int
	Int64  = logger.Int64
	Error  = logger.Error
)
