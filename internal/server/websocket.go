package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/service"
)

const (
	clientBuffer   = 16
	statusInterval = 3 * time.Second
	readLimit      = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// WSCommand is a transport command sent by a client
type WSCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WSLevelsMessage carries one meter reading
type WSLevelsMessage struct {
	Type   string         `json:"type"`
	Levels LevelsResponse `json:"levels"`
}

// WSStateMessage announces a state transition
type WSStateMessage struct {
	Type  string        `json:"type"`
	From  service.State `json:"from"`
	To    service.State `json:"to"`
	State service.State `json:"state"`
}

// WSStatusMessage is the full status, sent on connect and periodically
type WSStatusMessage struct {
	Type   string         `json:"type"`
	State  service.State  `json:"state"`
	Status service.Status `json:"status"`
}

// WSResult answers a WSCommand
type WSResult struct {
	Type    string        `json:"type"`
	Success bool          `json:"success"`
	State   service.State `json:"state"`
	Path    string        `json:"path,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	events chan any
}

// Hub fans service events out to the connected websocket clients.
// Broadcast never blocks: a client that falls behind misses messages.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Attach subscribes the hub to svc's level and state events
func (h *Hub) Attach(svc service.Service) (detach func()) {
	unsubLevels := svc.SubscribeLevels(func(l audio.LevelSnapshot) {
		h.Broadcast(WSLevelsMessage{Type: "levels", Levels: newLevelsResponse(l)})
	})
	unsubState := svc.SubscribeState(func(from, to service.State) {
		h.Broadcast(WSStateMessage{Type: "state", From: from, To: to, State: to})
	})
	return func() {
		unsubLevels()
		unsubState()
	}
}

// Broadcast queues msg for every client
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.events <- msg:
		default:
		}
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client and refuses new ones
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, c := range clients {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// handleWebSocket streams levels and state to a client and accepts transport commands
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, events: make(chan any, clientBuffer)}
	if !s.hub.add(c) {
		_ = conn.Close()
		return
	}
	defer s.hub.remove(c)
	s.log.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	// Only the writer goroutine writes data frames to the connection
	send := make(chan any, clientBuffer)
	done := make(chan struct{})

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done)

	s.runWebSocketEventLoop(c, send, done)
	s.log.Debug("WebSocket client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) runWebSocketWriter(conn *websocket.Conn, send <-chan any) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			break
		}
	}
	if err := conn.Close(); err != nil {
		s.log.Debug("WebSocket close error", "error", err)
	}
	// The reader fails on the closed conn, which ends the event loop and closes send
	for range send {
	}
}

// runWebSocketReader handles commands until the connection fails. It is the only
// goroutine besides the event loop that sends, and it exits before done closes.
func (s *Server) runWebSocketReader(conn *websocket.Conn, send chan<- any, done chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	conn.SetReadLimit(readLimit)
	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		result := s.handleCommand(cmd)
		select {
		case send <- result:
		default:
			s.log.Warn("failed to send response: channel full", "type", cmd.Type)
		}
	}
}

func (s *Server) runWebSocketEventLoop(c *client, send chan any, done <-chan struct{}) {
	defer close(send)

	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		return
	}

	for {
		select {
		case <-done:
			return
		case msg := <-c.events:
			if !trySend(msg) {
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				return
			}
		}
	}
}

func (s *Server) buildWSStatus() WSStatusMessage {
	st := s.service.Status()
	return WSStatusMessage{Type: "status", State: st.State, Status: st}
}

// handleCommand runs a transport command received over the websocket
func (s *Server) handleCommand(cmd WSCommand) WSResult {
	result := WSResult{Type: cmd.Type + "_result"}

	var path string
	var err error
	switch cmd.Type {
	case "record":
		err = s.service.Record()
	case "stop":
		err = s.service.Stop()
	case "play":
		err = s.service.Play()
	case "pause":
		err = s.service.Pause()
	case "save":
		var req SaveRequest
		if len(cmd.Data) > 0 {
			if err = json.Unmarshal(cmd.Data, &req); err != nil {
				err = fmt.Errorf("invalid JSON: %w", err)
				break
			}
		}
		if err = validateStruct(&req); err != nil {
			break
		}
		path, err = s.service.Save(req.Name)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}

	result.State = s.service.Status().State
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Path = path
	return result
}
