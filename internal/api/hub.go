package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/identity"
	"github.com/ashureev/doubt-solver/internal/middleware"
	"github.com/coder/websocket"
)

const (
	hubSendBuffer   = 64
	hubWriteTimeout = 10 * time.Second
)

// Hub event types.
const (
	EventConnected = "connected"
	EventReset     = "reset"
	EventMessage   = "message"
	EventClosed    = "closed"
	EventPong      = "pong"
)

// hubEvent is one message pushed to a chat surface.
type hubEvent struct {
	Type      string           `json:"type"`
	SurfaceID string           `json:"surface_id,omitempty"`
	SessionID domain.SessionID `json:"session_id,omitempty"`
	Message   *domain.Message  `json:"message,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

type hubClient struct {
	conn   *websocket.Conn
	send   chan hubEvent
	cancel context.CancelFunc
}

// Hub renders chat surfaces over WebSocket connections. Every connection of a
// surface receives every event of that surface, in order.
type Hub struct {
	allowedOrigins []string
	logger         *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*hubClient]struct{}
}

// NewHub creates a Hub accepting connections from allowedOrigins.
func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		allowedOrigins: allowedOrigins,
		logger:         logger,
		clients:        make(map[string]map[*hubClient]struct{}),
	}
}

// Reset implements session.Renderer.
func (h *Hub) Reset(surfaceID string, sessionID domain.SessionID) {
	h.broadcast(surfaceID, hubEvent{Type: EventReset, SessionID: sessionID})
}

// Show implements session.Renderer.
func (h *Hub) Show(surfaceID string, msg domain.Message) {
	h.broadcast(surfaceID, hubEvent{Type: EventMessage, Message: &msg})
}

// Closed implements session.Renderer.
func (h *Hub) Closed(surfaceID string, reason string) {
	h.broadcast(surfaceID, hubEvent{Type: EventClosed, Reason: reason})
}

// Connections returns the number of live connections of surfaceID.
func (h *Hub) Connections(surfaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[surfaceID])
}

// Disconnect closes every connection of surfaceID.
func (h *Hub) Disconnect(surfaceID string) {
	h.mu.Lock()
	clients := h.clients[surfaceID]
	delete(h.clients, surfaceID)
	h.mu.Unlock()

	for c := range clients {
		c.cancel()
	}
}

func (h *Hub) broadcast(surfaceID string, ev hubEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[surfaceID] {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("Chat connection too slow, dropping it", "surface_id", surfaceID)
			c.cancel()
		}
	}
}

func (h *Hub) register(surfaceID string, c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[surfaceID]; !ok {
		h.clients[surfaceID] = make(map[*hubClient]struct{})
	}
	h.clients[surfaceID][c] = struct{}{}
	h.logger.Info("Chat connection registered", "surface_id", surfaceID)
}

func (h *Hub) unregister(surfaceID string, c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[surfaceID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, surfaceID)
		}
	}
	h.logger.Info("Chat connection unregistered", "surface_id", surfaceID)
}

// ServeHTTP upgrades the request and streams the surface's events until either
// side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())

	if origin := r.Header.Get("Origin"); origin != "" && !middleware.OriginAllowed(h.allowedOrigins, origin) {
		h.logger.Warn("WebSocket origin rejected", "origin", origin, "surface_id", surfaceID)
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "surface_id", surfaceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "surface closed"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "surface_id", surfaceID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &hubClient{conn: ws, send: make(chan hubEvent, hubSendBuffer), cancel: cancel}
	c.send <- hubEvent{Type: EventConnected, SurfaceID: surfaceID}
	h.register(surfaceID, c)
	defer h.unregister(surfaceID, c)

	go h.readLoop(ctx, c, surfaceID)
	h.writeLoop(ctx, c, surfaceID)
}

func (h *Hub) writeLoop(ctx context.Context, c *hubClient, surfaceID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("Failed to encode chat event", "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, hubWriteTimeout)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("WebSocket write error", "error", err, "surface_id", surfaceID)
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *hubClient, surfaceID string) {
	defer c.cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "surface_id", surfaceID)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "surface_id", surfaceID)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case c.send <- hubEvent{Type: EventPong}:
			default:
			}
		}
	}
}
