package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"guardian/internal/guardian"

	"github.com/coder/websocket"
)

// WebSocketHandler serves the bidirectional chat channel: user messages
// in, guardian replies and pushed events out.
type WebSocketHandler struct {
	svc           *guardian.Service
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(svc *guardian.Service, hub *Hub, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		svc:           svc,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage represents the WebSocket message structure, both directions.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("WebSocket connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Push loop: guardian events -> client.
	subID, events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(subID)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if err := h.writeJSON(ws, e); err != nil {
					slog.Debug("WebSocket event write error", "error", err)
					cancel()
					return
				}
			}
		}
	}()

	h.readLoop(ctx, ws)
	slog.Info("WebSocket session ended", "ip", r.RemoteAddr)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if strings.HasPrefix(origin, h.allowedOrigin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop consumes client messages until the connection drops.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			// Treat raw frames as bare chat text.
			msg = wsMessage{Type: "chat", Content: string(message)}
		}

		switch msg.Type {
		case "chat":
			reply, err := h.svc.HandleMessage(ctx, msg.Content)
			if err != nil {
				if werr := h.writeJSON(ws, map[string]string{"type": "error", "error": err.Error()}); werr != nil {
					slog.Debug("Failed to send chat error", "error", werr)
				}
				continue
			}
			if err := h.writeJSON(ws, wsMessage{Type: "reply", Content: reply}); err != nil {
				slog.Debug("Failed to send reply", "error", err)
				return
			}
		case "ping":
			if err := h.writeJSON(ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Debug("Unknown WebSocket message type", "type", msg.Type)
		}
	}
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
