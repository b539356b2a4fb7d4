package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/rl-arena/arena-match-engine/internal/api/middleware"
	"github.com/rl-arena/arena-match-engine/internal/websocket"
	"github.com/rl-arena/arena-match-engine/pkg/logger"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader *gorilla.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, upgrader: websocket.Upgrader(allowedOrigins)}
}

// HandleWebSocket GET /ws, the player's live match event stream
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "UNAUTHORIZED"})
		return
	}

	if err := h.hub.ServeWs(h.upgrader, c.Writer, c.Request, userID); err != nil {
		logger.Warn("WebSocket upgrade failed", "userId", userID, "error", err)
	}
}
