package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/revaristo12/chatliver1404/internal/middleware"
	"github.com/revaristo12/chatliver1404/internal/realtime"
	appErrors "github.com/revaristo12/chatliver1404/pkg/errors"
	"github.com/revaristo12/chatliver1404/pkg/response"
)

type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// GET /api/ws
func (h *RealtimeHandler) Serve(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	username := c.GetString(middleware.CtxUsernameKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	h.hub.Serve(userID, username, c.Writer, c.Request)
}
