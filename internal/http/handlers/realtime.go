package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dipteshhh/learnease-backend/internal/http/response"
	"github.com/dipteshhh/learnease-backend/internal/platform/ctxutil"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{
		log: log.With("handler", "RealtimeHandler"),
		hub: hub,
	}
}

// GET /api/events
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	client := h.hub.NewClient(userID)
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	h.log.Debug("event stream open", "client_id", client.ID, "user_id", userID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("event stream closed", "client_id", client.ID, "user_id", userID)
}
