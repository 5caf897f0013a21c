package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/realtime/stream
//
// Each connection subscribes to the caller's own channel, which carries the
// job events for work the caller enqueued.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, userID)
	h.log.Debug("SSEStream open", "user_id", userID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("SSEStream closed", "user_id", userID, "client_id", client.ID)
}
