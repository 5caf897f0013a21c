package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/candidate-intel-backend/internal/http/response"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type ChatHandler struct {
	log  *logger.Logger
	chat services.RecruiterChat
}

func NewChatHandler(log *logger.Logger, chat services.RecruiterChat) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: chat}
}

// GET /api/ai/stream?candidateId=&question=
//
// The event stream is opened lazily on the first fragment, so failures that
// happen before any output (bad input, grounding missing) are plain JSON
// errors with a status code. After that the stream ends with exactly one
// "done" or "error" event.
func (h *ChatHandler) Stream(c *gin.Context) {
	recruiterID, ok := callerID(c)
	if !ok {
		return
	}
	candidateID := strings.TrimSpace(c.Query("candidateId"))
	question := strings.TrimSpace(c.Query("question"))
	if candidateID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errMissingCandidate)
		return
	}
	if question == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errMissingQuestion)
		return
	}

	opened := false
	open := func() {
		if opened {
			return
		}
		opened = true
		hdr := c.Writer.Header()
		hdr.Set("Content-Type", "text/event-stream")
		hdr.Set("Cache-Control", "no-cache")
		hdr.Set("Connection", "keep-alive")
		hdr.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
	}

	answer, err := h.chat.Converse(c.Request.Context(), services.ConverseRequest{
		RecruiterID: recruiterID,
		CandidateID: candidateID,
		Question:    question,
	}, func(fragment string) error {
		open()
		c.SSEvent("message", gin.H{"delta": fragment})
		c.Writer.Flush()
		return c.Request.Context().Err()
	})
	if err != nil {
		ae := services.HTTPError(err)
		if !opened {
			response.RespondAPIError(c, ae)
			return
		}
		if c.Request.Context().Err() != nil {
			// Client is gone; nothing left to write to.
			return
		}
		msg := ae.Code
		if ae.Status < 500 && ae.Err != nil {
			msg = ae.Err.Error()
		}
		c.SSEvent("error", gin.H{"code": ae.Code, "message": msg})
		c.Writer.Flush()
		return
	}
	open()
	c.SSEvent("done", gin.H{"message_id": answer.ID})
	c.Writer.Flush()
}

// GET /api/ai/history?candidateId=
func (h *ChatHandler) History(c *gin.Context) {
	recruiterID, ok := callerID(c)
	if !ok {
		return
	}
	candidateID := strings.TrimSpace(c.Query("candidateId"))
	if candidateID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errMissingCandidate)
		return
	}
	msgs, err := h.chat.History(c.Request.Context(), recruiterID, candidateID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}
