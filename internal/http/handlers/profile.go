package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/candidate-intel-backend/internal/http/response"
	jobhandlers "github.com/yungbote/candidate-intel-backend/internal/jobs/handlers"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

const maxProfileBytes = 1 << 20

type ProfileHandler struct {
	jobs services.JobService
}

func NewProfileHandler(jobs services.JobService) *ProfileHandler {
	return &ProfileHandler{jobs: jobs}
}

// POST /api/profile
//
// The body is the professional's raw profile. Summary generation is queued
// and the request returns 202 with the job without waiting for it.
func (h *ProfileHandler) SaveProfile(c *gin.Context) {
	candidateID, ok := callerID(c)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProfileBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(raw) > maxProfileBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "profile_too_large", errProfileShape)
		return
	}
	var profile map[string]any
	if err := json.Unmarshal(raw, &profile); err != nil || profile == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errProfileShape)
		return
	}

	job, err := h.jobs.Enqueue(
		dbctx.Context{Ctx: c.Request.Context()},
		candidateID,
		jobhandlers.SummaryGenerateType,
		"candidate",
		candidateID,
		map[string]any{"profile": profile},
	)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"job": job})
}
