package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/candidate-intel-backend/internal/http/response"
	jobhandlers "github.com/yungbote/candidate-intel-backend/internal/jobs/handlers"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByIDForOwner(dbctx.Context{Ctx: c.Request.Context()}, owner, jobID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GenerationView is the recruiter-facing status of a candidate's latest
// summary generation. The raw profile payload is not exposed.
type GenerationView struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GET /api/recruiter/candidates/:candidateId/generation
func (h *JobHandler) GetCandidateGeneration(c *gin.Context) {
	candidateID := strings.TrimSpace(c.Param("candidateId"))
	if candidateID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_candidate_id", errMissingCandidate)
		return
	}
	// Profile jobs are owned by the candidate who saved the profile.
	job, err := h.jobs.LatestForEntity(dbctx.Context{Ctx: c.Request.Context()}, candidateID, jobhandlers.SummaryGenerateType, "candidate", candidateID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"generation": GenerationView{
		JobID:     job.ID,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.Progress,
		Attempts:  job.Attempts,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}})
}
