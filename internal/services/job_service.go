package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	domainjobs "github.com/yungbote/candidate-intel-backend/internal/domain/jobs"
	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerID string, jobType string, entityType string, entityID string, payload map[string]any) (*types.JobRun, error)
	GetByIDForOwner(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (*types.JobRun, error)
	// LatestForEntity returns the most recent job of jobType for the entity,
	// or a not_found API error when there is none.
	LatestForEntity(dbc dbctx.Context, ownerID, jobType, entityType, entityID string) (*types.JobRun, error)
}

type jobService struct {
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier
}

func NewJobService(baseLog *logger.Logger, repo repos.JobRunRepo, notify JobNotifier) JobService {
	return &jobService{
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
	}
}

// Enqueue records a queued job; a worker picks it up. Trace and request ids
// from the context ride along in the payload so the run can be correlated
// with the request that caused it.
//
// When the entity's latest job of the same type is still queued, its payload
// is replaced and that job is returned instead of queueing a second run.
func (s *jobService) Enqueue(dbc dbctx.Context, ownerID string, jobType string, entityType string, entityID string, payload map[string]any) (*types.JobRun, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("missing owner_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	if job, err := s.replaceQueued(dbc, ownerID, jobType, entityType, entityID, raw); err != nil || job != nil {
		return job, err
	}
	job := &types.JobRun{
		OwnerID:    ownerID,
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     domainjobs.StatusQueued,
		Stage:      domainjobs.StatusQueued,
		Message:    "Queued",
		Payload:    datatypes.JSON(raw),
		Result:     datatypes.JSON([]byte(`{}`)),
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("Job enqueued", "job_id", job.ID, "job_type", job.JobType, "owner_id", ownerID)
	if s.notify != nil {
		s.notify.JobCreated(ownerID, job)
	}
	return job, nil
}

func (s *jobService) GetByIDForOwner(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_job_id", "invalid job id")
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerID != strings.TrimSpace(ownerID) {
		return nil, apierr.NotFound("not_found", "job not found")
	}
	return job, nil
}

// replaceQueued swaps the payload of a still-queued job for the entity. It
// returns nil when there is no such job or a worker claimed it first.
func (s *jobService) replaceQueued(dbc dbctx.Context, ownerID, jobType, entityType, entityID string, payload []byte) (*types.JobRun, error) {
	if entityID == "" || entityType == "" {
		return nil, nil
	}
	latest, err := s.repo.GetLatestByEntity(dbc, ownerID, entityType, entityID, jobType)
	if err != nil {
		return nil, fmt.Errorf("find queued job: %w", err)
	}
	if latest == nil || latest.Status != domainjobs.StatusQueued {
		return nil, nil
	}
	now := time.Now()
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, latest.ID,
		[]string{domainjobs.StatusRunning, domainjobs.StatusSucceeded, domainjobs.StatusFailed},
		map[string]interface{}{"payload": datatypes.JSON(payload), "updated_at": now},
	)
	if err != nil {
		return nil, fmt.Errorf("replace queued job: %w", err)
	}
	if !ok {
		return nil, nil
	}
	latest.Payload = datatypes.JSON(payload)
	latest.UpdatedAt = now
	s.log.Debug("Queued job payload replaced", "job_id", latest.ID, "job_type", jobType, "owner_id", ownerID)
	return latest, nil
}

func (s *jobService) LatestForEntity(dbc dbctx.Context, ownerID, jobType, entityType, entityID string) (*types.JobRun, error) {
	job, err := s.repo.GetLatestByEntity(dbc, strings.TrimSpace(ownerID), entityType, strings.TrimSpace(entityID), jobType)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.NotFound("not_found", "no job for entity")
	}
	return job, nil
}
