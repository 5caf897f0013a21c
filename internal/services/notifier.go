package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/realtime"
)

type JobNotifier interface {
	JobCreated(ownerID string, job *types.JobRun)
	JobProgress(ownerID string, job *types.JobRun, stage string, progress int, message string)
	JobFailed(ownerID string, job *types.JobRun, stage string, errorMessage string)
	JobDone(ownerID string, job *types.JobRun)
}

type jobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) JobNotifier {
	return &jobNotifier{emit: emit}
}

func (n *jobNotifier) send(ownerID string, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emit == nil || strings.TrimSpace(ownerID) == "" {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: ownerID,
		Event:   event,
		Data:    data,
	})
}

func (n *jobNotifier) JobCreated(ownerID string, job *types.JobRun) {
	n.send(ownerID, realtime.SSEEventJobCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(ownerID string, job *types.JobRun, stage string, progress int, message string) {
	n.send(ownerID, realtime.SSEEventJobProgress, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"progress": progress,
		"message":  message,
		"job":      job,
	})
}

func (n *jobNotifier) JobFailed(ownerID string, job *types.JobRun, stage string, errorMessage string) {
	n.send(ownerID, realtime.SSEEventJobFailed, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"error":    errorMessage,
		"job":      job,
	})
}

func (n *jobNotifier) JobDone(ownerID string, job *types.JobRun) {
	n.send(ownerID, realtime.SSEEventJobDone, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"job":      job,
	})
}

func safeJobID(job *types.JobRun) uuid.UUID {
	if job == nil {
		return uuid.Nil
	}
	return job.ID
}

func safeJobType(job *types.JobRun) string {
	if job == nil {
		return ""
	}
	return job.JobType
}
