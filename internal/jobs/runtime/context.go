package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	domainjobs "github.com/yungbote/candidate-intel-backend/internal/domain/jobs"
	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

/*
Context is the execution handle for one claimed job run.

Handlers never write job_run directly. Lifecycle transitions go through
Progress, Fail and Succeed so that the row, the in-memory copy and the
realtime notification stay in step.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Notify  services.JobNotifier
	payload map[string]any
}

// NewContext decodes the job payload eagerly. A malformed payload decodes to
// an empty map; handlers validate the fields they need.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil || m == nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// applyTraceData restores the request correlation ids recorded at enqueue.
func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	payload := c.Payload()
	traceID := payloadString(payload, "trace_id")
	reqID := payloadString(payload, "request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadObject returns the JSON object stored under key.
func (c *Context) PayloadObject(key string) (map[string]any, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func (c *Context) ownerID() string {
	if c.Job == nil {
		return ""
	}
	return c.Job.OwnerID
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Progress records a non-terminal update. Terminal rows are left alone.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now()
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID,
			[]string{domainjobs.StatusSucceeded, domainjobs.StatusFailed},
			map[string]interface{}{
				"stage":        stage,
				"progress":     pct,
				"message":      msg,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.ownerID(), c.Job, stage, pct, msg)
	}
}

// Fail marks the run failed with the error text. A run that already
// succeeded is not overwritten.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.WithoutCancel(c.ctx())}, c.Job.ID,
			[]string{domainjobs.StatusSucceeded},
			map[string]interface{}{
				"status":        domainjobs.StatusFailed,
				"stage":         stage,
				"message":       "",
				"error":         msg,
				"last_error_at": now,
				"locked_at":     nil,
				"updated_at":    now,
			})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = domainjobs.StatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.ownerID(), c.Job, stage, msg)
	}
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now()
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID,
			[]string{domainjobs.StatusFailed},
			map[string]interface{}{
				"status":       domainjobs.StatusSucceeded,
				"stage":        finalStage,
				"progress":     100,
				"message":      "",
				"error":        "",
				"result":       res,
				"locked_at":    nil,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = domainjobs.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.ownerID(), c.Job)
	}
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
