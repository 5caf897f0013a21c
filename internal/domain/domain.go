// Package domain re-exports the persisted models so callers outside the
// model packages can depend on a single import.
package domain

import (
	"github.com/yungbote/candidate-intel-backend/internal/domain/candidate"
	"github.com/yungbote/candidate-intel-backend/internal/domain/chat"
	"github.com/yungbote/candidate-intel-backend/internal/domain/jobs"
)

type StructuredSummary = candidate.StructuredSummary
type ChatMessage = chat.ChatMessage
type ChatRole = chat.Role
type JobRun = jobs.JobRun

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&StructuredSummary{},
		&ChatMessage{},
		&JobRun{},
	}
}
