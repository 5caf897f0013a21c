package bus

import (
	"context"

	"github.com/yungbote/candidate-intel-backend/internal/realtime"
)

// Bus carries realtime messages between service instances so a job finishing
// on one worker reaches an SSE client connected to another.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
