package services

import (
	"context"

	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/realtime"
	"github.com/yungbote/candidate-intel-backend/internal/realtime/bus"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

// HubEmitter delivers to clients connected to this instance only.
type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Hub == nil {
		return
	}
	e.Hub.Broadcast(msg)
}

// RedisEmitter publishes to the bus; every instance's forwarder feeds its own
// hub. If publishing fails the message is delivered locally instead.
type RedisEmitter struct {
	Bus      bus.Bus
	Fallback *realtime.SSEHub
	Log      *logger.Logger
}

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(ctx, msg); err != nil {
		if e.Log != nil {
			e.Log.Warn("sse publish failed; delivering locally", "event", msg.Event, "error", err)
		}
		if e.Fallback != nil {
			e.Fallback.Broadcast(msg)
		}
	}
}
