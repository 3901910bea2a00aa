package executor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType is a step lifecycle marker.
type EventType string

const (
	EventStart    EventType = "start"
	EventSuccess  EventType = "success"
	EventFailure  EventType = "failure"
	EventFallback EventType = "fallback"
)

// Event is one structured step lifecycle record.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"event_type"`
	WorkflowID string         `json:"workflow_id"`
	StepName   string         `json:"step_name"`
	ItemID     string         `json:"item_id,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// EventSink receives step events. Implementations must not block the caller
// for long and must not fail it: errors are theirs to log.
type EventSink interface {
	LogEvent(ctx context.Context, ev Event)
}

// NopSink discards events.
type NopSink struct{}

// LogEvent implements EventSink.
func (NopSink) LogEvent(context.Context, Event) {}

// ZapSink writes events to a zap logger.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink returns a sink logging to l, or to the global logger when l is nil.
func NewZapSink(l *zap.Logger) *ZapSink {
	return &ZapSink{log: l}
}

// LogEvent implements EventSink.
func (s *ZapSink) LogEvent(_ context.Context, ev Event) {
	log := s.log
	if log == nil {
		log = zap.L()
	}

	fields := []zap.Field{
		zap.String("event_type", string(ev.Type)),
		zap.String("workflow_id", ev.WorkflowID),
		zap.String("step", ev.StepName),
	}
	if ev.ItemID != "" {
		fields = append(fields, zap.String("item_id", ev.ItemID))
	}
	if ev.Attempt > 0 {
		fields = append(fields, zap.Int("attempts", ev.Attempt))
	}
	if ev.Duration > 0 {
		fields = append(fields, zap.Int64("duration_ms", ev.Duration.Milliseconds()))
	}
	if len(ev.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", ev.Metadata))
	}

	switch ev.Type {
	case EventFailure:
		log.Error("executor: step failed", append(fields, zap.String("error", ev.Error))...)
	case EventFallback:
		log.Warn("executor: step degraded", append(fields, zap.String("error", ev.Error))...)
	case EventSuccess:
		log.Info("executor: step complete", fields...)
	default:
		log.Debug("executor: step started", fields...)
	}
}

// MultiSink fans events out to every sink in order.
type MultiSink []EventSink

// LogEvent implements EventSink.
func (m MultiSink) LogEvent(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.LogEvent(ctx, ev)
		}
	}
}
