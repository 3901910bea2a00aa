package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/executor"
)

// EventSink records executor events in a Store. Write failures are logged
// and never reach the step that emitted the event.
type EventSink struct {
	st Store
}

// NewEventSink returns a sink writing to st.
func NewEventSink(st Store) *EventSink {
	return &EventSink{st: st}
}

// LogEvent implements executor.EventSink.
func (s *EventSink) LogEvent(ctx context.Context, ev executor.Event) {
	if err := s.st.LogEvent(context.WithoutCancel(ctx), ev); err != nil {
		zap.L().Warn("store: failed to persist step event",
			zap.String("workflow_id", ev.WorkflowID),
			zap.String("step", ev.StepName),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

var _ executor.EventSink = (*EventSink)(nil)
