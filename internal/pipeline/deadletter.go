package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/resilience"
)

// WithDeadLetters records every failed or partial workflow in the store's
// dead letter queue. Transient failures are retried up to maxRetries times
// with exponential backoff from baseDelay; permanent failures are kept for
// inspection but never retried.
func WithDeadLetters(maxRetries int, baseDelay time.Duration) Option {
	return func(o *Orchestrator) {
		o.dlqMaxRetries = maxRetries
		o.dlqBaseDelay = baseDelay
	}
}

// RetrySummary counts the outcome of one RetryDeadLetters pass.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
}

// recordDeadLetter keeps the dead letter queue in step with the item's latest
// workflow: a success clears the entry, anything else upserts it. Failures
// here are logged and never affect the outcome.
func (o *Orchestrator) recordDeadLetter(ctx context.Context, log *zap.Logger, rec model.WorkflowRecord, images []model.ImageRef, cause error) {
	if o.dlqMaxRetries <= 0 || rec.Sandboxed || rec.ItemID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if rec.Status == model.WorkflowSuccess {
		if err := o.store.RemoveDLQ(ctx, rec.ItemID); err != nil {
			log.Warn("pipeline: failed to clear dead letter", zap.Error(err))
		}
		return
	}

	entry := resilience.DLQEntry{
		ItemID:       rec.ItemID,
		WorkflowID:   rec.WorkflowID,
		Status:       rec.Status,
		Images:       images,
		ErrorType:    resilience.ErrorClass(cause),
		MaxRetries:   o.dlqMaxRetries,
		NextRetryAt:  rec.CompletedAt.Add(resilience.RetryDelay(o.dlqBaseDelay, 0)),
		CreatedAt:    rec.CompletedAt,
		LastFailedAt: rec.CompletedAt,
	}
	if len(rec.Errors) > 0 {
		entry.Error = rec.Errors[0].Message
		entry.FailedStage = rec.Errors[0].Stage
	}
	if entry.ErrorType == resilience.ErrorPermanent {
		entry.MaxRetries = 0
	}

	if err := o.store.EnqueueDLQ(ctx, entry); err != nil {
		log.Warn("pipeline: failed to enqueue dead letter", zap.Error(err))
		return
	}
	log.Info("pipeline: workflow dead-lettered",
		zap.String("error_type", entry.ErrorType),
		zap.String("failed_stage", entry.FailedStage),
	)
}

// RetryDeadLetters re-runs the chain for every due dead letter. An entry
// whose workflow succeeds is removed by ExecuteChain; one that fails again is
// rescheduled with a longer delay.
func (o *Orchestrator) RetryDeadLetters(ctx context.Context, filter resilience.DLQFilter) (RetrySummary, error) {
	var sum RetrySummary
	if o.dlqMaxRetries <= 0 {
		return sum, eris.New("pipeline: dead letter queue is disabled")
	}

	entries, err := o.store.DequeueDLQ(ctx, filter)
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: dequeue dead letters")
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "pipeline: retry dead letters")
		}
		sum.Attempted++

		out := o.ExecuteChain(ctx, e.ItemID, e.Images)
		if out.Status == model.WorkflowSuccess {
			sum.Recovered++
			continue
		}
		sum.Failed++

		lastErr := string(out.Status)
		if len(out.Errors) > 0 {
			lastErr = out.Errors[0].Message
		}
		next := o.now().UTC().Add(resilience.RetryDelay(o.dlqBaseDelay, e.RetryCount+1))
		if err := o.store.IncrementDLQRetry(ctx, e.ItemID, next, lastErr); err != nil {
			zap.L().Warn("pipeline: failed to reschedule dead letter",
				zap.String("item_id", e.ItemID), zap.Error(err))
		}
	}

	zap.L().Info("pipeline: dead letter retry complete",
		zap.Int("attempted", sum.Attempted),
		zap.Int("recovered", sum.Recovered),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
