// Package pipeline chains image analysis, metadata normalization, valuation
// and provenance into one workflow per item.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/normalize"
	"github.com/sells-group/appraise-cli/internal/provenance"
	"github.com/sells-group/appraise-cli/internal/resilience"
	"github.com/sells-group/appraise-cli/internal/store"
	"github.com/sells-group/appraise-cli/internal/valuation"
	"github.com/sells-group/appraise-cli/internal/vision"
)

// ImageHasher fingerprints one image, comparing against a previously stored
// digest when one is known.
type ImageHasher interface {
	Verify(ctx context.Context, ref model.ImageRef, expected string) model.ImageHash
}

// Config holds orchestrator settings.
type Config struct {
	ImageConcurrency int
	Currency         string
	GapYears         float64
}

// Orchestrator runs the four stages of the appraisal chain.
type Orchestrator struct {
	store    store.Store
	analyzer vision.Analyzer
	hasher   ImageHasher
	exec     *executor.Executor

	normalizer *normalize.Normalizer
	valuer     *valuation.Engine
	provenance *provenance.Engine

	imageConcurrency int
	now              func() time.Time

	// Dead letters are recorded only when dlqMaxRetries > 0.
	dlqMaxRetries int
	dlqBaseDelay  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the clock used for workflow timestamps and item age.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. hasher may be nil, in which case images are
// not fingerprinted.
func New(cfg Config, st store.Store, analyzer vision.Analyzer, hasher ImageHasher, ex *executor.Executor, opts ...Option) *Orchestrator {
	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = 4
	}
	if ex == nil {
		ex = executor.New(nil, executor.DefaultConfig())
	}
	o := &Orchestrator{
		store:            st,
		analyzer:         analyzer,
		hasher:           hasher,
		exec:             ex,
		imageConcurrency: cfg.ImageConcurrency,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.normalizer = normalize.New(normalize.WithClock(o.now))
	o.valuer = valuation.NewEngine(cfg.Currency, valuation.WithClock(o.now))
	o.provenance = provenance.NewEngine(cfg.GapYears)
	return o
}

// Breakers exposes the executor's per-stage breakers.
func (o *Orchestrator) Breakers() *resilience.Registry {
	return o.exec.Breakers()
}

// ExecuteChain runs the stages in order for one item. Any failure before
// provenance stops the chain with status failed; a provenance failure alone
// yields partial. Anticipated failures never surface as an error: they are
// recorded on the outcome. The record is saved best-effort.
func (o *Orchestrator) ExecuteChain(ctx context.Context, itemID string, images []model.ImageRef) Outcome {
	wfID := uuid.NewString()
	log := zap.L().With(zap.String("workflow_id", wfID), zap.String("item_id", itemID))
	log.Info("pipeline: starting workflow", zap.Int("images", len(images)))

	rec := model.WorkflowRecord{
		WorkflowID: wfID,
		ItemID:     itemID,
		StartedAt:  o.now().UTC(),
		Metadata:   defaultMetadata(),
		Valuation:  defaultValuation(o.valuer.Currency()),
		Provenance: defaultProvenance(),
		Sandboxed:  o.sandboxed(itemID),
	}

	requested := images
	item := o.loadItem(ctx, log, itemID)
	if len(images) == 0 {
		images = item.Images
	}

	// Stage tracking helper.
	var firstErr error
	track := func(stage string, fn func() error) bool {
		start := o.now()
		err := fn()
		duration := o.now().Sub(start).Milliseconds()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			rec.Errors = append(rec.Errors, model.StepError{
				Stage:    stage,
				Message:  err.Error(),
				Degraded: resilience.IsDegraded(err),
			})
			log.Error("pipeline: stage failed",
				zap.String("stage", stage),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return false
		}
		log.Info("pipeline: stage complete",
			zap.String("stage", stage),
			zap.Int64("duration_ms", duration),
		)
		return true
	}

	ok := track(model.StageImageAnalysis, func() error {
		analysis, err := o.analyzeImages(ctx, wfID, item, images)
		if err != nil {
			return err
		}
		rec.ImageAnalysis = analysis
		return nil
	}) && track(model.StageMetadata, func() error {
		meta, err := o.normalizeMetadata(ctx, wfID, item, rec.ImageAnalysis)
		if err != nil {
			return err
		}
		rec.Metadata = meta
		return nil
	}) && track(model.StageValuation, func() error {
		val, err := o.value(ctx, wfID, item, rec.ImageAnalysis, rec.Metadata)
		if err != nil {
			return err
		}
		rec.Valuation = val
		return nil
	})

	switch {
	case !ok:
		// Earlier stages may have produced data; a failed record carries defaults only.
		rec.Status = model.WorkflowFailed
		rec.Metadata = defaultMetadata()
		rec.Valuation = defaultValuation(o.valuer.Currency())
	case track(model.StageProvenance, func() error {
		prov, err := o.analyzeProvenance(ctx, wfID, itemID)
		if err != nil {
			return err
		}
		rec.Provenance = prov
		return nil
	}):
		rec.Status = model.WorkflowSuccess
	default:
		rec.Status = model.WorkflowPartial
	}

	rec.CompletedAt = o.now().UTC()
	o.saveWorkflow(ctx, log, rec)
	o.recordDeadLetter(ctx, log, rec, requested, firstErr)

	log.Info("pipeline: workflow complete",
		zap.String("status", string(rec.Status)),
		zap.Int("errors", len(rec.Errors)),
		zap.Duration("elapsed", rec.CompletedAt.Sub(rec.StartedAt)),
	)
	return Outcome{Status: rec.Status, Errors: rec.Errors, record: rec}
}

// sandboxed reports whether any stage of the item resolves to a canned result.
func (o *Orchestrator) sandboxed(itemID string) bool {
	for _, stage := range model.Stages {
		if _, ok := o.exec.Resolve(itemID, stage).(executor.SandboxOverride); ok {
			return true
		}
	}
	return false
}

// loadItem reads the item for analysis context. A missing item still runs:
// the chain works from the images alone.
func (o *Orchestrator) loadItem(ctx context.Context, log *zap.Logger, itemID string) model.Item {
	item, err := o.store.GetItem(ctx, itemID)
	if err != nil {
		if store.IsNotFound(err) {
			log.Warn("pipeline: item not found, running without stored context")
		} else {
			log.Warn("pipeline: failed to load item", zap.Error(err))
		}
		return model.Item{ID: itemID}
	}
	return *item
}

func (o *Orchestrator) saveWorkflow(ctx context.Context, log *zap.Logger, rec model.WorkflowRecord) {
	if err := o.store.SaveWorkflow(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("pipeline: failed to save workflow", zap.Error(err))
	}
}
