package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/imagehash"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/provenance"
	"github.com/sells-group/appraise-cli/internal/resilience"
	"github.com/sells-group/appraise-cli/internal/store"
	"github.com/sells-group/appraise-cli/internal/vision"
)

const (
	attrCondition = "condition"
	daysPerYear   = 365.25
)

type imageInput struct {
	images []model.ImageRef
	item   *model.ItemContext
}

type metadataInput struct {
	title       string
	description string
	detected    map[string]model.AttributeValue
	overrides   map[string]model.AttributeValue
}

// canned reports whether the stage is served from the sandbox table.
func (o *Orchestrator) canned(itemID, stage string) bool {
	_, ok := o.exec.Resolve(itemID, stage).(executor.SandboxOverride)
	return ok
}

// analyzeImages runs the vision step while hashing every image alongside it.
// Hashes are stored on the item only once the step succeeds.
func (o *Orchestrator) analyzeImages(ctx context.Context, wfID string, item model.Item, images []model.ImageRef) (model.ImageAnalysis, error) {
	if len(images) == 0 && !o.canned(item.ID, model.StageImageAnalysis) {
		return model.ImageAnalysis{}, &resilience.StageFailure{Stage: model.StageImageAnalysis, Err: vision.ErrNoImages}
	}

	var hashes []model.ImageHash
	var hg errgroup.Group
	hg.Go(func() error {
		hashes = o.hashImages(ctx, images, imagehash.Previous(item.ImageHashes))
		return nil
	})

	analysis, err := executor.RunStep(ctx, o.exec, model.StageImageAnalysis, o.runVision,
		imageInput{images: images, item: item.Context()}, wfID, item.ID)
	_ = hg.Wait()
	if err != nil {
		return model.ImageAnalysis{}, err
	}

	if len(hashes) > 0 {
		analysis.Hashes = hashes
		o.saveHashes(ctx, item, hashes)
	}
	return analysis, nil
}

func (o *Orchestrator) runVision(ctx context.Context, in imageInput) (model.ImageAnalysis, error) {
	res, err := o.analyzer.AnalyzeImages(ctx, in.images, in.item)
	if err != nil {
		return model.ImageAnalysis{}, err
	}
	if res == nil {
		return model.ImageAnalysis{}, eris.New("pipeline: vision returned no analysis")
	}
	return *res, nil
}

// hashImages fingerprints images concurrently. Results keep the input order.
func (o *Orchestrator) hashImages(ctx context.Context, images []model.ImageRef, previous map[string]string) []model.ImageHash {
	if o.hasher == nil || len(images) == 0 {
		return nil
	}

	out := make([]model.ImageHash, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.imageConcurrency)
	for i, img := range images {
		g.Go(func() error {
			out[i] = o.hasher.Verify(gctx, img, previous[img.ID])
			return nil
		})
	}
	_ = g.Wait()

	for _, h := range out {
		if h.Status == model.HashStatusTampered {
			zap.L().Warn("pipeline: image content changed since last hash",
				zap.String("image_id", h.ImageID),
			)
		}
	}
	return out
}

// saveHashes stores the new hashes on the item. Failures are logged only.
func (o *Orchestrator) saveHashes(ctx context.Context, item model.Item, hashes []model.ImageHash) {
	patch := model.ItemPatch{ImageHashes: mergeHashes(item.ImageHashes, hashes)}
	if _, err := o.store.UpdateItem(context.WithoutCancel(ctx), item.ID, patch); err != nil {
		zap.L().Warn("pipeline: failed to store image hashes",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
}

// mergeHashes lays current over previous by image ID. An image that could not
// be fetched this time keeps its previously stored digest.
func mergeHashes(previous, current []model.ImageHash) []model.ImageHash {
	prev := make(map[string]model.ImageHash, len(previous))
	for _, h := range previous {
		prev[h.ImageID] = h
	}

	out := make([]model.ImageHash, 0, len(previous)+len(current))
	seen := make(map[string]bool, len(current))
	for _, h := range current {
		if old, ok := prev[h.ImageID]; ok && h.Digest == "" && old.Digest != "" {
			h = old
		}
		out = append(out, h)
		seen[h.ImageID] = true
	}
	for _, h := range previous {
		if !seen[h.ImageID] {
			out = append(out, h)
		}
	}
	return out
}

// normalizeMetadata merges vision findings with what the owner entered.
func (o *Orchestrator) normalizeMetadata(ctx context.Context, wfID string, item model.Item, analysis model.ImageAnalysis) (model.NormalizedMetadata, error) {
	now := o.now()

	detected := make(map[string]model.AttributeValue, len(analysis.Attributes)+1)
	for k, v := range analysis.Attributes {
		if strings.TrimSpace(v) != "" {
			detected[k] = model.NewAttribute(v, model.SourceVision, now)
		}
	}
	if analysis.Condition != "" {
		detected[attrCondition] = model.NewAttribute(analysis.Condition, model.SourceVision, now)
	}

	overrides := make(map[string]model.AttributeValue, len(item.UserAttributes)+3)
	for k, v := range item.UserAttributes {
		if strings.TrimSpace(v) != "" {
			overrides[k] = model.NewAttribute(v, model.SourceUser, now)
		}
	}
	for k, v := range map[string]string{"brand": item.Brand, "model": item.Model, attrCondition: item.Condition} {
		if _, set := overrides[k]; !set && strings.TrimSpace(v) != "" {
			overrides[k] = model.NewAttribute(v, model.SourceUser, now)
		}
	}

	in := metadataInput{
		title:       item.Title,
		description: joinText(item.Description, analysis.Description),
		detected:    detected,
		overrides:   overrides,
	}
	return executor.RunStep(ctx, o.exec, model.StageMetadata, func(_ context.Context, in metadataInput) (model.NormalizedMetadata, error) {
		return o.normalizer.Normalize(in.title, in.description, in.detected, in.overrides), nil
	}, in, wfID, item.ID)
}

// value builds the valuation input from metadata and the stored item.
func (o *Orchestrator) value(ctx context.Context, wfID string, item model.Item, analysis model.ImageAnalysis, meta model.NormalizedMetadata) (model.ValuationResult, error) {
	in := model.ValuationInput{
		Category:        meta.Category,
		Brand:           meta.Brand,
		Model:           meta.Model,
		Description:     joinText(item.Description, analysis.Description),
		Materials:       item.Materials,
		Condition:       analysis.Condition,
		AgeYears:        o.ageYears(item.PurchaseDate),
		OriginalPrice:   item.PurchasePrice,
		ProvenanceScore: item.ProvenanceScore,
	}
	if v, ok := meta.Attributes[attrCondition]; ok && v.Value != "" {
		in.Condition = v.Value
	}

	return executor.RunStep(ctx, o.exec, model.StageValuation, func(_ context.Context, in model.ValuationInput) (model.ValuationResult, error) {
		return o.valuer.Evaluate(in), nil
	}, in, wfID, item.ID)
}

// analyzeProvenance re-reads the item so the timeline reflects its latest
// events, then records the timeline fingerprint and score.
func (o *Orchestrator) analyzeProvenance(ctx context.Context, wfID, itemID string) (model.ProvenanceAnalysis, error) {
	analysis, err := executor.RunStep(ctx, o.exec, model.StageProvenance, func(ctx context.Context, id string) (model.ProvenanceAnalysis, error) {
		item, err := o.store.GetItem(ctx, id)
		if store.IsNotFound(err) {
			return model.ProvenanceAnalysis{}, &resilience.StageFailure{Stage: model.StageProvenance, Err: err}
		}
		if err != nil {
			return model.ProvenanceAnalysis{}, eris.Wrap(err, "pipeline: load item for provenance")
		}
		out := o.provenance.Analyze(item.ProvenanceSubject())
		fp, err := provenance.Fingerprint(out.Timeline)
		if err != nil {
			return model.ProvenanceAnalysis{}, eris.Wrap(err, "pipeline: fingerprint timeline")
		}
		out.Fingerprint = fp
		return out, nil
	}, itemID, wfID, itemID)
	if err != nil {
		return model.ProvenanceAnalysis{}, err
	}

	if !o.canned(itemID, model.StageProvenance) {
		o.recordProvenance(ctx, wfID, itemID, analysis)
	}
	return analysis, nil
}

// recordProvenance appends a ledger entry and stores the score. Both are best-effort.
func (o *Orchestrator) recordProvenance(ctx context.Context, wfID, itemID string, analysis model.ProvenanceAnalysis) {
	ctx = context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("workflow_id", wfID), zap.String("item_id", itemID))

	if analysis.Fingerprint != "" {
		entry := model.LedgerEntry{
			ItemID:      itemID,
			WorkflowID:  wfID,
			Fingerprint: analysis.Fingerprint,
			EventCount:  eventCount(analysis.Timeline),
		}
		if err := o.store.AppendLedger(ctx, entry); err != nil {
			log.Warn("pipeline: failed to append provenance ledger", zap.Error(err))
		}
	}

	score := float64(analysis.Confidence)
	if _, err := o.store.UpdateItem(ctx, itemID, model.ItemPatch{ProvenanceScore: &score}); err != nil {
		log.Warn("pipeline: failed to store provenance score", zap.Error(err))
	}
}

// ageYears derives the item's age from its purchase date.
func (o *Orchestrator) ageYears(purchaseDate string) *float64 {
	t, ok := provenance.ParseDate(purchaseDate)
	if !ok {
		return nil
	}
	years := o.now().Sub(t).Hours() / 24 / daysPerYear
	if years < 0 {
		years = 0
	}
	return &years
}

func eventCount(timeline []model.TimelineItem) int {
	n := 0
	for _, it := range timeline {
		if !it.Gap {
			n++
		}
	}
	return n
}

func joinText(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
