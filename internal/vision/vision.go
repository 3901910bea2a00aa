// Package vision turns item photos into a structured description using a
// multimodal model.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/resilience"
	"github.com/sells-group/appraise-cli/pkg/anthropic"
)

// Analyzer inspects a set of item photos.
type Analyzer interface {
	AnalyzeImages(ctx context.Context, images []model.ImageRef, item *model.ItemContext) (*model.ImageAnalysis, error)
}

// ErrNoImages is returned when an analysis is requested without photos.
var ErrNoImages = eris.New("vision: no images to analyze")

const systemPrompt = `You are an appraiser's assistant. You receive photos of one physical item.
Reply with a single JSON object and nothing else, using this shape:
{
  "quality": [{"image_id": "...", "score": 0.0-1.0, "issues": ["blurry", "dark", ...]}],
  "category": [{"image_id": "...", "category": "...", "confidence": 0.0-1.0}],
  "smart_crop": [{"image_id": "...", "x": 0-1, "y": 0-1, "width": 0-1, "height": 0-1}],
  "details": "one paragraph describing the item, including brand, model, materials and visible marks",
  "condition": "mint | excellent | good | fair | poor",
  "attributes": {"brand": "...", "model": "...", "color": "...", "material": "..."}
}
Use the image ids exactly as given. Omit attributes you cannot see.`

// ClaudeAnalyzer implements Analyzer over the Anthropic messages API.
type ClaudeAnalyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeAnalyzer creates an analyzer using the given model.
func NewClaudeAnalyzer(client anthropic.Client, model string, maxTokens int64) *ClaudeAnalyzer {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &ClaudeAnalyzer{client: client, model: model, maxTokens: maxTokens}
}

// AnalyzeImages sends every photo in one request and synthesises the reply.
// Throttling and server errors come back as *resilience.TransientError.
func (a *ClaudeAnalyzer) AnalyzeImages(ctx context.Context, images []model.ImageRef, item *model.ItemContext) (*model.ImageAnalysis, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	imgs := make([]anthropic.Image, len(images))
	for i, ref := range images {
		imgs[i] = anthropic.Image{URL: ref.URL}
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt(images, item), Images: imgs},
		},
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "vision: analyze images"), code)
		}
		return nil, eris.Wrap(err, "vision: analyze images")
	}
	resp.Usage.LogCost(a.model, model.StageImageAnalysis)

	var res model.VisionResult
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &res); err != nil {
		zap.L().Warn("vision: failed to parse model json",
			zap.String("stop_reason", resp.StopReason),
			zap.Error(err),
		)
		return nil, eris.Wrap(err, "vision: parse model json")
	}

	analysis := Synthesize(res)
	return &analysis, nil
}

// userPrompt lists the image ids in the order the photos are attached and
// adds whatever the owner already said about the item.
func userPrompt(images []model.ImageRef, item *model.ItemContext) string {
	var b strings.Builder
	b.WriteString("Photos, in order:\n")
	for i, ref := range images {
		fmt.Fprintf(&b, "%d. image_id=%s\n", i+1, ref.ID)
	}
	if item != nil {
		b.WriteString("\nOwner notes:\n")
		if item.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", item.Title)
		}
		if item.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", item.Description)
		}
		if item.Category != "" {
			fmt.Fprintf(&b, "Category: %s\n", item.Category)
		}
	}
	return b.String()
}

// Synthesize folds per-image output into one summary. QualityScore is the
// mean of the per-image scores and Category is the most confident guess.
func Synthesize(res model.VisionResult) model.ImageAnalysis {
	out := model.ImageAnalysis{
		Description: strings.TrimSpace(res.Details),
		Condition:   strings.ToLower(strings.TrimSpace(res.Condition)),
		Attributes:  res.Attributes,
		Quality:     res.Quality,
		SmartCrops:  res.SmartCrops,
	}

	if len(res.Quality) > 0 {
		var sum float64
		for _, q := range res.Quality {
			sum += clamp01(q.Score)
		}
		out.QualityScore = sum / float64(len(res.Quality))
	}

	if len(res.Categories) > 0 {
		guesses := append([]model.CategoryGuess(nil), res.Categories...)
		sort.SliceStable(guesses, func(i, j int) bool {
			return guesses[i].Confidence > guesses[j].Confidence
		})
		out.Category = guesses[0].Category
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
