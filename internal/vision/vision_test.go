package vision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/resilience"
	"github.com/sells-group/appraise-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/appraise-cli/pkg/anthropic/mocks"
)

const guitarReply = "```json\n" + `{
  "quality": [{"image_id": "front", "score": 0.9}, {"image_id": "back", "score": 0.5, "issues": ["dark"]}],
  "category": [{"image_id": "front", "category": "Guitars", "confidence": 0.6},
               {"image_id": "back", "category": "Musical Instruments", "confidence": 0.9}],
  "smart_crop": [{"image_id": "front", "x": 0.1, "y": 0.1, "width": 0.8, "height": 0.8}],
  "details": "Red Fender Stratocaster electric guitar with maple neck.",
  "condition": "Excellent",
  "attributes": {"brand": "Fender", "model": "Stratocaster", "color": "red"}
}` + "\n```"

var images = []model.ImageRef{
	{ID: "front", URL: "https://img.example.com/front.jpg"},
	{ID: "back", URL: "https://img.example.com/back.jpg"},
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 3000, OutputTokens: 200},
	}
}

func TestAnalyzeImages(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		if req.Model != "claude-sonnet-4-5-20250929" || len(req.Messages) != 1 || len(req.System) != 1 {
			return false
		}
		msg := req.Messages[0]
		return len(msg.Images) == 2 &&
			msg.Images[0].URL == "https://img.example.com/front.jpg" &&
			strings.Contains(msg.Content, "image_id=back") &&
			strings.Contains(msg.Content, "Title: Fender Strat")
	})).Return(reply(guitarReply), nil).Once()

	a := NewClaudeAnalyzer(client, "claude-sonnet-4-5-20250929", 0)
	got, err := a.AnalyzeImages(context.Background(), images, &model.ItemContext{Title: "Fender Strat"})
	require.NoError(t, err)

	assert.Equal(t, "Red Fender Stratocaster electric guitar with maple neck.", got.Description)
	assert.Equal(t, "excellent", got.Condition)
	assert.InDelta(t, 0.7, got.QualityScore, 0.0001)
	assert.Equal(t, "Musical Instruments", got.Category)
	assert.Equal(t, "Fender", got.Attributes["brand"])
	assert.Len(t, got.SmartCrops, 1)
}

func TestAnalyzeImages_NoImages(t *testing.T) {
	a := NewClaudeAnalyzer(anthropicmocks.NewMockClient(t), "m", 100)
	_, err := a.AnalyzeImages(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestAnalyzeImages_MalformedReply(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(reply("I cannot see the item."), nil).Once()

	_, err := NewClaudeAnalyzer(client, "m", 100).AnalyzeImages(context.Background(), images, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision: parse model json")
	assert.False(t, resilience.IsTransient(err))
}

func TestAnalyzeImages_ClientError(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	_, err := NewClaudeAnalyzer(client, "m", 100).AnalyzeImages(context.Background(), images, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision: analyze images")
}

func TestAnalyzeImages_ThrottledIsTransient(t *testing.T) {
	apiErr := &sdk.Error{
		StatusCode: http.StatusServiceUnavailable,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: http.StatusServiceUnavailable},
	}
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, apiErr).Once()

	_, err := NewClaudeAnalyzer(client, "m", 100).AnalyzeImages(context.Background(), images, nil)
	require.Error(t, err)
	var te *resilience.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestSynthesize_Empty(t *testing.T) {
	got := Synthesize(model.VisionResult{Details: "  plain box  "})
	assert.Equal(t, "plain box", got.Description)
	assert.Zero(t, got.QualityScore)
	assert.Empty(t, got.Category)
}

func TestSynthesize_ClampsScores(t *testing.T) {
	got := Synthesize(model.VisionResult{Quality: []model.ImageQuality{{Score: 1.5}, {Score: -1}}})
	assert.InDelta(t, 0.5, got.QualityScore, 0.0001)
}

func TestUserPrompt_NoContext(t *testing.T) {
	p := userPrompt(images, nil)
	assert.Contains(t, p, "1. image_id=front")
	assert.Contains(t, p, "2. image_id=back")
	assert.NotContains(t, p, "Owner notes")
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Here you go: {"a":1} hope it helps`, `{"a":1}`},
		{"none", "no json", "no json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}
