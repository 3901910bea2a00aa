package model

import "time"

// WorkflowStatus is the terminal state of one pipeline invocation.
type WorkflowStatus string

const (
	WorkflowSuccess WorkflowStatus = "success"
	// WorkflowPartial means analysis, metadata and valuation completed but provenance did not.
	WorkflowPartial WorkflowStatus = "partial"
	WorkflowFailed  WorkflowStatus = "failed"
)

// Stage names, in execution order.
const (
	StageImageAnalysis = "image_analysis"
	StageMetadata      = "metadata"
	StageValuation     = "valuation"
	StageProvenance    = "provenance"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageImageAnalysis, StageMetadata, StageValuation, StageProvenance}

// ImageQuality scores one photo.
type ImageQuality struct {
	ImageID string   `json:"image_id"`
	Score   float64  `json:"score"` // 0-1
	Issues  []string `json:"issues,omitempty"`
}

// CategoryGuess is a per-image classification.
type CategoryGuess struct {
	ImageID    string  `json:"image_id"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// SmartCrop is a suggested crop box in relative coordinates.
type SmartCrop struct {
	ImageID string  `json:"image_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// VisionResult is the raw output of the vision collaborator.
type VisionResult struct {
	Quality    []ImageQuality    `json:"quality"`
	Categories []CategoryGuess   `json:"category"`
	SmartCrops []SmartCrop       `json:"smart_crop"`
	Details    string            `json:"details"`
	Condition  string            `json:"condition"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ImageAnalysis is the synthesised result of the image analysis stage.
type ImageAnalysis struct {
	Description  string            `json:"description"`
	Condition    string            `json:"condition"`
	QualityScore float64           `json:"quality_score"`
	Category     string            `json:"category,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Quality      []ImageQuality    `json:"quality,omitempty"`
	SmartCrops   []SmartCrop       `json:"smart_crops,omitempty"`
	Hashes       []ImageHash       `json:"hashes,omitempty"`
}

// StepError is one failure recorded on a workflow.
type StepError struct {
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded,omitempty"`
}

// WorkflowRecord aggregates the four stage results of one pipeline invocation.
type WorkflowRecord struct {
	WorkflowID    string             `json:"workflow_id"`
	ItemID        string             `json:"item_id"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   time.Time          `json:"completed_at"`
	Status        WorkflowStatus     `json:"status"`
	ImageAnalysis ImageAnalysis      `json:"image_analysis"`
	Metadata      NormalizedMetadata `json:"metadata"`
	Valuation     ValuationResult    `json:"valuation"`
	Provenance    ProvenanceAnalysis `json:"provenance"`
	Errors        []StepError        `json:"errors,omitempty"`
	Sandboxed     bool               `json:"sandboxed,omitempty"`
}

// WorkflowFilter specifies criteria for listing workflow records.
type WorkflowFilter struct {
	ItemID string         `json:"item_id,omitempty"`
	Status WorkflowStatus `json:"status,omitempty"`
	// StartedAfter keeps workflows started strictly after this instant. Zero means no bound.
	StartedAfter time.Time `json:"started_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}
