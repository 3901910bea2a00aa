package model

import "time"

// AttributeSource records where an attribute value came from.
type AttributeSource string

const (
	SourceUser      AttributeSource = "user"
	SourceAPI       AttributeSource = "api"
	SourceVision    AttributeSource = "vision"
	SourceOCR       AttributeSource = "ocr"
	SourceInference AttributeSource = "inference"
	SourceDefault   AttributeSource = "default"
)

// sourceWeights are the fixed confidence weights per attribute source.
var sourceWeights = map[AttributeSource]float64{
	SourceUser:      1.0,
	SourceAPI:       0.9,
	SourceVision:    0.8,
	SourceOCR:       0.7,
	SourceInference: 0.5,
	SourceDefault:   0.1,
}

// Weight returns the fixed confidence weight of the source. Unknown sources weigh as default.
func (s AttributeSource) Weight() float64 {
	if w, ok := sourceWeights[s]; ok {
		return w
	}
	return sourceWeights[SourceDefault]
}

// AttributeValue is a single attribute observation.
type AttributeValue struct {
	Value      string          `json:"value"`
	Source     AttributeSource `json:"source"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewAttribute builds an AttributeValue whose confidence is the source's fixed weight.
func NewAttribute(value string, source AttributeSource, at time.Time) AttributeValue {
	return AttributeValue{
		Value:      value,
		Source:     source,
		Confidence: source.Weight(),
		Timestamp:  at,
	}
}

// VariantMapping records a model name rewritten to its canonical form.
type VariantMapping struct {
	Original  string `json:"original"`
	Canonical string `json:"canonical"`
}

// NormalizedMetadata is the canonical description of an item.
type NormalizedMetadata struct {
	Category    string                    `json:"category"`
	Subcategory string                    `json:"subcategory,omitempty"`
	Brand       string                    `json:"brand,omitempty"`
	Model       string                    `json:"model,omitempty"`
	Confidence  float64                   `json:"confidence"`
	Attributes  map[string]AttributeValue `json:"attributes"`
	Variant     *VariantMapping           `json:"variant,omitempty"`
}

// UnknownCategory is the category assigned when no taxonomy entry matches.
const UnknownCategory = "Unknown"
