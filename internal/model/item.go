package model

import (
	"time"
)

// HashStatus reports whether an image's bytes could be retrieved and hashed.
type HashStatus string

const (
	HashStatusVerified HashStatus = "verified"
	HashStatusUnknown  HashStatus = "unknown"
	HashStatusTampered HashStatus = "tampered"
)

// ImageRef points at a single photo of an item.
type ImageRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ImageHash is the content fingerprint of one image. Digest is the reference
// digest. When the image is tampered, Digest keeps the earlier reference and
// ObservedDigest holds what was fetched.
type ImageHash struct {
	ImageID        string     `json:"image_id"`
	Digest         string     `json:"digest,omitempty"` // sha256 hex
	ObservedDigest string     `json:"observed_digest,omitempty"`
	Status         HashStatus `json:"status"`
	HashedAt       time.Time  `json:"hashed_at"`
}

// Item is a persisted inventory record.
type Item struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Category        string            `json:"category,omitempty"`
	Brand           string            `json:"brand,omitempty"`
	Model           string            `json:"model,omitempty"`
	Condition       string            `json:"condition,omitempty"`
	Materials       []string          `json:"materials,omitempty"`
	PurchaseDate    string            `json:"purchase_date,omitempty"` // YYYY-MM-DD
	PurchasePrice   *float64          `json:"purchase_price,omitempty"`
	ReceiptRef      string            `json:"receipt_ref,omitempty"`
	Documents       []string          `json:"documents,omitempty"`
	Events          []ProvenanceEvent `json:"events,omitempty"`
	UserAttributes  map[string]string `json:"user_attributes,omitempty"`
	Images          []ImageRef        `json:"images,omitempty"`
	ImageHashes     []ImageHash       `json:"image_hashes,omitempty"`
	ProvenanceScore *float64          `json:"provenance_score,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ItemPatch is a partial update applied by Store.UpdateItem. Nil fields are left untouched.
type ItemPatch struct {
	ImageHashes     []ImageHash `json:"image_hashes,omitempty"`
	Category        *string     `json:"category,omitempty"`
	ProvenanceScore *float64    `json:"provenance_score,omitempty"`
}

// Apply merges the patch into a copy of the item.
func (p ItemPatch) Apply(item Item) Item {
	if p.ImageHashes != nil {
		item.ImageHashes = p.ImageHashes
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.ProvenanceScore != nil {
		score := *p.ProvenanceScore
		item.ProvenanceScore = &score
	}
	return item
}

// ItemContext is the optional hint passed to the vision model alongside images.
type ItemContext struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Context returns the vision hint for this item.
func (i Item) Context() *ItemContext {
	if i.Title == "" && i.Description == "" && i.Category == "" {
		return nil
	}
	return &ItemContext{Title: i.Title, Description: i.Description, Category: i.Category}
}
