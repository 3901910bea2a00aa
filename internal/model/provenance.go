package model

import "time"

// EventType classifies a provenance event.
type EventType string

const (
	EventAcquisition     EventType = "acquisition"
	EventOwnershipChange EventType = "ownership_change"
	EventAppraisal       EventType = "appraisal"
	EventRepair          EventType = "repair"
	EventRestoration     EventType = "restoration"
	EventCleaning        EventType = "cleaning"
	EventMarketValuation EventType = "market_valuation"
	EventOther           EventType = "other"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventAcquisition, EventOwnershipChange, EventAppraisal, EventRepair,
		EventRestoration, EventCleaning, EventMarketValuation, EventOther:
		return true
	}
	return false
}

// ProvenanceEvent is one recorded or inferred event in an item's history.
type ProvenanceEvent struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"` // YYYY-MM-DD or RFC 3339
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	Verified    bool      `json:"verified"`
	Provider    string    `json:"provider,omitempty"`
	Cost        *float64  `json:"cost,omitempty"`
	DocumentRef string    `json:"document_ref,omitempty"`
}

// TimelineItem is a display projection of an event, or a synthetic gap marker.
type TimelineItem struct {
	EventID     string    `json:"event_id,omitempty"`
	Date        time.Time `json:"date"`
	Type        EventType `json:"type,omitempty"`
	Description string    `json:"description"`
	Verified    bool      `json:"verified"`
	Provider    string    `json:"provider,omitempty"`
	DocumentRef string    `json:"document_ref,omitempty"`
	Gap         bool      `json:"gap,omitempty"`
	GapYears    float64   `json:"gap_years,omitempty"`
}

// ProvenanceSubject is the slice of an item that the provenance engine reads.
type ProvenanceSubject struct {
	Events       []ProvenanceEvent `json:"events"`
	PurchaseDate string            `json:"purchase_date,omitempty"`
	ReceiptRef   string            `json:"receipt_ref,omitempty"`
	Documents    []string          `json:"documents,omitempty"`
}

// ProvenanceSubject extracts the provenance-relevant fields of an item.
func (i Item) ProvenanceSubject() ProvenanceSubject {
	return ProvenanceSubject{
		Events:       i.Events,
		PurchaseDate: i.PurchaseDate,
		ReceiptRef:   i.ReceiptRef,
		Documents:    i.Documents,
	}
}

// ProvenanceAnalysis is the output of the provenance engine.
type ProvenanceAnalysis struct {
	Timeline    []TimelineItem `json:"timeline"`
	Confidence  int            `json:"confidence_score"`
	GapDetected bool           `json:"gap_detected"`
	Narrative   string         `json:"narrative"`
	Fingerprint string         `json:"fingerprint,omitempty"`
}

// LedgerEntry is a tamper-evidence record keyed by a timeline fingerprint.
type LedgerEntry struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"item_id"`
	WorkflowID  string    `json:"workflow_id"`
	Fingerprint string    `json:"fingerprint"`
	EventCount  int       `json:"event_count"`
	CreatedAt   time.Time `json:"created_at"`
}
