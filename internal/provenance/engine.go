// Package provenance builds an item's ownership timeline, flags unexplained
// gaps and scores how well the history is documented.
package provenance

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/appraise-cli/internal/model"
)

// DefaultGapYears is the event spacing above which a gap is reported.
const DefaultGapYears = 5.0

// SyntheticAcquisitionID identifies the acquisition inferred from a purchase date.
const SyntheticAcquisitionID = "synthetic-acquisition"

const (
	daysPerYear = 365.25

	baseScore         = 50
	verifiedBonus     = 10
	gapPenalty        = 15
	acquisitionBonus  = 10
	receiptBonus      = 10
	documentBonus     = 5
	gapWarningClause  = " Warning: unexplained gaps in the ownership history lower provenance confidence."
	noEventsNarrative = "No provenance events are recorded for this item."
)

// Engine analyzes provenance subjects. The zero value is not usable; use NewEngine.
type Engine struct {
	gapYears float64
}

// NewEngine creates an engine that reports gaps longer than gapYears.
// Non-positive values fall back to DefaultGapYears.
func NewEngine(gapYears float64) *Engine {
	if gapYears <= 0 || math.IsNaN(gapYears) || math.IsInf(gapYears, 0) {
		gapYears = DefaultGapYears
	}
	return &Engine{gapYears: gapYears}
}

// gapLimit is the latest instant after from that is not a gap. Whole years
// are calendar years; any fraction is measured in 365.25-day years.
func (e *Engine) gapLimit(from time.Time) time.Time {
	whole, frac := math.Modf(e.gapYears)
	limit := from.AddDate(int(whole), 0, 0)
	return limit.Add(time.Duration(frac * daysPerYear * 24 * float64(time.Hour)))
}

// Analyze runs the default engine.
func Analyze(subject model.ProvenanceSubject) model.ProvenanceAnalysis {
	return NewEngine(DefaultGapYears).Analyze(subject)
}

// Analyze builds the newest-first timeline with gap markers and scores it.
// Events whose date cannot be parsed are left out of the timeline.
func (e *Engine) Analyze(subject model.ProvenanceSubject) model.ProvenanceAnalysis {
	events := timelineEvents(subject)

	// Ascending pass for gap detection.
	sortTimeline(events, true)
	var gaps []model.TimelineItem
	for i := 1; i < len(events); i++ {
		older, newer := events[i-1], events[i]
		if !newer.Date.After(e.gapLimit(older.Date)) {
			continue
		}
		years := newer.Date.Sub(older.Date).Hours() / 24 / daysPerYear
		gaps = append(gaps, model.TimelineItem{
			Date:        older.Date,
			Description: fmt.Sprintf("No recorded events for %.1f years", years),
			Gap:         true,
			GapYears:    math.Round(years*100) / 100,
		})
	}

	timeline := make([]model.TimelineItem, 0, len(events)+len(gaps))
	timeline = append(timeline, events...)
	timeline = append(timeline, gaps...)
	sortTimeline(timeline, false)

	return model.ProvenanceAnalysis{
		Timeline:    timeline,
		Confidence:  score(subject, events, len(gaps)),
		GapDetected: len(gaps) > 0,
		Narrative:   narrative(events, len(gaps) > 0),
	}
}

// timelineEvents projects recorded events and adds a synthetic acquisition
// when none was recorded but a purchase date is known.
func timelineEvents(subject model.ProvenanceSubject) []model.TimelineItem {
	items := make([]model.TimelineItem, 0, len(subject.Events)+1)
	hasAcquisition := false
	for _, ev := range subject.Events {
		date, ok := ParseDate(ev.Date)
		if !ok {
			continue
		}
		if ev.Type == model.EventAcquisition {
			hasAcquisition = true
		}
		items = append(items, model.TimelineItem{
			EventID:     ev.ID,
			Date:        date,
			Type:        ev.Type,
			Description: ev.Description,
			Verified:    ev.Verified,
			Provider:    ev.Provider,
			DocumentRef: ev.DocumentRef,
		})
	}

	if !hasAcquisition {
		if date, ok := ParseDate(subject.PurchaseDate); ok {
			items = append(items, model.TimelineItem{
				EventID:     SyntheticAcquisitionID,
				Date:        date,
				Type:        model.EventAcquisition,
				Description: "Purchased by current owner",
				Verified:    strings.TrimSpace(subject.ReceiptRef) != "",
				DocumentRef: subject.ReceiptRef,
			})
		}
	}
	return items
}

// sortTimeline orders by date. At equal instants a gap marker sits on the
// newer side of the event it is anchored to; remaining ties break by event ID.
func sortTimeline(items []model.TimelineItem, ascending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Date.Equal(b.Date) {
			if ascending {
				return a.Date.Before(b.Date)
			}
			return a.Date.After(b.Date)
		}
		if a.Gap != b.Gap {
			// ascending: event first; descending: gap first
			return a.Gap != ascending
		}
		if ascending {
			return a.EventID < b.EventID
		}
		return a.EventID > b.EventID
	})
}

func score(subject model.ProvenanceSubject, events []model.TimelineItem, gaps int) int {
	s := baseScore
	hasAcquisition := false
	for _, ev := range events {
		if ev.Verified {
			s += verifiedBonus
		}
		if ev.Type == model.EventAcquisition {
			hasAcquisition = true
		}
	}
	s -= gapPenalty * gaps
	if hasAcquisition {
		s += acquisitionBonus
	}
	if strings.TrimSpace(subject.ReceiptRef) != "" {
		s += receiptBonus
	}
	s += documentBonus * len(subject.Documents)

	return max(0, min(100, s))
}

func narrative(events []model.TimelineItem, gapDetected bool) string {
	if len(events) == 0 {
		return noEventsNarrative
	}

	verified := 0
	earliest := events[0].Date
	for _, ev := range events {
		if ev.Verified {
			verified++
		}
		if ev.Date.Before(earliest) {
			earliest = ev.Date
		}
	}

	noun := "events"
	if len(events) == 1 {
		noun = "event"
	}
	s := fmt.Sprintf("Provenance timeline contains %d %s dating back to %d, %d verified.",
		len(events), noun, earliest.Year(), verified)
	if gapDetected {
		s += gapWarningClause
	}
	return s
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns the instant in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
