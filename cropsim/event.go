package cropsim

import (
	"strings"
	"sync"
)

// Confidence levels returned by the detector. An action marker upgrades an
// event match; a bare query marker scores between the two; anything else
// falls through to the low-confidence default.
const (
	ConfidenceEventWithMarker = 0.8
	ConfidenceQuery           = 0.7
	ConfidenceEvent           = 0.6
	ConfidenceDefault         = 0.5
)

// Classification is the detector's verdict on one message. Every message
// yields a classification; there is no failure mode.
type Classification struct {
	HasEvent   bool      `json:"hasEvent"`
	EventType  EventType `json:"eventType,omitempty"`
	HasQuery   bool      `json:"hasQuery"`
	QueryText  string    `json:"queryText,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Classifier turns a free-text message into a Classification.
// Implementations must be pure: same text, same verdict, no side effects.
type Classifier interface {
	Classify(text string) Classification
}

// Detector is the production Classifier. It matches lexical stems from a
// swappable pattern table; the table can be replaced at runtime (hot
// reload), so access is guarded.
type Detector struct {
	mu    sync.RWMutex
	table *PatternTable
}

// NewDetector creates a detector with the given table, or the built-in
// table when nil.
func NewDetector(table *PatternTable) *Detector {
	if table == nil {
		table = DefaultPatternTable()
	}
	return &Detector{table: table}
}

// SetTable swaps the pattern table. Used by the file watcher.
func (d *Detector) SetTable(table *PatternTable) {
	if table == nil {
		return
	}
	d.mu.Lock()
	d.table = table
	d.mu.Unlock()
}

// TableVersion returns the version of the active pattern table.
func (d *Detector) TableVersion() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.table.Version
}

// Classify implements Classifier. Ordered event groups are tried first; an
// action marker raises event confidence. A message with no event but a
// query marker is a query. A message with neither still classifies as a
// low-confidence query so nothing is silently dropped.
func (d *Detector) Classify(text string) Classification {
	d.mu.RLock()
	table := d.table
	d.mu.RUnlock()

	lower := strings.ToLower(text)

	hasQuery := containsAny(lower, table.QueryMarkers)

	for _, group := range table.Events {
		if !containsAny(lower, group.Stems) {
			continue
		}

		confidence := ConfidenceEvent
		if containsAny(lower, table.ActionMarkers) {
			confidence = ConfidenceEventWithMarker
		}

		c := Classification{
			HasEvent:   true,
			EventType:  group.Type,
			HasQuery:   hasQuery,
			Confidence: confidence,
		}
		if hasQuery {
			c.QueryText = text
		}
		return c
	}

	if hasQuery {
		return Classification{
			HasQuery:   true,
			QueryText:  text,
			Confidence: ConfidenceQuery,
		}
	}

	// Default: treat as a query anyway, at the lowest confidence.
	return Classification{
		HasQuery:   true,
		QueryText:  text,
		Confidence: ConfidenceDefault,
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
