// Package cropsim implements the deterministic crop simulation: message
// classification into farming events, cooldown gating, bounded growth
// increments, and next-event scheduling.
package cropsim

import (
	"math"
	"strings"
	"time"
)

// EventType identifies a farming action applied to a crop.
type EventType string

// Farming event types recognized by the simulation.
const (
	EventIrrigation    EventType = "irrigation"
	EventFertilization EventType = "fertilization"
	EventPestCheck     EventType = "pest_check"
	EventHarvest       EventType = "harvest"
	// EventDailyCare is the unclassified catch-all care action.
	EventDailyCare EventType = "daily_care"
)

// Stage is the growth stage derived from growth percent.
type Stage string

// Growth stages in order.
const (
	StageGermination  Stage = "germination"
	StageSeedling     Stage = "seedling"
	StageVegetative   Stage = "vegetative"
	StageTillering    Stage = "tillering"
	StageFlowering    Stage = "flowering"
	StageGrainFilling Stage = "grain_filling"
	StageMaturity     Stage = "maturity"
)

// stageThresholds maps upper growth-percent bounds to stages. A crop at
// exactly a boundary belongs to the next stage.
var stageThresholds = []struct {
	upTo  float64
	stage Stage
}{
	{10, StageGermination},
	{25, StageSeedling},
	{45, StageVegetative},
	{65, StageTillering},
	{85, StageFlowering},
	{100, StageGrainFilling},
}

// StageForGrowth derives the stage from a growth percentage.
func StageForGrowth(percent float64) Stage {
	for _, t := range stageThresholds {
		if percent < t.upTo {
			return t.stage
		}
	}
	return StageMaturity
}

// cropDurations maps crop names to their maturity period in days.
var cropDurations = map[string]int{
	"wheat":     120,
	"rice":      135,
	"maize":     100,
	"cotton":    160,
	"sugarcane": 365,
	"mustard":   110,
	"potato":    90,
	"onion":     130,
	"tomato":    95,
	"soybean":   105,
	"chickpea":  115,
	"groundnut": 125,
}

// defaultDurationDays is used for crops not in the lookup table.
const defaultDurationDays = 120

// DurationDaysFor returns the maturity period for a crop name.
func DurationDaysFor(name string) int {
	if d, ok := cropDurations[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d
	}
	return defaultDurationDays
}

// NextEvent is the recommended upcoming farming action for a crop.
type NextEvent struct {
	Type        EventType `json:"type"`
	DueDate     time.Time `json:"due_date"`
	DaysUntil   int       `json:"days_until"`
	Description string    `json:"description"`
}

// Restriction is the cooldown window applied after an event.
type Restriction struct {
	Active  bool       `json:"active"`
	Until   *time.Time `json:"until,omitempty"`
	Message string     `json:"message,omitempty"`
}

// CropState is the persisted growth document for one simulated crop.
// GrowthPercent only moves forward through Engine.Apply; the stage and
// days-after-sowing fields are derived on read, never stored.
type CropState struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id,omitempty"`
	Name          string                  `json:"name"`
	GrowthPercent float64                 `json:"growth_percent"`
	SownAt        time.Time               `json:"sown_at"`
	DurationDays  int                     `json:"duration_days"`
	LastEventAt   map[EventType]time.Time `json:"last_event_at"`
	NextEvent     *NextEvent              `json:"next_event,omitempty"`
	Restriction   Restriction             `json:"restriction"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// NewCropState creates a crop document sown at the given time.
func NewCropState(id, name string, sownAt time.Time) *CropState {
	return &CropState{
		ID:           id,
		Name:         name,
		SownAt:       sownAt,
		DurationDays: DurationDaysFor(name),
		LastEventAt:  make(map[EventType]time.Time),
		CreatedAt:    sownAt,
		UpdatedAt:    sownAt,
	}
}

// Stage returns the growth stage derived from the current growth percent.
func (c *CropState) Stage() Stage {
	return StageForGrowth(c.GrowthPercent)
}

// DaysAfterSowing returns whole days elapsed since sowing, never negative.
func (c *CropState) DaysAfterSowing(now time.Time) int {
	days := int(now.Sub(c.SownAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ExpectedGrowth returns the growth percent a crop of this age should have
// if it tracked its maturity schedule exactly.
func (c *CropState) ExpectedGrowth(now time.Time) float64 {
	if c.DurationDays <= 0 {
		return 100
	}
	expected := 100 * float64(c.DaysAfterSowing(now)) / float64(c.DurationDays)
	return math.Min(100, expected)
}

// daysSinceEvent returns whole days since the last occurrence of an event
// type, or the crop age when the event has never happened.
func (c *CropState) daysSinceEvent(event EventType, now time.Time) int {
	last, ok := c.LastEventAt[event]
	if !ok || last.IsZero() {
		return c.DaysAfterSowing(now)
	}
	days := int(now.Sub(last).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
