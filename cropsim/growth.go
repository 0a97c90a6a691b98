package cropsim

import (
	"math"
	"time"
)

// daysEquivalent maps an event type to how many days of nominal growth the
// action is worth.
var daysEquivalent = map[EventType]float64{
	EventIrrigation:    1.5,
	EventFertilization: 3.0,
	EventPestCheck:     0.8,
}

// defaultDaysEquivalent covers unclassified "daily care" actions.
const defaultDaysEquivalent = 1.0

// headroomAboveExpected caps how far event boosts can push a crop past its
// age-expected growth.
const headroomAboveExpected = 20.0

// GrowthResult describes the outcome of applying a permitted event.
type GrowthResult struct {
	Event            EventType `json:"event"`
	Boost            float64   `json:"boost"`
	NewGrowthPercent float64   `json:"new_growth_percent"`
	PreviousStage    Stage     `json:"previous_stage"`
	NewStage         Stage     `json:"new_stage"`
	NextEvent        NextEvent `json:"next_event"`
	RestrictionDays  int       `json:"restriction_days"`
}

// Engine applies farming events to crop state. All arithmetic is
// deterministic; time flows in through the caller.
type Engine struct{}

// NewEngine creates a growth engine.
func NewEngine() *Engine {
	return &Engine{}
}

// efficiencyMultiplier models diminishing returns: growth is biologically
// harder to accelerate the closer the crop is to maturity.
func efficiencyMultiplier(growthPercent float64) float64 {
	switch {
	case growthPercent < 20:
		return 1.3
	case growthPercent < 50:
		return 1.1
	case growthPercent < 80:
		return 0.9
	default:
		return 0.4
	}
}

// timingMultiplier rewards catching up and penalizes crops already ahead of
// schedule. A gap of exactly +5 falls in the penalized band.
func timingMultiplier(growthGap float64) float64 {
	switch {
	case growthGap < -15:
		return 1.4
	case growthGap < -5:
		return 1.2
	case growthGap > 15:
		return 0.3
	case growthGap >= 5:
		return 0.6
	default:
		return 1.0
	}
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeBoost returns the bounded growth increment for a permitted event
// without mutating the state.
func (e *Engine) ComputeBoost(state *CropState, event EventType, now time.Time) float64 {
	if state.DurationDays <= 0 {
		return 0
	}

	expected := state.ExpectedGrowth(now)
	baseDailyRate := 100 / float64(state.DurationDays)

	equivalent, ok := daysEquivalent[event]
	if !ok {
		equivalent = defaultDaysEquivalent
	}

	baseBoost := baseDailyRate * equivalent
	growthGap := state.GrowthPercent - expected

	boost := baseBoost * efficiencyMultiplier(state.GrowthPercent) * timingMultiplier(growthGap)

	// Cap so the new growth never exceeds expected + headroom (or 100).
	ceiling := math.Min(100, expected+headroomAboveExpected)
	if state.GrowthPercent+boost > ceiling {
		boost = ceiling - state.GrowthPercent
	}
	if boost < 0 {
		boost = 0
	}

	return round2(boost)
}

// Apply records a permitted event on the crop: growth is advanced by the
// bounded boost, the event timestamp is stored, the next recommended event
// is scheduled, and the follow-up restriction window is set. The cooldown
// guard must have permitted the event before this is called.
func (e *Engine) Apply(state *CropState, event EventType, now time.Time) GrowthResult {
	previousStage := state.Stage()

	boost := e.ComputeBoost(state, event, now)
	newGrowth := math.Min(100, state.GrowthPercent+boost)

	state.GrowthPercent = newGrowth
	if state.LastEventAt == nil {
		state.LastEventAt = make(map[EventType]time.Time)
	}
	state.LastEventAt[event] = now

	next := e.scheduleNext(state, now)
	state.NextEvent = &next

	restrictionDays := next.DaysUntil
	if next.Type == EventHarvest {
		restrictionDays = 0
	}

	if restrictionDays > 0 {
		until := now.AddDate(0, 0, restrictionDays)
		state.Restriction = Restriction{
			Active:  true,
			Until:   &until,
			Message: next.Description,
		}
	} else {
		state.Restriction = Restriction{}
	}

	state.UpdatedAt = now

	return GrowthResult{
		Event:            event,
		Boost:            boost,
		NewGrowthPercent: newGrowth,
		PreviousStage:    previousStage,
		NewStage:         state.Stage(),
		NextEvent:        next,
		RestrictionDays:  restrictionDays,
	}
}
