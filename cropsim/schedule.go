package cropsim

import (
	"fmt"
	"time"
)

// eventSchedule is the expected cadence and purpose of one event type
// within a growth stage.
type eventSchedule struct {
	frequencyDays int
	purpose       string
}

// schedulePriority breaks ties deterministically: when two events are
// equally overdue (or equally soon), the earlier entry wins.
var schedulePriority = []EventType{
	EventIrrigation,
	EventFertilization,
	EventPestCheck,
}

// stageSchedules defines the expected event cadence per growth stage.
var stageSchedules = map[Stage]map[EventType]eventSchedule{
	StageGermination: {
		EventIrrigation:    {2, "Light watering to keep the seedbed moist"},
		EventFertilization: {10, "Starter dose to support root establishment"},
		EventPestCheck:     {7, "Check for seedling damping-off and soil pests"},
	},
	StageSeedling: {
		EventIrrigation:    {3, "Regular watering while roots are shallow"},
		EventFertilization: {12, "First nitrogen split for early leaf growth"},
		EventPestCheck:     {7, "Scout for cutworms and early leaf spots"},
	},
	StageVegetative: {
		EventIrrigation:    {4, "Deep watering to push root development"},
		EventFertilization: {15, "Main nutrient dose for canopy build-up"},
		EventPestCheck:     {6, "Inspect leaves for borers and blight"},
	},
	StageTillering: {
		EventIrrigation:    {4, "Keep moisture steady through tillering"},
		EventFertilization: {18, "Top dressing to support tiller formation"},
		EventPestCheck:     {6, "Watch for stem borers and rust patches"},
	},
	StageFlowering: {
		EventIrrigation:    {3, "Critical-stage watering, flowers abort when dry"},
		EventFertilization: {20, "Light potash dose for flower retention"},
		EventPestCheck:     {5, "Daily-level vigilance for pod and flower pests"},
	},
	StageGrainFilling: {
		EventIrrigation:    {5, "Moderate watering while grains fill"},
		EventFertilization: {25, "Foliar feed only if deficiency shows"},
		EventPestCheck:     {7, "Check grain heads for sucking pests"},
	},
	StageMaturity: {
		EventIrrigation:    {7, "Taper off watering before harvest"},
		EventFertilization: {30, "No further feeding needed at maturity"},
		EventPestCheck:     {10, "Final check for storage pests before harvest"},
	},
}

// harvestReadyGrowth is the growth percent at which harvesting overrides
// all other recommendations.
const harvestReadyGrowth = 95.0

// harvestWindowDays triggers the harvest recommendation this close to the
// crop's full maturity period.
const harvestWindowDays = 5

// scheduleNext picks the next recommended event for the crop: the most
// overdue event if any are due, otherwise the soonest upcoming one. A crop
// that is ready for harvest overrides both.
func (e *Engine) scheduleNext(state *CropState, now time.Time) NextEvent {
	das := state.DaysAfterSowing(now)
	if state.GrowthPercent >= harvestReadyGrowth || das >= state.DurationDays-harvestWindowDays {
		return NextEvent{
			Type:        EventHarvest,
			DueDate:     now,
			DaysUntil:   0,
			Description: fmt.Sprintf("Your %s is ready for harvesting", state.Name),
		}
	}

	schedules := stageSchedules[state.Stage()]

	var (
		bestDue        EventType
		bestDueMargin  = -1
		bestSoon       EventType
		bestSoonIn     = 0
		haveSoon       bool
	)

	for _, event := range schedulePriority {
		sched := schedules[event]
		since := state.daysSinceEvent(event, now)
		margin := since - sched.frequencyDays

		if margin >= 0 {
			// Due: keep the largest overdue margin, first-in-priority on ties.
			if margin > bestDueMargin {
				bestDueMargin = margin
				bestDue = event
			}
			continue
		}

		in := -margin
		if !haveSoon || in < bestSoonIn {
			haveSoon = true
			bestSoonIn = in
			bestSoon = event
		}
	}

	if bestDueMargin >= 0 {
		return NextEvent{
			Type:        bestDue,
			DueDate:     now,
			DaysUntil:   0,
			Description: schedules[bestDue].purpose,
		}
	}

	return NextEvent{
		Type:        bestSoon,
		DueDate:     now.AddDate(0, 0, bestSoonIn),
		DaysUntil:   bestSoonIn,
		Description: schedules[bestSoon].purpose,
	}
}
