package cropsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// vegetativeCrop builds a mid-growth crop where irrigation is expected
// every 4 days, fertilization every 15, pest checks every 6.
func vegetativeCrop(now time.Time) *CropState {
	state := NewCropState("c1", "wheat", now.AddDate(0, 0, -50))
	state.DurationDays = 120
	state.GrowthPercent = 30 // vegetative
	return state
}

func TestScheduleNext_MostOverdueWins(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	state := vegetativeCrop(now)
	state.LastEventAt = map[EventType]time.Time{
		EventIrrigation:    now.AddDate(0, 0, -10), // 6 days overdue
		EventFertilization: now.AddDate(0, 0, -40), // 25 days overdue
		EventPestCheck:     now.AddDate(0, 0, -2),  // not due
	}

	next := NewEngine().scheduleNext(state, now)
	assert.Equal(t, EventFertilization, next.Type)
	assert.Zero(t, next.DaysUntil, "an overdue event is due immediately")
	assert.Equal(t, now, next.DueDate)
}

func TestScheduleNext_TieBreaksByPriority(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	state := vegetativeCrop(now)
	state.LastEventAt = map[EventType]time.Time{
		EventIrrigation:    now.AddDate(0, 0, -20), // margin 16
		EventFertilization: now.AddDate(0, 0, -31), // margin 16
		EventPestCheck:     now.AddDate(0, 0, -1),
	}

	next := NewEngine().scheduleNext(state, now)
	assert.Equal(t, EventIrrigation, next.Type, "equal overdue margins resolve to irrigation first")
}

func TestScheduleNext_SoonestUpcomingWhenNoneDue(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	state := vegetativeCrop(now)
	state.LastEventAt = map[EventType]time.Time{
		EventIrrigation:    now.AddDate(0, 0, -1), // due in 3
		EventFertilization: now.AddDate(0, 0, -1), // due in 14
		EventPestCheck:     now.AddDate(0, 0, -1), // due in 5
	}

	next := NewEngine().scheduleNext(state, now)
	assert.Equal(t, EventIrrigation, next.Type)
	assert.Equal(t, 3, next.DaysUntil)
	assert.Equal(t, now.AddDate(0, 0, 3), next.DueDate)
	assert.NotEmpty(t, next.Description)
}

func TestScheduleNext_HarvestOverride(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	state := vegetativeCrop(now)
	state.GrowthPercent = 96

	next := NewEngine().scheduleNext(state, now)
	assert.Equal(t, EventHarvest, next.Type)
	assert.Zero(t, next.DaysUntil)
}

func TestStageSchedules_CoverAllStagesAndEvents(t *testing.T) {
	stages := []Stage{
		StageGermination, StageSeedling, StageVegetative, StageTillering,
		StageFlowering, StageGrainFilling, StageMaturity,
	}

	for _, stage := range stages {
		schedules, ok := stageSchedules[stage]
		assert.True(t, ok, "stage %s missing from schedule table", stage)
		for _, event := range schedulePriority {
			sched, ok := schedules[event]
			assert.True(t, ok, "stage %s missing %s cadence", stage, event)
			assert.Positive(t, sched.frequencyDays)
			assert.NotEmpty(t, sched.purpose)
		}
	}
}
