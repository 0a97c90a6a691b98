package cropsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCooldown_Permitted(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	t.Run("no restriction", func(t *testing.T) {
		state := NewCropState("c1", "wheat", now.AddDate(0, 0, -10))
		verdict := CheckCooldown(state, now)
		assert.True(t, verdict.Permitted)
	})

	t.Run("expired restriction", func(t *testing.T) {
		state := NewCropState("c1", "wheat", now.AddDate(0, 0, -10))
		until := now.Add(-time.Hour)
		state.Restriction = Restriction{Active: true, Until: &until}

		verdict := CheckCooldown(state, now)
		assert.True(t, verdict.Permitted)
	})
}

func TestCheckCooldown_Rejected(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	state := NewCropState("c1", "wheat", now.AddDate(0, 0, -10))

	until := now.Add(25 * time.Hour)
	state.Restriction = Restriction{Active: true, Until: &until}
	state.NextEvent = &NextEvent{
		Type:        EventFertilization,
		DueDate:     until,
		DaysUntil:   2,
		Description: "Top dressing",
	}

	verdict := CheckCooldown(state, now)
	require.False(t, verdict.Permitted)
	assert.Equal(t, 2, verdict.WaitDays, "25 hours rounds up to 2 days")
	assert.Contains(t, verdict.Message, "fertilization")
	assert.NotEmpty(t, verdict.Message)
}

func TestCheckCooldown_IdempotentUnderRejection(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	state := NewCropState("c1", "rice", now.AddDate(0, 0, -20))

	until := now.Add(48 * time.Hour)
	state.Restriction = Restriction{Active: true, Until: &until}

	first := CheckCooldown(state, now)
	second := CheckCooldown(state, now)

	require.False(t, first.Permitted)
	assert.Equal(t, first, second, "same state and clock must give the same verdict")
}

func TestCheckCooldown_RejectionAppliesNoEffects(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	state := NewCropState("c1", "wheat", now.AddDate(0, 0, -10))
	state.GrowthPercent = 12

	until := now.Add(24 * time.Hour)
	state.Restriction = Restriction{Active: true, Until: &until}

	before := *state
	_ = CheckCooldown(state, now)

	assert.Equal(t, before.GrowthPercent, state.GrowthPercent)
	assert.Equal(t, before.Restriction, state.Restriction)
}
