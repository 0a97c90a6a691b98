package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fasalsetu/agrichat/cropsim"
)

func TestEventSummary(t *testing.T) {
	state := cropsim.NewCropState("crop-1", "wheat", time.Now().AddDate(0, 0, -40))
	state.GrowthPercent = 41.98
	state.NextEvent = &cropsim.NextEvent{
		Type:        cropsim.EventIrrigation,
		DueDate:     time.Now().AddDate(0, 0, 4),
		DaysUntil:   4,
		Description: "maintain soil moisture",
	}

	res := &cropsim.GrowthResult{
		Event:            cropsim.EventFertilization,
		Boost:            1.98,
		NewGrowthPercent: 41.98,
	}

	msg := eventSummary(state, res)

	assert.Contains(t, msg, "fertilization")
	assert.Contains(t, msg, "wheat")
	assert.Contains(t, msg, "41.98%")
	assert.Contains(t, msg, "irrigation")
	assert.Contains(t, msg, "4 day(s)")
}

func TestEventSummary_NoNextEvent(t *testing.T) {
	state := cropsim.NewCropState("crop-1", "rice", time.Now().AddDate(0, 0, -5))
	state.GrowthPercent = 3.5

	res := &cropsim.GrowthResult{Event: cropsim.EventIrrigation}

	msg := eventSummary(state, res)
	assert.Contains(t, msg, "rice")
	assert.NotContains(t, msg, "Next up")
}
