package cropsim

import (
	"fmt"
	"math"
	"time"
)

// Verdict is the cooldown guard's decision on a detected event.
type Verdict struct {
	Permitted bool   `json:"permitted"`
	WaitDays  int    `json:"wait_days,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CheckCooldown decides whether a new event may be applied to the crop now.
// It is the sole gate on the restriction window and must run before any
// growth mutation; a rejection applies no partial effects. The check is
// idempotent: same state and same clock give the same verdict.
func CheckCooldown(state *CropState, now time.Time) Verdict {
	r := state.Restriction
	if !r.Active || r.Until == nil || !now.Before(*r.Until) {
		return Verdict{Permitted: true}
	}

	waitDays := int(math.Ceil(r.Until.Sub(now).Hours() / 24))
	if waitDays < 1 {
		waitDays = 1
	}

	msg := fmt.Sprintf("Your %s does not need attention yet. Please wait %d more day(s).", state.Name, waitDays)
	if state.NextEvent != nil {
		msg = fmt.Sprintf("Your %s does not need attention yet. Next up: %s on %s (%d day(s) from now).",
			state.Name, state.NextEvent.Type, state.NextEvent.DueDate.Format("02 Jan 2006"), waitDays)
	}

	return Verdict{
		Permitted: false,
		WaitDays:  waitDays,
		Message:   msg,
	}
}
