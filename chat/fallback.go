package chat

import (
	"fmt"
	"strings"

	"github.com/fasalsetu/agrichat/upstream"
)

// Fallback answer texts, evaluated as an ordered cascade. The last rule
// always matches, so Synthesize never returns an empty answer.
const (
	fallbackCropSelection = "Choosing the right crop depends on your region, season, and water availability. " +
		"As a starting point, pick a variety recommended for your district by your local agricultural office, " +
		"and prefer certified seed of a short-duration variety if your sowing window is already late."

	fallbackPest = "For pest and disease problems, start with integrated pest management: inspect a few plants " +
		"across the field, identify the pest before spraying, remove affected parts where practical, and use " +
		"targeted treatment only if the infestation crosses a damaging level. Avoid broad-spectrum sprays as a first resort."

	fallbackFertilizer = "Before applying fertilizer, get a soil test if you can; it tells you exactly which " +
		"nutrients your field is short of. As a general rule, split nitrogen into two or three doses rather than " +
		"applying it all at sowing, and do not exceed the recommended dose for your crop."

	fallbackGeneric = "I want to make sure I give you useful advice. Could you share more details about your " +
		"crop, your location, and what you are seeing in the field?"
)

// Synthesize produces a deterministic advisory answer from whatever the
// earlier pipeline stages managed to learn. It is the terminal fallback:
// it never errors and never returns an empty string. act may be nil when
// even the planner produced nothing.
func Synthesize(query string, act *upstream.ActResult) string {
	if act != nil && len(act.Missing) > 0 {
		return missingFieldsPrompt(act.Missing)
	}

	q := strings.ToLower(query)
	var intent string
	if act != nil {
		intent = strings.ToLower(act.Intent)
	}

	switch {
	case strings.Contains(intent, "variety") || strings.Contains(intent, "crop_selection") ||
		containsAnyOf(q, "which crop", "what crop", "which variety", "what variety", "which seed", "what to sow"):
		return fallbackCropSelection
	case strings.Contains(intent, "pest") ||
		containsAnyOf(q, "pest", "insect", "disease", "fungus", "spray"):
		return fallbackPest
	case strings.Contains(intent, "fertili") ||
		containsAnyOf(q, "fertili", "urea", "npk", "dap", "nutrient", "manure"):
		return fallbackFertilizer
	default:
		return fallbackGeneric
	}
}

// missingFieldsPrompt asks for exactly the fields the planner flagged.
func missingFieldsPrompt(missing []string) string {
	return fmt.Sprintf("To give you accurate advice, I still need a few details: %s. Could you share %s?",
		strings.Join(missing, ", "), humanJoin(missing))
}

func humanJoin(items []string) string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = "your " + strings.ReplaceAll(item, "_", " ")
	}
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func containsAnyOf(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
