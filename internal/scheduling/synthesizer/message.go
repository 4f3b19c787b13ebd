package synthesizer

import (
	"fmt"
	"strings"
)

// ComposeMessage builds the user-facing reminder text from the raw
// instruction. The phrasing is chosen from the text alone, independent of
// which rule produced the timestamp, and the same inputs always produce the
// same output.
//
// Priority: numbered after-meal offset (hour phrasing when the offset is a
// positive multiple of 60), generic after-meal, before-bedtime, fallback.
func ComposeMessage(name, action, inst string) string {
	compact := stripSpace(inst)

	if mins, ok := afterMealOffsetMinutes(compact); ok {
		if mins >= 60 && mins%60 == 0 {
			return fmt.Sprintf("식사 %d시간 후 %s %s 잊지 마세요, 꼭이요!", mins/60, name, action)
		}
		return fmt.Sprintf("식사 %d분 후 %s %s 잊지 마세요, 꼭이요!", mins, name, action)
	}
	if strings.Contains(compact, markerAfterMeal) {
		return fmt.Sprintf("식사 후 %s %s 잊지 마세요, 꼭이요!", name, action)
	}
	if strings.Contains(compact, markerBeforeSleep) {
		return fmt.Sprintf("취침 전 %s %s 잊지 마세요, 꼭이요!", name, action)
	}
	return fmt.Sprintf("%s %s 시간이에요, 꼭이요!", name, action)
}
