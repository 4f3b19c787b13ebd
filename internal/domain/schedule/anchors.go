package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// MealTimes holds the user's meal anchors as local HH:MM wall-clock times.
type MealTimes struct {
	Breakfast string `json:"breakfast"`
	Lunch     string `json:"lunch"`
	Dinner    string `json:"dinner"`
}

// WakeSleep holds the user's wake and sleep anchors as local HH:MM times.
type WakeSleep struct {
	Wake  string `json:"wake"`
	Sleep string `json:"sleep"`
}

// Anchors combines the daily rhythm reference points all dose timestamps
// derive from. All times are interpreted in the single run-wide time zone.
type Anchors struct {
	Meals     MealTimes `json:"meal_times"`
	WakeSleep WakeSleep `json:"wake_sleep"`
}

// DefaultAnchors returns the anchor times used when the caller supplies
// none.
func DefaultAnchors() Anchors {
	return Anchors{
		Meals:     MealTimes{Breakfast: "08:00", Lunch: "12:30", Dinner: "19:00"},
		WakeSleep: WakeSleep{Wake: "08:00", Sleep: "22:00"},
	}
}

// Validate checks every anchor parses as HH:MM.
func (a *Anchors) Validate() error {
	for name, v := range map[string]string{
		"breakfast": a.Meals.Breakfast,
		"lunch":     a.Meals.Lunch,
		"dinner":    a.Meals.Dinner,
		"wake":      a.WakeSleep.Wake,
		"sleep":     a.WakeSleep.Sleep,
	} {
		if _, _, err := ParseHHMM(v); err != nil {
			return fmt.Errorf("anchor %s: %w", name, err)
		}
	}
	return nil
}

// ParseHHMM parses a local wall-clock time in HH:MM form.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
