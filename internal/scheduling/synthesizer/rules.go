package synthesizer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/upmed/go-remind/internal/domain/schedule"
)

// Instruction markers from the source locale. All matching runs against the
// instruction text with every whitespace rune removed, so inconsistent
// spacing in the extracted text cannot break a match.
const (
	markerAfterMeal    = "식후"   // after a meal
	markerBeforeSleep  = "취침전"  // before bedtime
	markerEveryNHours  = "시간마다" // every N hours
	unitMinuteSuffix   = "분"
	afterMealDefaulted = 20 * time.Minute
	beforeSleepLead    = 30 * time.Minute
)

// afterMealOffsetRe extracts the numeric offset from forms like 식후30분 and
// 식후1시간.
var afterMealOffsetRe = regexp.MustCompile(`식후(\d+)(분|시간)`)

// dayContext carries everything a rule needs to compute one day's
// candidates.
type dayContext struct {
	day         time.Time
	now         time.Time
	loc         *time.Location
	anchors     schedule.Anchors
	compact     string
	perDay      int
	onlyIfToday bool
}

// rule pairs a marker predicate with its candidate formula. The chain is
// evaluated in order and the first match wins, so the combo rule must stay
// ahead of the narrower after-meal rules.
type rule struct {
	name       string
	matches    func(compact string) bool
	candidates func(dc dayContext) []time.Time
}

var ruleChain = []rule{
	{
		name: "after_meal_plus_before_sleep",
		matches: func(c string) bool {
			return strings.Contains(c, markerBeforeSleep) && strings.Contains(c, markerAfterMeal)
		},
		candidates: func(dc dayContext) []time.Time {
			targets := []time.Time{
				dc.mealAt(dc.anchors.Meals.Breakfast).Add(afterMealDefaulted),
				dc.mealAt(dc.anchors.Meals.Lunch).Add(afterMealDefaulted),
				dc.mealAt(dc.anchors.Meals.Dinner).Add(afterMealDefaulted),
				dc.mealAt(dc.anchors.WakeSleep.Sleep).Add(-beforeSleepLead),
			}
			return dc.rollAndCap(targets)
		},
	},
	{
		name: "after_meal_numbered",
		matches: func(c string) bool {
			_, ok := afterMealOffsetMinutes(c)
			return ok
		},
		candidates: func(dc dayContext) []time.Time {
			mins, _ := afterMealOffsetMinutes(dc.compact)
			offset := time.Duration(mins) * time.Minute
			targets := []time.Time{
				dc.mealAt(dc.anchors.Meals.Breakfast).Add(offset),
				dc.mealAt(dc.anchors.Meals.Lunch).Add(offset),
				dc.mealAt(dc.anchors.Meals.Dinner).Add(offset),
			}
			return dc.rollAndCap(targets)
		},
	},
	{
		// The numeric N in "every N hours" is deliberately not used for
		// spacing; the source system always divides the waking window by
		// timesPerDay. Only the rule tag distinguishes this from the
		// fallback.
		name: "times_per_day_spread",
		matches: func(c string) bool {
			return strings.Contains(c, markerEveryNHours)
		},
		candidates: func(dc dayContext) []time.Time { return dc.spreadAcrossWakingWindow() },
	},
	{
		name: "after_meal_default",
		matches: func(c string) bool {
			return strings.Contains(c, markerAfterMeal)
		},
		candidates: func(dc dayContext) []time.Time {
			targets := []time.Time{
				dc.mealAt(dc.anchors.Meals.Breakfast).Add(afterMealDefaulted),
				dc.mealAt(dc.anchors.Meals.Lunch).Add(afterMealDefaulted),
				dc.mealAt(dc.anchors.Meals.Dinner).Add(afterMealDefaulted),
			}
			return dc.rollAndCap(targets)
		},
	},
	{
		name:       "fallback_spread",
		matches:    func(string) bool { return true },
		candidates: func(dc dayContext) []time.Time { return dc.spreadAcrossWakingWindow() },
	},
}

// classify returns the first matching rule. The chain ends in a
// catch-all, so there is always a winner.
func classify(compact string) rule {
	for _, r := range ruleChain {
		if r.matches(compact) {
			return r
		}
	}
	return ruleChain[len(ruleChain)-1]
}

// mealAt resolves an HH:MM anchor on the context's day.
func (dc dayContext) mealAt(hhmm string) time.Time {
	return timeAt(dc.day, hhmm, dc.loc)
}

// rollAndCap applies the day-0 rollover to every candidate and then keeps
// only the first perDay of them. The earliest candidates win; later slots
// are silently dropped when perDay is smaller than the formula's output.
func (dc dayContext) rollAndCap(targets []time.Time) []time.Time {
	for i, t := range targets {
		targets[i] = rolloverIfPast(t, dc.now, dc.onlyIfToday)
	}
	if len(targets) > dc.perDay {
		targets = targets[:dc.perDay]
	}
	return targets
}

// spreadAcrossWakingWindow divides the wake-to-sleep window into perDay
// evenly spaced candidates. The window start is rolled over on day 0 and
// the end is re-derived on the rolled date, adding a day when sleep falls
// at or before wake on the clock.
func (dc dayContext) spreadAcrossWakingWindow() []time.Time {
	start := timeAt(dc.day, dc.anchors.WakeSleep.Wake, dc.loc)
	start = rolloverIfPast(start, dc.now, dc.onlyIfToday)

	sleepH, sleepM, _ := schedule.ParseHHMM(dc.anchors.WakeSleep.Sleep)
	y, m, d := start.Date()
	end := time.Date(y, m, d, sleepH, sleepM, 0, 0, dc.loc)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return evenlySpaced(start, end, dc.perDay)
}

// afterMealOffsetMinutes extracts the numbered after-meal offset in
// minutes. 식후1시간 converts to 60.
func afterMealOffsetMinutes(compact string) (int, bool) {
	m := afterMealOffsetRe.FindStringSubmatch(compact)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if m[2] != unitMinuteSuffix {
		n *= 60
	}
	return n, true
}

// stripSpace removes every whitespace rune.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func trimOuterSpace(s string) string { return strings.TrimSpace(s) }
