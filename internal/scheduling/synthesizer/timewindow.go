package synthesizer

import (
	"time"

	"github.com/upmed/go-remind/internal/domain/schedule"
)

// timeAt places an HH:MM anchor on the given day in the given zone. Anchors
// are validated before synthesis starts, so a parse failure here resolves
// to midnight rather than aborting the schedule.
func timeAt(day time.Time, hhmm string, loc *time.Location) time.Time {
	h, m, _ := schedule.ParseHHMM(hhmm)
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc)
}

// rolloverIfPast shifts a candidate forward by one day when it falls at or
// before now. Applies only on day 0 of a regimen; later days are future
// dates by construction.
func rolloverIfPast(t, now time.Time, onlyIfToday bool) time.Time {
	if onlyIfToday && !t.After(now) {
		return t.Add(24 * time.Hour)
	}
	return t
}

// evenlySpaced returns count timestamps from start to end with a constant
// step of floor((end-start)/(count-1)) seconds. Remainder seconds are
// dropped, so the last element lands exactly on end only when the division
// is exact. count <= 1 collapses to just the start.
func evenlySpaced(start, end time.Time, count int) []time.Time {
	if count <= 1 {
		return []time.Time{start}
	}
	total := int64(end.Sub(start) / time.Second)
	if total < 1 {
		total = 1
	}
	step := total / int64(count-1)
	out := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, start.Add(time.Duration(int64(i)*step)*time.Second))
	}
	return out
}

// NextOccurrence resolves an HH:MM wall-clock time to today's instance, or
// tomorrow's when today's has already passed.
func NextOccurrence(hhmm string, now time.Time, loc *time.Location) (time.Time, error) {
	h, m, err := schedule.ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	now = now.In(loc)
	y, mo, d := now.Date()
	t := time.Date(y, mo, d, h, m, 0, 0, loc)
	if !t.After(now) {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}
