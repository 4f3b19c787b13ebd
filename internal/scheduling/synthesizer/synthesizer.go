// Package synthesizer turns free-text dosage instructions and the user's
// daily rhythm anchors into concrete reminder timestamps.
package synthesizer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/upmed/go-remind/internal/domain/prescription"
	"github.com/upmed/go-remind/internal/domain/schedule"
)

// Synthesizer computes reminder schedules for medication orders. It is
// stateless apart from the run-wide time zone; Synthesize is deterministic
// for a fixed now.
type Synthesizer struct {
	loc *time.Location
}

// New creates a synthesizer bound to the run-wide time zone.
func New(loc *time.Location) *Synthesizer {
	if loc == nil {
		loc = time.Local
	}
	return &Synthesizer{loc: loc}
}

// Location returns the time zone the synthesizer computes in.
func (s *Synthesizer) Location() *time.Location { return s.loc }

// Synthesize produces the full reminder schedule for one medication order:
// at most TimesPerDayCount entries per day, for TotalDaysCount consecutive
// days starting on now's date. Malformed instruction text is never an
// error; it falls through to the fallback spread rule.
func (s *Synthesizer) Synthesize(order prescription.MedicationOrder, anchors schedule.Anchors, now time.Time) ([]schedule.Entry, error) {
	if err := anchors.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anchors: %w", err)
	}

	now = now.In(s.loc)
	name := order.CleanName()
	inst := trimOuterSpace(order.Instructions)
	compact := stripSpace(inst)
	action := order.ActionVerb()
	message := ComposeMessage(name, action, inst)

	perDay := order.TimesPerDayCount()
	days := order.TotalDaysCount()

	r := classify(compact)

	var entries []schedule.Entry
	for dayIdx := 0; dayIdx < days; dayIdx++ {
		dc := dayContext{
			day:         now.AddDate(0, 0, dayIdx),
			now:         now,
			loc:         s.loc,
			anchors:     anchors,
			compact:     compact,
			perDay:      perDay,
			onlyIfToday: dayIdx == 0,
		}
		for _, fireAt := range r.candidates(dc) {
			t := fireAt
			entries = append(entries, schedule.Entry{
				ID:      uuid.New().String(),
				FireAt:  &t,
				Type:    schedule.TypeMedication,
				Message: message,
				Meta: schedule.Meta{
					Rule:            r.name,
					DrugName:        name,
					RawInstructions: inst,
					Day:             dayIdx + 1,
				},
			})
		}
	}
	return entries, nil
}

// SynthesizeDocument runs Synthesize over every medication in a validated
// document. Per-order problems never abort the batch.
func (s *Synthesizer) SynthesizeDocument(doc *prescription.Document, anchors schedule.Anchors, now time.Time) ([]schedule.Entry, error) {
	if err := anchors.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anchors: %w", err)
	}

	var all []schedule.Entry
	for _, med := range doc.Medications {
		entries, err := s.Synthesize(med, anchors, now)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}
