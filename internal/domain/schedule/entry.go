// Package schedule defines the runtime schedule entities shared by the
// synthesizer, the dispatch store and the notification sinks.
package schedule

import "time"

// Type discriminates reminder entries by origin.
type Type string

const (
	// TypeMedication marks entries produced by the schedule synthesizer.
	TypeMedication Type = "MED"
	// TypeHabit marks fixed-time wellness reminders from external producers.
	TypeHabit Type = "HABIT"
)

// Meta carries the provenance tag attached to every entry. Rule is always
// set; the medication fields are set only on MED entries and Kind only on
// HABIT entries.
type Meta struct {
	Rule            string `json:"rule"`
	DrugName        string `json:"drug_name,omitempty"`
	RawInstructions string `json:"raw_instructions,omitempty"`
	Day             int    `json:"day,omitempty"`
	Kind            string `json:"kind,omitempty"`
}

// Entry is a single pending reminder. FireAt is immutable after creation;
// Sent transitions false to true exactly once, recording SentAt. A nil
// FireAt is a valid state for externally supplied entries without a
// resolved time and makes the entry inert for dispatch.
type Entry struct {
	ID      string     `json:"id"`
	FireAt  *time.Time `json:"fire_at,omitempty"`
	Type    Type       `json:"type"`
	Message string     `json:"message"`
	Meta    Meta       `json:"meta"`
	Sent    bool       `json:"sent"`
	SentAt  *time.Time `json:"sent_at,omitempty"`
}
