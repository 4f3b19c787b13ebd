package synthesizer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/upmed/go-remind/internal/domain/schedule"
)

// HabitMessage is one wellness reminder text pair supplied by the upstream
// message generator.
type HabitMessage struct {
	Habit    string `json:"habit"`
	Positive string `json:"positive"`
}

// habitSlots are the fixed daily fire times for wellness reminders.
var habitSlots = []string{"10:00", "16:00", "19:00"}

// defaultHabits pad the supplied messages up to the three fixed slots.
var defaultHabits = []HabitMessage{
	{Habit: "물 한 잔으로 컨디션을 챙겨요 💧", Positive: "오늘도 충분히 잘하고 있어요."},
	{Habit: "잠깐 눈 쉬고 어깨도 풀어줘요 🌿", Positive: "작은 휴식이 큰 힘이 돼요."},
	{Habit: "저녁엔 화면 줄이고 편히 쉬어요 😊", Positive: "회복은 천천히 와도 괜찮아요."},
}

// BuildHabitEntries maps habit messages onto the fixed daily slots. Each
// slot fires today at its HH:MM, or tomorrow when that moment has already
// passed. Fewer than three supplied messages are padded with defaults;
// extras beyond the slots are ignored.
func (s *Synthesizer) BuildHabitEntries(msgs []HabitMessage, now time.Time) []schedule.Entry {
	for len(msgs) < len(habitSlots) {
		msgs = append(msgs, defaultHabits[len(msgs)])
	}

	entries := make([]schedule.Entry, 0, len(habitSlots))
	for i, slot := range habitSlots {
		fireAt, err := NextOccurrence(slot, now, s.loc)
		if err != nil {
			continue
		}
		msg := strings.TrimSpace(strings.TrimSpace(msgs[i].Habit) + " " + strings.TrimSpace(msgs[i].Positive))
		entries = append(entries, schedule.Entry{
			ID:      uuid.New().String(),
			FireAt:  &fireAt,
			Type:    schedule.TypeHabit,
			Message: msg,
			Meta: schedule.Meta{
				Rule: "habit_fixed_time",
				Kind: "habit_" + strings.ReplaceAll(slot, ":", ""),
			},
		})
	}
	return entries
}
