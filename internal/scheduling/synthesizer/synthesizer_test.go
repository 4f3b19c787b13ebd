package synthesizer

import (
	"testing"
	"time"

	"github.com/upmed/go-remind/internal/domain/prescription"
	"github.com/upmed/go-remind/internal/domain/schedule"
)

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testAnchors() schedule.Anchors {
	return schedule.Anchors{
		Meals:     schedule.MealTimes{Breakfast: "08:00", Lunch: "12:30", Dinner: "19:00"},
		WakeSleep: schedule.WakeSleep{Wake: "08:00", Sleep: "22:00"},
	}
}

func at(loc *time.Location, y int, mo time.Month, d, h, m int) time.Time {
	return time.Date(y, mo, d, h, m, 0, 0, loc)
}

func TestPerDayCapNeverExceeded(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	now := at(loc, 2026, time.March, 2, 6, 0)

	order := prescription.MedicationOrder{
		DrugName:     "1 수면유도제",
		TimesPerDay:  "2",
		TotalDays:    "3",
		Instructions: "취침전 식후 복용", // combo rule yields 4 candidates per day
	}
	entries, err := s.Synthesize(order, testAnchors(), now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	perDay := map[int]int{}
	for _, e := range entries {
		perDay[e.Meta.Day]++
	}
	for day, n := range perDay {
		if n > 2 {
			t.Errorf("day %d has %d entries, cap is 2", day, n)
		}
	}
	if len(entries) != 6 {
		t.Errorf("expected 6 entries (2 per day x 3 days), got %d", len(entries))
	}
}

func TestDayIndexesCoverRegimen(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	now := at(loc, 2026, time.March, 2, 6, 0)

	order := prescription.MedicationOrder{
		DrugName:     "아목시실린",
		TimesPerDay:  "3",
		TotalDays:    "5",
		Instructions: "식후 30분",
	}
	entries, err := s.Synthesize(order, testAnchors(), now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	seen := map[int]bool{}
	for _, e := range entries {
		if e.Meta.Day < 1 || e.Meta.Day > 5 {
			t.Fatalf("day index %d out of range", e.Meta.Day)
		}
		seen[e.Meta.Day] = true
	}
	for day := 1; day <= 5; day++ {
		if !seen[day] {
			t.Errorf("no entries for day %d", day)
		}
	}
}

func TestDayZeroRollover(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	// 09:00, one hour past the wake anchor.
	now := at(loc, 2026, time.March, 2, 9, 0)

	order := prescription.MedicationOrder{
		DrugName:     "철분제",
		TimesPerDay:  "1",
		TotalDays:    "2",
		Instructions: "흔들어서", // no marker, fallback spread
	}
	entries, err := s.Synthesize(order, testAnchors(), now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	wantDay0 := at(loc, 2026, time.March, 3, 8, 0) // rolled past now
	wantDay1 := at(loc, 2026, time.March, 3, 8, 0) // day 1 is never rolled
	if !entries[0].FireAt.Equal(wantDay0) {
		t.Errorf("day 0 fireAt = %v, want %v", entries[0].FireAt, wantDay0)
	}
	if !entries[1].FireAt.Equal(wantDay1) {
		t.Errorf("day 1 fireAt = %v, want %v", entries[1].FireAt, wantDay1)
	}
	if entries[0].Meta.Rule != "fallback_spread" {
		t.Errorf("unexpected rule %q", entries[0].Meta.Rule)
	}
}

func TestEvenSpacingAcrossWakingWindow(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	now := at(loc, 2026, time.March, 2, 7, 0) // before wake, no rollover

	order := prescription.MedicationOrder{
		DrugName:     "해열제",
		TimesPerDay:  "3",
		TotalDays:    "1",
		Instructions: "4시간마다 복용",
	}
	entries, err := s.Synthesize(order, testAnchors(), now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// 14h window, step = 7h. The parsed "4" plays no part in the spacing.
	want := []time.Time{
		at(loc, 2026, time.March, 2, 8, 0),
		at(loc, 2026, time.March, 2, 15, 0),
		at(loc, 2026, time.March, 2, 22, 0),
	}
	for i, e := range entries {
		if !e.FireAt.Equal(want[i]) {
			t.Errorf("entry %d fireAt = %v, want %v", i, e.FireAt, want[i])
		}
		if e.Meta.Rule != "times_per_day_spread" {
			t.Errorf("entry %d rule = %q", i, e.Meta.Rule)
		}
	}
}

func TestEvenSpacingFloorsStep(t *testing.T) {
	start := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)

	got := evenlySpaced(start, end, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 timestamps, got %d", len(got))
	}
	// floor(36000/3) = 12000s; last element lands exactly on end here.
	step := 12000 * time.Second
	for i, ts := range got {
		want := start.Add(time.Duration(i) * step)
		if !ts.Equal(want) {
			t.Errorf("index %d = %v, want %v", i, ts, want)
		}
	}

	got = evenlySpaced(start, end, 1)
	if len(got) != 1 || !got[0].Equal(start) {
		t.Errorf("count=1 should collapse to start, got %v", got)
	}
}

func TestAfterMealOffsetExtraction(t *testing.T) {
	cases := []struct {
		in   string
		mins int
		ok   bool
	}{
		{"식후30분", 30, true},
		{"식후 30분", 30, true},
		{"식후1시간", 60, true},
		{"식후 1시간", 60, true},
		{"식후 90분", 90, true},
		{"식후", 0, false},
		{"취침전", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		mins, ok := afterMealOffsetMinutes(stripSpace(c.in))
		if ok != c.ok || mins != c.mins {
			t.Errorf("afterMealOffsetMinutes(%q) = (%d,%v), want (%d,%v)", c.in, mins, ok, c.mins, c.ok)
		}
	}
}

func TestNumberedAfterMealCandidates(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	now := at(loc, 2026, time.March, 2, 6, 0)

	order := prescription.MedicationOrder{
		DrugName:     "소화제",
		TimesPerDay:  "3",
		TotalDays:    "1",
		Instructions: "식후 30분",
	}
	entries, err := s.Synthesize(order, testAnchors(), now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	want := []time.Time{
		at(loc, 2026, time.March, 2, 8, 30),
		at(loc, 2026, time.March, 2, 13, 0),
		at(loc, 2026, time.March, 2, 19, 30),
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if !e.FireAt.Equal(want[i]) {
			t.Errorf("entry %d fireAt = %v, want %v", i, e.FireAt, want[i])
		}
		if e.Meta.Rule != "after_meal_numbered" {
			t.Errorf("entry %d rule = %q", i, e.Meta.Rule)
		}
	}
}

func TestComboRuleWinsOverNumbered(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	now := at(loc, 2026, time.March, 2, 6, 0)

	order := prescription.MedicationOrder{
		DrugName:     "종합감기약",
		TimesPerDay:  "4",
		TotalDays:    "1",
		Instructions: "취침전 및 식후 30분",
	}
	entries, err := s.Synthesize(order, testAnchors(), now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Meta.Rule != "after_meal_plus_before_sleep" {
			t.Fatalf("rule = %q, combo must win over numbered", e.Meta.Rule)
		}
	}

	// The combo formula uses the fixed 20-minute meal offset even when a
	// numeric offset appears in the text, plus the sleep-30m slot.
	want := []time.Time{
		at(loc, 2026, time.March, 2, 8, 20),
		at(loc, 2026, time.March, 2, 12, 50),
		at(loc, 2026, time.March, 2, 19, 20),
		at(loc, 2026, time.March, 2, 21, 30),
	}
	for i, e := range entries {
		if !e.FireAt.Equal(want[i]) {
			t.Errorf("entry %d fireAt = %v, want %v", i, e.FireAt, want[i])
		}
	}
}

func TestComposeMessage(t *testing.T) {
	cases := []struct {
		inst string
		want string
	}{
		{"식후 30분", "식사 30분 후 타이레놀 복용 잊지 마세요, 꼭이요!"},
		{"식후1시간", "식사 1시간 후 타이레놀 복용 잊지 마세요, 꼭이요!"},
		{"식후 90분", "식사 90분 후 타이레놀 복용 잊지 마세요, 꼭이요!"},
		{"식후", "식사 후 타이레놀 복용 잊지 마세요, 꼭이요!"},
		{"취침전", "취침 전 타이레놀 복용 잊지 마세요, 꼭이요!"},
		{"흔들어서 복용", "타이레놀 복용 시간이에요, 꼭이요!"},
	}
	for _, c := range cases {
		got := ComposeMessage("타이레놀", "복용", c.inst)
		if got != c.want {
			t.Errorf("ComposeMessage(%q) = %q, want %q", c.inst, got, c.want)
		}
		// Identical arguments must always yield identical output.
		if again := ComposeMessage("타이레놀", "복용", c.inst); again != got {
			t.Errorf("ComposeMessage(%q) not deterministic", c.inst)
		}
	}
}

func TestMalformedCountsDefaultToOne(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	now := at(loc, 2026, time.March, 2, 6, 0)

	order := prescription.MedicationOrder{
		DrugName:     "비타민",
		TimesPerDay:  "하루세번",
		TotalDays:    "",
		Instructions: "식후 30분",
	}
	entries, err := s.Synthesize(order, testAnchors(), now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	// 1 per day, 1 day: only the breakfast candidate survives truncation.
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].FireAt.Equal(at(loc, 2026, time.March, 2, 8, 30)) {
		t.Errorf("unexpected fireAt %v", entries[0].FireAt)
	}
}

func TestWindowRollsEndPastMidnight(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	now := at(loc, 2026, time.March, 2, 6, 0)

	anchors := testAnchors()
	anchors.WakeSleep = schedule.WakeSleep{Wake: "22:00", Sleep: "02:00"}

	order := prescription.MedicationOrder{
		DrugName:     "수면제",
		TimesPerDay:  "2",
		TotalDays:    "1",
		Instructions: "자기전에", // fallback spread
	}
	entries, err := s.Synthesize(order, anchors, now)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].FireAt.Equal(at(loc, 2026, time.March, 2, 22, 0)) {
		t.Errorf("start = %v, want 22:00", entries[0].FireAt)
	}
	if !entries[1].FireAt.Equal(at(loc, 2026, time.March, 3, 2, 0)) {
		t.Errorf("end = %v, want 02:00 next day", entries[1].FireAt)
	}
}

func TestBuildHabitEntries(t *testing.T) {
	loc := seoul(t)
	s := New(loc)
	// 12:00: the 10:00 slot has passed, 16:00 and 19:00 have not.
	now := at(loc, 2026, time.March, 2, 12, 0)

	entries := s.BuildHabitEntries([]HabitMessage{
		{Habit: "산책 5분 어때요?", Positive: "작은 움직임이 도움이 돼요."},
	}, now)

	if len(entries) != 3 {
		t.Fatalf("expected 3 habit entries, got %d", len(entries))
	}
	want := []time.Time{
		at(loc, 2026, time.March, 3, 10, 0), // rolled to tomorrow
		at(loc, 2026, time.March, 2, 16, 0),
		at(loc, 2026, time.March, 2, 19, 0),
	}
	for i, e := range entries {
		if e.Type != schedule.TypeHabit {
			t.Errorf("entry %d type = %q", i, e.Type)
		}
		if !e.FireAt.Equal(want[i]) {
			t.Errorf("entry %d fireAt = %v, want %v", i, e.FireAt, want[i])
		}
	}
	if entries[0].Message != "산책 5분 어때요? 작은 움직임이 도움이 돼요." {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	// Padded slots use the default texts.
	if entries[1].Message == "" || entries[2].Message == "" {
		t.Error("default habit messages missing")
	}
	if entries[0].Meta.Kind != "habit_1000" {
		t.Errorf("unexpected kind %q", entries[0].Meta.Kind)
	}
}
