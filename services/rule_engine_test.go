package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// completionsFor builds one completion per day offset (days before today)
func completionsFor(habitID string, dayOffsets ...int) []CompletionSnapshot {
	out := make([]CompletionSnapshot, 0, len(dayOffsets))
	for _, off := range dayOffsets {
		day := testToday.AddDate(0, 0, -off)
		out = append(out, CompletionSnapshot{
			HabitID:     habitID,
			ForDate:     day.Format(dateLayout),
			CompletedAt: day.Add(8 * time.Hour),
		})
	}
	return out
}

func activeHabit(id string) HabitSnapshot {
	return HabitSnapshot{ID: id, Active: true, StartDate: testToday.AddDate(0, -6, 0)}
}

func TestWeeklyStreak(t *testing.T) {
	t.Run("three days then a gap is not a week", func(t *testing.T) {
		s := &Snapshot{
			Today:       testToday,
			Habits:      []HabitSnapshot{activeHabit("h1")},
			Completions: completionsFor("h1", 1, 2, 3, 5, 6, 7, 8), // gap at -4
		}
		assert.False(t, Evaluate("weekly_streak", s))
	})

	t.Run("seven contiguous trailing days qualify", func(t *testing.T) {
		s := &Snapshot{
			Today:       testToday,
			Habits:      []HabitSnapshot{activeHabit("h1")},
			Completions: completionsFor("h1", 1, 2, 3, 4, 5, 6, 7),
		}
		assert.True(t, Evaluate("weekly_streak", s))
	})

	t.Run("inactive habits do not count", func(t *testing.T) {
		s := &Snapshot{
			Today:       testToday,
			Habits:      []HabitSnapshot{{ID: "h1", Active: false}},
			Completions: completionsFor("h1", 1, 2, 3, 4, 5, 6, 7),
		}
		assert.False(t, Evaluate("weekly_streak", s))
	})

	t.Run("no cross-habit combination", func(t *testing.T) {
		s := &Snapshot{
			Today:  testToday,
			Habits: []HabitSnapshot{activeHabit("h1"), activeHabit("h2")},
			Completions: append(
				completionsFor("h1", 1, 2, 3),
				completionsFor("h2", 4, 5, 6, 7)...,
			),
		}
		assert.False(t, Evaluate("weekly_streak", s))
	})
}

func TestMonthlyStreak(t *testing.T) {
	offsets := make([]int, 0, 30)
	for i := 1; i <= 30; i++ {
		offsets = append(offsets, i)
	}

	s := &Snapshot{
		Today:       testToday,
		Habits:      []HabitSnapshot{activeHabit("h1")},
		Completions: completionsFor("h1", offsets...),
	}
	assert.True(t, Evaluate("monthly_streak", s))

	// 29 days is not a month
	s.Completions = completionsFor("h1", offsets[:29]...)
	assert.False(t, Evaluate("monthly_streak", s))
}

func TestMultiHabitStreak(t *testing.T) {
	week := []int{1, 2, 3, 4, 5, 6, 7}

	build := func(qualified int) *Snapshot {
		s := &Snapshot{Today: testToday}
		for i := 0; i < 4; i++ {
			id := fmt.Sprintf("h%d", i)
			s.Habits = append(s.Habits, activeHabit(id))
			if i < qualified {
				s.Completions = append(s.Completions, completionsFor(id, week...)...)
			} else {
				s.Completions = append(s.Completions, completionsFor(id, 1, 2)...)
			}
		}
		return s
	}

	assert.False(t, Evaluate("multi_habit_streak", build(2)))
	assert.True(t, Evaluate("multi_habit_streak", build(3)))
	assert.True(t, Evaluate("multi_habit_streak", build(4)))
}

func TestTargetDateCompletion(t *testing.T) {
	start := testToday.AddDate(0, -5, 0)

	habit := func(target time.Time, streak int) HabitSnapshot {
		return HabitSnapshot{
			ID: "h1", Active: true,
			StartDate:     start,
			TargetDate:    &target,
			CurrentStreak: streak,
		}
	}

	t.Run("reached target with live streak", func(t *testing.T) {
		s := &Snapshot{Today: testToday, Habits: []HabitSnapshot{habit(testToday.AddDate(0, 0, -1), 12)}}
		assert.True(t, Evaluate("target_date_completion", s))
	})

	t.Run("target not yet reached", func(t *testing.T) {
		s := &Snapshot{Today: testToday, Habits: []HabitSnapshot{habit(testToday.AddDate(0, 1, 0), 12)}}
		assert.False(t, Evaluate("target_date_completion", s))
	})

	t.Run("broken streak disqualifies", func(t *testing.T) {
		s := &Snapshot{Today: testToday, Habits: []HabitSnapshot{habit(testToday.AddDate(0, 0, -1), 0)}}
		assert.False(t, Evaluate("target_date_completion", s))
	})

	t.Run("target too close to start", func(t *testing.T) {
		h := habit(start.AddDate(0, 2, 0), 12)
		s := &Snapshot{Today: testToday, Habits: []HabitSnapshot{h}}
		assert.False(t, Evaluate("target_date_completion", s))
	})
}

func TestAggregateCounters(t *testing.T) {
	t.Run("thousand hours on a single habit", func(t *testing.T) {
		s := &Snapshot{Today: testToday, Completions: []CompletionSnapshot{
			{HabitID: "h1", Minutes: 30000},
			{HabitID: "h1", Minutes: 30000},
			{HabitID: "h2", Minutes: 59999},
		}}
		assert.True(t, Evaluate("thousand_hours", s))
	})

	t.Run("minutes do not combine across habits", func(t *testing.T) {
		s := &Snapshot{Today: testToday, Completions: []CompletionSnapshot{
			{HabitID: "h1", Minutes: 30000},
			{HabitID: "h2", Minutes: 30000},
		}}
		assert.False(t, Evaluate("thousand_hours", s))
	})

	t.Run("two hundred notes across all habits", func(t *testing.T) {
		s := &Snapshot{Today: testToday}
		for i := 0; i < 200; i++ {
			s.Completions = append(s.Completions, CompletionSnapshot{
				HabitID: fmt.Sprintf("h%d", i%5),
				Note:    "felt great",
			})
		}
		assert.True(t, Evaluate("prolific_notes", s))

		// empty notes do not count
		s.Completions[0].Note = ""
		assert.False(t, Evaluate("prolific_notes", s))
	})

	t.Run("collector needs five once-mode redemptions", func(t *testing.T) {
		assert.False(t, Evaluate("collector", &Snapshot{OnceRedeemed: 4}))
		assert.True(t, Evaluate("collector", &Snapshot{OnceRedeemed: 5}))
	})
}

func TestSurvivalPredicates(t *testing.T) {
	assert.True(t, Evaluate("survivor", &Snapshot{CurrentLives: 1}))
	assert.False(t, Evaluate("survivor", &Snapshot{CurrentLives: 0}))

	t.Run("two months alive needs account age and lives", func(t *testing.T) {
		old := &Snapshot{Today: testToday, CurrentLives: 3, AccountCreatedAt: testToday.AddDate(0, 0, -61)}
		assert.True(t, Evaluate("two_months_alive", old))

		young := &Snapshot{Today: testToday, CurrentLives: 3, AccountCreatedAt: testToday.AddDate(0, 0, -10)}
		assert.False(t, Evaluate("two_months_alive", young))

		dead := &Snapshot{Today: testToday, CurrentLives: 0, AccountCreatedAt: testToday.AddDate(0, 0, -61)}
		assert.False(t, Evaluate("two_months_alive", dead))

		unknown := &Snapshot{Today: testToday, CurrentLives: 3}
		assert.False(t, Evaluate("two_months_alive", unknown))
	})
}

func TestTimeOfDayPredicates(t *testing.T) {
	today := testToday.Format(dateLayout)

	t.Run("last hour save checks the actual timestamp", func(t *testing.T) {
		late := &Snapshot{Today: testToday, Completions: []CompletionSnapshot{{
			HabitID: "h1", ForDate: today,
			CompletedAt: time.Date(2026, 3, 15, 23, 12, 0, 0, time.UTC),
		}}}
		assert.True(t, Evaluate("last_hour_save", late))

		// a completion today is not enough on its own
		noon := &Snapshot{Today: testToday, Completions: []CompletionSnapshot{{
			HabitID: "h1", ForDate: today,
			CompletedAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		}}}
		assert.False(t, Evaluate("last_hour_save", noon))
	})

	t.Run("early bird is before seven", func(t *testing.T) {
		dawn := &Snapshot{Today: testToday, Completions: []CompletionSnapshot{{
			HabitID: "h1", ForDate: today,
			CompletedAt: time.Date(2026, 3, 15, 6, 59, 0, 0, time.UTC),
		}}}
		assert.True(t, Evaluate("early_bird", dawn))

		seven := &Snapshot{Today: testToday, Completions: []CompletionSnapshot{{
			HabitID: "h1", ForDate: today,
			CompletedAt: time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC),
		}}}
		assert.False(t, Evaluate("early_bird", seven))
	})

	t.Run("yesterday's late completion does not count today", func(t *testing.T) {
		s := &Snapshot{Today: testToday, Completions: []CompletionSnapshot{{
			HabitID: "h1", ForDate: testToday.AddDate(0, 0, -1).Format(dateLayout),
			CompletedAt: time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC),
		}}}
		assert.False(t, Evaluate("last_hour_save", s))
	})
}

func TestUnknownPredicateFailsClosed(t *testing.T) {
	s := &Snapshot{Today: testToday, CurrentLives: 10}
	assert.False(t, Evaluate("definitely_not_registered", s))
	assert.False(t, KnownPredicate("definitely_not_registered"))
	require.True(t, KnownPredicate("weekly_streak"))
}
