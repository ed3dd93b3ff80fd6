// habit-companion/services/rule_engine.go
package services

import (
	"time"
)

// Snapshot is the aggregate state the rule engine evaluates against. It is
// assembled from the local mirrors; predicates never touch the network or
// mutate anything.
type Snapshot struct {
	Today            time.Time
	Habits           []HabitSnapshot
	Completions      []CompletionSnapshot
	OnceRedeemed     int // redeemed once-mode challenges
	CurrentLives     int
	MaxLives         int
	AccountCreatedAt time.Time
}

type HabitSnapshot struct {
	ID            string
	Active        bool
	StartDate     time.Time
	TargetDate    *time.Time
	CurrentStreak int
}

type CompletionSnapshot struct {
	HabitID     string
	ForDate     string // YYYY-MM-DD
	CompletedAt time.Time
	Minutes     int64
	Note        string
}

// PredicateFunc decides whether a life challenge is currently satisfiable
type PredicateFunc func(s *Snapshot) bool

const dateLayout = "2006-01-02"

const (
	weekStreakDays     = 7
	monthStreakDays    = 30
	multiStreakHabits  = 3
	targetDateMonths   = 4
	thousandHoursMins  = 1000 * 60
	prolificNotesCount = 200
	collectorCount     = 5
	earlyBirdHour      = 7  // before 07:00
	lastHourOfDay      = 23 // at or after 23:00
	twoMonthsAliveDays = 60
)

// predicateRegistry dispatches challenge verification functions by name.
// Unknown names fail closed: Evaluate returns false rather than panicking.
var predicateRegistry = map[string]PredicateFunc{
	"weekly_streak":          func(s *Snapshot) bool { return anyHabitStreak(s, weekStreakDays) },
	"monthly_streak":         func(s *Snapshot) bool { return anyHabitStreak(s, monthStreakDays) },
	"multi_habit_streak":     multiHabitStreak,
	"target_date_completion": targetDateCompletion,
	"thousand_hours":         thousandHours,
	"prolific_notes":         prolificNotes,
	"collector":              func(s *Snapshot) bool { return s.OnceRedeemed >= collectorCount },
	"survivor":               func(s *Snapshot) bool { return s.CurrentLives > 0 },
	"last_hour_save":         lastHourSave,
	"early_bird":             earlyBird,
	"two_months_alive":       twoMonthsAlive,
}

// Evaluate runs the named predicate against a snapshot. Unknown names are
// not satisfiable.
func Evaluate(name string, s *Snapshot) bool {
	fn, ok := predicateRegistry[name]
	if !ok {
		return false
	}
	return fn(s)
}

// KnownPredicate reports whether a verification-function name is registered
func KnownPredicate(name string) bool {
	_, ok := predicateRegistry[name]
	return ok
}

// completionDates indexes completions by habit and calendar date
func completionDates(s *Snapshot) map[string]map[string]bool {
	idx := make(map[string]map[string]bool)
	for _, c := range s.Completions {
		days, ok := idx[c.HabitID]
		if !ok {
			days = make(map[string]bool)
			idx[c.HabitID] = days
		}
		days[c.ForDate] = true
	}
	return idx
}

// streakLength counts contiguous completed days for one habit, scanning
// backward day-by-day starting from yesterday for up to maxDays, stopping at
// the first day lacking a completion. No partial credit.
func streakLength(days map[string]bool, today time.Time, maxDays int) int {
	count := 0
	for i := 1; i <= maxDays; i++ {
		day := today.AddDate(0, 0, -i).Format(dateLayout)
		if !days[day] {
			break
		}
		count++
	}
	return count
}

// anyHabitStreak: satisfiable once any currently active habit holds a full
// n-day run over the trailing window. No cross-habit combination.
func anyHabitStreak(s *Snapshot, n int) bool {
	idx := completionDates(s)
	for _, h := range s.Habits {
		if !h.Active {
			continue
		}
		if streakLength(idx[h.ID], s.Today, n) >= n {
			return true
		}
	}
	return false
}

// multiHabitStreak: at least 3 distinct active habits each holding a full
// 7-day run, counted independently.
func multiHabitStreak(s *Snapshot) bool {
	idx := completionDates(s)
	qualified := 0
	for _, h := range s.Habits {
		if !h.Active {
			continue
		}
		if streakLength(idx[h.ID], s.Today, weekStreakDays) >= weekStreakDays {
			qualified++
			if qualified >= multiStreakHabits {
				return true
			}
		}
	}
	return false
}

// targetDateCompletion: a habit with a target date at least ~4 months past its
// start, reached today or earlier, with its streak still unbroken.
func targetDateCompletion(s *Snapshot) bool {
	for _, h := range s.Habits {
		if !h.Active || h.TargetDate == nil {
			continue
		}
		if h.TargetDate.Before(h.StartDate.AddDate(0, targetDateMonths, 0)) {
			continue
		}
		if s.Today.Before(*h.TargetDate) {
			continue
		}
		if h.CurrentStreak > 0 {
			return true
		}
	}
	return false
}

// thousandHours: total time-typed minutes on any single habit reaching 1000h
func thousandHours(s *Snapshot) bool {
	totals := make(map[string]int64)
	for _, c := range s.Completions {
		totals[c.HabitID] += c.Minutes
		if totals[c.HabitID] >= thousandHoursMins {
			return true
		}
	}
	return false
}

// prolificNotes: 200 non-empty free-text notes across all completions
func prolificNotes(s *Snapshot) bool {
	count := 0
	for _, c := range s.Completions {
		if c.Note != "" {
			count++
			if count >= prolificNotesCount {
				return true
			}
		}
	}
	return false
}

// lastHourSave: a completion logged today at or after 23:00 local time.
// Checks the actual completion timestamp, not just "any completion today".
func lastHourSave(s *Snapshot) bool {
	today := s.Today.Format(dateLayout)
	for _, c := range s.Completions {
		if c.ForDate == today && c.CompletedAt.Hour() >= lastHourOfDay {
			return true
		}
	}
	return false
}

// earlyBird: a completion logged today before 07:00 local time
func earlyBird(s *Snapshot) bool {
	today := s.Today.Format(dateLayout)
	for _, c := range s.Completions {
		if c.ForDate == today && c.CompletedAt.Hour() < earlyBirdHour {
			return true
		}
	}
	return false
}

// twoMonthsAlive: account is at least 60 days old and the user still has lives
func twoMonthsAlive(s *Snapshot) bool {
	if s.CurrentLives <= 0 {
		return false
	}
	if s.AccountCreatedAt.IsZero() {
		return false
	}
	return !s.AccountCreatedAt.After(s.Today.AddDate(0, 0, -twoMonthsAliveDays))
}
