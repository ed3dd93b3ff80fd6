// habit-companion/services/life_challenge_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"habit-companion/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

var (
	ErrUnknownChallenge       = errors.New("unknown life challenge")
	ErrChallengeNotRedeemable = errors.New("life challenge is not redeemable")
	// ErrNoLifeCapacity: every life slot is full; redeeming would grant zero.
	// Surfaced explicitly rather than silently granting nothing.
	ErrNoLifeCapacity = errors.New("no empty life slots, redeeming would grant nothing")
	// ErrShortfallNeedsConfirm: capacity is positive but below the nominal
	// reward; the caller must confirm the partial grant first.
	ErrShortfallNeedsConfirm = errors.New("partial grant requires confirmation")
)

// LifeChallengeState is the computed per-user view of one challenge
type LifeChallengeState struct {
	models.LifeChallenge
	Status     models.LifeChallengeStatus `json:"status"`
	Redeemable bool                       `json:"redeemable"`
}

// RedeemOutcome reports what a redemption would (or did) grant
type RedeemOutcome struct {
	ChallengeCode  string `json:"challenge_code"`
	RequestedLives int    `json:"requested_lives"`
	GrantedLives   int    `json:"granted_lives"`
	Shortfall      int    `json:"shortfall"`
	NoCapacity     bool   `json:"no_capacity"`
	CurrentLives   int    `json:"current_lives"`
	MaxLives       int    `json:"max_lives"`
}

// LifeChallengeService evaluates the standing challenges against mirror state
// and applies rewards. Predicates themselves live in the rule engine and stay
// pure; this service owns the snapshot building and the redemption-time rules.
type LifeChallengeService struct {
	DB    *gorm.DB
	clock clockwork.Clock

	mu             sync.Mutex
	lastRedeemable map[string]map[string]bool // user -> challenge code
}

func NewLifeChallengeService(db *gorm.DB, clock clockwork.Clock) *LifeChallengeService {
	return &LifeChallengeService{
		DB:             db,
		clock:          clock,
		lastRedeemable: make(map[string]map[string]bool),
	}
}

// BuildSnapshot assembles the aggregate state for one user from the mirrors
func (s *LifeChallengeService) BuildSnapshot(userID string) (*Snapshot, error) {
	var habits []models.HabitMirror
	if err := s.DB.Where("user_id = ?", userID).Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("failed to load habit mirror: %w", err)
	}

	var completions []models.CompletionMirror
	if err := s.DB.Where("user_id = ?", userID).Find(&completions).Error; err != nil {
		return nil, fmt.Errorf("failed to load completion mirror: %w", err)
	}

	var onceRedeemed int64
	if err := s.DB.Model(&models.LifeChallengeRedemption{}).
		Where("user_id = ? AND mode = ?", userID, models.RedeemModeOnce).
		Count(&onceRedeemed).Error; err != nil {
		return nil, fmt.Errorf("failed to count redeemed challenges: %w", err)
	}

	var profile models.UserProfileMirror
	if err := s.DB.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load profile mirror: %w", err)
		}
		profile = models.UserProfileMirror{UserID: userID}
	}

	snap := &Snapshot{
		Today:            s.clock.Now(),
		OnceRedeemed:     int(onceRedeemed),
		CurrentLives:     profile.CurrentLives,
		MaxLives:         profile.MaxLives,
		AccountCreatedAt: profile.AccountCreatedAt,
	}
	for _, h := range habits {
		snap.Habits = append(snap.Habits, HabitSnapshot{
			ID:            h.ID,
			Active:        h.Active,
			StartDate:     h.StartDate,
			TargetDate:    h.TargetDate,
			CurrentStreak: h.CurrentStreak,
		})
	}
	for _, c := range completions {
		snap.Completions = append(snap.Completions, CompletionSnapshot{
			HabitID:     c.HabitID,
			ForDate:     c.ForDate,
			CompletedAt: c.CompletedAt,
			Minutes:     c.Minutes,
			Note:        c.Note,
		})
	}
	return snap, nil
}

// EvaluateAll computes the per-user status and redeemable flag for every
// standing challenge. Status is computed, never stored: a once challenge with
// a redemption row is "redeemed" and permanently non-redeemable.
func (s *LifeChallengeService) EvaluateAll(userID string) ([]LifeChallengeState, error) {
	snap, err := s.BuildSnapshot(userID)
	if err != nil {
		return nil, err
	}

	var redeemedOnce []models.LifeChallengeRedemption
	if err := s.DB.Where("user_id = ? AND mode = ?", userID, models.RedeemModeOnce).
		Find(&redeemedOnce).Error; err != nil {
		return nil, err
	}
	redeemedCodes := make(map[string]bool, len(redeemedOnce))
	for _, r := range redeemedOnce {
		redeemedCodes[r.ChallengeCode] = true
	}

	out := make([]LifeChallengeState, 0, len(models.LifeChallenges))
	for _, def := range models.LifeChallenges {
		satisfied := Evaluate(def.VerificationFunc, snap)
		state := LifeChallengeState{LifeChallenge: def}
		switch {
		case def.Mode == models.RedeemModeOnce && redeemedCodes[def.Code]:
			state.Status = models.LifeChallengeStatusRedeemed
			state.Redeemable = false
		case satisfied:
			state.Status = models.LifeChallengeStatusObtained
			state.Redeemable = true
		default:
			state.Status = models.LifeChallengeStatusPending
			state.Redeemable = false
		}
		out = append(out, state)
	}
	return out, nil
}

// Preview computes what a redemption would grant without applying it
func (s *LifeChallengeService) Preview(userID, code string) (*RedeemOutcome, error) {
	def := models.LifeChallengeByCode(code)
	if def == nil {
		return nil, ErrUnknownChallenge
	}

	states, err := s.EvaluateAll(userID)
	if err != nil {
		return nil, err
	}
	var state *LifeChallengeState
	for i := range states {
		if states[i].Code == code {
			state = &states[i]
			break
		}
	}
	if state == nil || !state.Redeemable {
		return nil, ErrChallengeNotRedeemable
	}

	var profile models.UserProfileMirror
	if err := s.DB.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return buildOutcome(def, &profile), nil
}

func buildOutcome(def *models.LifeChallenge, profile *models.UserProfileMirror) *RedeemOutcome {
	capacity := profile.MaxLives - profile.CurrentLives
	if capacity < 0 {
		capacity = 0
	}
	granted := def.RewardLives
	if granted > capacity {
		granted = capacity
	}
	return &RedeemOutcome{
		ChallengeCode:  def.Code,
		RequestedLives: def.RewardLives,
		GrantedLives:   granted,
		Shortfall:      def.RewardLives - granted,
		NoCapacity:     capacity == 0,
		CurrentLives:   profile.CurrentLives,
		MaxLives:       profile.MaxLives,
	}
}

// Redeem applies a life-challenge reward inside a transaction. Rewards are
// capped at the empty life slots; zero capacity fails with ErrNoLifeCapacity
// and a partial grant requires confirmed=true (the outcome carrying the
// shortfall is returned alongside ErrShortfallNeedsConfirm so callers can ask).
func (s *LifeChallengeService) Redeem(userID, code string, confirmed bool) (*RedeemOutcome, error) {
	def := models.LifeChallengeByCode(code)
	if def == nil {
		return nil, ErrUnknownChallenge
	}

	// Redeemability (predicate + once-only rule) checked outside the
	// transaction; the once-only rule is re-checked inside it.
	if _, err := s.Preview(userID, code); err != nil {
		return nil, err
	}

	var outcome *RedeemOutcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var profile models.UserProfileMirror
		if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			return fmt.Errorf("profile mirror not found for %s", userID)
		}

		if def.Mode == models.RedeemModeOnce {
			var count int64
			if err := tx.Model(&models.LifeChallengeRedemption{}).
				Where("user_id = ? AND challenge_code = ?", userID, code).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrChallengeNotRedeemable
			}
		}

		outcome = buildOutcome(def, &profile)
		if outcome.NoCapacity {
			return ErrNoLifeCapacity
		}
		if outcome.Shortfall > 0 && !confirmed {
			return ErrShortfallNeedsConfirm
		}

		profile.CurrentLives += outcome.GrantedLives
		if err := tx.Save(&profile).Error; err != nil {
			return err
		}
		outcome.CurrentLives = profile.CurrentLives

		record := models.LifeChallengeRedemption{
			ID:            uuid.NewString(),
			UserID:        userID,
			ChallengeCode: code,
			Mode:          def.Mode,
			LivesGranted:  outcome.GrantedLives,
			Shortfall:     outcome.Shortfall,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		log.Printf("[LIFE] %s redeemed %s: +%d lives (shortfall %d), lives=%d/%d",
			userID, code, outcome.GrantedLives, outcome.Shortfall,
			profile.CurrentLives, profile.MaxLives)
		return nil
	})
	if err != nil {
		// Outcome still describes the would-be grant for the confirm flow.
		if errors.Is(err, ErrShortfallNeedsConfirm) || errors.Is(err, ErrNoLifeCapacity) {
			return outcome, err
		}
		return nil, err
	}
	return outcome, nil
}

// StartEvaluationScheduler re-evaluates every mirrored user's challenges once
// a minute and logs transitions into redeemability.
func (s *LifeChallengeService) StartEvaluationScheduler() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return nil, err
	}
	sched.Start()

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var profiles []models.UserProfileMirror
			if err := s.DB.Find(&profiles).Error; err != nil {
				log.Printf("[LIFE] scheduler: failed to list profiles: %v", err)
				return
			}
			for _, p := range profiles {
				s.evaluateAndLog(p.UserID)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *LifeChallengeService) evaluateAndLog(userID string) {
	states, err := s.EvaluateAll(userID)
	if err != nil {
		log.Printf("[LIFE] scheduler: evaluation failed for %s: %v", userID, err)
		return
	}

	s.mu.Lock()
	prev := s.lastRedeemable[userID]
	next := make(map[string]bool, len(states))
	for _, st := range states {
		next[st.Code] = st.Redeemable
		if st.Redeemable && !prev[st.Code] {
			log.Printf("[LIFE] %s: challenge %q is now redeemable (+%d lives)", userID, st.Code, st.RewardLives)
		}
	}
	s.lastRedeemable[userID] = next
	s.mu.Unlock()
}
