package models

import (
	"time"
)

// RedeemMode controls how often a life challenge can be claimed
type RedeemMode string

const (
	RedeemModeOnce      RedeemMode = "once"
	RedeemModeUnlimited RedeemMode = "unlimited"
)

// LifeChallengeStatus is the per-user evaluation state of a challenge
type LifeChallengeStatus string

const (
	LifeChallengeStatusPending  LifeChallengeStatus = "pending"
	LifeChallengeStatusObtained LifeChallengeStatus = "obtained"
	LifeChallengeStatusRedeemed LifeChallengeStatus = "redeemed"
)

// LifeChallenge: static bonus-reward definition. VerificationFunc names the
// predicate in the rule-engine registry; unknown names evaluate to false.
type LifeChallenge struct {
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	RewardLives      int        `json:"reward_lives"`
	Mode             RedeemMode `json:"mode"`
	VerificationFunc string     `json:"verification_func"`
}

// LifeChallengeRedemption: one row per successful redemption. For once-mode
// challenges the existence of a row makes the challenge permanently
// non-redeemable; rows also feed the collector predicate.
type LifeChallengeRedemption struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string     `gorm:"index;not null" json:"user_id"`
	ChallengeCode string     `gorm:"index;not null" json:"challenge_code"`
	Mode          RedeemMode `gorm:"type:varchar(16);not null" json:"mode"`
	LivesGranted  int        `json:"lives_granted"`
	Shortfall     int        `json:"shortfall"`
	RedeemedAt    time.Time  `gorm:"autoCreateTime" json:"redeemed_at"`
}

// Predefined life challenges
var LifeChallenges = []LifeChallenge{
	{
		Code:             "perfect-week",
		Name:             "Perfect Week",
		Description:      "Complete any habit 7 days in a row",
		RewardLives:      1,
		Mode:             RedeemModeUnlimited,
		VerificationFunc: "weekly_streak",
	},
	{
		Code:             "perfect-month",
		Name:             "Perfect Month",
		Description:      "Complete any habit 30 days in a row",
		RewardLives:      3,
		Mode:             RedeemModeUnlimited,
		VerificationFunc: "monthly_streak",
	},
	{
		Code:             "triple-threat",
		Name:             "Triple Threat",
		Description:      "Hold a 7-day streak on 3 habits at once",
		RewardLives:      2,
		Mode:             RedeemModeOnce,
		VerificationFunc: "multi_habit_streak",
	},
	{
		Code:             "long-hauler",
		Name:             "Long Hauler",
		Description:      "Carry a habit unbroken to a target date 4+ months out",
		RewardLives:      5,
		Mode:             RedeemModeOnce,
		VerificationFunc: "target_date_completion",
	},
	{
		Code:             "thousand-hours",
		Name:             "Thousand Hours",
		Description:      "Log 1000 hours on a single habit",
		RewardLives:      5,
		Mode:             RedeemModeOnce,
		VerificationFunc: "thousand_hours",
	},
	{
		Code:             "chronicler",
		Name:             "Chronicler",
		Description:      "Write 200 completion notes",
		RewardLives:      2,
		Mode:             RedeemModeOnce,
		VerificationFunc: "prolific_notes",
	},
	{
		Code:             "collector",
		Name:             "Collector",
		Description:      "Redeem 5 one-time life challenges",
		RewardLives:      3,
		Mode:             RedeemModeOnce,
		VerificationFunc: "collector",
	},
	{
		Code:             "survivor",
		Name:             "Survivor",
		Description:      "Still alive",
		RewardLives:      1,
		Mode:             RedeemModeUnlimited,
		VerificationFunc: "survivor",
	},
	{
		Code:             "last-hour-save",
		Name:             "Last Hour Save",
		Description:      "Complete a habit in the final hour of the day",
		RewardLives:      1,
		Mode:             RedeemModeUnlimited,
		VerificationFunc: "last_hour_save",
	},
	{
		Code:             "early-bird",
		Name:             "Early Bird",
		Description:      "Complete a habit before 7am",
		RewardLives:      1,
		Mode:             RedeemModeUnlimited,
		VerificationFunc: "early_bird",
	},
	{
		Code:             "two-months-alive",
		Name:             "Two Months Alive",
		Description:      "Survive your first two months",
		RewardLives:      2,
		Mode:             RedeemModeOnce,
		VerificationFunc: "two_months_alive",
	},
}

// LifeChallengeByCode looks up a definition from the static table
func LifeChallengeByCode(code string) *LifeChallenge {
	for i := range LifeChallenges {
		if LifeChallenges[i].Code == code {
			return &LifeChallenges[i]
		}
	}
	return nil
}
