package models

import (
	"time"
)

// RedemptionStatus tracks where a pending redemption sits in its grace window
type RedemptionStatus string

const (
	RedemptionStatusPending           RedemptionStatus = "pending"
	RedemptionStatusChallengeAssigned RedemptionStatus = "challenge_assigned"
	RedemptionStatusRedeemedLife      RedemptionStatus = "redeemed_life"
	RedemptionStatusCompleted         RedemptionStatus = "completed"
	RedemptionStatusExpired           RedemptionStatus = "expired"
)

// GraceWindowMS is the full redemption window granted when a habit fails (24h)
const GraceWindowMS int64 = 24 * 60 * 60 * 1000

// Challenge is a substitute task offered on a pending redemption
type Challenge struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	EstimatedEffort string `json:"estimated_effort,omitempty"`
}

// PendingRedemption represents one unresolved habit failure awaiting a decision.
// TimeRemainingMS is server-authoritative at fetch time; between fetches the
// store decrements it locally once per second, floored at zero.
type PendingRedemption struct {
	ID                string           `json:"id"`
	HabitID           string           `json:"habit_id"`
	HabitName         string           `json:"habit_name"`
	FailedAt          time.Time        `json:"failed_at"`
	Status            RedemptionStatus `json:"status"`
	TimeRemainingMS   int64            `json:"time_remaining_ms"`
	Challenges        []Challenge      `json:"challenges,omitempty"`
	AssignedChallenge *Challenge       `json:"assigned_challenge,omitempty"`
}

// IsTerminal reports whether the redemption has left the active set
func (s RedemptionStatus) IsTerminal() bool {
	switch s {
	case RedemptionStatusRedeemedLife, RedemptionStatusCompleted, RedemptionStatusExpired:
		return true
	}
	return false
}

// RequiresAction reports whether the user still has a decision to make
func (s RedemptionStatus) RequiresAction() bool {
	return s == RedemptionStatusPending || s == RedemptionStatusChallengeAssigned
}

// redemptionTransitions is the monotonic status graph. Terminal statuses have
// no outgoing edges; redeemed_life from challenge_assigned is the fallback path.
var redemptionTransitions = map[RedemptionStatus][]RedemptionStatus{
	RedemptionStatusPending: {
		RedemptionStatusChallengeAssigned,
		RedemptionStatusRedeemedLife,
		RedemptionStatusExpired,
	},
	RedemptionStatusChallengeAssigned: {
		RedemptionStatusCompleted,
		RedemptionStatusRedeemedLife,
		RedemptionStatusExpired,
	},
}

// CanTransition reports whether moving from -> to follows the monotonic graph.
// A no-op transition (same status) is always allowed.
func CanTransition(from, to RedemptionStatus) bool {
	if from == to {
		return true
	}
	for _, next := range redemptionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
