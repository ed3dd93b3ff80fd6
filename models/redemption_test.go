package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedemptionStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to RedemptionStatus
	}{
		{RedemptionStatusPending, RedemptionStatusChallengeAssigned},
		{RedemptionStatusPending, RedemptionStatusRedeemedLife},
		{RedemptionStatusPending, RedemptionStatusExpired},
		{RedemptionStatusChallengeAssigned, RedemptionStatusCompleted},
		{RedemptionStatusChallengeAssigned, RedemptionStatusRedeemedLife},
		{RedemptionStatusChallengeAssigned, RedemptionStatusExpired},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr.from, tr.to), "%s -> %s should be allowed", tr.from, tr.to)
	}

	all := []RedemptionStatus{
		RedemptionStatusPending,
		RedemptionStatusChallengeAssigned,
		RedemptionStatusRedeemedLife,
		RedemptionStatusCompleted,
		RedemptionStatusExpired,
	}

	// terminal statuses have no outgoing edges
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if from == to {
				continue
			}
			assert.False(t, CanTransition(from, to), "%s -> %s must be refused", from, to)
		}
	}

	// no edge ever leads back to pending
	for _, from := range all {
		if from == RedemptionStatusPending {
			continue
		}
		assert.False(t, CanTransition(from, RedemptionStatusPending), "%s -> pending must be refused", from)
	}

	// same-status no-ops are always fine
	assert.True(t, CanTransition(RedemptionStatusPending, RedemptionStatusPending))
	assert.True(t, CanTransition(RedemptionStatusExpired, RedemptionStatusExpired))
}

func TestTerminalAndActionFlags(t *testing.T) {
	assert.False(t, RedemptionStatusPending.IsTerminal())
	assert.False(t, RedemptionStatusChallengeAssigned.IsTerminal())
	assert.True(t, RedemptionStatusRedeemedLife.IsTerminal())
	assert.True(t, RedemptionStatusCompleted.IsTerminal())
	assert.True(t, RedemptionStatusExpired.IsTerminal())

	assert.True(t, RedemptionStatusPending.RequiresAction())
	assert.True(t, RedemptionStatusChallengeAssigned.RequiresAction())
	assert.False(t, RedemptionStatusCompleted.RequiresAction())
}
