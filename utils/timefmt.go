package utils

import (
	"fmt"
	"time"
)

// UrgencyTier buckets remaining time for presentation priority
type UrgencyTier string

const (
	UrgencyLow      UrgencyTier = "low"
	UrgencyMedium   UrgencyTier = "medium"
	UrgencyHigh     UrgencyTier = "high"
	UrgencyCritical UrgencyTier = "critical"
)

const (
	urgencyLowFloor    = 6 * time.Hour
	urgencyMediumFloor = time.Hour
	urgencyHighFloor   = 15 * time.Minute
)

// UrgentThresholdMS is the remaining-time boundary below which the store's
// "urgent" derived view includes a redemption.
const UrgentThresholdMS = int64(urgencyMediumFloor / time.Millisecond)

// FormatRemaining renders a millisecond budget for display. Negative input is
// treated as zero.
func FormatRemaining(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	d := time.Duration(ms) * time.Millisecond
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	seconds := int(d % time.Minute / time.Second)

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %02ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// Urgency maps a millisecond budget to its display tier
func Urgency(ms int64) UrgencyTier {
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d >= urgencyLowFloor:
		return UrgencyLow
	case d >= urgencyMediumFloor:
		return UrgencyMedium
	case d >= urgencyHighFloor:
		return UrgencyHigh
	default:
		return UrgencyCritical
	}
}
