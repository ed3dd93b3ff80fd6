package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"full grace window", 24 * 60 * 60 * 1000, "24h 00m"},
		{"hours and minutes", 23*60*60*1000 + 59*60*1000, "23h 59m"},
		{"minutes and seconds", 12*60*1000 + 5*1000, "12m 05s"},
		{"seconds only", 47 * 1000, "47s"},
		{"zero", 0, "0s"},
		{"negative treated as zero", -5000, "0s"},
		{"sub-second rounds down", 900, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRemaining(tt.ms))
		})
	}
}

func TestUrgency(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want UrgencyTier
	}{
		{"full day", 24 * 60 * 60 * 1000, UrgencyLow},
		{"exactly six hours", 6 * 60 * 60 * 1000, UrgencyLow},
		{"just under six hours", 6*60*60*1000 - 1, UrgencyMedium},
		{"exactly one hour", 60 * 60 * 1000, UrgencyMedium},
		{"just under one hour", 60*60*1000 - 1, UrgencyHigh},
		{"exactly fifteen minutes", 15 * 60 * 1000, UrgencyHigh},
		{"under fifteen minutes", 14 * 60 * 1000, UrgencyCritical},
		{"zero", 0, UrgencyCritical},
		{"negative", -1, UrgencyCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Urgency(tt.ms))
		})
	}
}
