package models

import (
	"time"

	"gorm.io/gorm"
)

// Local read mirrors of remote habit state (synced by workers.HabitSyncWorker).
// The rule engine only ever sees snapshots built from these tables.

// HabitMirror mirrors a remote habit definition
type HabitMirror struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	UserID        string     `gorm:"index;not null" json:"user_id"`
	Name          string     `gorm:"not null" json:"name"`
	Active        bool       `gorm:"default:true;index" json:"active"`
	ProgressType  string     `gorm:"type:varchar(16)" json:"progress_type"` // boolean | time | count
	StartDate     time.Time  `json:"start_date"`
	TargetDate    *time.Time `json:"target_date,omitempty"`
	CurrentStreak int        `json:"current_streak"`

	Timestamps
}

// CompletionMirror mirrors one habit completion. ForDate is the calendar date
// the completion counts toward (YYYY-MM-DD, habit-local); CompletedAt is the
// moment it was actually logged, which the time-of-day predicates inspect.
type CompletionMirror struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	HabitID     string    `gorm:"index;not null" json:"habit_id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	ForDate     string    `gorm:"type:varchar(10);index;not null" json:"for_date"`
	CompletedAt time.Time `json:"completed_at"`
	Minutes     int64     `gorm:"default:0" json:"minutes"`
	Note        string    `gorm:"type:text" json:"note"`

	Timestamps
}

// UserProfileMirror mirrors the remote user profile (one row per user)
type UserProfileMirror struct {
	UserID           string    `gorm:"primaryKey" json:"user_id"`
	CurrentLives     int       `gorm:"default:0" json:"current_lives"`
	MaxLives         int       `gorm:"default:10" json:"max_lives"`
	AccountCreatedAt time.Time `json:"account_created_at"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
