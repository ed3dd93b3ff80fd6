package services

import (
	"fmt"
	"testing"
	"time"

	"habit-companion/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.HabitMirror{},
		&models.CompletionMirror{},
		&models.UserProfileMirror{},
		&models.LifeChallengeRedemption{},
	))
	return db
}

func newTestLifeService(t *testing.T) (*LifeChallengeService, *gorm.DB, *clockwork.FakeClock) {
	t.Helper()
	db := openTestDB(t)
	clock := clockwork.NewFakeClockAt(testToday)
	return NewLifeChallengeService(db, clock), db, clock
}

func seedProfile(t *testing.T, db *gorm.DB, current, max int) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserProfileMirror{
		UserID:           "u1",
		CurrentLives:     current,
		MaxLives:         max,
		AccountCreatedAt: testToday.AddDate(0, -3, 0),
	}).Error)
}

// seedWeekStreak gives u1 one active habit with a full 7-day trailing run,
// which satisfies the unlimited "perfect-week" challenge.
func seedWeekStreak(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.HabitMirror{
		ID: "h1", UserID: "u1", Name: "Exercise", Active: true,
		StartDate: testToday.AddDate(0, -2, 0),
	}).Error)
	for i := 1; i <= 7; i++ {
		day := testToday.AddDate(0, 0, -i)
		require.NoError(t, db.Create(&models.CompletionMirror{
			ID:      fmt.Sprintf("c%d", i),
			HabitID: "h1", UserID: "u1",
			ForDate:     day.Format(dateLayout),
			CompletedAt: day.Add(8 * time.Hour),
		}).Error)
	}
}

func TestEvaluateAllStatuses(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	seedProfile(t, db, 5, 10)
	seedWeekStreak(t, db)

	states, err := svc.EvaluateAll("u1")
	require.NoError(t, err)

	byCode := make(map[string]LifeChallengeState, len(states))
	for _, s := range states {
		byCode[s.Code] = s
	}

	assert.Equal(t, models.LifeChallengeStatusObtained, byCode["perfect-week"].Status)
	assert.True(t, byCode["perfect-week"].Redeemable)

	assert.Equal(t, models.LifeChallengeStatusObtained, byCode["survivor"].Status)

	assert.Equal(t, models.LifeChallengeStatusPending, byCode["perfect-month"].Status)
	assert.False(t, byCode["perfect-month"].Redeemable)
	assert.Equal(t, models.LifeChallengeStatusPending, byCode["collector"].Status)
}

func TestRedeemFullGrant(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	seedProfile(t, db, 5, 10)
	seedWeekStreak(t, db)

	outcome, err := svc.Redeem("u1", "perfect-week", false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.GrantedLives)
	assert.Equal(t, 0, outcome.Shortfall)
	assert.Equal(t, 6, outcome.CurrentLives)

	var profile models.UserProfileMirror
	require.NoError(t, db.Where("user_id = ?", "u1").First(&profile).Error)
	assert.Equal(t, 6, profile.CurrentLives)
}

func TestRedeemCapsAtEmptySlots(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	// 2 empty slots, perfect-month would grant 3
	seedProfile(t, db, 8, 10)

	offsets := make([]int, 0, 30)
	for i := 1; i <= 30; i++ {
		offsets = append(offsets, i)
	}
	require.NoError(t, db.Create(&models.HabitMirror{
		ID: "h1", UserID: "u1", Name: "Read", Active: true,
		StartDate: testToday.AddDate(0, -2, 0),
	}).Error)
	for _, off := range offsets {
		day := testToday.AddDate(0, 0, -off)
		require.NoError(t, db.Create(&models.CompletionMirror{
			ID:      fmt.Sprintf("c%d", off),
			HabitID: "h1", UserID: "u1",
			ForDate:     day.Format(dateLayout),
			CompletedAt: day.Add(8 * time.Hour),
		}).Error)
	}

	// unconfirmed partial grant is refused, with the shortfall reported
	outcome, err := svc.Redeem("u1", "perfect-month", false)
	require.ErrorIs(t, err, ErrShortfallNeedsConfirm)
	require.NotNil(t, outcome)
	assert.Equal(t, 2, outcome.GrantedLives)
	assert.Equal(t, 1, outcome.Shortfall)

	// nothing was granted yet
	var profile models.UserProfileMirror
	require.NoError(t, db.Where("user_id = ?", "u1").First(&profile).Error)
	assert.Equal(t, 8, profile.CurrentLives)

	// confirmed: exactly the capacity is granted
	outcome, err = svc.Redeem("u1", "perfect-month", true)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.GrantedLives)
	assert.Equal(t, 1, outcome.Shortfall)
	assert.Equal(t, 10, outcome.CurrentLives)
}

func TestRedeemWithNoCapacity(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	seedProfile(t, db, 10, 10)
	seedWeekStreak(t, db)

	outcome, err := svc.Redeem("u1", "perfect-week", true)
	require.ErrorIs(t, err, ErrNoLifeCapacity)
	require.NotNil(t, outcome)
	assert.True(t, outcome.NoCapacity)
	assert.Equal(t, 0, outcome.GrantedLives)

	// explicitly refused, not silently accepted
	var count int64
	require.NoError(t, db.Model(&models.LifeChallengeRedemption{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestOnceChallengeNeverRedeemableTwice(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	seedProfile(t, db, 5, 10)
	// three habits with full 7-day runs satisfy once-mode "triple-threat"
	for h := 0; h < 3; h++ {
		id := fmt.Sprintf("h%d", h)
		require.NoError(t, db.Create(&models.HabitMirror{
			ID: id, UserID: "u1", Name: "Habit " + id, Active: true,
			StartDate: testToday.AddDate(0, -2, 0),
		}).Error)
		for i := 1; i <= 7; i++ {
			day := testToday.AddDate(0, 0, -i)
			require.NoError(t, db.Create(&models.CompletionMirror{
				ID:      fmt.Sprintf("%s-c%d", id, i),
				HabitID: id, UserID: "u1",
				ForDate:     day.Format(dateLayout),
				CompletedAt: day.Add(8 * time.Hour),
			}).Error)
		}
	}

	outcome, err := svc.Redeem("u1", "triple-threat", false)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.GrantedLives)

	// re-evaluating the same (now later) state must yield redeemable=false
	states, err := svc.EvaluateAll("u1")
	require.NoError(t, err)
	for _, s := range states {
		if s.Code == "triple-threat" {
			assert.Equal(t, models.LifeChallengeStatusRedeemed, s.Status)
			assert.False(t, s.Redeemable)
		}
	}

	_, err = svc.Redeem("u1", "triple-threat", false)
	require.ErrorIs(t, err, ErrChallengeNotRedeemable)
}

func TestRedeemUnknownChallenge(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	seedProfile(t, db, 5, 10)

	_, err := svc.Redeem("u1", "no-such-challenge", false)
	require.ErrorIs(t, err, ErrUnknownChallenge)

	_, err = svc.Preview("u1", "no-such-challenge")
	require.ErrorIs(t, err, ErrUnknownChallenge)
}

func TestPreviewDoesNotMutate(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	seedProfile(t, db, 9, 10)
	seedWeekStreak(t, db)

	outcome, err := svc.Preview("u1", "perfect-week")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.GrantedLives)

	var profile models.UserProfileMirror
	require.NoError(t, db.Where("user_id = ?", "u1").First(&profile).Error)
	assert.Equal(t, 9, profile.CurrentLives)
}

func TestCollectorCountsOnceRedemptions(t *testing.T) {
	svc, db, _ := newTestLifeService(t)
	seedProfile(t, db, 5, 10)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&models.LifeChallengeRedemption{
			ID:            fmt.Sprintf("lcr%d", i),
			UserID:        "u1",
			ChallengeCode: fmt.Sprintf("code-%d", i),
			Mode:          models.RedeemModeOnce,
			LivesGranted:  1,
		}).Error)
	}

	snap, err := svc.BuildSnapshot("u1")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.OnceRedeemed)
	assert.True(t, Evaluate("collector", snap))
}
