// habit-companion/workers/habit_sync_worker.go
package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"habit-companion/models"
	"habit-companion/services"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HabitSyncWorker mirrors habits, completions and the user profile from the
// redemption service into the local tables the rule engine reads. Sync is
// incremental: the since-cursor only advances after a fully successful batch,
// so a failed window is retried on the next tick.
type HabitSyncWorker struct {
	db       *gorm.DB
	client   *services.RedemptionClient
	interval time.Duration

	mu           sync.Mutex
	lastSyncTime time.Time
}

func NewHabitSyncWorker(db *gorm.DB, client *services.RedemptionClient, interval time.Duration) *HabitSyncWorker {
	return &HabitSyncWorker{
		db:       db,
		client:   client,
		interval: interval,
		// First batch backfills from epoch.
		lastSyncTime: time.Unix(0, 0),
	}
}

func (w *HabitSyncWorker) Start(ctx context.Context) {
	log.Println("[SYNC] starting habit mirror sync worker")
	go w.run(ctx)
}

func (w *HabitSyncWorker) run(ctx context.Context) {
	// Initial backfill before the first tick.
	if err := w.SyncBatch(ctx); err != nil {
		log.Printf("[SYNC] initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncBatch(ctx); err != nil {
				log.Printf("[SYNC] batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("[SYNC] habit mirror sync worker stopped")
			return
		}
	}
}

// SyncBatch pulls one incremental window of habits and completions plus the
// current profile, upserting them into the mirrors.
func (w *HabitSyncWorker) SyncBatch(ctx context.Context) error {
	w.mu.Lock()
	since := w.lastSyncTime
	w.mu.Unlock()

	batchStart := time.Now().UTC()

	habits, err := w.client.ListHabits(ctx, since)
	if err != nil {
		return err
	}
	completions, err := w.client.ListCompletions(ctx, since)
	if err != nil {
		return err
	}

	if len(habits) > 0 {
		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "name", "active", "progress_type",
				"start_date", "target_date", "current_streak", "updated_at",
			}),
		}).Create(&habits).Error; err != nil {
			return err
		}
	}

	if len(completions) > 0 {
		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"habit_id", "user_id", "for_date", "completed_at",
				"minutes", "note", "updated_at",
			}),
		}).Create(&completions).Error; err != nil {
			return err
		}
	}

	if err := w.RefreshProfile(ctx); err != nil {
		return err
	}

	// Only advance the cursor once everything in the window landed.
	w.mu.Lock()
	w.lastSyncTime = batchStart
	w.mu.Unlock()

	if len(habits) > 0 || len(completions) > 0 {
		log.Printf("[SYNC] mirrored %d habit(s), %d completion(s) since %s",
			len(habits), len(completions), since.Format(time.RFC3339))
	}
	return nil
}

// RefreshProfile re-fetches the user profile and upserts the mirror row. Also
// used directly by the redemption store after penalty/approval events.
func (w *HabitSyncWorker) RefreshProfile(ctx context.Context) error {
	profile, err := w.client.GetUserProfile(ctx)
	if err != nil {
		return err
	}

	row := models.UserProfileMirror{
		UserID:           profile.UserID,
		CurrentLives:     profile.CurrentLives,
		MaxLives:         profile.MaxLives,
		AccountCreatedAt: profile.AccountCreatedAt,
	}
	return w.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_lives", "max_lives", "account_created_at", "updated_at",
		}),
	}).Create(&row).Error
}
