// habit-companion/services/redemption_store.go
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"habit-companion/models"
	"habit-companion/utils"

	"github.com/jonboulle/clockwork"
)

const (
	countdownInterval = 1 * time.Second
	defaultListPoll   = 30 * time.Second
)

// StoreCallbacks is the swappable "latest callbacks" cell. The store only ever
// invokes callbacks through the currently installed cell, so re-installing a
// new cell (e.g. when a view remounts) takes effect for every later event.
type StoreCallbacks struct {
	// OnChange fires after any countdown tick or list overwrite.
	OnChange func()
	// OnDepleted fires when accepting a penalty drove the life count to zero.
	// Distinct from normal success by contract.
	OnDepleted func(currentLives int)
	// OnBackgroundError fires for absorbed background poll failures.
	OnBackgroundError func(err error)
}

// ProfileRefresher re-syncs dependent user/habit state after actions that
// change it server-side (penalty accepted, proof approved).
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context) error
}

// RedemptionStore holds the active-redemption list and runs the two schedulers:
// a 1-second local countdown and a fixed-interval list-refresh poll. The list
// is only ever overwritten by a completed fetch, never merged with local
// countdown state.
type RedemptionStore struct {
	client *RedemptionClient
	clock  clockwork.Clock

	pollInterval time.Duration
	profiles     ProfileRefresher

	mu          sync.Mutex
	redemptions []models.PendingRedemption
	loading     bool
	refreshing  bool   // in-flight guard: a second refresh is skipped, not queued
	fetchSeq    uint64 // tag handed to each fetch
	appliedSeq  uint64 // newest fetch whose result was applied
	callbacks   StoreCallbacks

	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

func NewRedemptionStore(client *RedemptionClient, clock clockwork.Clock, profiles ProfileRefresher) *RedemptionStore {
	return &RedemptionStore{
		client:       client,
		clock:        clock,
		pollInterval: defaultListPoll,
		profiles:     profiles,
		done:         make(chan struct{}),
	}
}

// SetPollInterval overrides the list-refresh cadence; call before Start
func (s *RedemptionStore) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// SetCallbacks installs a new callbacks cell
func (s *RedemptionStore) SetCallbacks(cb StoreCallbacks) {
	s.mu.Lock()
	s.callbacks = cb
	s.mu.Unlock()
}

// Start launches the countdown and poll loops. Stop tears both down.
func (s *RedemptionStore) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.runCountdown(ctx)
	go s.runListPoll(ctx)
}

// Stop cancels both loops deterministically
func (s *RedemptionStore) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *RedemptionStore) runCountdown(ctx context.Context) {
	ticker := s.clock.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.tick(countdownInterval)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick decrements every redemption's remaining time, floored at zero. It never
// touches the network and is a no-op while no redemption is non-terminal.
func (s *RedemptionStore) tick(elapsed time.Duration) {
	ms := elapsed.Milliseconds()

	s.mu.Lock()
	if !s.hasNonTerminalLocked() {
		s.mu.Unlock()
		return
	}
	for i := range s.redemptions {
		if s.redemptions[i].Status.IsTerminal() {
			continue
		}
		s.redemptions[i].TimeRemainingMS -= ms
		if s.redemptions[i].TimeRemainingMS < 0 {
			s.redemptions[i].TimeRemainingMS = 0
		}
	}
	onChange := s.callbacks.OnChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func (s *RedemptionStore) runListPoll(ctx context.Context) {
	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			// Checked at fire time against the latest list, not a snapshot
			// captured when the loop started.
			s.mu.Lock()
			active := s.hasNonTerminalLocked()
			s.mu.Unlock()
			if !active {
				continue
			}
			if err := s.Refresh(ctx, false); err != nil {
				// Refresh already logged and preserved state; nothing else to do.
				continue
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *RedemptionStore) hasNonTerminalLocked() bool {
	for i := range s.redemptions {
		if !s.redemptions[i].Status.IsTerminal() {
			return true
		}
	}
	return false
}

// Refresh fetches the full active-redemption list. visible=true surfaces a
// loading indicator and returns failures to the caller; visible=false absorbs
// failures, keeping the last known list. A refresh already in flight is
// silently skipped rather than queued.
func (s *RedemptionStore) Refresh(ctx context.Context, visible bool) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	s.refreshing = true
	if visible {
		s.loading = true
	}
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	redemptions, err := s.client.ListPendingRedemptions(ctx)

	s.mu.Lock()
	s.refreshing = false
	if visible {
		s.loading = false
	}
	if err != nil {
		cb := s.callbacks.OnBackgroundError
		s.mu.Unlock()
		if visible {
			return err
		}
		log.Printf("[STORE] background refresh failed, keeping last known list: %v", err)
		if cb != nil {
			cb(err)
		}
		return err
	}

	// A result from a superseded fetch must not overwrite newer state.
	if seq < s.appliedSeq {
		s.mu.Unlock()
		return nil
	}
	s.appliedSeq = seq
	s.redemptions = redemptions
	onChange := s.callbacks.OnChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// Loading reports whether a user-visible refresh is in flight
func (s *RedemptionStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// AcceptPenalty calls the remote redeem-life action. On success it kicks off a
// background list refresh and a profile refresh in parallel. IsDead on the
// response is surfaced both in the return value and via OnDepleted.
func (s *RedemptionStore) AcceptPenalty(ctx context.Context, redemptionID string) (*RedeemLifeResponse, error) {
	resp, err := s.client.RedeemLife(ctx, redemptionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	onDepleted := s.callbacks.OnDepleted
	s.mu.Unlock()

	if resp.IsDead {
		log.Printf("[STORE] user depleted after redeeming life on %s (lives=%d)", redemptionID, resp.CurrentLives)
		if onDepleted != nil {
			onDepleted(resp.CurrentLives)
		}
	}

	s.refreshAllBackground()
	return resp, nil
}

// ChooseChallenge calls the remote redeem-challenge action and, on success,
// transitions the local copy to challenge_assigned before the background
// refresh confirms it.
func (s *RedemptionStore) ChooseChallenge(ctx context.Context, redemptionID, challengeID string) (*RedeemChallengeResponse, error) {
	resp, err := s.client.RedeemChallenge(ctx, redemptionID, challengeID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for i := range s.redemptions {
		if s.redemptions[i].ID != redemptionID {
			continue
		}
		if models.CanTransition(s.redemptions[i].Status, models.RedemptionStatusChallengeAssigned) {
			s.redemptions[i].Status = models.RedemptionStatusChallengeAssigned
			assigned := resp.AssignedChallenge
			s.redemptions[i].AssignedChallenge = &assigned
		} else {
			log.Printf("[STORE] ignoring illegal local transition %s -> challenge_assigned on %s",
				s.redemptions[i].Status, redemptionID)
		}
		break
	}
	onChange := s.callbacks.OnChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}

	go func() {
		_ = s.Refresh(context.Background(), false)
	}()
	return resp, nil
}

// RefreshAfterValidation re-syncs redemptions and the user profile together,
// used once a submitted proof reaches an approved verdict.
func (s *RedemptionStore) RefreshAfterValidation() {
	s.refreshAllBackground()
}

func (s *RedemptionStore) refreshAllBackground() {
	go func() {
		_ = s.Refresh(context.Background(), false)
	}()
	if s.profiles != nil {
		go func() {
			if err := s.profiles.RefreshProfile(context.Background()); err != nil {
				log.Printf("[STORE] background profile refresh failed: %v", err)
			}
		}()
	}
}

// Snapshot returns a copy of the current list
func (s *RedemptionStore) Snapshot() []models.PendingRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PendingRedemption, len(s.redemptions))
	copy(out, s.redemptions)
	return out
}

// ActionRequired returns the redemptions still awaiting a user decision
func (s *RedemptionStore) ActionRequired() []models.PendingRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingRedemption
	for _, r := range s.redemptions {
		if r.Status.RequiresAction() {
			out = append(out, r)
		}
	}
	return out
}

// Urgent returns non-terminal redemptions below the urgency threshold
func (s *RedemptionStore) Urgent() []models.PendingRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingRedemption
	for _, r := range s.redemptions {
		if !r.Status.IsTerminal() && r.TimeRemainingMS < utils.UrgentThresholdMS {
			out = append(out, r)
		}
	}
	return out
}

// AssignedRedemption returns the redemption currently carrying an assigned
// challenge. Operationally at most one exists; the first match wins.
func (s *RedemptionStore) AssignedRedemption() *models.PendingRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.redemptions {
		if s.redemptions[i].Status == models.RedemptionStatusChallengeAssigned {
			r := s.redemptions[i]
			return &r
		}
	}
	return nil
}
