// habit-companion/services/validation_workflow.go
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"habit-companion/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// WorkflowState is the local verdict state for one redemption's proof
type WorkflowState string

const (
	WorkflowIdle          WorkflowState = "idle"
	WorkflowChecking      WorkflowState = "checking"
	WorkflowPendingReview WorkflowState = "pending_review"
	WorkflowApproved      WorkflowState = "approved"
	WorkflowRejected      WorkflowState = "rejected"
)

const defaultValidationPoll = 15 * time.Second

var proofValidate = validator.New()

// ProofSubmission mirrors the server's proof contract so invalid submissions
// are rejected before a network round trip.
type ProofSubmission struct {
	Text      string   `validate:"required,min=20"`
	ImageURLs []string `validate:"required,min=1,max=2,dive,url"`
}

// WorkflowCallbacks is the workflow's latest-callbacks cell. OnApproved also
// triggers the dependent-state refresh; OnRejected triggers nothing else since
// nothing external changed.
type WorkflowCallbacks struct {
	OnApproved func(v *models.ChallengeValidation)
	OnRejected func(v *models.ChallengeValidation)
	// RefreshDependents re-syncs redemption/user state after an approval.
	RefreshDependents func()
}

// ValidationWorkflow drives one redemption's proof through review: submit,
// poll until a terminal verdict, surface approved/rejected/pending projections.
type ValidationWorkflow struct {
	redemptionID string
	client       *RedemptionClient
	clock        clockwork.Clock
	pollInterval time.Duration

	mu        sync.Mutex
	state     WorkflowState
	record    models.ValidationRecord
	fetchSeq  uint64 // bumped at every fetch start; stale results are dropped
	pollStop  chan struct{}
	callbacks WorkflowCallbacks
}

func NewValidationWorkflow(redemptionID string, client *RedemptionClient, clock clockwork.Clock) *ValidationWorkflow {
	return &ValidationWorkflow{
		redemptionID: redemptionID,
		client:       client,
		clock:        clock,
		pollInterval: defaultValidationPoll,
		state:        WorkflowIdle,
	}
}

func (w *ValidationWorkflow) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

func (w *ValidationWorkflow) SetCallbacks(cb WorkflowCallbacks) {
	w.mu.Lock()
	w.callbacks = cb
	w.mu.Unlock()
}

// State returns the current workflow state
func (w *ValidationWorkflow) State() WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Validation returns the current validation record, if any
func (w *ValidationWorkflow) Validation() *models.ChallengeValidation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record.Validation
}

// SubmitProof validates the proof contract client-side, submits it, and on
// success installs an optimistic pending_review record and starts polling.
// A "validation already open" response is a reconciliation signal, not an
// error: the pending error state is discarded and current status re-queried,
// adopting whatever validation the server reports.
func (w *ValidationWorkflow) SubmitProof(ctx context.Context, text string, imageURLs []string) error {
	if err := proofValidate.Struct(ProofSubmission{Text: text, ImageURLs: imageURLs}); err != nil {
		return err
	}

	resp, err := w.client.CompleteChallenge(ctx, w.redemptionID, SubmitProofRequest{
		ProofText:      text,
		ProofImageURLs: imageURLs,
	})
	if err != nil {
		if IsAPIErrorCode(err, ErrCodeValidationAlreadyOpen) {
			log.Printf("[VALIDATION] %s: submission conflicted with an open validation, reconciling", w.redemptionID)
			return w.CheckStatus(ctx)
		}
		return err
	}

	now := w.clock.Now()
	validationID := resp.ValidationID
	if validationID == "" {
		validationID = uuid.NewString()
	}

	w.mu.Lock()
	// A new submission starts a new validation cycle: the previous record
	// (confirmed or not) is history, and in-flight fetches for it are stale.
	w.fetchSeq++
	w.record = models.ValidationRecord{}
	w.record.Adopt(models.ValidationSourceOptimistic, &models.ChallengeValidation{
		ID:           validationID,
		RedemptionID: w.redemptionID,
		Status:       models.ValidationStatusPendingReview,
		CreatedAt:    now,
		// Optimistic estimate; overwritten by the first successful poll.
		ExpiresAt: now.Add(time.Duration(models.MaxReviewWindowMS) * time.Millisecond),
	})
	w.state = WorkflowPendingReview
	w.startPollingLocked()
	w.mu.Unlock()

	return nil
}

// CheckStatus runs a single on-demand status fetch. If the result is
// pending_review, polling is (re)armed; otherwise polling stops. Approved is
// terminal: a check after approval is a no-op.
func (w *ValidationWorkflow) CheckStatus(ctx context.Context) error {
	w.mu.Lock()
	if w.state == WorkflowApproved {
		w.mu.Unlock()
		return nil
	}
	if w.state == WorkflowIdle || w.state == WorkflowRejected {
		w.state = WorkflowChecking
	}
	w.fetchSeq++
	seq := w.fetchSeq
	w.mu.Unlock()

	resp, err := w.client.GetValidationStatus(ctx, w.redemptionID)
	if err != nil {
		w.mu.Lock()
		if w.state == WorkflowChecking && seq == w.fetchSeq {
			w.state = WorkflowIdle
		}
		w.mu.Unlock()
		return err
	}

	w.apply(resp, seq)
	return nil
}

// apply folds one fetch result into the state machine. Results tagged with a
// superseded sequence are discarded.
func (w *ValidationWorkflow) apply(resp *ValidationStatusResponse, seq uint64) {
	w.mu.Lock()
	if seq != w.fetchSeq || w.state == WorkflowApproved {
		w.mu.Unlock()
		return
	}

	if !resp.HasValidation || resp.Validation == nil {
		if w.state == WorkflowPendingReview {
			// A lagging read right after submission. The optimistic record
			// stands and polling continues until a verdict shows up; only a
			// terminal status leaves pending_review.
			w.mu.Unlock()
			return
		}
		w.state = WorkflowIdle
		w.record = models.ValidationRecord{}
		w.stopPollingLocked()
		w.mu.Unlock()
		return
	}

	v := resp.Validation
	w.record.Adopt(models.ValidationSourceConfirmed, v)

	switch {
	case v.Status == models.ValidationStatusPendingReview:
		w.state = WorkflowPendingReview
		w.startPollingLocked()
		w.mu.Unlock()

	case v.Status.IsApproved():
		w.state = WorkflowApproved
		w.stopPollingLocked()
		cb := w.callbacks
		w.mu.Unlock()
		log.Printf("[VALIDATION] %s: proof approved (%s)", w.redemptionID, v.Status)
		if cb.OnApproved != nil {
			cb.OnApproved(v)
		}
		if cb.RefreshDependents != nil {
			cb.RefreshDependents()
		}

	case v.Status.IsRejected():
		w.state = WorkflowRejected
		w.stopPollingLocked()
		cb := w.callbacks
		w.mu.Unlock()
		log.Printf("[VALIDATION] %s: proof rejected (%s)", w.redemptionID, v.Status)
		if cb.OnRejected != nil {
			cb.OnRejected(v)
		}

	default:
		log.Printf("[VALIDATION] %s: unknown validation status %q, treating as pending", w.redemptionID, v.Status)
		w.state = WorkflowPendingReview
		w.startPollingLocked()
		w.mu.Unlock()
	}
}

// startPollingLocked arms the poll loop if it is not already running.
// Caller holds w.mu.
func (w *ValidationWorkflow) startPollingLocked() {
	if w.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	w.pollStop = stop

	go func() {
		ticker := w.clock.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				// Every fetch carries a fresh tag; whichever fetch started
				// last wins, regardless of arrival order.
				w.mu.Lock()
				w.fetchSeq++
				seq := w.fetchSeq
				w.mu.Unlock()

				resp, err := w.client.GetValidationStatus(context.Background(), w.redemptionID)
				if err != nil {
					// Background refresh: transport failures are swallowed
					// and the loop continues.
					log.Printf("[VALIDATION] %s: poll failed: %v", w.redemptionID, err)
					continue
				}
				w.apply(resp, seq)
			case <-stop:
				return
			}
		}
	}()
}

// stopPollingLocked tears the poll loop down. Caller holds w.mu.
func (w *ValidationWorkflow) stopPollingLocked() {
	if w.pollStop != nil {
		close(w.pollStop)
		w.pollStop = nil
	}
}

// Polling reports whether the poll loop is armed
func (w *ValidationWorkflow) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pollStop != nil
}

// Reset clears local validation state and stops polling. In-flight fetch
// results are invalidated by bumping the sequence.
func (w *ValidationWorkflow) Reset() {
	w.mu.Lock()
	w.fetchSeq++
	w.state = WorkflowIdle
	w.record = models.ValidationRecord{}
	w.stopPollingLocked()
	w.mu.Unlock()
}

// WorkflowManager guarantees at most one workflow per redemption and tears
// them down deterministically when their redemption leaves the active set.
type WorkflowManager struct {
	client       *RedemptionClient
	clock        clockwork.Clock
	pollInterval time.Duration
	callbacks    func(redemptionID string) WorkflowCallbacks

	mu        sync.Mutex
	workflows map[string]*ValidationWorkflow
}

func NewWorkflowManager(client *RedemptionClient, clock clockwork.Clock, callbacks func(redemptionID string) WorkflowCallbacks) *WorkflowManager {
	return &WorkflowManager{
		client:       client,
		clock:        clock,
		pollInterval: defaultValidationPoll,
		callbacks:    callbacks,
		workflows:    make(map[string]*ValidationWorkflow),
	}
}

func (m *WorkflowManager) SetPollInterval(d time.Duration) {
	m.pollInterval = d
}

// Get returns the workflow for a redemption, creating it on first use
func (m *WorkflowManager) Get(redemptionID string) *ValidationWorkflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workflows[redemptionID]; ok {
		return w
	}
	w := NewValidationWorkflow(redemptionID, m.client, m.clock)
	w.SetPollInterval(m.pollInterval)
	if m.callbacks != nil {
		w.SetCallbacks(m.callbacks(redemptionID))
	}
	m.workflows[redemptionID] = w
	return w
}

// Teardown resets and forgets a workflow (view closed, redemption resolved)
func (m *WorkflowManager) Teardown(redemptionID string) {
	m.mu.Lock()
	w, ok := m.workflows[redemptionID]
	if ok {
		delete(m.workflows, redemptionID)
	}
	m.mu.Unlock()
	if ok {
		w.Reset()
	}
}

// TeardownAll stops every workflow's timers
func (m *WorkflowManager) TeardownAll() {
	m.mu.Lock()
	ws := make([]*ValidationWorkflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		ws = append(ws, w)
	}
	m.workflows = make(map[string]*ValidationWorkflow)
	m.mu.Unlock()
	for _, w := range ws {
		w.Reset()
	}
}
