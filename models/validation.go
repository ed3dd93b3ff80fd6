package models

import (
	"strings"
	"time"
)

// ValidationStatus is the server-side verdict state of a submitted proof
type ValidationStatus string

const (
	ValidationStatusPendingReview  ValidationStatus = "pending_review"
	ValidationStatusApprovedManual ValidationStatus = "approved_manual"
	ValidationStatusApprovedAI     ValidationStatus = "approved_ai"
	ValidationStatusRejectedManual ValidationStatus = "rejected_manual"
	ValidationStatusRejectedAI     ValidationStatus = "rejected_ai"
)

// MaxReviewWindowMS is the optimistic review window assumed at submission time
// (1h); the first successful status poll overwrites the estimate.
const MaxReviewWindowMS int64 = 60 * 60 * 1000

// AIResult carries the automated judge's verdict details, when it judged
type AIResult struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// ChallengeValidation is the review record tracking one submitted proof
type ChallengeValidation struct {
	ID            string           `json:"id"`
	RedemptionID  string           `json:"redemption_id"`
	Status        ValidationStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	ReviewerNotes string           `json:"reviewer_notes,omitempty"`
	AIResult      *AIResult        `json:"ai_result,omitempty"`
}

func (s ValidationStatus) IsApproved() bool {
	return s == ValidationStatusApprovedManual || s == ValidationStatusApprovedAI
}

func (s ValidationStatus) IsRejected() bool {
	return s == ValidationStatusRejectedManual || s == ValidationStatusRejectedAI
}

func (s ValidationStatus) IsTerminal() bool {
	return s.IsApproved() || s.IsRejected()
}

// ValidationSource tags where a local validation record came from
type ValidationSource int

const (
	ValidationSourceUnknown ValidationSource = iota
	// ValidationSourceOptimistic: constructed locally at submission time,
	// awaiting server confirmation.
	ValidationSourceOptimistic
	// ValidationSourceConfirmed: read back from the server. A confirmed record
	// unconditionally replaces an optimistic one regardless of arrival order.
	ValidationSourceConfirmed
)

// ValidationRecord pairs a validation with its provenance
type ValidationRecord struct {
	Source     ValidationSource
	Validation *ChallengeValidation
}

// Adopt applies an incoming record, enforcing that Confirmed beats Optimistic
// and that nothing downgrades a Confirmed record back to Optimistic.
func (r *ValidationRecord) Adopt(src ValidationSource, v *ChallengeValidation) bool {
	if src == ValidationSourceOptimistic && r.Source == ValidationSourceConfirmed {
		return false
	}
	r.Source = src
	r.Validation = v
	return true
}

// ProofImageFormats lists the accepted content types, mirroring the server
var ProofImageFormats = []string{"image/jpeg", "image/png", "image/webp"}

// ProofImageMaxBytes mirrors the server's per-image size limit (5 MB)
const ProofImageMaxBytes int64 = 5 * 1024 * 1024

// IsSupportedProofImage checks a content type against the accepted formats
func IsSupportedProofImage(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, f := range ProofImageFormats {
		if ct == f {
			return true
		}
	}
	return false
}
