// habit-companion/services/redemption_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"habit-companion/models"
)

// Machine-readable error codes surfaced by the Remote Redemption Service
const (
	ErrCodeValidationAlreadyOpen     = "validation_already_open"
	ErrCodeMaxRetriesExceeded        = "max_retries_exceeded"
	ErrCodeRedemptionExpired         = "redemption_expired"
	ErrCodeImageTooLarge             = "image_too_large"
	ErrCodeUnsupportedImageFormat    = "unsupported_image_format"
	ErrCodeNoChallengeAssigned       = "no_challenge_assigned"
	ErrCodeChallengeAlreadyCompleted = "challenge_already_completed"
)

// apiErrorMessages maps machine codes to user-facing text
var apiErrorMessages = map[string]string{
	ErrCodeValidationAlreadyOpen:     "A review for this challenge is already in progress.",
	ErrCodeMaxRetriesExceeded:        "No more attempts left for this challenge.",
	ErrCodeRedemptionExpired:         "The redemption window has expired.",
	ErrCodeImageTooLarge:             "One of the images exceeds the size limit.",
	ErrCodeUnsupportedImageFormat:    "One of the images is in an unsupported format.",
	ErrCodeNoChallengeAssigned:       "No challenge has been assigned yet.",
	ErrCodeChallengeAlreadyCompleted: "This challenge was already completed.",
}

// APIError is a structured error returned by the redemption service
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("redemption service error %d (%s): %s", e.HTTPStatus, e.Code, e.Message)
}

// UserMessage returns the readable text for the error's machine code,
// falling back to the server-provided message.
func (e *APIError) UserMessage() string {
	if msg, ok := apiErrorMessages[e.Code]; ok {
		return msg
	}
	return e.Message
}

// IsAPIErrorCode reports whether err is an APIError carrying the given code
func IsAPIErrorCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsTerminalBusinessError reports codes after which no retry affordance
// should be offered.
func IsTerminalBusinessError(err error) bool {
	return IsAPIErrorCode(err, ErrCodeMaxRetriesExceeded) ||
		IsAPIErrorCode(err, ErrCodeRedemptionExpired)
}

// RedemptionClient talks to the Remote Redemption Service
type RedemptionClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewRedemptionClient(baseURL, token string) *RedemptionClient {
	return &RedemptionClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListResponse is the active-redemption list, the authoritative time source
type ListResponse struct {
	Redemptions []models.PendingRedemption `json:"redemptions"`
}

// RedeemLifeResponse reports the life count after accepting a penalty.
// IsDead must be surfaced distinctly from normal success.
type RedeemLifeResponse struct {
	CurrentLives int  `json:"current_lives"`
	IsDead       bool `json:"is_dead"`
}

// RedeemChallengeResponse confirms a challenge assignment
type RedeemChallengeResponse struct {
	AssignedChallenge models.Challenge `json:"assigned_challenge"`
	UserChallengeID   string           `json:"user_challenge_id"`
}

// SubmitProofRequest mirrors the server's proof contract
type SubmitProofRequest struct {
	ProofText      string   `json:"proof_text"`
	ProofImageURLs []string `json:"proof_image_urls"`
}

// SubmitProofResponse acknowledges an (always asynchronous) submission
type SubmitProofResponse struct {
	ValidationID string                  `json:"validation_id"`
	Status       models.ValidationStatus `json:"status"`
}

// ValidationStatusResponse drives the validation workflow
type ValidationStatusResponse struct {
	HasValidation bool                        `json:"has_validation"`
	Validation    *models.ChallengeValidation `json:"validation,omitempty"`
}

// UserProfileResponse mirrors GET /me
type UserProfileResponse struct {
	UserID           string    `json:"user_id"`
	CurrentLives     int       `json:"current_lives"`
	MaxLives         int       `json:"max_lives"`
	AccountCreatedAt time.Time `json:"account_created_at"`
}

// ListPendingRedemptions fetches the full active-redemption list
func (c *RedemptionClient) ListPendingRedemptions(ctx context.Context) ([]models.PendingRedemption, error) {
	var out ListResponse
	if err := c.do(ctx, "GET", "/pending-redemptions", nil, &out); err != nil {
		return nil, err
	}
	return out.Redemptions, nil
}

// RedeemLife accepts the penalty for a redemption
func (c *RedemptionClient) RedeemLife(ctx context.Context, redemptionID string) (*RedeemLifeResponse, error) {
	var out RedeemLifeResponse
	path := fmt.Sprintf("/pending-redemptions/%s/redeem-life", url.PathEscape(redemptionID))
	if err := c.do(ctx, "POST", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RedeemChallenge assigns a substitute challenge to a redemption
func (c *RedemptionClient) RedeemChallenge(ctx context.Context, redemptionID, challengeID string) (*RedeemChallengeResponse, error) {
	var out RedeemChallengeResponse
	path := fmt.Sprintf("/pending-redemptions/%s/redeem-challenge", url.PathEscape(redemptionID))
	body := map[string]string{"challenge_id": challengeID}
	if err := c.do(ctx, "POST", path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteChallenge submits proof for review
func (c *RedemptionClient) CompleteChallenge(ctx context.Context, redemptionID string, req SubmitProofRequest) (*SubmitProofResponse, error) {
	var out SubmitProofResponse
	path := fmt.Sprintf("/pending-redemptions/%s/complete-challenge", url.PathEscape(redemptionID))
	if err := c.do(ctx, "POST", path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetValidationStatus polls the review verdict for a redemption
func (c *RedemptionClient) GetValidationStatus(ctx context.Context, redemptionID string) (*ValidationStatusResponse, error) {
	var out ValidationStatusResponse
	path := fmt.Sprintf("/pending-redemptions/%s/validation-status", url.PathEscape(redemptionID))
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserProfile fetches the current life counts
func (c *RedemptionClient) GetUserProfile(ctx context.Context) (*UserProfileResponse, error) {
	var out UserProfileResponse
	if err := c.do(ctx, "GET", "/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListHabits fetches habit definitions changed since the given cursor
func (c *RedemptionClient) ListHabits(ctx context.Context, since time.Time) ([]models.HabitMirror, error) {
	var out struct {
		Habits []models.HabitMirror `json:"habits"`
	}
	if err := c.do(ctx, "GET", sincePath("/habits", since), nil, &out); err != nil {
		return nil, err
	}
	return out.Habits, nil
}

// ListCompletions fetches completions changed since the given cursor
func (c *RedemptionClient) ListCompletions(ctx context.Context, since time.Time) ([]models.CompletionMirror, error) {
	var out struct {
		Completions []models.CompletionMirror `json:"completions"`
	}
	if err := c.do(ctx, "GET", sincePath("/completions", since), nil, &out); err != nil {
		return nil, err
	}
	return out.Completions, nil
}

func sincePath(path string, since time.Time) string {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	return path + "?" + q.Encode()
}

// do runs one request/response cycle. Non-2xx bodies are decoded into an
// APIError; bodies that are not the structured error shape become an APIError
// with an empty code so callers can still match on HTTP status.
func (c *RedemptionClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("redemption service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		var wrapped struct {
			Error *APIError `json:"error"`
		}
		if jsonErr := json.Unmarshal(raw, &wrapped); jsonErr == nil && wrapped.Error != nil && wrapped.Error.Code != "" {
			apiErr.Code = wrapped.Error.Code
			apiErr.Message = wrapped.Error.Message
		} else if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Message = string(raw)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode redemption service response: %w", err)
	}
	return nil
}
