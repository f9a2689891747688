package disposition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dialer-platform/internal/outcome"
	"dialer-platform/internal/session"
)

var (
	// ErrDispositionExists is a conflict; a session's disposition is
	// recorded once and never overwritten.
	ErrDispositionExists = errors.New("disposition: already recorded for session")

	ErrSessionNotFound = errors.New("disposition: session not found")
)

// Record is the agent's end-of-call classification as submitted.
type Record struct {
	ID              string    `json:"id" db:"id"`
	SessionID       string    `json:"session_id" db:"session_id"`
	DispositionID   string    `json:"disposition_id" db:"disposition_id"`
	AgentID         string    `json:"agent_id,omitempty" db:"agent_id"`
	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
	SaleAmount      float64   `json:"sale_amount,omitempty" db:"sale_amount"`
	Notes           string    `json:"notes,omitempty" db:"notes"`
	RecordedAt      time.Time `json:"recorded_at" db:"recorded_at"`
}

// Repository persists disposition records. SaveRecord must reject a second
// record for the same session.
type Repository interface {
	SaveRecord(ctx context.Context, rec Record) error
	GetBySession(ctx context.Context, sessionID string) (Record, bool, error)
}

// SessionEnder drives the terminal transition when the agent submits a
// disposition before the carrier hangup webhook lands.
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID, reason string, durationSeconds int) (session.CallSession, bool, error)
}

// Recorder accepts the agent's classification, closes the session if it is
// still live, and synchronously materializes the outcome.
type Recorder struct {
	store  *session.Store
	ender  SessionEnder
	engine *outcome.Engine
	repo   Repository
	clock  func() time.Time
}

func NewRecorder(store *session.Store, ender SessionEnder, engine *outcome.Engine, repo Repository) *Recorder {
	return &Recorder{store: store, ender: ender, engine: engine, repo: repo, clock: time.Now}
}

// WithClock overrides the timestamp source. For tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

type RecordRequest struct {
	SessionID       string  `json:"-"`
	DispositionID   string  `json:"disposition_id"`
	AgentID         string  `json:"agent_id,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	SaleAmount      float64 `json:"sale_amount,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	LeadScore       int     `json:"lead_score,omitempty"`
}

// RecordDisposition persists the classification and returns the materialized
// CallOutcome. If the session has not ended yet, submission is the end
// trigger; the already-idempotent end path absorbs a racing carrier hangup.
func (r *Recorder) RecordDisposition(ctx context.Context, req RecordRequest) (outcome.CallOutcome, error) {
	if req.SessionID == "" || req.DispositionID == "" {
		return outcome.CallOutcome{}, fmt.Errorf("%w: session and disposition required", session.ErrInvalidArgument)
	}

	sess, ok := r.store.Get(req.SessionID)
	if !ok {
		return outcome.CallOutcome{}, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
	}

	if _, exists, err := r.repo.GetBySession(ctx, req.SessionID); err != nil {
		return outcome.CallOutcome{}, fmt.Errorf("disposition: record lookup: %w", err)
	} else if exists {
		return outcome.CallOutcome{}, fmt.Errorf("%w: %s", ErrDispositionExists, req.SessionID)
	}

	// Reject unknown disposition ids before the session is ended or the
	// record is written; a corrected resubmission must not hit the
	// one-record conflict.
	if err := r.engine.ValidateDisposition(ctx, req.DispositionID); err != nil {
		return outcome.CallOutcome{}, err
	}

	if !sess.Ended() {
		ended, _, err := r.ender.EndSession(ctx, req.SessionID, "agent disposition", req.DurationSeconds)
		if err != nil {
			return outcome.CallOutcome{}, fmt.Errorf("disposition: end session: %w", err)
		}
		sess = ended
	}

	duration := sess.DurationSeconds
	if duration == 0 {
		duration = req.DurationSeconds
	}

	rec := Record{
		ID:              uuid.NewString(),
		SessionID:       req.SessionID,
		DispositionID:   req.DispositionID,
		AgentID:         req.AgentID,
		DurationSeconds: duration,
		SaleAmount:      req.SaleAmount,
		Notes:           req.Notes,
		RecordedAt:      r.clock(),
	}
	if err := r.repo.SaveRecord(ctx, rec); err != nil {
		return outcome.CallOutcome{}, err
	}

	agentID := req.AgentID
	if agentID == "" {
		agentID = sess.AssignedAgentID
	}

	return r.engine.MapOutcome(ctx, outcome.MapRequest{
		SessionID:       req.SessionID,
		CampaignID:      sess.CampaignID,
		AgentID:         agentID,
		DispositionID:   req.DispositionID,
		DurationSeconds: duration,
		SaleAmount:      req.SaleAmount,
		LeadScore:       req.LeadScore,
		Notes:           req.Notes,
	})
}
