package session

import (
	"context"
	"database/sql"
)

// PostgresRepo persists sessions, legs, and the transition log.
//
// Storage notes:
// - call_sessions is upserted; sessions are logically closed, never deleted.
// - session_events is INSERT-only (enforce with a DB policy; no UPDATE or
//   DELETE statements exist here).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) SaveSession(ctx context.Context, s CallSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_sessions (
			id, carrier_call_id, direction, counterpart_number, contact_id,
			campaign_id, status, conference_room_id, assigned_agent_id,
			assigned_queue_id, priority, duration_seconds, recording_url,
			created_at, answered_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			conference_room_id = EXCLUDED.conference_room_id,
			assigned_agent_id = EXCLUDED.assigned_agent_id,
			assigned_queue_id = EXCLUDED.assigned_queue_id,
			priority = EXCLUDED.priority,
			duration_seconds = EXCLUDED.duration_seconds,
			recording_url = EXCLUDED.recording_url,
			answered_at = EXCLUDED.answered_at,
			ended_at = EXCLUDED.ended_at
	`,
		s.ID, s.CarrierCallID, s.Direction, s.CounterpartNumber, nullable(s.ContactID),
		nullable(s.CampaignID), s.Status, nullable(s.ConferenceRoomID), nullable(s.AssignedAgentID),
		nullable(s.AssignedQueueID), s.Priority, s.DurationSeconds, nullable(s.RecordingURL),
		s.CreatedAt, s.AnsweredAt, s.EndedAt,
	)
	return err
}

func (r *PostgresRepo) SaveLeg(ctx context.Context, l CallLeg) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_legs (id, session_id, carrier_leg_id, role, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status
	`, l.ID, l.SessionID, nullable(l.CarrierLegID), l.Role, l.Status, l.CreatedAt)
	return err
}

func (r *PostgresRepo) AppendEvent(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_events (id, session_id, from_status, to_status, reason, at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.SessionID, string(e.From), string(e.To), nullable(e.Reason), e.At)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
