package disposition

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo persists disposition records. The unique index on session_id
// backs the one-disposition-per-session rule under concurrent submission.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) SaveRecord(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO disposition_records (
			id, session_id, disposition_id, agent_id, duration_seconds,
			sale_amount, notes, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (session_id) DO NOTHING
	`,
		rec.ID, rec.SessionID, rec.DispositionID, nullable(rec.AgentID),
		rec.DurationSeconds, rec.SaleAmount, nullable(rec.Notes), rec.RecordedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDispositionExists, rec.SessionID)
	}
	return nil
}

func (r *PostgresRepo) GetBySession(ctx context.Context, sessionID string) (Record, bool, error) {
	var rec Record
	var agent, notes sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, disposition_id, agent_id, duration_seconds,
		       sale_amount, notes, recorded_at
		FROM disposition_records WHERE session_id = $1
	`, sessionID).Scan(
		&rec.ID, &rec.SessionID, &rec.DispositionID, &agent,
		&rec.DurationSeconds, &rec.SaleAmount, &notes, &rec.RecordedAt,
	)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec.AgentID = agent.String
	rec.Notes = notes.String
	return rec, true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
