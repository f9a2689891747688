package outcome

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// PostgresCatalog reads disposition and rule configuration.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog { return &PostgresCatalog{db: db} }

func (c *PostgresCatalog) DispositionByID(ctx context.Context, id string) (Disposition, bool, error) {
	var d Disposition
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, category, requires_notes, sort_order
		FROM dispositions WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Category, &d.RequiresNotes, &d.SortOrder)
	if err == sql.ErrNoRows {
		return Disposition{}, false, nil
	}
	if err != nil {
		return Disposition{}, false, err
	}
	return d, true, nil
}

func (c *PostgresCatalog) RuleFor(ctx context.Context, campaignID, dispositionID string) (MappingRule, bool, error) {
	// Campaign-scoped rules shadow campaign-agnostic ones.
	var r MappingRule
	var campaign sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, disposition_id, outcome_category, outcome_impact,
		       base_value, conversion_probability, expected_days_to_conversion,
		       min_call_duration_seconds, requires_sale_amount, min_lead_score, active
		FROM outcome_mapping_rules
		WHERE disposition_id = $1
		  AND active = TRUE
		  AND (campaign_id = $2 OR campaign_id IS NULL)
		ORDER BY campaign_id NULLS LAST
		LIMIT 1
	`, dispositionID, campaignID).Scan(
		&r.ID, &campaign, &r.DispositionID, &r.Category, &r.Impact,
		&r.BaseValue, &r.ConversionProbability, &r.ExpectedDaysToConversion,
		&r.Conditions.MinCallDurationSeconds, &r.Conditions.RequiresSaleAmount,
		&r.Conditions.MinLeadScore, &r.Active,
	)
	if err == sql.ErrNoRows {
		return MappingRule{}, false, nil
	}
	if err != nil {
		return MappingRule{}, false, err
	}
	r.CampaignID = campaign.String
	return r, true, nil
}

// PostgresRepo persists materialized outcomes. The unique index on
// session_id backs the exactly-one-outcome rule; verified rows are frozen.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) SaveOutcome(ctx context.Context, o CallOutcome) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO call_outcomes (
			id, session_id, disposition_id, campaign_id, agent_id,
			outcome_category, outcome_family, outcome_impact, quality_score,
			revenue_value, sale_amount, notes, verified, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (session_id) DO NOTHING
	`,
		o.ID, o.SessionID, o.DispositionID, nullable(o.CampaignID), nullable(o.AgentID),
		o.Category, o.Family, o.Impact, o.QualityScore,
		o.RevenueValue, o.SaleAmount, nullable(o.Notes), o.Verified, o.CreatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrOutcomeExists, o.SessionID)
	}
	return nil
}

func (r *PostgresRepo) GetBySession(ctx context.Context, sessionID string) (CallOutcome, bool, error) {
	row := r.db.QueryRowContext(ctx, selectOutcome+` WHERE session_id = $1`, sessionID)
	o, err := scanOutcome(row)
	if err == sql.ErrNoRows {
		return CallOutcome{}, false, nil
	}
	if err != nil {
		return CallOutcome{}, false, err
	}
	return o, true, nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]CallOutcome, error) {
	q := selectOutcome
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if f.CampaignID != "" {
		add("campaign_id = ", f.CampaignID)
	}
	if f.AgentID != "" {
		add("agent_id = ", f.AgentID)
	}
	if f.Impact != "" {
		add("outcome_impact = ", string(f.Impact))
	}
	if f.Family != "" {
		add("outcome_family = ", string(f.Family))
	}
	if !f.Since.IsZero() {
		add("created_at >= ", f.Since)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE call_outcomes SET verified = TRUE WHERE id = $1`, id)
	return err
}

const selectOutcome = `
	SELECT id, session_id, disposition_id, campaign_id, agent_id,
	       outcome_category, outcome_family, outcome_impact, quality_score,
	       revenue_value, sale_amount, notes, verified, created_at
	FROM call_outcomes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (CallOutcome, error) {
	var o CallOutcome
	var campaign, agent, notes sql.NullString
	err := row.Scan(
		&o.ID, &o.SessionID, &o.DispositionID, &campaign, &agent,
		&o.Category, &o.Family, &o.Impact, &o.QualityScore,
		&o.RevenueValue, &o.SaleAmount, &notes, &o.Verified, &o.CreatedAt,
	)
	if err != nil {
		return CallOutcome{}, err
	}
	o.CampaignID = campaign.String
	o.AgentID = agent.String
	o.Notes = notes.String
	return o, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
