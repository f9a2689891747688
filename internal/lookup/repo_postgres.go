package lookup

import (
	"context"
	"database/sql"
)

// PostgresContacts resolves contacts by normalized phone digits. The
// phone_digits column holds the digits-only form and is what callers match
// against; the display number stays in phone_number.
type PostgresContacts struct {
	db *sql.DB
}

func NewPostgresContacts(db *sql.DB) *PostgresContacts { return &PostgresContacts{db: db} }

func (r *PostgresContacts) FindByDigits(ctx context.Context, digits string) (Contact, bool, error) {
	var c Contact
	var name, campaign sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, phone_number, campaign_id, lead_score, do_not_call
		FROM contacts WHERE phone_digits = $1
	`, digits).Scan(&c.ID, &name, &c.PhoneNumber, &campaign, &c.LeadScore, &c.DoNotCall)
	if err == sql.ErrNoRows {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, err
	}
	c.Name = name.String
	c.CampaignID = campaign.String
	return c, true, nil
}
