package lookup

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrInvalidNumber = errors.New("lookup: invalid number")

// Contact is a read-only view of an externally owned contact record.
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number"`
	CampaignID  string `json:"campaign_id,omitempty"`
	LeadScore   int    `json:"lead_score,omitempty"`
	DoNotCall   bool   `json:"do_not_call,omitempty"`
}

// ContactRepository resolves normalized phone digits to a contact.
type ContactRepository interface {
	FindByDigits(ctx context.Context, digits string) (Contact, bool, error)
}

// RecentDialIndex remembers outbound dials for callback detection.
// Entries expire after the configured window; the Redis implementation
// leans on key TTLs for that.
type RecentDialIndex interface {
	MarkOutbound(ctx context.Context, digits string, window time.Duration) error
	WasDialed(ctx context.Context, digits string) (bool, error)
}

// Resolver performs best-effort caller identification. Misses are not
// errors: an unknown caller proceeds through the call flow as-is.
type Resolver struct {
	contacts ContactRepository
	recent   RecentDialIndex

	// callbackWindow is how far back an outbound dial counts as a
	// callback signal.
	callbackWindow time.Duration
}

func NewResolver(contacts ContactRepository, recent RecentDialIndex, callbackWindow time.Duration) *Resolver {
	if callbackWindow <= 0 {
		callbackWindow = 4 * time.Hour
	}
	return &Resolver{contacts: contacts, recent: recent, callbackWindow: callbackWindow}
}

func (r *Resolver) CallbackWindow() time.Duration { return r.callbackWindow }

// Resolve matches a raw caller number against known contacts. It tries the
// full digit string first, then the trailing-10-digit variant so that
// "+14155551234" and "4155551234" hit the same record.
func (r *Resolver) Resolve(ctx context.Context, rawNumber string) (Contact, bool, error) {
	digits := NormalizeDigits(rawNumber)
	if digits == "" {
		return Contact{}, false, ErrInvalidNumber
	}
	if r.contacts == nil {
		return Contact{}, false, nil
	}

	c, ok, err := r.contacts.FindByDigits(ctx, digits)
	if err != nil || ok {
		return c, ok, err
	}
	if v := trailingVariant(digits); v != "" {
		return r.contacts.FindByDigits(ctx, v)
	}
	return Contact{}, false, nil
}

// IsCallback reports whether the organization dialed this number outbound
// within the callback window. Lookup failures degrade to false; the call
// simply stays at normal priority.
func (r *Resolver) IsCallback(ctx context.Context, rawNumber string) bool {
	if r.recent == nil {
		return false
	}
	digits := NormalizeDigits(rawNumber)
	if digits == "" {
		return false
	}
	hit, err := r.recent.WasDialed(ctx, digits)
	if err != nil {
		return false
	}
	if !hit {
		if v := trailingVariant(digits); v != "" {
			hit, _ = r.recent.WasDialed(ctx, v)
		}
	}
	return hit
}

// MarkOutboundDial records an outbound dial attempt so a return call within
// the window is recognized as a callback.
func (r *Resolver) MarkOutboundDial(ctx context.Context, rawNumber string) error {
	if r.recent == nil {
		return nil
	}
	digits := NormalizeDigits(rawNumber)
	if digits == "" {
		return ErrInvalidNumber
	}
	return r.recent.MarkOutbound(ctx, digits, r.callbackWindow)
}

// NormalizeDigits strips every non-digit character.
func NormalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trailingVariant returns the last 10 digits when a country code prefix is
// present, so NANP numbers match with or without the leading "1".
func trailingVariant(digits string) string {
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return ""
}
