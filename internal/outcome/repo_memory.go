package outcome

import (
	"context"
	"fmt"
	"sync"
)

// MemoryCatalog is an in-memory Catalog for tests and local runs.
type MemoryCatalog struct {
	mu           sync.Mutex
	dispositions map[string]Disposition
	rules        map[string]MappingRule

	// Err, when set, is returned by every lookup.
	Err error
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		dispositions: make(map[string]Disposition),
		rules:        make(map[string]MappingRule),
	}
}

func (c *MemoryCatalog) AddDisposition(d Disposition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispositions[d.ID] = d
}

func (c *MemoryCatalog) AddRule(r MappingRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.ID == "" {
		r.ID = fmt.Sprintf("rule-%d", len(c.rules)+1)
	}
	r.Active = true
	c.rules[ruleKey(r.CampaignID, r.DispositionID)] = r
}

func (c *MemoryCatalog) DispositionByID(ctx context.Context, id string) (Disposition, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return Disposition{}, false, c.Err
	}
	d, ok := c.dispositions[id]
	return d, ok, nil
}

func (c *MemoryCatalog) RuleFor(ctx context.Context, campaignID, dispositionID string) (MappingRule, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return MappingRule{}, false, c.Err
	}
	if r, ok := c.rules[ruleKey(campaignID, dispositionID)]; ok {
		return r, true, nil
	}
	// Campaign-agnostic rules apply when no campaign-scoped one exists.
	r, ok := c.rules[ruleKey("", dispositionID)]
	return r, ok, nil
}

func ruleKey(campaignID, dispositionID string) string {
	return campaignID + "/" + dispositionID
}

// MemoryRepo is an in-memory outcome Repository.
type MemoryRepo struct {
	mu        sync.Mutex
	bySession map[string]CallOutcome

	// FailSaves, when set, makes SaveOutcome fail.
	FailSaves bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bySession: make(map[string]CallOutcome)}
}

func (r *MemoryRepo) SaveOutcome(ctx context.Context, o CallOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSaves {
		return fmt.Errorf("outcome: save failed")
	}
	if _, ok := r.bySession[o.SessionID]; ok {
		return fmt.Errorf("%w: %s", ErrOutcomeExists, o.SessionID)
	}
	r.bySession[o.SessionID] = o
	return nil
}

func (r *MemoryRepo) GetBySession(ctx context.Context, sessionID string) (CallOutcome, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.bySession[sessionID]
	return o, ok, nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]CallOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallOutcome
	for _, o := range r.bySession {
		if f.CampaignID != "" && o.CampaignID != f.CampaignID {
			continue
		}
		if f.AgentID != "" && o.AgentID != f.AgentID {
			continue
		}
		if f.Impact != "" && o.Impact != f.Impact {
			continue
		}
		if f.Family != "" && o.Family != f.Family {
			continue
		}
		if !f.Since.IsZero() && o.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *MemoryRepo) MarkVerified(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, o := range r.bySession {
		if o.ID == id {
			o.Verified = true
			r.bySession[sid] = o
			return nil
		}
	}
	return fmt.Errorf("outcome: not found: %s", id)
}
