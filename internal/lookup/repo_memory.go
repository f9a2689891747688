package lookup

import (
	"context"
	"sync"
	"time"
)

// MemoryContacts is an in-memory contact source for tests. Keys are
// normalized digit strings.
type MemoryContacts struct {
	mu       sync.Mutex
	byDigits map[string]Contact

	// Err, when set, is returned from every lookup. Used to exercise the
	// lookup-failure-is-non-fatal path.
	Err error
}

func NewMemoryContacts() *MemoryContacts {
	return &MemoryContacts{byDigits: map[string]Contact{}}
}

func (m *MemoryContacts) Add(c Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDigits[NormalizeDigits(c.PhoneNumber)] = c
}

func (m *MemoryContacts) FindByDigits(ctx context.Context, digits string) (Contact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Contact{}, false, m.Err
	}
	c, ok := m.byDigits[digits]
	return c, ok, nil
}

// MemoryDialIndex is the in-memory RecentDialIndex with real expiry, backed
// by an injectable clock.
type MemoryDialIndex struct {
	mu      sync.Mutex
	entries map[string]time.Time // digits -> expiry
	clock   func() time.Time
}

func NewMemoryDialIndex() *MemoryDialIndex {
	return &MemoryDialIndex{entries: map[string]time.Time{}, clock: time.Now}
}

func (m *MemoryDialIndex) WithClock(clock func() time.Time) *MemoryDialIndex {
	m.clock = clock
	return m
}

func (m *MemoryDialIndex) MarkOutbound(ctx context.Context, digits string, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[digits] = m.clock().Add(window)
	return nil
}

func (m *MemoryDialIndex) WasDialed(ctx context.Context, digits string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[digits]
	if !ok {
		return false, nil
	}
	if m.clock().After(exp) {
		delete(m.entries, digits)
		return false, nil
	}
	return true, nil
}
