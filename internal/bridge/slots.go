package bridge

import (
	"context"
	"sync"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// AgentSlots guards the one-active-call-per-agent rule at acquisition time.
// A bridge request for an occupied agent is rejected outright, never queued.
type AgentSlots interface {
	// Acquire claims the agent's single slot. ok=false means occupied.
	Acquire(ctx context.Context, agentID string) (ok bool, err error)
	Release(ctx context.Context, agentID string) error
}

// MemorySlots is the in-process implementation for tests and single-node
// deployments.
type MemorySlots struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{held: map[string]struct{}{}}
}

func (m *MemorySlots) Acquire(ctx context.Context, agentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[agentID]; ok {
		return false, nil
	}
	m.held[agentID] = struct{}{}
	return true, nil
}

func (m *MemorySlots) Release(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, agentID)
	return nil
}

const agentSlotKeyPrefix = "dialer:agent_slot:"

// RedisSlots shares agent slots across instances using the atomic
// concurrency-cap scripts with a limit of one. The TTL bounds slot leakage
// if a process dies mid-call.
type RedisSlots struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSlots(rdb *redis.Client, ttl time.Duration) *RedisSlots {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisSlots{rdb: rdb, ttl: ttl}
}

func (r *RedisSlots) Acquire(ctx context.Context, agentID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, r.rdb, agentSlotKeyPrefix+agentID, 1, r.ttl)
}

func (r *RedisSlots) Release(ctx context.Context, agentID string) error {
	return utils.ReleaseConcurrencyCap(ctx, r.rdb, agentSlotKeyPrefix+agentID)
}
