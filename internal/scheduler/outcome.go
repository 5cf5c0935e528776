package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto-trading-assistant/internal/logging"
)

const (
	// outcomeKeyPrefix is the Redis key prefix for per-user outcomes.
	// Format: autotrade:outcome:{userID}
	outcomeKeyPrefix = "autotrade:outcome"

	// OutcomeTTL bounds how long a stale outcome survives in Redis
	OutcomeTTL = 24 * time.Hour
)

// ExecutionOutcome is the last-cycle result for one user, overwritten
// every cycle. Readers get a snapshot for display only.
type ExecutionOutcome struct {
	LastError           string    `json:"last_error,omitempty"`
	LastSkipReason      string    `json:"last_skip_reason,omitempty"`
	LastOrderID         string    `json:"last_order_id,omitempty"`
	LastAiProb          float64   `json:"last_ai_prob,omitempty"`
	LastEffectiveAiProb float64   `json:"last_effective_ai_prob,omitempty"`
	LastExternalAiScore float64   `json:"last_external_ai_score,omitempty"`
	LastExternalAiUsed  bool      `json:"last_external_ai_used"`
	At                  time.Time `json:"at"`
}

// OutcomeCache stores the last execution outcome per user in Redis,
// falling back to an in-memory map when Redis is unavailable so the
// scheduler keeps running without interruption.
type OutcomeCache struct {
	client         *redis.Client
	memory         map[string]*ExecutionOutcome
	mu             sync.RWMutex
	redisAvailable atomic.Bool
	logger         *logging.Logger
}

// NewOutcomeCache creates an outcome cache. A nil client runs
// memory-only.
func NewOutcomeCache(client *redis.Client, logger *logging.Logger) *OutcomeCache {
	if logger == nil {
		logger = logging.Default()
	}
	cache := &OutcomeCache{
		client: client,
		memory: make(map[string]*ExecutionOutcome),
		logger: logger.WithComponent("outcome_cache"),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			cache.logger.Warn("Redis unavailable at startup, using in-memory cache", "error", err)
		} else {
			cache.logger.Info("Redis connected")
			cache.redisAvailable.Store(true)
		}
	}

	return cache
}

func (c *OutcomeCache) key(userID string) string {
	return fmt.Sprintf("%s:%s", outcomeKeyPrefix, userID)
}

// RedisAvailable reports whether the last Redis operation succeeded
func (c *OutcomeCache) RedisAvailable() bool {
	return c.redisAvailable.Load()
}

// Record overwrites the outcome for a user. The in-memory copy always
// updates; the Redis write is best effort.
func (c *OutcomeCache) Record(ctx context.Context, userID string, outcome *ExecutionOutcome) error {
	if outcome == nil {
		return fmt.Errorf("cannot record nil outcome")
	}

	c.mu.Lock()
	c.memory[userID] = outcome
	c.mu.Unlock()

	if c.client != nil && c.redisAvailable.Load() {
		data, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("failed to marshal outcome: %w", err)
		}
		if err := c.client.Set(ctx, c.key(userID), data, OutcomeTTL).Err(); err != nil {
			c.logger.Warn("Redis write failed, in-memory copy kept", "user_id", userID, "error", err)
			c.redisAvailable.Store(false)
		}
	}
	return nil
}

// Get returns the last outcome for a user, or nil when none exists
func (c *OutcomeCache) Get(ctx context.Context, userID string) (*ExecutionOutcome, error) {
	if c.client != nil && c.redisAvailable.Load() {
		data, err := c.client.Get(ctx, c.key(userID)).Result()
		if err == nil {
			var outcome ExecutionOutcome
			if err := json.Unmarshal([]byte(data), &outcome); err != nil {
				return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
			}
			return &outcome, nil
		}
		if err != redis.Nil {
			c.logger.Warn("Redis read failed, falling back to memory", "user_id", userID, "error", err)
			c.redisAvailable.Store(false)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memory[userID], nil
}

// Clear removes the outcome for a user
func (c *OutcomeCache) Clear(ctx context.Context, userID string) {
	c.mu.Lock()
	delete(c.memory, userID)
	c.mu.Unlock()

	if c.client != nil && c.redisAvailable.Load() {
		if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
			c.logger.Warn("Redis delete failed", "user_id", userID, "error", err)
			c.redisAvailable.Store(false)
		}
	}
}
