package risk

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the submission breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Submissions halted
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// BreakerConfig holds submission breaker configuration
type BreakerConfig struct {
	Enabled                bool `json:"enabled"`
	MaxConsecutiveFailures int  `json:"max_consecutive_failures"` // Gateway failures in a row
	MaxOrdersPerMinute     int  `json:"max_orders_per_minute"`    // Rate limit
	MaxOrdersPerDay        int  `json:"max_orders_per_day"`       // Daily cap
	CooldownMinutes        int  `json:"cooldown_minutes"`         // Cooldown after trip
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 5,
		MaxOrdersPerMinute:     10,
		MaxOrdersPerDay:        100,
		CooldownMinutes:        30,
	}
}

// Breaker halts order submission after repeated gateway failures and
// enforces rate limits on how fast the engine may place orders. After
// the cooldown a single successful submission closes it again.
type Breaker struct {
	config              *BreakerConfig
	state               BreakerState
	consecutiveFailures int
	ordersLastMinute    int
	dailyOrders         int
	lastTripTime        time.Time
	minuteResetTime     time.Time
	dailyResetTime      time.Time
	tripReason          string
	mu                  sync.RWMutex
}

// NewBreaker creates a submission breaker. A nil config uses defaults.
func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}

	now := time.Now()
	return &Breaker{
		config:          config,
		state:           StateClosed,
		minuteResetTime: now.Add(time.Minute),
		dailyResetTime:  now.Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
}

// Allow checks whether an order may be submitted
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetCountersIfNeeded()

	if b.state == StateOpen {
		elapsed := time.Since(b.lastTripTime)
		cooldown := time.Duration(b.config.CooldownMinutes) * time.Minute

		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("submission breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), b.tripReason)
		}

		// Cooldown passed, allow one probe submission
		b.state = StateHalfOpen
	}

	if b.ordersLastMinute >= b.config.MaxOrdersPerMinute {
		return false, fmt.Sprintf("rate limit reached: %d orders/minute", b.ordersLastMinute)
	}

	if b.dailyOrders >= b.config.MaxOrdersPerDay {
		return false, fmt.Sprintf("daily order limit reached: %d orders", b.dailyOrders)
	}

	return true, ""
}

// RecordSubmit records the result of an order submission. Successes
// count against the rate limits and close a half-open breaker;
// failures accumulate and trip it once the threshold is hit.
func (b *Breaker) RecordSubmit(err error) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetCountersIfNeeded()

	if err != nil {
		b.consecutiveFailures++
		if b.state == StateHalfOpen {
			b.trip("probe submission failed")
			return
		}
		if b.consecutiveFailures >= b.config.MaxConsecutiveFailures {
			b.trip(fmt.Sprintf("consecutive gateway failures: %d", b.consecutiveFailures))
		}
		return
	}

	b.ordersLastMinute++
	b.dailyOrders++
	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.tripReason = ""
	}
}

// trip opens the breaker. Caller holds the lock.
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.lastTripTime = time.Now()
	b.tripReason = reason
}

// resetCountersIfNeeded resets time-based counters. Caller holds the lock.
func (b *Breaker) resetCountersIfNeeded() {
	now := time.Now()

	if now.After(b.minuteResetTime) {
		b.ordersLastMinute = 0
		b.minuteResetTime = now.Add(time.Minute)
	}

	if now.After(b.dailyResetTime) {
		b.dailyOrders = 0
		b.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// Reset manually closes the breaker and clears failure counters
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.tripReason = ""
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns current counters for status reporting
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"state":                string(b.state),
		"consecutive_failures": b.consecutiveFailures,
		"orders_last_minute":   b.ordersLastMinute,
		"daily_orders":         b.dailyOrders,
		"trip_reason":          b.tripReason,
		"last_trip_time":       b.lastTripTime,
	}
}
