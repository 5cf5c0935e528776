package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// SessionsKey is the settings key holding the persisted session list
const SessionsKey = "autotrade_sessions"

// sessionsVersion is the persisted payload version accepted on load
const sessionsVersion = 1

// SizeMode selects how the position notional is derived
const (
	SizeModeRisk    = "risk"    // risk-based sizing through the position sizer
	SizeModePercent = "percent" // flat percentage of balance
)

// SessionConfig is the per-user recurring cycle configuration. One
// live config exists per user; the persisted copy is a recovery hint
// only while the process is running.
type SessionConfig struct {
	UserID        string  `json:"user_id"`
	Symbol        string  `json:"symbol"`
	IntervalMs    int64   `json:"interval_ms"`
	ExecuteOrders bool    `json:"execute_orders"`
	UseTestnet    bool    `json:"use_testnet"`
	MaxPositions  int     `json:"max_positions"`
	SizeMode      string  `json:"size_mode"`
	SizePercent   float64 `json:"size_percent"`
	RiskPct       float64 `json:"risk_pct"`
	Leverage      int     `json:"leverage"`
	TPMultiplier  float64 `json:"tp_multiplier"`
	MinAiProb     float64 `json:"min_ai_prob"`
	FullAuto      bool    `json:"full_auto"`
	TradingMode   string  `json:"trading_mode"`
}

// Validate rejects configs that cannot run a cycle
func (c *SessionConfig) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive, got %d", c.IntervalMs)
	}
	if c.SizeMode == SizeModePercent && c.SizePercent <= 0 {
		return fmt.Errorf("size_percent must be positive in percent mode")
	}
	return nil
}

// persistedSessions is the versioned on-disk shape of the session list
type persistedSessions struct {
	Version  int             `json:"version"`
	Sessions []SessionConfig `json:"sessions"`
}

// session is the live state the scheduler owns for one user
type session struct {
	config      SessionConfig
	cancel      context.CancelFunc
	generation  uint64
	inFlight    atomic.Bool
	lastCycleAt time.Time
}

// Status describes one user's scheduled state
type Status struct {
	Running     bool      `json:"running"`
	LastCycleAt time.Time `json:"last_cycle_at,omitempty"`
	IntervalMs  int64     `json:"interval_ms,omitempty"`
}

// GlobalStatus summarizes the whole registry
type GlobalStatus struct {
	Running        bool `json:"running"`
	ActiveSessions int  `json:"active_sessions"`
}
