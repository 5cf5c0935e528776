package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"crypto-trading-assistant/internal/ai"
	"crypto-trading-assistant/internal/analysis"
	"crypto-trading-assistant/internal/database"
	"crypto-trading-assistant/internal/gateway"
	"crypto-trading-assistant/internal/logging"
	"crypto-trading-assistant/internal/market"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/signal"
)

// SettingsStore persists session configs and engine settings
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Ledger reserves margin before submission. Debit must be atomic:
// concurrent callers can never drive a balance negative.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (float64, error)
	Credit(ctx context.Context, userID string, amount float64) error
	Debit(ctx context.Context, userID string, amount float64) error
}

// AiGate is the optional probability filter. A nil score means the
// gate was not used; cycles proceed on their other criteria.
type AiGate interface {
	Evaluate(ctx context.Context, sig signal.Signal, ec ai.EvalContext) *ai.Score
}

// Config holds engine-level cycle parameters shared by all sessions
type Config struct {
	MinConfidence        float64 `json:"min_confidence"`
	StopDistancePct      float64 `json:"stop_distance_pct"`
	ScalpStopDistancePct float64 `json:"scalp_stop_distance_pct"`
	DefaultTPMultiplier  float64 `json:"default_tp_multiplier"`
}

// DefaultConfig returns default engine parameters
func DefaultConfig() Config {
	return Config{
		MinConfidence:        0.45,
		StopDistancePct:      0.02,
		ScalpStopDistancePct: 0.005,
		DefaultTPMultiplier:  2.0,
	}
}

// Deps are the injected collaborators for the scheduler
type Deps struct {
	Source   market.Source
	Gateway  gateway.OrderGateway
	Ledger   Ledger
	Settings SettingsStore
	Gate     AiGate
	Sizer    *risk.Sizer
	Breaker  *risk.Breaker
	Outcomes *OutcomeCache
	Logger   *logging.Logger
}

// Scheduler owns one recurring decision cycle per user. It is a
// process-scoped registry with explicit construction and shutdown;
// all state lives behind its lock, none of it package level.
type Scheduler struct {
	deps   Deps
	config Config

	orderBook     *analysis.OrderBookAnalyzer
	tape          *analysis.TapeAnalyzer
	consolidation *analysis.ConsolidationDetector
	trend         *analysis.TrendAnalyzer
	aggregator    *signal.Aggregator

	mu       sync.Mutex
	sessions map[string]*session
	// generations outlives session removal so a cycle finishing after
	// Stop can detect it is stale and discard its outcome
	generations map[string]uint64

	// persistMu serializes settings-store writes so concurrent
	// Start/Stop calls cannot commit their snapshots out of order
	persistMu sync.Mutex

	logger *logging.Logger
}

// New creates a scheduler registry
func New(deps Deps, config Config) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = DefaultConfig().MinConfidence
	}
	if config.StopDistancePct <= 0 {
		config.StopDistancePct = DefaultConfig().StopDistancePct
	}
	if config.ScalpStopDistancePct <= 0 {
		config.ScalpStopDistancePct = DefaultConfig().ScalpStopDistancePct
	}
	if config.DefaultTPMultiplier <= 0 {
		config.DefaultTPMultiplier = DefaultConfig().DefaultTPMultiplier
	}

	return &Scheduler{
		deps:          deps,
		config:        config,
		orderBook:     analysis.NewOrderBookAnalyzer(),
		tape:          analysis.NewTapeAnalyzer(),
		consolidation: analysis.NewConsolidationDetector(),
		trend:         analysis.NewTrendAnalyzer(),
		aggregator:    signal.NewAggregator(logger),
		sessions:      make(map[string]*session),
		generations:   make(map[string]uint64),
		logger:        logger.WithComponent("scheduler"),
	}
}

// Start installs a recurring cycle for a user. An existing session for
// the same user is torn down first, so exactly one timer per user ever
// runs. The config is persisted with replace semantics; persistence
// failure is logged, not fatal.
func (s *Scheduler) Start(ctx context.Context, cfg SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	s.mu.Lock()
	if existing, ok := s.sessions[cfg.UserID]; ok {
		existing.cancel()
	}
	s.generations[cfg.UserID]++
	gen := s.generations[cfg.UserID]

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		config:     cfg,
		cancel:     cancel,
		generation: gen,
	}
	s.sessions[cfg.UserID] = sess
	s.mu.Unlock()

	go s.run(sessCtx, sess)

	if err := s.persistSessions(ctx); err != nil {
		s.logger.Warn("Failed to persist sessions", "user_id", cfg.UserID, "error", err)
	}

	s.logger.Info("Session started",
		"user_id", cfg.UserID,
		"symbol", cfg.Symbol,
		"interval_ms", cfg.IntervalMs,
		"execute_orders", cfg.ExecuteOrders)
	return nil
}

// Stop cancels the timer and removes both the in-memory and the
// persisted entry for a user. An in-flight cycle is not aborted, but
// its outcome is discarded by the generation check.
func (s *Scheduler) Stop(ctx context.Context, userID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		sess.cancel()
		delete(s.sessions, userID)
		s.generations[userID]++
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active session for user %s", userID)
	}

	if err := s.persistSessions(ctx); err != nil {
		s.logger.Warn("Failed to persist sessions after stop", "user_id", userID, "error", err)
	}

	s.logger.Info("Session stopped", "user_id", userID)
	return nil
}

// StopAll cancels every timer and clears both the registry and the
// persisted session list
func (s *Scheduler) StopAll(ctx context.Context) {
	s.mu.Lock()
	for userID, sess := range s.sessions {
		sess.cancel()
		s.generations[userID]++
	}
	count := len(s.sessions)
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	s.persistMu.Lock()
	err := s.deps.Settings.DeleteSetting(ctx, SessionsKey)
	s.persistMu.Unlock()
	if err != nil {
		s.logger.Warn("Failed to clear persisted sessions", "error", err)
	}

	s.logger.Info("All sessions stopped", "count", count)
}

// Shutdown cancels every timer without touching persisted entries, so
// Recover finds them again on the next start. Shutdown is process
// teardown, not a user-facing stop.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for userID, sess := range s.sessions {
		sess.cancel()
		s.generations[userID]++
	}
	count := len(s.sessions)
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	s.logger.Info("Scheduler shut down", "sessions", count)
}

// Recover re-starts every persisted session. Malformed persisted data
// recovers zero sessions instead of failing the bootstrap.
func (s *Scheduler) Recover(ctx context.Context) error {
	raw, err := s.deps.Settings.GetSetting(ctx, SessionsKey)
	if err != nil {
		if errors.Is(err, database.ErrSettingNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read persisted sessions: %w", err)
	}
	if raw == "" {
		return nil
	}

	var persisted persistedSessions
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		s.logger.Warn("Malformed persisted sessions, recovering none", "error", err)
		return nil
	}
	if persisted.Version != sessionsVersion {
		s.logger.Warn("Unknown persisted sessions version, recovering none", "version", persisted.Version)
		return nil
	}

	recovered := 0
	for _, cfg := range persisted.Sessions {
		if err := s.Start(ctx, cfg); err != nil {
			s.logger.Warn("Failed to recover session", "user_id", cfg.UserID, "error", err)
			continue
		}
		recovered++
	}

	s.logger.Info("Sessions recovered", "count", recovered)
	return nil
}

// Status reports one user's scheduled state
func (s *Scheduler) Status(userID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Status{Running: false}
	}
	return Status{
		Running:     true,
		LastCycleAt: sess.lastCycleAt,
		IntervalMs:  sess.config.IntervalMs,
	}
}

// GlobalStatus reports whether any session is active
func (s *Scheduler) GlobalStatus() GlobalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GlobalStatus{
		Running:        len(s.sessions) > 0,
		ActiveSessions: len(s.sessions),
	}
}

// Outcome returns the last recorded execution outcome for a user
func (s *Scheduler) Outcome(ctx context.Context, userID string) (*ExecutionOutcome, error) {
	return s.deps.Outcomes.Get(ctx, userID)
}

// persistSessions writes the full session list with replace semantics.
// The persist lock is held across snapshot and write so the store
// always ends up with the latest snapshot.
func (s *Scheduler) persistSessions(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	persisted := persistedSessions{Version: sessionsVersion}
	for _, sess := range s.sessions {
		persisted.Sessions = append(persisted.Sessions, sess.config)
	}
	s.mu.Unlock()

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	return s.deps.Settings.SetSetting(ctx, SessionsKey, string(data))
}

// cycleTimeout bounds a single decision cycle. Cycles run on their own
// deadline instead of the session context: stopping a session must not
// abort a cycle that already reserved margin, or the refund after a
// failed submission would fail on the same cancelled context.
const cycleTimeout = 2 * time.Minute

// run is the per-session timer loop. A tick that fires while the
// previous cycle is still in flight is skipped outright, so one user
// never has overlapping cycles regardless of interval versus latency.
func (s *Scheduler) run(ctx context.Context, sess *session) {
	ticker := time.NewTicker(time.Duration(sess.config.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sess.inFlight.CompareAndSwap(false, true) {
				s.logger.Debug("Previous cycle still in flight, skipping tick",
					"user_id", sess.config.UserID)
				continue
			}
			go func() {
				defer sess.inFlight.Store(false)
				s.runCycle(sess)
			}()
		}
	}
}

// runCycle executes one decision cycle on its own bounded context, so
// an in-flight cycle always completes (and refunds) even when the
// session is stopped underneath it; the generation check then discards
// its outcome. Every failure path resolves to a recorded outcome;
// nothing propagates upward and the ticker keeps running.
func (s *Scheduler) runCycle(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	cfg := sess.config
	gen := sess.generation
	outcome := &ExecutionOutcome{At: time.Now()}
	defer s.recordOutcome(ctx, cfg.UserID, gen, outcome)

	s.touch(cfg.UserID, gen)

	snap, err := s.deps.Source.Snapshot(ctx, cfg.Symbol)
	if err != nil {
		outcome.LastError = fmt.Sprintf("market data unavailable: %v", err)
		return
	}

	obScore := s.orderBook.AnalyzeOrderBook(snap.Bids, snap.Asks)
	tapeScore := s.tape.AnalyzeTape(snap.Trades)
	trendScore := s.trend.AnalyzeTrend(snap.Candles)
	consolidation := s.consolidation.DetectConsolidation(snap.Candles)

	mode := signal.ParseTradingMode(cfg.TradingMode)
	sig := s.aggregator.ComputeSignal(signal.Inputs{
		Candles:   trendScore.Component(),
		OrderBook: obScore.Component(),
		Tape:      tapeScore.Component(),
		SpreadPct: obScore.SpreadPct,
	}, signal.WithMode(mode))

	if sig.Direction == signal.DirectionNeutral {
		outcome.LastSkipReason = "neutral signal"
		return
	}
	if consolidation.IsConsolidating {
		outcome.LastSkipReason = fmt.Sprintf("market consolidating (ratio %.2f)", consolidation.CompressionRatio)
		return
	}
	if sig.Confidence < s.config.MinConfidence {
		outcome.LastSkipReason = fmt.Sprintf("confidence %.2f below minimum %.2f", sig.Confidence, s.config.MinConfidence)
		return
	}

	if cfg.MaxPositions > 0 {
		count, err := s.deps.Gateway.OpenPositionCount(ctx, cfg.UserID)
		if err != nil {
			outcome.LastError = fmt.Sprintf("position count unavailable: %v", err)
			return
		}
		if count >= cfg.MaxPositions {
			outcome.LastSkipReason = fmt.Sprintf("max positions reached (%d/%d)", count, cfg.MaxPositions)
			return
		}
	}

	entry := snap.Price
	stopPct := s.config.StopDistancePct
	if mode == signal.ModeScalping {
		stopPct = s.config.ScalpStopDistancePct
	}
	tpMultiplier := cfg.TPMultiplier
	if tpMultiplier <= 0 {
		tpMultiplier = s.config.DefaultTPMultiplier
	}

	var stopPrice, takeProfit float64
	if sig.Direction == signal.DirectionLong {
		stopPrice = entry * (1 - stopPct)
		takeProfit = entry * (1 + stopPct*tpMultiplier)
	} else {
		stopPrice = entry * (1 + stopPct)
		takeProfit = entry * (1 - stopPct*tpMultiplier)
	}

	if score := s.deps.Gate.Evaluate(ctx, sig, ai.EvalContext{
		Symbol:     cfg.Symbol,
		EntryPrice: entry,
		StopPrice:  stopPrice,
		TakeProfit: takeProfit,
	}); score != nil {
		effective := math.Max(cfg.MinAiProb, score.MinScore)
		outcome.LastExternalAiUsed = true
		outcome.LastExternalAiScore = score.Value
		outcome.LastAiProb = cfg.MinAiProb
		outcome.LastEffectiveAiProb = effective
		if score.Value < effective {
			outcome.LastSkipReason = fmt.Sprintf("ai score %.2f below threshold %.2f", score.Value, effective)
			return
		}
	}

	balance, err := s.deps.Ledger.GetBalance(ctx, cfg.UserID)
	if err != nil {
		outcome.LastError = fmt.Sprintf("balance unavailable: %v", err)
		return
	}

	var size float64
	if cfg.SizeMode == SizeModePercent {
		size = balance * cfg.SizePercent / 100
		if size > balance {
			size = balance
		}
	} else {
		size = s.deps.Sizer.PositionSize(balance, entry, stopPrice)
	}
	if size <= 0 {
		outcome.LastSkipReason = "insufficient balance"
		return
	}

	if !cfg.ExecuteOrders {
		outcome.LastSkipReason = fmt.Sprintf("execution disabled (signal %s, confidence %.2f)", sig.Direction, sig.Confidence)
		return
	}

	if s.deps.Breaker != nil {
		if ok, reason := s.deps.Breaker.Allow(); !ok {
			outcome.LastSkipReason = reason
			return
		}
	}

	if err := s.deps.Ledger.Debit(ctx, cfg.UserID, size); err != nil {
		if errors.Is(err, database.ErrInsufficientBalance) {
			outcome.LastSkipReason = "insufficient balance"
			return
		}
		outcome.LastError = fmt.Sprintf("margin reserve failed: %v", err)
		return
	}

	result, err := s.deps.Gateway.SubmitOrder(ctx, gateway.OrderRequest{
		UserID:     cfg.UserID,
		Symbol:     cfg.Symbol,
		Direction:  sig.Direction,
		Notional:   size,
		EntryPrice: entry,
		Leverage:   cfg.Leverage,
	})
	if s.deps.Breaker != nil {
		s.deps.Breaker.RecordSubmit(err)
	}
	if err != nil {
		if refundErr := s.deps.Ledger.Credit(ctx, cfg.UserID, size); refundErr != nil {
			s.logger.Error("Failed to refund reserved margin",
				"user_id", cfg.UserID, "amount", size, "error", refundErr)
		}
		outcome.LastError = fmt.Sprintf("order submission failed: %v", err)
		return
	}

	outcome.LastOrderID = result.OrderID
	s.logger.Info("Cycle executed order",
		"user_id", cfg.UserID,
		"symbol", cfg.Symbol,
		"direction", string(sig.Direction),
		"notional", size,
		"order_id", result.OrderID)
}

// touch updates lastCycleAt if the session is still current
func (s *Scheduler) touch(userID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok && sess.generation == gen {
		sess.lastCycleAt = time.Now()
	}
}

// recordOutcome writes the cycle result unless the session generation
// moved on, in which case the stale outcome is discarded
func (s *Scheduler) recordOutcome(ctx context.Context, userID string, gen uint64, outcome *ExecutionOutcome) {
	s.mu.Lock()
	current := s.generations[userID]
	s.mu.Unlock()
	if gen != current {
		s.logger.Debug("Discarding stale cycle outcome",
			"user_id", userID, "generation", gen, "current", current)
		return
	}

	if err := s.deps.Outcomes.Record(ctx, userID, outcome); err != nil {
		s.logger.Warn("Failed to record outcome", "user_id", userID, "error", err)
	}
}
