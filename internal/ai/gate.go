package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"crypto-trading-assistant/internal/logging"
	"crypto-trading-assistant/internal/signal"
)

// ConfigKey is the settings key holding the gate configuration
const ConfigKey = "external_ai_config"

// configVersion is the GateConfig serialization version accepted on load
const configVersion = 1

// GateConfig is the persisted, admin-mutable gate configuration.
// It is re-read on every evaluation so admin edits apply live.
type GateConfig struct {
	Version  int      `json:"version"`
	Enabled  bool     `json:"enabled"`
	Provider Provider `json:"provider"`
	MinScore float64  `json:"min_score"`
}

// Score is a non-nil evaluation result in [0,1]
type Score struct {
	Value    float64  `json:"value"`
	Provider Provider `json:"provider"`
	MinScore float64  `json:"min_score"`
}

// SettingsReader reads persisted settings values
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// CredentialSource resolves provider API keys. A missing key is a
// normal miss reported as ("", nil), not an error.
type CredentialSource interface {
	APIKey(ctx context.Context, provider string) (string, error)
}

// EvalContext carries the trade framing passed to the judge
type EvalContext struct {
	Symbol     string
	EntryPrice float64
	StopPrice  float64
	TakeProfit float64
}

type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Gate is the optional probability filter in front of order execution.
// Every failure path resolves to a nil score: the gate must never
// block trade evaluation.
type Gate struct {
	settings SettingsReader
	creds    CredentialSource
	logger   *logging.Logger
	timeout  time.Duration

	// newClient is swapped in tests to point at a local server
	newClient func(cfg *ClientConfig) completer
}

// NewGate creates an external judge gate
func NewGate(settings SettingsReader, creds CredentialSource, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{
		settings: settings,
		creds:    creds,
		logger:   logger.WithComponent("ai_gate"),
		timeout:  10 * time.Second,
		newClient: func(cfg *ClientConfig) completer {
			return NewClient(cfg)
		},
	}
}

var floatToken = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Config loads the current gate configuration from settings.
// Absent or malformed configuration reads as disabled.
func (g *Gate) Config(ctx context.Context) GateConfig {
	raw, err := g.settings.GetSetting(ctx, ConfigKey)
	if err != nil || raw == "" {
		return GateConfig{}
	}
	var cfg GateConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		g.logger.Warn("Malformed gate config, treating as disabled", "error", err)
		return GateConfig{}
	}
	if cfg.Version != configVersion {
		g.logger.Warn("Unknown gate config version, treating as disabled", "version", cfg.Version)
		return GateConfig{}
	}
	return cfg
}

// Evaluate asks the configured judge for the probability the proposed
// trade is profitable. A nil result means the gate was not used or the
// provider failed; callers proceed on their other criteria.
func (g *Gate) Evaluate(ctx context.Context, sig signal.Signal, ec EvalContext) *Score {
	cfg := g.Config(ctx)
	if !cfg.Enabled {
		return nil
	}
	if cfg.Provider != ProviderClaude && cfg.Provider != ProviderOpenAI {
		g.logger.Warn("Unknown gate provider, skipping", "provider", string(cfg.Provider))
		return nil
	}

	apiKey, err := g.creds.APIKey(ctx, string(cfg.Provider))
	if err != nil {
		g.logger.Warn("Credential lookup failed, skipping gate", "provider", string(cfg.Provider), "error", err)
		return nil
	}
	if apiKey == "" {
		return nil
	}

	clientCfg := DefaultClientConfig()
	clientCfg.Provider = cfg.Provider
	clientCfg.APIKey = apiKey
	clientCfg.Timeout = g.timeout
	if cfg.Provider == ProviderOpenAI {
		clientCfg.Model = "gpt-4o-mini"
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := g.newClient(clientCfg).Complete(callCtx, g.systemPrompt(), g.userPrompt(sig, ec))
	if err != nil {
		g.logger.Warn("Judge call failed, proceeding without score",
			"provider", string(cfg.Provider), "symbol", ec.Symbol, "error", err)
		return nil
	}

	value, ok := parseProbability(reply)
	if !ok {
		g.logger.Warn("Unparseable judge reply, proceeding without score",
			"provider", string(cfg.Provider), "symbol", ec.Symbol)
		return nil
	}

	g.logger.Debug("Judge score",
		"provider", string(cfg.Provider), "symbol", ec.Symbol, "score", value)

	return &Score{Value: value, Provider: cfg.Provider, MinScore: cfg.MinScore}
}

func (g *Gate) systemPrompt() string {
	return "You are a trading probability estimator. Reply with a single number " +
		"between 0 and 1, the probability the described trade is profitable. " +
		"No words, no explanation, just the number."
}

func (g *Gate) userPrompt(sig signal.Signal, ec EvalContext) string {
	rr := 0.0
	if ec.EntryPrice > 0 && ec.StopPrice > 0 && ec.TakeProfit > 0 {
		risk := ec.EntryPrice - ec.StopPrice
		reward := ec.TakeProfit - ec.EntryPrice
		if sig.Direction == signal.DirectionShort {
			risk, reward = -risk, -reward
		}
		if risk > 0 {
			rr = reward / risk
		}
	}
	return fmt.Sprintf(
		"Trade: %s %s. Signal confidence %.2f, confluence %t. Entry %.4f, stop %.4f, target %.4f, risk/reward %.2f.",
		sig.Direction, ec.Symbol, sig.Confidence, sig.Confluence,
		ec.EntryPrice, ec.StopPrice, ec.TakeProfit, rr,
	)
}

// parseProbability extracts the first float token from a judge reply
// and clamps it to [0,1]
func parseProbability(reply string) (float64, bool) {
	token := floatToken.FindString(reply)
	if token == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value, true
}
