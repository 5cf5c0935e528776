package risk

import "math"

const (
	// DefaultRiskPct is the equity fraction risked per trade
	DefaultRiskPct = 0.02
	// RiskMaxPct is a hard ceiling on configured risk, independent of
	// configuration
	RiskMaxPct = 0.05
	// FallbackPct sizes conservatively when no usable stop distance
	// exists
	FallbackPct = 0.10
	// MaxAssetPct caps single-asset concentration
	MaxAssetPct = 0.25
)

// SizerConfig tunes position sizing
type SizerConfig struct {
	RiskPct     float64 `json:"risk_pct"`
	FallbackPct float64 `json:"fallback_pct"`
	MaxAssetPct float64 `json:"max_asset_pct"`
}

// DefaultSizerConfig returns default sizing parameters
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		RiskPct:     DefaultRiskPct,
		FallbackPct: FallbackPct,
		MaxAssetPct: MaxAssetPct,
	}
}

// Sizer converts balance, risk parameters and stop distance into a
// position notional
type Sizer struct {
	config SizerConfig
}

// NewSizer creates a position sizer. Fractions are clamped to (0, 1]
// so no configuration can size past the full balance.
func NewSizer(config SizerConfig) *Sizer {
	if config.RiskPct <= 0 {
		config.RiskPct = DefaultRiskPct
	}
	if config.FallbackPct <= 0 {
		config.FallbackPct = FallbackPct
	}
	if config.FallbackPct > 1 {
		config.FallbackPct = 1
	}
	if config.MaxAssetPct <= 0 {
		config.MaxAssetPct = MaxAssetPct
	}
	if config.MaxAssetPct > 1 {
		config.MaxAssetPct = 1
	}
	return &Sizer{config: config}
}

// PositionSize returns the notional to deploy for a trade. Degenerate
// inputs resolve to defined fallbacks, never an error: zero balance
// sizes to zero, zero stop distance sizes to the conservative fallback
// fraction. The result never exceeds balance.
func (s *Sizer) PositionSize(balance, entryPrice, stopPrice float64) float64 {
	if balance <= 0 {
		return 0
	}

	riskUsd := balance * math.Min(s.config.RiskPct, RiskMaxPct)

	stopPct := 0.0
	if entryPrice > 0 {
		stopPct = math.Abs(entryPrice-stopPrice) / entryPrice
	}
	if stopPct <= 0 {
		return balance * s.config.FallbackPct
	}

	sizeUsd := riskUsd / stopPct
	maxSize := balance * s.config.MaxAssetPct
	if sizeUsd > maxSize {
		sizeUsd = maxSize
	}

	if sizeUsd <= 0 || sizeUsd > balance {
		return balance * s.config.FallbackPct
	}
	return sizeUsd
}
