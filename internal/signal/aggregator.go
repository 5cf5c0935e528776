package signal

import (
	"math"

	"crypto-trading-assistant/internal/logging"
)

const (
	// maxComponentScore is the shared per-component score ceiling
	maxComponentScore = 10.0

	// minSignificance is the combined magnitude below which the fused
	// signal stays NEUTRAL
	minSignificance = 0.1

	// disagreementPenalty and disagreementCeiling depress confidence
	// when non-neutral components conflict on direction
	disagreementPenalty = 0.6
	disagreementCeiling = 0.7
)

// Weights defines the per-component weight table for a trading mode
type Weights struct {
	Candles   float64
	OrderBook float64
	Tape      float64
}

// GetWeights returns the weight table for a trading mode.
// Scalping leans on microstructure; standard leans on candles.
func GetWeights(mode TradingMode) Weights {
	switch mode {
	case ModeScalping:
		return Weights{
			Candles:   0.20,
			OrderBook: 0.45,
			Tape:      0.35,
		}
	default:
		return Weights{
			Candles:   0.50,
			OrderBook: 0.30,
			Tape:      0.20,
		}
	}
}

// Aggregator fuses component scores into a single directional signal
type Aggregator struct {
	logger *logging.Logger
}

// NewAggregator creates a signal aggregator
func NewAggregator(logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{logger: logger.WithComponent("signal")}
}

// Option customizes one ComputeSignal call
type Option func(*options)

type options struct {
	mode TradingMode
}

// WithMode selects the weight table for this computation
func WithMode(mode TradingMode) Option {
	return func(o *options) { o.mode = mode }
}

// ComputeSignal combines candle, order book and tape scores into one
// Signal. Components are weighted by trading mode, summed with sign
// (+LONG, -SHORT) and normalized by the weight of the non-neutral
// components so an absent input does not dilute the rest.
func (a *Aggregator) ComputeSignal(in Inputs, opts ...Option) Signal {
	o := options{mode: ModeStandard}
	for _, opt := range opts {
		opt(&o)
	}
	w := GetWeights(o.mode)

	type weighted struct {
		comp   Component
		weight float64
	}
	parts := []weighted{
		{in.Candles, w.Candles},
		{in.OrderBook, w.OrderBook},
		{in.Tape, w.Tape},
	}

	var sum, activeWeight float64
	longSeen, shortSeen := false, false
	for _, p := range parts {
		if p.comp.Direction == DirectionNeutral {
			continue
		}
		score := math.Min(p.comp.Score, maxComponentScore) / maxComponentScore
		switch p.comp.Direction {
		case DirectionLong:
			sum += p.weight * score
			longSeen = true
		case DirectionShort:
			sum -= p.weight * score
			shortSeen = true
		}
		activeWeight += p.weight
	}

	if activeWeight == 0 {
		return Signal{
			Direction:  DirectionNeutral,
			Confidence: 0,
			Confluence: false,
			Components: in,
		}
	}

	combined := sum / activeWeight
	confidence := math.Min(math.Abs(combined), 1.0)

	disagreement := longSeen && shortSeen
	if disagreement {
		confidence *= disagreementPenalty
		if confidence > disagreementCeiling {
			confidence = disagreementCeiling
		}
	}

	direction := DirectionNeutral
	if math.Abs(combined) >= minSignificance {
		if combined > 0 {
			direction = DirectionLong
		} else {
			direction = DirectionShort
		}
	}
	if direction == DirectionNeutral {
		confidence = 0
	}

	sig := Signal{
		Direction:  direction,
		Confidence: confidence,
		Confluence: !disagreement && (longSeen || shortSeen),
		Components: in,
	}

	a.logger.Debug("Signal computed",
		"mode", string(o.mode),
		"direction", string(sig.Direction),
		"confidence", sig.Confidence,
		"confluence", sig.Confluence)

	return sig
}
