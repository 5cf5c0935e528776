package analysis

import (
	"math"

	"crypto-trading-assistant/internal/market"
	"crypto-trading-assistant/internal/signal"
)

const (
	// SpreadGoodPct and SpreadCautionPct classify spread quality for
	// downstream consumers; they do not gate by themselves
	SpreadGoodPct    = 0.05
	SpreadCautionPct = 0.15

	// SpreadUnknownPct is the sentinel returned for an empty book,
	// meaning spread is unknown or unsafe, never a measured value
	SpreadUnknownPct = 999.0

	// domThreshold is the minimum |domScore| for a directional verdict
	domThreshold = 0.15

	topLevels = 5
)

// levelWeights decay depth contribution away from the touch
var levelWeights = [topLevels]float64{1.0, 0.8, 0.6, 0.4, 0.2}

// SpreadQuality classifies the bid/ask spread width
type SpreadQuality string

const (
	SpreadGood    SpreadQuality = "good"
	SpreadCaution SpreadQuality = "caution"
	SpreadWide    SpreadQuality = "wide"
)

// OrderBookScore is the directional verdict derived from book depth
type OrderBookScore struct {
	Direction signal.Direction `json:"direction"`
	Score     float64          `json:"score"`
	DomScore  float64          `json:"dom_score"`
	SpreadPct float64          `json:"spread_pct"`
	Quality   SpreadQuality    `json:"quality"`
}

// Component converts the score to an aggregator input
func (s OrderBookScore) Component() signal.Component {
	return signal.Component{Direction: s.Direction, Score: s.Score}
}

// OrderBookAnalyzer scores directional bias and spread quality from a
// bid/ask snapshot. Bids must be sorted descending, asks ascending.
type OrderBookAnalyzer struct{}

// NewOrderBookAnalyzer creates an order book analyzer
func NewOrderBookAnalyzer() *OrderBookAnalyzer {
	return &OrderBookAnalyzer{}
}

// AnalyzeOrderBook computes a depth-weighted domination score over the
// top levels of each side. domScore = (bid-askDepth)/(bid+askDepth) in
// [-1,1]; positive means the bid side dominates.
func (a *OrderBookAnalyzer) AnalyzeOrderBook(bids, asks []market.Level) OrderBookScore {
	if len(bids) == 0 && len(asks) == 0 {
		return OrderBookScore{
			Direction: signal.DirectionNeutral,
			Score:     0,
			DomScore:  0,
			SpreadPct: SpreadUnknownPct,
			Quality:   SpreadWide,
		}
	}

	bidDepth := weightedDepth(bids)
	askDepth := weightedDepth(asks)

	domScore := 0.0
	if bidDepth+askDepth > 0 {
		domScore = (bidDepth - askDepth) / (bidDepth + askDepth)
	}

	spreadPct := SpreadUnknownPct
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price > 0 {
		spreadPct = (asks[0].Price - bids[0].Price) / bids[0].Price * 100
	}

	quality := SpreadWide
	switch {
	case spreadPct <= SpreadGoodPct:
		quality = SpreadGood
	case spreadPct <= SpreadCautionPct:
		quality = SpreadCaution
	}

	direction, score := directionFromImbalance(domScore)

	return OrderBookScore{
		Direction: direction,
		Score:     score,
		DomScore:  domScore,
		SpreadPct: spreadPct,
		Quality:   quality,
	}
}

func weightedDepth(levels []market.Level) float64 {
	depth := 0.0
	for i, lvl := range levels {
		if i >= topLevels {
			break
		}
		depth += lvl.Size * levelWeights[i]
	}
	return depth
}

// directionFromImbalance maps a [-1,1] imbalance to a directional
// verdict on the shared 0-10 scale. Below the threshold the result is
// NEUTRAL with score 0.
func directionFromImbalance(imbalance float64) (signal.Direction, float64) {
	if imbalance > domThreshold {
		return signal.DirectionLong, math.Min(imbalance*20, 10)
	}
	if imbalance < -domThreshold {
		return signal.DirectionShort, math.Min(math.Abs(imbalance)*20, 10)
	}
	return signal.DirectionNeutral, 0
}
