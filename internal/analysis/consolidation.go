package analysis

import (
	"math"

	"crypto-trading-assistant/internal/market"
)

const (
	// minConsolidationCandles is the minimum window; with fewer
	// candles the detector returns a conservative non-consolidating
	// default
	minConsolidationCandles = 20

	consolidationRatioMax = 0.6
	consolidationDriftMax = 0.004

	shortRangeWindow = 10
	referenceWindow  = 30
)

// Consolidation classifies a candle series as range-bound or not
type Consolidation struct {
	IsConsolidating  bool    `json:"is_consolidating"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// ConsolidationDetector classifies candle sequences as range-bound
// or trending. Candles must be ordered oldest first.
type ConsolidationDetector struct{}

// NewConsolidationDetector creates a consolidation detector
func NewConsolidationDetector() *ConsolidationDetector {
	return &ConsolidationDetector{}
}

// DetectConsolidation compares the mean true range of the last short
// window against the full high-low band of a longer reference window.
// Compressed bars inside a stable band score low; whipsaw bars that
// span the whole band score near one. A low
// compression ratio alone is not enough: sustained close-to-close
// drift over the reference window marks the series trending even when
// bar-to-bar ranges compress.
func (d *ConsolidationDetector) DetectConsolidation(candles []market.Candle) Consolidation {
	if len(candles) < minConsolidationCandles {
		return Consolidation{IsConsolidating: false, CompressionRatio: 1.0}
	}

	ref := candles
	if len(ref) > referenceWindow {
		ref = ref[len(ref)-referenceWindow:]
	}
	short := ref[len(ref)-shortRangeWindow:]

	shortATR := meanTrueRange(short)

	refHigh, refLow := ref[0].High, ref[0].Low
	for _, c := range ref {
		refHigh = math.Max(refHigh, c.High)
		refLow = math.Min(refLow, c.Low)
	}
	refRange := refHigh - refLow
	if refRange <= 0 {
		return Consolidation{IsConsolidating: true, CompressionRatio: 0}
	}

	ratio := shortATR / refRange

	firstClose := ref[0].Close
	lastClose := ref[len(ref)-1].Close
	drift := 0.0
	if firstClose > 0 {
		drift = math.Abs(lastClose-firstClose) / firstClose
	}

	consolidating := ratio < consolidationRatioMax && drift < consolidationDriftMax

	return Consolidation{
		IsConsolidating:  consolidating,
		CompressionRatio: ratio,
	}
}

// meanTrueRange averages the true range over a candle window
func meanTrueRange(candles []market.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	prevClose := candles[0].Close
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			tr = math.Max(tr, math.Abs(c.High-prevClose))
			tr = math.Max(tr, math.Abs(c.Low-prevClose))
		}
		sum += tr
		prevClose = c.Close
	}
	return sum / float64(len(candles))
}
