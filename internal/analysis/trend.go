package analysis

import (
	"crypto-trading-assistant/internal/market"
	"crypto-trading-assistant/internal/signal"
)

const (
	trendEMAShort  = 20
	trendEMALong   = 50
	trendRSIPeriod = 14

	// maxTrendPoints is the highest reachable bullish or bearish point
	// total, used to project onto the shared 0-10 scale
	maxTrendPoints = 4
)

// TrendScore is the directional verdict derived from candle structure
type TrendScore struct {
	Direction signal.Direction `json:"direction"`
	Score     float64          `json:"score"`
	EMAShort  float64          `json:"ema_short"`
	EMALong   float64          `json:"ema_long"`
	RSI       float64          `json:"rsi"`
}

// Component converts the score to an aggregator input
func (s TrendScore) Component() signal.Component {
	return signal.Component{Direction: s.Direction, Score: s.Score}
}

// TrendAnalyzer scores directional momentum from candle structure
// using EMA alignment and RSI zones. Candles must be oldest first.
type TrendAnalyzer struct{}

// NewTrendAnalyzer creates a candle trend analyzer
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{}
}

// AnalyzeTrend scores bullish against bearish structure points and
// projects the margin onto the shared 0-10 directional scale. Fewer
// candles than the long EMA period yields NEUTRAL.
func (a *TrendAnalyzer) AnalyzeTrend(candles []market.Candle) TrendScore {
	if len(candles) < trendEMALong {
		return TrendScore{Direction: signal.DirectionNeutral, RSI: 50}
	}

	price := candles[len(candles)-1].Close
	emaShort := calculateEMA(candles, trendEMAShort)
	emaLong := calculateEMA(candles, trendEMALong)
	rsi := calculateRSI(candles, trendRSIPeriod)

	bullish, bearish := 0, 0

	switch {
	case price > emaShort && emaShort > emaLong:
		bullish += 2
	case price < emaShort && emaShort < emaLong:
		bearish += 2
	case price > emaShort:
		bullish++
	case price < emaShort:
		bearish++
	}

	switch {
	case rsi < 30:
		bullish += 2
	case rsi > 70:
		bearish += 2
	case rsi < 45:
		bullish++
	case rsi > 55:
		bearish++
	}

	direction := signal.DirectionNeutral
	score := 0.0
	margin := bullish - bearish
	if margin > 0 {
		direction = signal.DirectionLong
	} else if margin < 0 {
		direction = signal.DirectionShort
		margin = -margin
	}
	if direction != signal.DirectionNeutral {
		score = float64(margin) / maxTrendPoints * 10
		if score > 10 {
			score = 10
		}
	}

	return TrendScore{
		Direction: direction,
		Score:     score,
		EMAShort:  emaShort,
		EMALong:   emaLong,
		RSI:       rsi,
	}
}

// calculateEMA seeds with an SMA over the first period then smooths
// across the remaining closes
func calculateEMA(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}

	sma := 0.0
	for _, c := range candles[:period] {
		sma += c.Close
	}
	sma /= float64(period)

	multiplier := 2.0 / float64(period+1)
	ema := sma
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// calculateRSI computes a simple-average RSI over the trailing period
func calculateRSI(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0
	}

	gains, losses := 0.0, 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
