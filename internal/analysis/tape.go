package analysis

import (
	"crypto-trading-assistant/internal/market"
	"crypto-trading-assistant/internal/signal"
)

// TapeScore is the directional verdict derived from recent trade flow
type TapeScore struct {
	Direction    signal.Direction `json:"direction"`
	Score        float64          `json:"score"`
	FlowScore    float64          `json:"flow_score"`
	BuyNotional  float64          `json:"buy_notional"`
	SellNotional float64          `json:"sell_notional"`
}

// Component converts the score to an aggregator input
func (s TapeScore) Component() signal.Component {
	return signal.Component{Direction: s.Direction, Score: s.Score}
}

// TapeAnalyzer scores buy/sell flow imbalance over a recent trade
// window. Trades are expected oldest first.
type TapeAnalyzer struct{}

// NewTapeAnalyzer creates a tape analyzer
func NewTapeAnalyzer() *TapeAnalyzer {
	return &TapeAnalyzer{}
}

// AnalyzeTape splits quote notional by aggressor side with linear
// recency weighting (oldest 0.5, newest 1.0) and maps the imbalance to
// the shared directional scale used by the order book analyzer.
func (a *TapeAnalyzer) AnalyzeTape(trades []market.Trade) TapeScore {
	if len(trades) == 0 {
		return TapeScore{Direction: signal.DirectionNeutral, Score: 0}
	}

	var buyNotional, sellNotional float64
	n := len(trades)
	for i, t := range trades {
		recency := 0.5
		if n > 1 {
			recency = 0.5 + 0.5*float64(i)/float64(n-1)
		}
		notional := t.QuoteQuantity
		if notional <= 0 {
			notional = t.Price * t.Amount
		}
		if t.IsBuy {
			buyNotional += notional * recency
		} else {
			sellNotional += notional * recency
		}
	}

	flowScore := 0.0
	if buyNotional+sellNotional > 0 {
		flowScore = (buyNotional - sellNotional) / (buyNotional + sellNotional)
	}

	direction, score := directionFromImbalance(flowScore)

	return TapeScore{
		Direction:    direction,
		Score:        score,
		FlowScore:    flowScore,
		BuyNotional:  buyNotional,
		SellNotional: sellNotional,
	}
}
