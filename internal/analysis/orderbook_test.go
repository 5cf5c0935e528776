package analysis

import (
	"math"
	"testing"

	"crypto-trading-assistant/internal/market"
	"crypto-trading-assistant/internal/signal"
)

func levels(pairs ...[2]float64) []market.Level {
	out := make([]market.Level, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, market.Level{Price: p[0], Size: p[1]})
	}
	return out
}

func TestAnalyzeOrderBookEmptyBook(t *testing.T) {
	a := NewOrderBookAnalyzer()
	got := a.AnalyzeOrderBook(nil, nil)

	if got.Direction != signal.DirectionNeutral {
		t.Errorf("direction = %s, want NEUTRAL", got.Direction)
	}
	if got.Score != 0 {
		t.Errorf("score = %f, want 0", got.Score)
	}
	if got.SpreadPct != SpreadUnknownPct {
		t.Errorf("spreadPct = %f, want sentinel %f", got.SpreadPct, SpreadUnknownPct)
	}
}

func TestAnalyzeOrderBookBidDomination(t *testing.T) {
	a := NewOrderBookAnalyzer()
	bids := levels([2]float64{100, 50}, [2]float64{99.9, 50}, [2]float64{99.8, 50})
	asks := levels([2]float64{100.1, 10}, [2]float64{100.2, 10}, [2]float64{100.3, 10})

	got := a.AnalyzeOrderBook(bids, asks)

	if got.Direction != signal.DirectionLong {
		t.Errorf("direction = %s, want LONG", got.Direction)
	}
	if got.DomScore <= 0 {
		t.Errorf("domScore = %f, want > 0", got.DomScore)
	}
	if got.Score <= 0 {
		t.Errorf("score = %f, want > 0", got.Score)
	}
}

func TestAnalyzeOrderBookAskDomination(t *testing.T) {
	a := NewOrderBookAnalyzer()
	bids := levels([2]float64{100, 10}, [2]float64{99.9, 10}, [2]float64{99.8, 10})
	asks := levels([2]float64{100.1, 50}, [2]float64{100.2, 50}, [2]float64{100.3, 50})

	got := a.AnalyzeOrderBook(bids, asks)

	if got.Direction != signal.DirectionShort {
		t.Errorf("direction = %s, want SHORT", got.Direction)
	}
	if got.DomScore >= 0 {
		t.Errorf("domScore = %f, want < 0", got.DomScore)
	}
}

func TestAnalyzeOrderBookBalancedIsNeutral(t *testing.T) {
	a := NewOrderBookAnalyzer()
	bids := levels([2]float64{100, 20}, [2]float64{99.9, 20})
	asks := levels([2]float64{100.05, 20}, [2]float64{100.1, 20})

	got := a.AnalyzeOrderBook(bids, asks)

	if got.Direction != signal.DirectionNeutral {
		t.Errorf("direction = %s, want NEUTRAL", got.Direction)
	}
	if got.Score != 0 {
		t.Errorf("score = %f, want 0 for neutral verdict", got.Score)
	}
}

func TestAnalyzeOrderBookSpreadPct(t *testing.T) {
	a := NewOrderBookAnalyzer()
	bids := levels([2]float64{100, 10})
	asks := levels([2]float64{100.03, 10})

	got := a.AnalyzeOrderBook(bids, asks)

	if math.Abs(got.SpreadPct-0.03) > 0.1 {
		t.Errorf("spreadPct = %f, want ~0.03", got.SpreadPct)
	}
	if got.Quality != SpreadGood {
		t.Errorf("quality = %s, want good", got.Quality)
	}
}

func TestAnalyzeOrderBookScoreCapped(t *testing.T) {
	a := NewOrderBookAnalyzer()
	bids := levels([2]float64{100, 1000})
	asks := levels([2]float64{100.1, 1})

	got := a.AnalyzeOrderBook(bids, asks)

	if got.Score > 10 {
		t.Errorf("score = %f, want <= 10", got.Score)
	}
}
