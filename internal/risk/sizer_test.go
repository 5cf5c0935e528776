package risk

import (
	"math"
	"testing"
)

func TestPositionSizeZeroBalance(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	if got := s.PositionSize(0, 100, 99); got != 0 {
		t.Errorf("got %f, want 0 for zero balance", got)
	}
	if got := s.PositionSize(-50, 100, 99); got != 0 {
		t.Errorf("got %f, want 0 for negative balance", got)
	}
}

func TestPositionSizeNoStopDistance(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	got := s.PositionSize(1000, 100, 100)
	want := 1000 * FallbackPct
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %f, want fallback %f", got, want)
	}
}

func TestPositionSizeRiskBased(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	// 2% risk on 1000 = 20 USD; 10% stop distance => 200 notional.
	got := s.PositionSize(1000, 100, 90)
	if math.Abs(got-200) > 1e-9 {
		t.Errorf("got %f, want 200", got)
	}
}

func TestPositionSizeConcentrationCap(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	// 1% stop would give 2000 notional on 1000 balance; the asset cap
	// holds it to 250.
	got := s.PositionSize(1000, 100, 99)
	want := 1000 * MaxAssetPct
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %f, want cap %f", got, want)
	}
}

func TestPositionSizeRiskPctClampedToCeiling(t *testing.T) {
	s := NewSizer(SizerConfig{RiskPct: 0.50, FallbackPct: FallbackPct, MaxAssetPct: 1.0})
	// Configured 50% risk is clamped to the 5% hard ceiling:
	// 50 USD risk / 25% stop = 200 notional.
	got := s.PositionSize(1000, 100, 75)
	if math.Abs(got-200) > 1e-9 {
		t.Errorf("got %f, want 200 with clamped risk", got)
	}
}

func TestPositionSizeOversizedFractionsClamped(t *testing.T) {
	s := NewSizer(SizerConfig{RiskPct: DefaultRiskPct, FallbackPct: 1.5, MaxAssetPct: 2.0})

	// No stop distance routes to the fallback fraction, which must not
	// size past the full balance.
	if got := s.PositionSize(1000, 100, 100); got > 1000 {
		t.Errorf("fallback sizing = %f exceeds balance", got)
	}
	for _, stop := range []float64{99.99, 99, 90, 50} {
		if got := s.PositionSize(1000, 100, stop); got > 1000 {
			t.Errorf("PositionSize(1000, 100, %f) = %f exceeds balance", stop, got)
		}
	}
}

func TestPositionSizeNeverExceedsBalance(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	balances := []float64{0, 1, 10, 500, 1000, 1e6}
	stops := []float64{100, 99.99, 99, 90, 50, 0}
	for _, b := range balances {
		for _, stop := range stops {
			if got := s.PositionSize(b, 100, stop); got > b {
				t.Errorf("PositionSize(%f, 100, %f) = %f exceeds balance", b, stop, got)
			}
		}
	}
}
