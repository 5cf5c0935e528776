package ai

import (
	"context"
	"errors"
	"testing"

	"crypto-trading-assistant/internal/signal"
)

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) GetSetting(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[key], nil
}

type fakeCreds struct {
	keys map[string]string
	err  error
}

func (f *fakeCreds) APIKey(ctx context.Context, provider string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.keys[provider], nil
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newTestGate(settings *fakeSettings, creds *fakeCreds, fc *fakeCompleter) *Gate {
	g := NewGate(settings, creds, nil)
	g.newClient = func(cfg *ClientConfig) completer { return fc }
	return g
}

func longSignal() signal.Signal {
	return signal.Signal{Direction: signal.DirectionLong, Confidence: 0.8, Confluence: true}
}

func TestGateDisabledReturnsNilWithoutCall(t *testing.T) {
	fc := &fakeCompleter{reply: "0.9"}
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{"version":1,"enabled":false,"provider":"claude","min_score":0.6}`}},
		&fakeCreds{keys: map[string]string{"claude": "k"}},
		fc,
	)

	if got := g.Evaluate(context.Background(), longSignal(), EvalContext{Symbol: "BTCUSDT"}); got != nil {
		t.Errorf("got %+v, want nil for disabled gate", got)
	}
	if fc.calls != 0 {
		t.Errorf("provider called %d times, want 0", fc.calls)
	}
}

func TestGateMissingCredentialReturnsNilWithoutCall(t *testing.T) {
	fc := &fakeCompleter{reply: "0.9"}
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{"version":1,"enabled":true,"provider":"claude","min_score":0.6}`}},
		&fakeCreds{},
		fc,
	)

	if got := g.Evaluate(context.Background(), longSignal(), EvalContext{Symbol: "BTCUSDT"}); got != nil {
		t.Errorf("got %+v, want nil without credential", got)
	}
	if fc.calls != 0 {
		t.Errorf("provider called %d times, want 0", fc.calls)
	}
}

func TestGateMalformedConfigReadsAsDisabled(t *testing.T) {
	fc := &fakeCompleter{reply: "0.9"}
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{not json`}},
		&fakeCreds{keys: map[string]string{"claude": "k"}},
		fc,
	)

	if got := g.Evaluate(context.Background(), longSignal(), EvalContext{}); got != nil {
		t.Errorf("got %+v, want nil for malformed config", got)
	}
}

func TestGateUnknownVersionReadsAsDisabled(t *testing.T) {
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{"version":2,"enabled":true,"provider":"claude"}`}},
		&fakeCreds{keys: map[string]string{"claude": "k"}},
		&fakeCompleter{reply: "0.9"},
	)

	if cfg := g.Config(context.Background()); cfg.Enabled {
		t.Error("unknown version must read as disabled")
	}
}

func TestGateParsesScore(t *testing.T) {
	fc := &fakeCompleter{reply: "I estimate 0.73 probability"}
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{"version":1,"enabled":true,"provider":"claude","min_score":0.6}`}},
		&fakeCreds{keys: map[string]string{"claude": "k"}},
		fc,
	)

	got := g.Evaluate(context.Background(), longSignal(), EvalContext{Symbol: "BTCUSDT", EntryPrice: 100, StopPrice: 99, TakeProfit: 102})
	if got == nil {
		t.Fatal("got nil, want score")
	}
	if got.Value != 0.73 {
		t.Errorf("value = %f, want 0.73", got.Value)
	}
	if got.MinScore != 0.6 {
		t.Errorf("minScore = %f, want 0.6", got.MinScore)
	}
	if fc.calls != 1 {
		t.Errorf("provider called %d times, want 1", fc.calls)
	}
}

func TestGateClampsScore(t *testing.T) {
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{"version":1,"enabled":true,"provider":"openai","min_score":0.5}`}},
		&fakeCreds{keys: map[string]string{"openai": "k"}},
		&fakeCompleter{reply: "1.5"},
	)

	got := g.Evaluate(context.Background(), longSignal(), EvalContext{})
	if got == nil {
		t.Fatal("got nil, want clamped score")
	}
	if got.Value != 1.0 {
		t.Errorf("value = %f, want clamp to 1.0", got.Value)
	}
}

func TestGateProviderErrorFailsOpen(t *testing.T) {
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{"version":1,"enabled":true,"provider":"claude","min_score":0.6}`}},
		&fakeCreds{keys: map[string]string{"claude": "k"}},
		&fakeCompleter{err: errors.New("timeout")},
	)

	if got := g.Evaluate(context.Background(), longSignal(), EvalContext{}); got != nil {
		t.Errorf("got %+v, want nil on provider error", got)
	}
}

func TestGateUnparseableReplyFailsOpen(t *testing.T) {
	g := newTestGate(
		&fakeSettings{values: map[string]string{ConfigKey: `{"version":1,"enabled":true,"provider":"claude","min_score":0.6}`}},
		&fakeCreds{keys: map[string]string{"claude": "k"}},
		&fakeCompleter{reply: "no idea"},
	)

	if got := g.Evaluate(context.Background(), longSignal(), EvalContext{}); got != nil {
		t.Errorf("got %+v, want nil on unparseable reply", got)
	}
}

func TestParseProbability(t *testing.T) {
	cases := []struct {
		in    string
		want  float64
		found bool
	}{
		{"0.73", 0.73, true},
		{"probability: 0.5", 0.5, true},
		{"1.5", 1.0, true},
		{"0", 0, true},
		{"nope", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseProbability(tc.in)
		if ok != tc.found || got != tc.want {
			t.Errorf("parseProbability(%q) = (%f, %t), want (%f, %t)", tc.in, got, ok, tc.want, tc.found)
		}
	}
}
