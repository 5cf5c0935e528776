package signal

// Direction is the directional verdict of a component or signal
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Component is one directional input to the aggregator on a 0-10 scale.
// A NEUTRAL component carries score 0 at this boundary.
type Component struct {
	Direction Direction `json:"direction"`
	Score     float64   `json:"score"`
}

// Neutral returns a zero-score neutral component
func Neutral() Component {
	return Component{Direction: DirectionNeutral, Score: 0}
}

// Inputs collects the per-component scores for one aggregation
type Inputs struct {
	Candles   Component `json:"candles"`
	OrderBook Component `json:"order_book"`
	Tape      Component `json:"tape"`

	// SpreadPct is carried through from the order book analysis so
	// downstream gates can reject wide markets.
	SpreadPct float64 `json:"spread_pct"`
}

// Signal is the fused directional decision for one cycle.
// It is produced fresh per cycle and never mutated after creation.
type Signal struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Confluence bool      `json:"confluence"`
	Components Inputs    `json:"components"`
}

// TradingMode selects the aggregation weight table
type TradingMode string

const (
	ModeStandard TradingMode = "standard"
	ModeScalping TradingMode = "scalping"
)

// ParseTradingMode maps a stored mode string to a known mode,
// defaulting to standard for anything unrecognized
func ParseTradingMode(s string) TradingMode {
	if TradingMode(s) == ModeScalping {
		return ModeScalping
	}
	return ModeStandard
}
