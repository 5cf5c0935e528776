package market

import "time"

// Level is a single price level in an order book.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Trade is one executed trade from the recent tape.
// IsBuy is true when the aggressor was the buyer (taker bought).
type Trade struct {
	Price         float64   `json:"price"`
	Amount        float64   `json:"amount"`
	QuoteQuantity float64   `json:"quote_quantity"`
	Time          time.Time `json:"time"`
	IsBuy         bool      `json:"is_buy"`
}

// Candle is a single OHLCV bar. Series are ordered oldest to newest.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Snapshot bundles everything one decision cycle needs for a symbol.
// Bids are ordered by descending price, asks ascending.
type Snapshot struct {
	Symbol  string    `json:"symbol"`
	Price   float64   `json:"price"`
	Bids    []Level   `json:"bids"`
	Asks    []Level   `json:"asks"`
	Trades  []Trade   `json:"trades"`
	Candles []Candle  `json:"candles"`
	At      time.Time `json:"at"`
}
