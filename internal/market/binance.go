package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// Source supplies per-symbol market data for a decision cycle.
// Implementations must return an error rather than a partial snapshot;
// callers degrade to a skipped cycle when the source is unavailable.
type Source interface {
	Snapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// BinanceConfig holds Binance futures market data configuration
type BinanceConfig struct {
	Testnet     bool   `json:"testnet"`
	DepthLimit  int    `json:"depth_limit"`  // order book levels per side
	TradeLimit  int    `json:"trade_limit"`  // recent trades window
	CandleLimit int    `json:"candle_limit"` // klines window
	Interval    string `json:"interval"`     // kline interval, e.g. "1m"
}

// DefaultBinanceConfig returns default market data configuration
func DefaultBinanceConfig() BinanceConfig {
	return BinanceConfig{
		DepthLimit:  20,
		TradeLimit:  80,
		CandleLimit: 60,
		Interval:    "1m",
	}
}

// BinanceSource fetches snapshots from the Binance futures REST API.
// Public market data endpoints need no credentials.
type BinanceSource struct {
	client *futures.Client
	config BinanceConfig
}

// NewBinanceSource creates a Binance-backed market data source
func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 20
	}
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = 80
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 60
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	futures.UseTestnet = cfg.Testnet
	return &BinanceSource{
		client: futures.NewClient("", ""),
		config: cfg,
	}
}

// Snapshot fetches order book, recent trades, candles and the current
// price for one symbol.
func (s *BinanceSource) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	depth, err := s.client.NewDepthService().Symbol(symbol).Limit(s.config.DepthLimit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch depth for %s: %w", symbol, err)
	}

	bids := make([]Level, 0, len(depth.Bids))
	for _, b := range depth.Bids {
		lvl, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse bid level for %s: %w", symbol, err)
		}
		bids = append(bids, lvl)
	}
	asks := make([]Level, 0, len(depth.Asks))
	for _, a := range depth.Asks {
		lvl, err := parseLevel(a.Price, a.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse ask level for %s: %w", symbol, err)
		}
		asks = append(asks, lvl)
	}

	aggTrades, err := s.client.NewAggTradesService().Symbol(symbol).Limit(s.config.TradeLimit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch trades for %s: %w", symbol, err)
	}
	trades := make([]Trade, 0, len(aggTrades))
	for _, t := range aggTrades {
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("parse trade price for %s: %w", symbol, err)
		}
		qty, err := strconv.ParseFloat(t.Quantity, 64)
		if err != nil {
			return nil, fmt.Errorf("parse trade quantity for %s: %w", symbol, err)
		}
		trades = append(trades, Trade{
			Price:         price,
			Amount:        qty,
			QuoteQuantity: price * qty,
			Time:          time.UnixMilli(t.Timestamp),
			// IsBuyerMaker means the taker sold into a resting bid
			IsBuy: !t.IsBuyerMaker,
		})
	}

	klines, err := s.client.NewKlinesService().
		Symbol(symbol).Interval(s.config.Interval).Limit(s.config.CandleLimit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}
	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseCandle(k)
		if err != nil {
			return nil, fmt.Errorf("parse kline for %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}

	price := 0.0
	if len(bids) > 0 && len(asks) > 0 {
		price = (bids[0].Price + asks[0].Price) / 2
	} else if len(candles) > 0 {
		price = candles[len(candles)-1].Close
	}
	if price <= 0 {
		prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil || len(prices) == 0 {
			return nil, fmt.Errorf("fetch price for %s: %w", symbol, err)
		}
		price, err = strconv.ParseFloat(prices[0].Price, 64)
		if err != nil {
			return nil, fmt.Errorf("parse price for %s: %w", symbol, err)
		}
	}

	return &Snapshot{
		Symbol:  symbol,
		Price:   price,
		Bids:    bids,
		Asks:    asks,
		Trades:  trades,
		Candles: candles,
		At:      time.Now(),
	}, nil
}

func parseLevel(priceStr, qtyStr string) (Level, error) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return Level{}, err
	}
	qty, err := strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return Level{}, err
	}
	return Level{Price: price, Size: qty}, nil
}

func parseCandle(k *futures.Kline) (Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return Candle{}, err
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return Candle{}, err
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return Candle{}, err
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return Candle{}, err
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return Candle{}, err
	}
	return Candle{
		Time:   time.UnixMilli(k.OpenTime),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}
