package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"crypto-trading-assistant/internal/logging"
	"crypto-trading-assistant/internal/signal"
)

// OrderRequest describes a single market entry to submit
type OrderRequest struct {
	UserID     string
	Symbol     string
	Direction  signal.Direction
	Notional   float64 // position size in quote currency
	EntryPrice float64 // reference price for quantity conversion
	Leverage   int
	ReduceOnly bool
}

// OrderResult is the gateway's acknowledgement of a submission
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Quantity      float64
	Status        string
}

// OrderGateway accepts order requests and reports open exposure.
// Submissions are fire-and-forget from the engine's perspective: the
// result is recorded, never retried within a cycle.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	OpenPositionCount(ctx context.Context, userID string) (int, error)
}

// BinanceGateway submits orders to Binance USD-M futures
type BinanceGateway struct {
	client *futures.Client
	logger *logging.Logger
}

// NewBinanceGateway creates a futures execution gateway
func NewBinanceGateway(apiKey, secretKey string, testnet bool, logger *logging.Logger) *BinanceGateway {
	if logger == nil {
		logger = logging.Default()
	}
	futures.UseTestnet = testnet
	return &BinanceGateway{
		client: futures.NewClient(apiKey, secretKey),
		logger: logger.WithComponent("gateway"),
	}
}

// SubmitOrder places a market order sized from the requested notional.
// Leverage is applied before submission when set.
func (g *BinanceGateway) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.Direction == signal.DirectionNeutral {
		return nil, fmt.Errorf("cannot submit neutral order for %s", req.Symbol)
	}
	if req.EntryPrice <= 0 || req.Notional <= 0 {
		return nil, fmt.Errorf("invalid order sizing for %s: notional=%f price=%f",
			req.Symbol, req.Notional, req.EntryPrice)
	}

	if req.Leverage > 0 {
		_, err := g.client.NewChangeLeverageService().
			Symbol(req.Symbol).Leverage(req.Leverage).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to set leverage for %s: %w", req.Symbol, err)
		}
	}

	side := futures.SideTypeBuy
	if req.Direction == signal.DirectionShort {
		side = futures.SideTypeSell
	}

	quantity := req.Notional / req.EntryPrice
	clientOrderID := "ata-" + uuid.New().String()[:18]

	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		NewClientOrderID(clientOrderID)
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("order submission failed for %s: %w", req.Symbol, err)
	}

	g.logger.Info("Order submitted",
		"user_id", req.UserID,
		"symbol", req.Symbol,
		"side", string(side),
		"quantity", quantity,
		"order_id", order.OrderID)

	return &OrderResult{
		OrderID:       fmt.Sprintf("%d", order.OrderID),
		ClientOrderID: clientOrderID,
		Symbol:        req.Symbol,
		Quantity:      quantity,
		Status:        string(order.Status),
	}, nil
}

// OpenPositionCount returns the number of open futures positions
func (g *BinanceGateway) OpenPositionCount(ctx context.Context, userID string) (int, error) {
	positions, err := g.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list positions: %w", err)
	}

	count := 0
	for _, p := range positions {
		amt := strings.TrimLeft(p.PositionAmt, "-")
		if amt != "" && amt != "0" && amt != "0.0" && !isZeroQuantity(amt) {
			count++
		}
	}
	return count, nil
}

func isZeroQuantity(s string) bool {
	for _, r := range s {
		if r != '0' && r != '.' {
			return false
		}
	}
	return true
}

// formatQuantity trims a float to the precision Binance accepts for
// most USD-M symbols
func formatQuantity(q float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", q), "0"), ".")
}
