// Package broker defines the execution boundary: order placement, pending
// order queries and account reads. Nothing in here knows about risk.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/portfolio"
)

var (
	// ErrTimeout means the placement outcome is unknown. The order may or
	// may not exist at the broker, so it is never retried blindly.
	ErrTimeout = errors.New("broker: order placement timed out")
	// ErrRejected is a definitive refusal by the broker.
	ErrRejected = errors.New("broker: order rejected")
	// ErrTransient is a failure known to have happened before the request
	// reached the broker. Safe to retry.
	ErrTransient = errors.New("broker: transient failure")
	// ErrDuplicateOrder is returned when an open order already covers the
	// symbol.
	ErrDuplicateOrder = errors.New("broker: open order already exists")
	ErrOrderNotFound  = errors.New("broker: order not found")
)

type OrderType string

const (
	Market  OrderType = "market"
	Limit   OrderType = "limit"
	Bracket OrderType = "bracket"
)

type OrderStatus string

const (
	StatusNew      OrderStatus = "new"
	StatusFilled   OrderStatus = "filled"
	StatusCanceled OrderStatus = "canceled"
)

type OrderRequest struct {
	Symbol   string
	Side     market.Side
	Quantity int64
	Type     OrderType

	LimitPrice float64 // limit orders
	StopLoss   float64 // bracket legs
	TakeProfit float64

	// ClientOrderID carries the idempotency key to the broker.
	ClientOrderID string
}

func (r OrderRequest) Validate() error {
	switch {
	case r.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrRejected)
	case !r.Side.Valid():
		return fmt.Errorf("%w: invalid side for %s", ErrRejected, r.Symbol)
	case r.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrRejected, r.Quantity)
	}

	switch r.Type {
	case Market:
	case Limit:
		if r.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit order needs a limit price", ErrRejected)
		}
	case Bracket:
		if r.StopLoss <= 0 || r.TakeProfit <= 0 {
			return fmt.Errorf("%w: bracket order needs stop and target", ErrRejected)
		}
		// Stop below and target above for longs, mirrored for shorts.
		if r.Side.Sign()*(r.TakeProfit-r.StopLoss) <= 0 {
			return fmt.Errorf("%w: bracket legs on the wrong sides (stop %.4f, target %.4f)", ErrRejected, r.StopLoss, r.TakeProfit)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrRejected, r.Type)
	}
	return nil
}

type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          market.Side
	Quantity      int64
	Type          OrderType
	Status        OrderStatus
	StopLoss      float64
	TakeProfit    float64
	SubmittedAt   time.Time
}

// Fill reports an executed order.
type Fill struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          market.Side
	Quantity      int64
	Price         float64
	Time          time.Time
	StopLoss      float64
	TakeProfit    float64
	Commission    float64
}

// Executor places orders. PlaceOrder returns the broker's order ID.
type Executor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	PendingOrders(ctx context.Context, symbol string) ([]Order, error)
}

// AccountReader is the read side of a brokerage account.
type AccountReader interface {
	Equity(ctx context.Context) (float64, error)
	BuyingPower(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]portfolio.Position, error)
	PendingOrders(ctx context.Context, symbol string) ([]Order, error)
}

// LocalAccount answers account reads from the in-process portfolio and
// an executor's open orders.
type LocalAccount struct {
	Portfolio *portfolio.Portfolio
	Orders    Executor
}

func (a LocalAccount) Equity(context.Context) (float64, error) {
	return a.Portfolio.Equity(), nil
}

func (a LocalAccount) BuyingPower(context.Context) (float64, error) {
	return a.Portfolio.BuyingPower(), nil
}

func (a LocalAccount) Positions(context.Context) ([]portfolio.Position, error) {
	return a.Portfolio.Positions(), nil
}

func (a LocalAccount) PendingOrders(ctx context.Context, symbol string) ([]Order, error) {
	if a.Orders == nil {
		return nil, nil
	}
	return a.Orders.PendingOrders(ctx, symbol)
}

// Retryable reports whether err may be retried without risking a second
// order at the broker.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) && !errors.Is(err, ErrTimeout)
}
