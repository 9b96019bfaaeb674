// Package paper is an in-memory Executor. Orders rest until Fill or
// Cancel is called; scripted errors and delays let tests exercise the
// failure paths of the live session.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/IvanHuYY/Stockbot/broker"
	"github.com/IvanHuYY/Stockbot/pkg/id"
)

type Executor struct {
	mu       sync.Mutex
	seq      *id.Sequence
	orders   map[string]*broker.Order
	byClient map[string]string

	// Delay blocks every PlaceOrder until it elapses or ctx is done.
	Delay time.Duration
	// LandOnError makes scripted errors still record the order, like a
	// request that reached the broker but whose reply was lost.
	LandOnError bool

	failures []error
	calls    int
	now      func() time.Time
}

func New() *Executor {
	return &Executor{
		seq:      id.NewSequence("P"),
		orders:   make(map[string]*broker.Order),
		byClient: make(map[string]string),
		now:      time.Now,
	}
}

// FailNext queues errors returned by the next PlaceOrder calls, in order.
func (e *Executor) FailNext(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, errs...)
}

// Calls is the number of PlaceOrder invocations seen.
func (e *Executor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Executor) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if e.Delay > 0 {
		t := time.NewTimer(e.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			e.mu.Lock()
			e.calls++
			e.mu.Unlock()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if len(e.failures) > 0 {
		err := e.failures[0]
		e.failures = e.failures[1:]
		if err != nil {
			if e.LandOnError {
				e.recordLocked(req)
			}
			return "", err
		}
	}

	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.ClientOrderID != "" {
		if _, ok := e.byClient[req.ClientOrderID]; ok {
			return "", fmt.Errorf("%w: duplicate client order id %q", broker.ErrRejected, req.ClientOrderID)
		}
	}
	return e.recordLocked(req), nil
}

func (e *Executor) recordLocked(req broker.OrderRequest) string {
	oid := e.seq.Next()
	e.orders[oid] = &broker.Order{
		ID:            oid,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Type:          req.Type,
		Status:        broker.StatusNew,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		SubmittedAt:   e.now(),
	}
	if req.ClientOrderID != "" {
		e.byClient[req.ClientOrderID] = oid
	}
	return oid
}

// PendingOrders lists open orders for symbol, or all open orders when
// symbol is empty.
func (e *Executor) PendingOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Order
	for _, o := range e.orders {
		if o.Status != broker.StatusNew {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Fill executes an open order at price.
func (e *Executor) Fill(orderID string, price float64, at time.Time) (broker.Fill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return broker.Fill{}, fmt.Errorf("fill %q: %w", orderID, broker.ErrOrderNotFound)
	}
	if o.Status != broker.StatusNew {
		return broker.Fill{}, fmt.Errorf("fill %q: order is %s", orderID, o.Status)
	}
	o.Status = broker.StatusFilled

	return broker.Fill{
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Quantity:      o.Quantity,
		Price:         price,
		Time:          at,
		StopLoss:      o.StopLoss,
		TakeProfit:    o.TakeProfit,
	}, nil
}

func (e *Executor) Cancel(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %q: %w", orderID, broker.ErrOrderNotFound)
	}
	if o.Status == broker.StatusNew {
		o.Status = broker.StatusCanceled
	}
	return nil
}

// Orders returns every order ever placed, ordered by ID.
func (e *Executor) Orders() []broker.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
