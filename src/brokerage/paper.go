package brokerage

import (
	"context"
	"fmt"
	"sync"

	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// PaperBroker is an in-process brokerage adapter: it accepts orders against a
// simulated buying-power balance and fills them instantly at the limit price
// (or a synthetic mark for market orders). Used by the local binary and the
// end-to-end smoke harness; real deployments supply their own adapter.
// -----------------------------------------------------------------------------

type PaperBroker struct {
	Logger *logger.Logger
	Clock  utils.Clock

	mu          sync.Mutex
	buyingPower float64
	orders      map[string]models.MBrokerAck
	fills       []models.MFill
	marks       map[string]float64
}

// -----------------------------------------------------------------------------

func NewPaperBroker(buyingPower float64, clock utils.Clock, log *logger.Logger) *PaperBroker {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &PaperBroker{
		Logger:      log,
		Clock:       clock,
		buyingPower: buyingPower,
		orders:      make(map[string]models.MBrokerAck),
		marks:       make(map[string]float64),
	}
}

// -----------------------------------------------------------------------------

// SetMark sets the synthetic market price used to fill market orders.
func (b *PaperBroker) SetMark(symbol string, price float64) {
	b.mu.Lock()
	b.marks[symbol] = price
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (b *PaperBroker) Submit(ctx context.Context, key string, legs []models.MOrderLeg) (models.MBrokerAck, error) {
	if err := ctx.Err(); err != nil {
		return models.MBrokerAck{}, models.ErrTransientUpstream
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Brokerage-side dedup mirrors what a real venue does with client order ids.
	if ack, ok := b.orders[key]; ok {
		return ack, nil
	}

	var notional float64
	for _, leg := range legs {
		notional += b.fillPrice(leg) * leg.Quantity
	}
	if notional > b.buyingPower {
		ack := models.MBrokerAck{
			Accepted: false,
			Reason:   fmt.Sprintf("insufficient buying power: need %.2f, have %.2f", notional, b.buyingPower),
		}
		b.orders[key] = ack
		return ack, nil
	}
	b.buyingPower -= notional

	atomicOrder := len(legs) > 1
	now := b.Clock.Now().Unix()

	// One brokerage order id per submission: legs of a composite order share
	// it, which is how day-trade matching recognizes an atomic pair.
	orderID := uuid.NewString()

	ack := models.MBrokerAck{Accepted: true, Legs: make([]models.MLegResult, len(legs))}
	for i, leg := range legs {
		ack.Legs[i] = models.MLegResult{
			Symbol:        leg.Symbol,
			Accepted:      true,
			BrokerOrderID: orderID,
		}
		b.fills = append(b.fills, models.MFill{
			FillID:         uuid.NewString(),
			IdempotencyKey: key,
			BrokerOrderID:  orderID,
			Symbol:         leg.Symbol,
			Side:           leg.Side,
			Quantity:       leg.Quantity,
			Price:          b.fillPrice(leg),
			Timestamp:      now,
			Atomic:         atomicOrder,
		})
	}

	b.orders[key] = ack
	b.Logger.Debug("Paper broker accepted %s (%d legs, notional %.2f)", key, len(legs), notional)
	return ack, nil
}

// -----------------------------------------------------------------------------

func (b *PaperBroker) GetOrderStatus(ctx context.Context, key string) (models.MBrokerAck, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.MBrokerAck{}, false, models.ErrTransientUpstream
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	ack, ok := b.orders[key]
	return ack, ok, nil
}

// -----------------------------------------------------------------------------

func (b *PaperBroker) GetFills(ctx context.Context, since int64) ([]models.MFill, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.ErrTransientUpstream
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.MFill
	for _, f := range b.fills {
		if f.Timestamp >= since {
			out = append(out, f)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (b *PaperBroker) fillPrice(leg models.MOrderLeg) float64 {
	if leg.OrderType == models.OrderTypeLimit && leg.LimitPrice > 0 {
		return leg.LimitPrice
	}
	if mark, ok := b.marks[leg.Symbol]; ok {
		return mark
	}
	return 100.0 // default mark for symbols never quoted
}
