package execution

import (
	"context"
	"encoding/json"
	"time"

	"trading-core/src/interfaces"
	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"
)

// -----------------------------------------------------------------------------
// FillSink consumes executed fills (the compliance tracker).
// -----------------------------------------------------------------------------

type FillSink interface {
	Record(fill models.MFill)
}

// -----------------------------------------------------------------------------
// FillPump polls the brokerage for executed fills, appends them to the
// durable fill log, feeds the compliance tracker and republishes them into
// the fan-out hub as position-update events.
// -----------------------------------------------------------------------------

type FillPump struct {
	Broker   interfaces.IBrokerageAdapter
	Store    interfaces.IOrderStore
	Sink     FillSink
	Hub      interfaces.IEventPublisher
	Clock    utils.Clock
	Logger   *logger.Logger
	Interval time.Duration

	lastSeen int64
	seen     map[string]struct{}
}

// -----------------------------------------------------------------------------

func NewFillPump(broker interfaces.IBrokerageAdapter, store interfaces.IOrderStore, sink FillSink,
	hub interfaces.IEventPublisher, clock utils.Clock, interval time.Duration, log *logger.Logger) *FillPump {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &FillPump{
		Broker:   broker,
		Store:    store,
		Sink:     sink,
		Hub:      hub,
		Clock:    clock,
		Logger:   log,
		Interval: interval,
		seen:     make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// Run polls until ctx is cancelled.
func (p *FillPump) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.Clock.After(p.Interval):
			if err := p.Poll(ctx); err != nil {
				p.Logger.Warning("Fill poll failed: %v", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Poll fetches and routes fills once. Fills are deduplicated by id since the
// since-cursor query is inclusive at the boundary.
func (p *FillPump) Poll(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	fills, err := p.Broker.GetFills(pollCtx, p.lastSeen)
	if err != nil {
		return err
	}

	for _, fill := range fills {
		if _, dup := p.seen[fill.FillID]; dup {
			continue
		}
		p.seen[fill.FillID] = struct{}{}
		if fill.Timestamp > p.lastSeen {
			p.lastSeen = fill.Timestamp
		}

		if err := p.Store.AppendFill(fill); err != nil {
			p.Logger.Error("Failed to append fill %s: %v", fill.FillID, err)
			continue
		}
		if p.Sink != nil {
			p.Sink.Record(fill)
		}
		if p.Hub != nil {
			payload, _ := json.Marshal(fill)
			p.Hub.Publish(fill.Symbol, models.EventKindPosition, payload, fill.Timestamp)
		}
	}
	return nil
}
