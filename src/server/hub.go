package server

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
//
// Single producer (the stream client), many consumers, each with an
// independent delivery cursor. The hub loop is the only goroutine touching
// the subscriber set and the replay buffer, so registration/removal is safe
// against ongoing publishes. Slow subscribers are dropped, never waited on.
// -----------------------------------------------------------------------------

// Subscriber is one downstream consumer of fan-out events.
type Subscriber struct {
	ID     string
	Events chan models.MMarketEvent

	// Cursor is the last sequence id handed to this subscriber's queue.
	// Owned by the hub loop.
	Cursor uint64

	LastHeartbeat time.Time
}

// -----------------------------------------------------------------------------

type subscribeRequest struct {
	lastEventID uint64
	hasCursor   bool
	reply       chan subscribeReply
}

type subscribeReply struct {
	sub *Subscriber
	err error
}

// -----------------------------------------------------------------------------

type Hub struct {
	Config models.MFanOutConfig
	Logger *logger.Logger
	Clock  utils.Clock

	buffer *utils.EventBuffer
	seq    uint64

	latest      atomic.Uint64
	subscribers map[*Subscriber]struct{}
	register    chan subscribeRequest
	unregister  chan *Subscriber
	broadcast   chan models.MMarketEvent

	lastPublish time.Time
}

// -----------------------------------------------------------------------------

func NewHub(cfg models.MFanOutConfig, clock utils.Clock, log *logger.Logger) *Hub {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Hub{
		Config:      cfg,
		Logger:      log,
		Clock:       clock,
		buffer:      utils.NewEventBuffer(cfg.ReplayBufferSize),
		subscribers: make(map[*Subscriber]struct{}),
		register:    make(chan subscribeRequest),
		unregister:  make(chan *Subscriber),
		// Buffered queue so the producer rarely blocks on the hub loop.
		broadcast: make(chan models.MMarketEvent, 256),
	}
}

// -----------------------------------------------------------------------------
// Producer API
// -----------------------------------------------------------------------------

// Publish hands one normalized event to the hub loop. Sequence ids are
// assigned there so they are strictly monotonic.
func (h *Hub) Publish(symbol, kind string, payload []byte, timestamp int64) {
	h.broadcast <- models.MMarketEvent{
		Symbol:    symbol,
		Kind:      kind,
		Payload:   payload,
		Timestamp: timestamp,
	}
}

// -----------------------------------------------------------------------------
// Consumer API
// -----------------------------------------------------------------------------

// Subscribe registers a new subscriber. With hasCursor the replay buffer is
// drained from lastEventID forward into the subscriber queue before any new
// event is delivered; a cursor older than the buffer retains yields
// models.ErrResyncRequired (the consumer must re-snapshot out-of-band).
func (h *Hub) Subscribe(lastEventID uint64, hasCursor bool) (*Subscriber, error) {
	req := subscribeRequest{
		lastEventID: lastEventID,
		hasCursor:   hasCursor,
		reply:       make(chan subscribeReply, 1),
	}
	h.register <- req
	rep := <-req.reply
	return rep.sub, rep.err
}

// -----------------------------------------------------------------------------

// Unsubscribe removes a subscriber and closes its queue.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.unregister <- sub
}

// -----------------------------------------------------------------------------

// LatestSequence returns the highest assigned sequence id.
func (h *Hub) LatestSequence() uint64 {
	return h.latest.Load()
}

// -----------------------------------------------------------------------------
// Hub loop
// -----------------------------------------------------------------------------

// Run is the main hub loop. It owns all subscriber state.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.Duration(h.Config.HeartbeatIntervalSec) * time.Second
	heartbeatCh := h.Clock.After(heartbeat)
	h.lastPublish = h.Clock.Now()

	for {
		select {
		case <-ctx.Done():
			for sub := range h.subscribers {
				close(sub.Events)
				delete(h.subscribers, sub)
			}
			return

		case req := <-h.register:
			h.handleSubscribe(req)

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.Events)
			}

		case ev := <-h.broadcast:
			h.seq++
			h.latest.Store(h.seq)
			ev.Sequence = h.seq
			h.buffer.Append(ev)
			h.lastPublish = h.Clock.Now()
			h.deliver(ev)

		case <-heartbeatCh:
			// Quiet market: synthesize a heartbeat so consumers can tell
			// "no events" from "connection dead". Heartbeats reuse the
			// latest sequence id and are never replayed.
			if h.Clock.Now().Sub(h.lastPublish) >= heartbeat {
				h.deliver(models.MMarketEvent{
					Sequence:  h.seq,
					Kind:      models.EventKindHeartbeat,
					Timestamp: h.Clock.Now().Unix(),
				})
			}
			heartbeatCh = h.Clock.After(heartbeat)
		}
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) handleSubscribe(req subscribeRequest) {
	var backlog []models.MMarketEvent

	if req.hasCursor {
		events, err := h.buffer.Since(req.lastEventID)
		if err != nil {
			req.reply <- subscribeReply{err: err}
			return
		}
		backlog = events
	}

	// Queue sized to hold the whole backlog plus the configured headroom, so
	// resumption never counts against the slow-consumer budget.
	sub := &Subscriber{
		ID:            uuid.NewString(),
		Events:        make(chan models.MMarketEvent, h.Config.SubscriberQueueSize+len(backlog)),
		Cursor:        h.seq,
		LastHeartbeat: h.Clock.Now(),
	}

	for _, ev := range backlog {
		sub.Events <- ev
	}
	if req.hasCursor && len(backlog) > 0 {
		sub.Cursor = backlog[len(backlog)-1].Sequence
	} else if req.hasCursor {
		sub.Cursor = req.lastEventID
	}

	h.subscribers[sub] = struct{}{}
	h.Logger.Debug("Subscriber %s registered (cursor=%d, backlog=%d)", sub.ID, sub.Cursor, len(backlog))
	req.reply <- subscribeReply{sub: sub}
}

// -----------------------------------------------------------------------------

// deliver fans one event out to every subscriber. A full queue means the
// consumer stopped reading: it is dropped so one stalled consumer can never
// create backpressure into the stream client.
func (h *Hub) deliver(ev models.MMarketEvent) {
	for sub := range h.subscribers {
		select {
		case sub.Events <- ev:
			if ev.Kind != models.EventKindHeartbeat {
				sub.Cursor = ev.Sequence
			}
		default:
			// Client too slow, disconnect to prevent Hub blocking
			delete(h.subscribers, sub)
			close(sub.Events)
			h.Logger.Warning("Dropped slow subscriber %s at cursor %d", sub.ID, sub.Cursor)
		}
	}
}

// -----------------------------------------------------------------------------
// Control events
// -----------------------------------------------------------------------------

// ResyncEvent is what a consumer receives when its cursor is too old.
func ResyncEvent(now int64) models.MMarketEvent {
	payload, _ := json.Marshal(map[string]string{"reason": models.ReasonResyncRequired})
	return models.MMarketEvent{
		Kind:      models.EventKindResync,
		Payload:   payload,
		Timestamp: now,
	}
}
