package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"trading-core/src/interfaces"
	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"
)

// -----------------------------------------------------------------------------
// Connection state machine
// -----------------------------------------------------------------------------

type clientState int

const (
	stateConnecting clientState = iota
	stateBackoff
	stateCircuitOpen
	stateClosed
)

// -----------------------------------------------------------------------------
// Client keeps exactly one live connection to the upstream feed, transparently
// to consumers. It owns the connection exclusively: no other component writes
// to it. Reconnects use capped exponential backoff, sessions are renewed
// proactively before expiry, and a circuit breaker suppresses reconnect
// attempts entirely after repeated failures.
// -----------------------------------------------------------------------------

type Client struct {
	Config  models.MStreamConfig
	Adapter interfaces.IMarketDataAdapter
	Hub     interfaces.IEventPublisher
	Breaker *utils.CircuitBreaker
	Clock   utils.Clock
	Logger  *logger.Logger

	session   models.MStreamSession
	sessionMu sync.RWMutex

	// attempt counts consecutive reconnects; reset only after the connection
	// stays healthy for the configured stability period.
	attempt int
}

// -----------------------------------------------------------------------------

func NewClient(cfg models.MStreamConfig, adapter interfaces.IMarketDataAdapter, hub interfaces.IEventPublisher, clock utils.Clock, log *logger.Logger) *Client {
	if clock == nil {
		clock = utils.SystemClock{}
	}

	c := &Client{
		Config:  cfg,
		Adapter: adapter,
		Hub:     hub,
		Breaker: utils.NewCircuitBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownSec)*time.Second, clock),
		Clock:   clock,
		Logger:  log,
		session: models.MStreamSession{State: models.SessionClosed},
	}

	// Surface breaker transitions to consumers as state events.
	c.Breaker.OnStateChange(func(from, to string) {
		c.Logger.Warning("Stream circuit %s -> %s", from, to)
		if to == utils.CircuitOpen {
			c.publishState(models.SessionDegraded)
		}
	})

	return c
}

// -----------------------------------------------------------------------------

// Session returns a snapshot of the current stream session.
func (c *Client) Session() models.MStreamSession {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session
}

// -----------------------------------------------------------------------------

// Run drives the connection state machine until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	state := stateConnecting

	for state != stateClosed {
		select {
		case <-ctx.Done():
			state = stateClosed
			continue
		default:
		}

		switch state {
		case stateConnecting:
			state = c.runConnecting(ctx)
		case stateBackoff:
			state = c.runBackoff(ctx)
		case stateCircuitOpen:
			state = c.runCircuitOpen(ctx)
		}
	}

	c.Adapter.Close()
	c.setSessionState(models.SessionClosed)
	c.Logger.Info("Stream client stopped")
}

// -----------------------------------------------------------------------------
// State handlers
// -----------------------------------------------------------------------------

func (c *Client) runConnecting(ctx context.Context) clientState {
	if err := c.Breaker.Allow(); err != nil {
		return stateCircuitOpen
	}

	c.setSessionState(models.SessionConnecting)

	session, frames, errs, err := c.open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return stateClosed
		}
		c.Breaker.Failure()
		c.attempt++
		c.Logger.Warning("Connect failed (attempt %d): %v", c.attempt, err)
		if c.Breaker.State() == utils.CircuitOpen {
			return stateCircuitOpen
		}
		return stateBackoff
	}

	c.Breaker.Success()
	c.storeSession(session)
	c.publishState(models.SessionLive)
	c.Logger.Info("Stream connected, session expires at %d", session.ExpiresAt)

	return c.runLive(ctx, frames, errs)
}

// -----------------------------------------------------------------------------

// runLive consumes frames until the connection dies, renewing the session at
// the configured safety margin without interrupting delivery.
func (c *Client) runLive(ctx context.Context, frames <-chan models.MRawFrame, errs <-chan error) clientState {
	renewEvery := time.Duration(c.Config.SessionTTLSec-c.Config.RenewMarginSec) * time.Second
	renewCh := c.Clock.After(renewEvery)
	stableCh := c.Clock.After(time.Duration(c.Config.StableAfterSec) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return stateClosed

		case <-stableCh:
			// Connection held long enough: backoff restarts from scratch next time.
			c.attempt = 0
			stableCh = nil

		case <-renewCh:
			if err := c.renew(ctx); err != nil {
				if ctx.Err() != nil {
					return stateClosed
				}
				// Renewal failure is a connection failure for circuit purposes.
				c.Breaker.Failure()
				c.attempt++
				c.Adapter.Close()
				c.Logger.Warning("Session renewal failed: %v", err)
				if c.Breaker.State() == utils.CircuitOpen {
					return stateCircuitOpen
				}
				return stateBackoff
			}
			renewCh = c.Clock.After(renewEvery)

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			c.handleFrame(frame)

		case err, ok := <-errs:
			if !ok {
				// Clean channel close without a reported cause still means
				// the connection is gone.
				err = models.ErrTransientUpstream
			}
			if ctx.Err() != nil {
				return stateClosed
			}
			c.Breaker.Failure()
			c.attempt++
			c.Adapter.Close()
			c.setSessionState(models.SessionDegraded)
			c.Logger.Warning("Stream connection lost: %v", err)
			if c.Breaker.State() == utils.CircuitOpen {
				return stateCircuitOpen
			}
			return stateBackoff
		}
	}
}

// -----------------------------------------------------------------------------

func (c *Client) runBackoff(ctx context.Context) clientState {
	delay := c.backoffDelay()
	c.setSessionState(models.SessionDegraded)
	c.Logger.Info("Reconnecting in %v (attempt %d)", delay, c.attempt)

	select {
	case <-ctx.Done():
		return stateClosed
	case <-c.Clock.After(delay):
		return stateConnecting
	}
}

// -----------------------------------------------------------------------------

// runCircuitOpen parks until the cooldown elapses. No network calls happen
// here; Allow() grants the single half-open trial on the way out.
func (c *Client) runCircuitOpen(ctx context.Context) clientState {
	c.setSessionState(models.SessionDegraded)

	select {
	case <-ctx.Done():
		return stateClosed
	case <-c.Clock.After(time.Duration(c.Config.BreakerCooldownSec) * time.Second):
		return stateConnecting
	}
}

// -----------------------------------------------------------------------------
// Connection plumbing
// -----------------------------------------------------------------------------

// open authenticates and starts frame delivery under an explicit timeout.
func (c *Client) open(ctx context.Context) (models.MStreamSession, <-chan models.MRawFrame, <-chan error, error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(c.Config.ConnectTimeoutSec)*time.Second)
	defer cancel()

	session, err := c.Adapter.Authenticate(connectCtx)
	if err != nil {
		return models.MStreamSession{}, nil, nil, fmt.Errorf("authenticate: %w", err)
	}

	frames, errs, err := c.Adapter.Open(ctx, session)
	if err != nil {
		return models.MStreamSession{}, nil, nil, fmt.Errorf("open: %w", err)
	}

	session.State = models.SessionLive
	return session, frames, errs, nil
}

// -----------------------------------------------------------------------------

// renew refreshes the session token in place. Delivery continues on the
// existing connection; only the token is swapped. Auth failures invalidate
// the token entirely so the next connect performs a full re-auth.
func (c *Client) renew(ctx context.Context) error {
	renewCtx, cancel := context.WithTimeout(ctx, time.Duration(c.Config.ConnectTimeoutSec)*time.Second)
	defer cancel()

	renewed, err := c.Adapter.Renew(renewCtx, c.Session())
	if err != nil {
		if errors.Is(err, models.ErrAuthFailed) {
			// Stale token is unusable: drop it before reconnecting.
			c.storeSession(models.MStreamSession{State: models.SessionDegraded})
		}
		return err
	}

	renewed.State = models.SessionLive
	c.storeSession(renewed)
	c.Logger.Debug("Session renewed, new expiry %d", renewed.ExpiresAt)
	return nil
}

// -----------------------------------------------------------------------------

// handleFrame normalizes one upstream frame into the hub. Malformed frames
// are logged and skipped without tearing down the connection.
func (c *Client) handleFrame(frame models.MRawFrame) {
	switch frame.Kind {
	case models.EventKindQuote, models.EventKindTrade:
		if frame.Symbol == "" {
			c.Logger.Warning("Skipping malformed frame: missing symbol (kind=%s)", frame.Kind)
			return
		}
	case models.EventKindHeartbeat:
		// Upstream heartbeats pass through; the hub synthesizes its own when quiet.
	default:
		c.Logger.Warning("Skipping malformed frame: unknown kind %q", frame.Kind)
		return
	}

	ts := frame.Timestamp
	if ts == 0 {
		ts = c.Clock.Now().Unix()
	}
	c.Hub.Publish(frame.Symbol, frame.Kind, frame.Payload, ts)
}

// -----------------------------------------------------------------------------

// backoffDelay computes min(base * multiplier^attempt, max).
func (c *Client) backoffDelay() time.Duration {
	base := float64(c.Config.BaseDelayMs)
	max := float64(c.Config.MaxDelayMs)

	delay := base * math.Pow(c.Config.BackoffMultiplier, float64(c.attempt-1))
	if delay > max {
		delay = max
	}
	return time.Duration(delay) * time.Millisecond
}

// -----------------------------------------------------------------------------

func (c *Client) storeSession(s models.MStreamSession) {
	c.sessionMu.Lock()
	c.session = s
	c.sessionMu.Unlock()
}

// -----------------------------------------------------------------------------

func (c *Client) setSessionState(state string) {
	c.sessionMu.Lock()
	c.session.State = state
	c.sessionMu.Unlock()
}

// -----------------------------------------------------------------------------

// publishState emits a connection-state event so consumers can tell a quiet
// market from a degraded feed.
func (c *Client) publishState(state string) {
	payload, _ := json.Marshal(map[string]string{"state": state})
	c.Hub.Publish("", models.EventKindState, payload, c.Clock.Now().Unix())
}
