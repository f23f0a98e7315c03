package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-core/src/interfaces"
	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"
)

// -----------------------------------------------------------------------------
// ComplianceAdvisor supplies the pre-trade advisory status attached to
// accepted results. Advisory only: it never blocks an order.
// -----------------------------------------------------------------------------

type ComplianceAdvisor interface {
	Status() models.MComplianceStatus
}

// -----------------------------------------------------------------------------
// Engine turns a validated order request into exactly one brokerage
// submission, or a safe rejection.
//
// Per-request state machine:
//
//	received -> validated -> (dry-run: echoed)
//	                      -> (kill switch: rejected)
//	                      -> circuit check -> submitted
//	                      -> success | transient retry (<= MaxRetries) | terminal reject
//
// The single most important invariant: at most one in-flight brokerage call
// per idempotency key. Concurrent duplicates serialize on the first call's
// outcome via a per-key latch.
// -----------------------------------------------------------------------------

type Engine struct {
	Config  models.MExecutionConfig
	Broker  interfaces.IBrokerageAdapter
	Store   interfaces.IOrderStore
	Kill    *KillSwitch
	Breaker *utils.CircuitBreaker
	Advisor ComplianceAdvisor
	Clock   utils.Clock
	Logger  *logger.Logger

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

// inflightCall is the latch concurrent duplicates wait on.
type inflightCall struct {
	done   chan struct{}
	result models.MOrderResult
	err    error
}

// -----------------------------------------------------------------------------

func NewEngine(cfg models.MExecutionConfig, broker interfaces.IBrokerageAdapter, store interfaces.IOrderStore,
	kill *KillSwitch, advisor ComplianceAdvisor, clock utils.Clock, log *logger.Logger) *Engine {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Engine{
		Config:   cfg,
		Broker:   broker,
		Store:    store,
		Kill:     kill,
		Breaker:  utils.NewCircuitBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownSec)*time.Second, clock),
		Advisor:  advisor,
		Clock:    clock,
		Logger:   log,
		inflight: make(map[string]*inflightCall),
	}
}

// -----------------------------------------------------------------------------
// Submission
// -----------------------------------------------------------------------------

// Submit resolves one order request. Business rejections come back as a
// rejected MOrderResult with a stable reason code, not as an error; the error
// return is reserved for infrastructure failures (storage).
func (e *Engine) Submit(ctx context.Context, req models.MOrderRequest) (models.MOrderResult, error) {
	if err := validateKey(req.IdempotencyKey); err != nil {
		return e.rejection(req, models.ReasonValidationFailed, err.Error()), nil
	}

	// Idempotency lookup happens before anything else: a hit returns the
	// stored result unchanged, bypassing validation, kill switch and breaker.
	if stored, ok, err := e.Store.GetResult(req.IdempotencyKey); err != nil {
		return models.MOrderResult{}, fmt.Errorf("idempotency lookup: %w", err)
	} else if ok {
		e.Logger.Debug("Idempotent replay for key %s", req.IdempotencyKey)
		return stored, nil
	}

	// Per-key latch: first caller runs, duplicates wait for its outcome.
	call, leader := e.acquire(req.IdempotencyKey)
	if !leader {
		select {
		case <-call.done:
			return call.result, call.err
		case <-ctx.Done():
			return models.MOrderResult{}, ctx.Err()
		}
	}

	result, err := e.resolve(ctx, req)

	call.result = result
	call.err = err
	e.release(req.IdempotencyKey, call)

	return result, err
}

// -----------------------------------------------------------------------------

// resolve runs the post-latch state machine for the leader call.
func (e *Engine) resolve(ctx context.Context, req models.MOrderRequest) (models.MOrderResult, error) {
	// Re-check under the latch: a duplicate may have persisted between our
	// lookup and latch acquisition.
	if stored, ok, err := e.Store.GetResult(req.IdempotencyKey); err != nil {
		return models.MOrderResult{}, fmt.Errorf("idempotency lookup: %w", err)
	} else if ok {
		return stored, nil
	}

	if reason := validateLegs(req.Legs); reason != "" {
		return e.persist(e.rejection(req, models.ReasonValidationFailed, reason))
	}

	if req.DryRun {
		return e.dryRun(req), nil
	}

	// Kill switch sits after the idempotency lookup (replays of resolved
	// requests are never blocked) but before any new brokerage call.
	if e.Kill.Engaged() {
		e.Logger.Warning("Order %s rejected: kill switch active", req.IdempotencyKey)
		return e.rejection(req, models.ReasonKillSwitchActive, "kill switch active"), nil
	}

	ack, err := e.submitWithRetry(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCircuitOpen):
			// Fast-fail, nothing was attempted: not persisted, the client may
			// retry the same key once the upstream recovers.
			return e.rejection(req, models.ReasonCircuitOpen, "upstream unavailable"), nil
		case errors.Is(err, models.ErrTransientUpstream):
			return e.rejection(req, models.ReasonTransientUpstream, "upstream did not respond; submission not confirmed"), nil
		default:
			return models.MOrderResult{}, err
		}
	}

	return e.persist(e.resultFromAck(req, ack))
}

// -----------------------------------------------------------------------------

// submitWithRetry wraps the brokerage call in the circuit breaker and retries
// transient failures with capped exponential backoff. Ambiguous outcomes
// (timeout after send) are reconciled against the brokerage before another
// attempt is allowed to re-submit.
func (e *Engine) submitWithRetry(ctx context.Context, req models.MOrderRequest) (models.MBrokerAck, error) {
	var lastErr error

	for attempt := 0; attempt <= e.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return models.MBrokerAck{}, models.ErrTransientUpstream
			case <-e.Clock.After(e.retryDelay(attempt)):
			}
		}

		if err := e.Breaker.Allow(); err != nil {
			// Open circuit is not a new brokerage failure.
			return models.MBrokerAck{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, time.Duration(e.Config.SubmitTimeoutSec)*time.Second)
		ack, err := e.Broker.Submit(callCtx, req.IdempotencyKey, req.Legs)
		cancel()

		if err == nil {
			e.Breaker.Success()
			return ack, nil
		}

		if !isTransient(err) {
			// Brokerage business-rule rejection surfaced as an error: terminal.
			e.Breaker.Success()
			return models.MBrokerAck{Accepted: false, Reason: err.Error()}, nil
		}

		e.Breaker.Failure()
		lastErr = err
		e.Logger.Warning("Brokerage call failed (attempt %d/%d) for %s: %v",
			attempt+1, e.Config.MaxRetries+1, req.IdempotencyKey, err)

		// The call may have reached the brokerage before dying. Never assume
		// either way: ask.
		if ack, known := e.reconcile(ctx, req.IdempotencyKey); known {
			e.Breaker.Success()
			return ack, nil
		}
	}

	e.Logger.Error("Brokerage submission exhausted retries for %s: %v", req.IdempotencyKey, lastErr)
	return models.MBrokerAck{}, models.ErrTransientUpstream
}

// -----------------------------------------------------------------------------

// reconcile asks the brokerage whether the key is already known, resolving
// the "maybe submitted" ambiguity after a transient failure.
func (e *Engine) reconcile(ctx context.Context, key string) (models.MBrokerAck, bool) {
	recCtx, cancel := context.WithTimeout(ctx, time.Duration(e.Config.SubmitTimeoutSec)*time.Second)
	defer cancel()

	ack, known, err := e.Broker.GetOrderStatus(recCtx, key)
	if err != nil {
		e.Logger.Warning("Reconciliation query failed for %s: %v", key, err)
		return models.MBrokerAck{}, false
	}
	if known {
		e.Logger.Info("Reconciliation resolved key %s: accepted=%v", key, ack.Accepted)
	}
	return ack, known
}

// -----------------------------------------------------------------------------
// Result construction
// -----------------------------------------------------------------------------

func (e *Engine) resultFromAck(req models.MOrderRequest, ack models.MBrokerAck) models.MOrderResult {
	status := models.OrderStatusAccepted
	reason := ""
	if !ack.Accepted {
		status = models.OrderStatusRejected
		reason = models.ReasonTerminalRejection
	}

	legs := ack.Legs
	if len(legs) == 0 && !ack.Accepted {
		// Broker gave a blanket rejection: echo the request legs.
		legs = make([]models.MLegResult, len(req.Legs))
		for i, l := range req.Legs {
			legs[i] = models.MLegResult{Symbol: l.Symbol, Accepted: false, Reason: ack.Reason}
		}
	}

	result := models.MOrderResult{
		IdempotencyKey: req.IdempotencyKey,
		Status:         status,
		ReasonCode:     reason,
		Legs:           legs,
		CreatedAt:      e.Clock.Now().Unix(),
	}

	if e.Advisor != nil {
		advisory := e.Advisor.Status()
		result.Advisory = &advisory
	}
	return result
}

// -----------------------------------------------------------------------------

func (e *Engine) dryRun(req models.MOrderRequest) models.MOrderResult {
	legs := make([]models.MLegResult, len(req.Legs))
	for i, l := range req.Legs {
		legs[i] = models.MLegResult{Symbol: l.Symbol, Accepted: true}
	}

	result := models.MOrderResult{
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.OrderStatusDryRun,
		Legs:           legs,
		CreatedAt:      e.Clock.Now().Unix(),
	}
	if e.Advisor != nil {
		advisory := e.Advisor.Status()
		result.Advisory = &advisory
	}
	return result
}

// -----------------------------------------------------------------------------

func (e *Engine) rejection(req models.MOrderRequest, reason, detail string) models.MOrderResult {
	legs := make([]models.MLegResult, len(req.Legs))
	for i, l := range req.Legs {
		legs[i] = models.MLegResult{Symbol: l.Symbol, Accepted: false, Reason: detail}
	}
	return models.MOrderResult{
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.OrderStatusRejected,
		ReasonCode:     reason,
		Legs:           legs,
		CreatedAt:      e.Clock.Now().Unix(),
	}
}

// -----------------------------------------------------------------------------

// persist writes the result under its key before it is returned, so a crash
// between brokerage acceptance and response delivery cannot cause a duplicate
// resubmission on client retry.
func (e *Engine) persist(result models.MOrderResult) (models.MOrderResult, error) {
	ttl := time.Duration(e.Config.ResultTTLHours) * time.Hour
	if err := e.Store.SaveResult(result, ttl); err != nil {
		return models.MOrderResult{}, fmt.Errorf("persist result: %w", err)
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// Latch bookkeeping
// -----------------------------------------------------------------------------

func (e *Engine) acquire(key string) (*inflightCall, bool) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	if call, ok := e.inflight[key]; ok {
		return call, false
	}
	call := &inflightCall{done: make(chan struct{})}
	e.inflight[key] = call
	return call, true
}

// -----------------------------------------------------------------------------

func (e *Engine) release(key string, call *inflightCall) {
	e.inflightMu.Lock()
	delete(e.inflight, key)
	e.inflightMu.Unlock()
	close(call.done)
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

func validateKey(key string) error {
	if len(key) < 8 || len(key) > 64 {
		return fmt.Errorf("idempotency key must be 8-64 characters, got %d", len(key))
	}
	return nil
}

// -----------------------------------------------------------------------------

func validateLegs(legs []models.MOrderLeg) string {
	if len(legs) == 0 {
		return "order must have at least one leg"
	}
	for i, l := range legs {
		if l.Symbol == "" {
			return fmt.Sprintf("leg %d: symbol is required", i)
		}
		if l.Quantity <= 0 {
			return fmt.Sprintf("leg %d: quantity must be positive", i)
		}
		switch l.Side {
		case models.SideBuyToOpen, models.SideSellToOpen, models.SideBuyToClose, models.SideSellToClose:
		default:
			return fmt.Sprintf("leg %d: unknown side %q", i, l.Side)
		}
		switch l.OrderType {
		case models.OrderTypeMarket:
		case models.OrderTypeLimit:
			if l.LimitPrice <= 0 {
				return fmt.Sprintf("leg %d: limit orders require a positive limit price", i)
			}
		default:
			return fmt.Sprintf("leg %d: unknown order type %q", i, l.OrderType)
		}
	}
	return ""
}

// -----------------------------------------------------------------------------

func isTransient(err error) bool {
	return errors.Is(err, models.ErrTransientUpstream) ||
		errors.Is(err, context.DeadlineExceeded)
}

// -----------------------------------------------------------------------------

// retryDelay computes min(base * 2^(attempt-1), max).
func (e *Engine) retryDelay(attempt int) time.Duration {
	delay := time.Duration(e.Config.RetryBaseDelayMs) * time.Millisecond
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	max := time.Duration(e.Config.RetryMaxDelayMs) * time.Millisecond
	if delay > max {
		delay = max
	}
	return delay
}
