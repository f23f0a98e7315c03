package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// SimFeed is an in-process market-data adapter producing a random-walk quote
// stream. It exists so the binary runs end to end without an upstream vendor;
// production deployments supply a real adapter behind the same interface.
// -----------------------------------------------------------------------------

type SimFeed struct {
	Config models.MStreamConfig
	Logger *logger.Logger
	Clock  utils.Clock

	mu     sync.Mutex
	prices map[string]float64
	cancel context.CancelFunc
}

// -----------------------------------------------------------------------------

func NewSimFeed(cfg models.MStreamConfig, clock utils.Clock, log *logger.Logger) *SimFeed {
	if clock == nil {
		clock = utils.SystemClock{}
	}

	prices := make(map[string]float64)
	for _, sym := range cfg.Symbols {
		prices[sym] = 100.0
	}

	return &SimFeed{
		Config: cfg,
		Logger: log,
		Clock:  clock,
		prices: prices,
	}
}

// -----------------------------------------------------------------------------

func (s *SimFeed) Authenticate(ctx context.Context) (models.MStreamSession, error) {
	if err := ctx.Err(); err != nil {
		return models.MStreamSession{}, models.ErrTransientUpstream
	}

	now := s.Clock.Now()
	return models.MStreamSession{
		Token:     uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Duration(s.Config.SessionTTLSec) * time.Second).Unix(),
		State:     models.SessionConnecting,
	}, nil
}

// -----------------------------------------------------------------------------

func (s *SimFeed) Renew(ctx context.Context, session models.MStreamSession) (models.MStreamSession, error) {
	if err := ctx.Err(); err != nil {
		return models.MStreamSession{}, models.ErrTransientUpstream
	}
	if session.Token == "" {
		return models.MStreamSession{}, models.ErrAuthFailed
	}

	now := s.Clock.Now()
	session.Token = uuid.NewString()
	session.IssuedAt = now.Unix()
	session.ExpiresAt = now.Add(time.Duration(s.Config.SessionTTLSec) * time.Second).Unix()
	return session, nil
}

// -----------------------------------------------------------------------------

func (s *SimFeed) Open(ctx context.Context, session models.MStreamSession) (<-chan models.MRawFrame, <-chan error, error) {
	if session.Token == "" {
		return nil, nil, models.ErrAuthFailed
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	frames := make(chan models.MRawFrame, 64)
	errs := make(chan error, 1)

	interval := time.Duration(s.Config.TickIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(frames)
		defer close(errs)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				for _, frame := range s.tick() {
					select {
					case frames <- frame:
					case <-runCtx.Done():
						return
					}
				}
			}
		}
	}()

	return frames, errs, nil
}

// -----------------------------------------------------------------------------

func (s *SimFeed) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// -----------------------------------------------------------------------------

// tick advances every symbol's random walk one step.
func (s *SimFeed) tick() []models.MRawFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock.Now().Unix()
	frames := make([]models.MRawFrame, 0, len(s.prices))

	for sym, price := range s.prices {
		price *= 1 + (rand.Float64()-0.5)*0.002
		s.prices[sym] = price

		payload, _ := json.Marshal(map[string]interface{}{
			"price": fmt.Sprintf("%.4f", price),
		})
		frames = append(frames, models.MRawFrame{
			Symbol:    sym,
			Kind:      models.EventKindQuote,
			Payload:   payload,
			Timestamp: now,
		})
	}
	return frames
}
