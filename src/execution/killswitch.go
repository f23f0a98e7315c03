package execution

import (
	"sync"
	"sync/atomic"

	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"
)

// -----------------------------------------------------------------------------
// KillSwitch is the account-wide emergency stop. Reads are lock-free since
// every non-dry-run submission checks it; mutation goes through a single
// audited path recording actor and timestamp.
// -----------------------------------------------------------------------------

type KillSwitch struct {
	engaged atomic.Bool
	clock   utils.Clock
	logger  *logger.Logger

	mu        sync.Mutex
	actor     string
	changedAt int64
}

// -----------------------------------------------------------------------------

func NewKillSwitch(clock utils.Clock, log *logger.Logger) *KillSwitch {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &KillSwitch{clock: clock, logger: log}
}

// -----------------------------------------------------------------------------

// Engaged is the hot-path read.
func (k *KillSwitch) Engaged() bool {
	return k.engaged.Load()
}

// -----------------------------------------------------------------------------

// Set flips the switch and records who did it.
func (k *KillSwitch) Set(engaged bool, actor string) {
	k.mu.Lock()
	k.engaged.Store(engaged)
	k.actor = actor
	k.changedAt = k.clock.Now().Unix()
	k.mu.Unlock()

	k.logger.Warning("Kill switch set to %v by %s", engaged, actor)
}

// -----------------------------------------------------------------------------

// State returns the audited state snapshot.
func (k *KillSwitch) State() models.MKillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return models.MKillSwitchState{
		Engaged:   k.engaged.Load(),
		Actor:     k.actor,
		ChangedAt: k.changedAt,
	}
}
