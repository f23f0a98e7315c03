package interfaces

import (
	"context"

	"trading-core/src/models"
)

// -----------------------------------------------------------------------------
// IBrokerageAdapter is the contract a brokerage integration must satisfy.
// Treated as an opaque, possibly-slow, possibly-failing remote call.
// -----------------------------------------------------------------------------

type IBrokerageAdapter interface {

	// Submit sends the order legs to the brokerage. The idempotency key is
	// forwarded so the brokerage-side dedup (if any) can engage too.
	Submit(ctx context.Context, key string, legs []models.MOrderLeg) (models.MBrokerAck, error)

	// -----------------------------------------------------------------------------

	// GetOrderStatus answers reconciliation queries: after an ambiguous
	// failure ("maybe submitted"), the engine asks the brokerage whether the
	// key is known before producing a final result.
	GetOrderStatus(ctx context.Context, key string) (models.MBrokerAck, bool, error)

	// -----------------------------------------------------------------------------

	// GetFills returns executed fills at or after the given unix timestamp.
	GetFills(ctx context.Context, since int64) ([]models.MFill, error)
}
