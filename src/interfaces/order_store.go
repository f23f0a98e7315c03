package interfaces

import (
	"time"

	"trading-core/src/models"
)

// -----------------------------------------------------------------------------
// IOrderStore defines the contract for the execution core's durable state:
// the idempotency-key -> result table (TTL-evicted) and the append-only
// fill log consumed by the compliance tracker.
// -----------------------------------------------------------------------------

type IOrderStore interface {

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveResult persists a finished result under its idempotency key.
	// Must be written before the result is returned to the caller.
	SaveResult(result models.MOrderResult, ttl time.Duration) error

	// -----------------------------------------------------------------------------

	// GetResult returns the stored result for a key, if present and unexpired.
	GetResult(key string) (models.MOrderResult, bool, error)

	// -----------------------------------------------------------------------------

	// AppendFill appends an executed fill to the fill log.
	AppendFill(fill models.MFill) error

	// -----------------------------------------------------------------------------

	// FillsSince returns fills with timestamp >= since, oldest first.
	FillsSince(since int64) ([]models.MFill, error)

	// -----------------------------------------------------------------------------

	// PurgeExpired removes results whose TTL has elapsed.
	PurgeExpired(now time.Time) (int, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
