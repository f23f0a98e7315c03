package interfaces

import (
	"context"

	"trading-core/src/models"
)

// -----------------------------------------------------------------------------
// IMarketDataAdapter is a push source of raw upstream frames. The stream
// client owns the connection lifecycle and normalizes frames into
// models.MMarketEvent.
// -----------------------------------------------------------------------------

type IMarketDataAdapter interface {

	// Authenticate obtains a fresh session token.
	Authenticate(ctx context.Context) (models.MStreamSession, error)

	// -----------------------------------------------------------------------------

	// Renew refreshes the session token without interrupting delivery.
	// A renewal failure counts as a connection failure upstream.
	Renew(ctx context.Context, session models.MStreamSession) (models.MStreamSession, error)

	// -----------------------------------------------------------------------------

	// Open starts frame delivery for an authenticated session. Frames arrive
	// on the first channel; a terminal connection error arrives on the second
	// and both channels are closed afterwards.
	Open(ctx context.Context, session models.MStreamSession) (<-chan models.MRawFrame, <-chan error, error)

	// -----------------------------------------------------------------------------

	// Close tears down the current connection, if any.
	Close() error
}

// -----------------------------------------------------------------------------
// IEventPublisher is the hub-facing half of the fan-out: the stream client
// pushes normalized events here and never blocks on slow subscribers.
// -----------------------------------------------------------------------------

type IEventPublisher interface {
	Publish(symbol, kind string, payload []byte, timestamp int64)
}
