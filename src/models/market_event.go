package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Market Event Types
// -----------------------------------------------------------------------------

const (
	EventKindQuote     = "quote"
	EventKindTrade     = "trade"
	EventKindHeartbeat = "heartbeat"
	EventKindState     = "state"
	EventKindPosition  = "position"
	EventKindResync    = "resync_required"
)

// MMarketEvent is an immutable normalized feed event.
// Sequence ids are assigned by the fan-out hub and increase monotonically.
type MMarketEvent struct {
	Sequence  uint64          `json:"sequence"`
	Symbol    string          `json:"symbol"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Stream Session
// -----------------------------------------------------------------------------

const (
	SessionConnecting = "connecting"
	SessionLive       = "live"
	SessionDegraded   = "degraded"
	SessionClosed     = "closed"
)

// MStreamSession represents one authenticated connection to the upstream feed.
// Owned exclusively by the stream client.
type MStreamSession struct {
	Token        string `json:"token"`
	IssuedAt     int64  `json:"issued_at"`
	ExpiresAt    int64  `json:"expires_at"`
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// -----------------------------------------------------------------------------

// MRawFrame is an unparsed upstream frame before normalization.
type MRawFrame struct {
	Symbol    string          `json:"symbol"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}
