package models

// -----------------------------------------------------------------------------
// Order Sides / Types
// -----------------------------------------------------------------------------

const (
	SideBuyToOpen   = "buy_to_open"
	SideSellToOpen  = "sell_to_open"
	SideBuyToClose  = "buy_to_close"
	SideSellToClose = "sell_to_close"
)

const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// -----------------------------------------------------------------------------
// Order Request / Result
// -----------------------------------------------------------------------------

// MOrderLeg is one instrument leg of an order request.
type MOrderLeg struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	OrderType  string  `json:"order_type"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

// MOrderRequest is the inbound order submission.
// IdempotencyKey is unique per logical submission; replays with the same key
// return the original result and never re-submit.
type MOrderRequest struct {
	IdempotencyKey string      `json:"idempotency_key"`
	Legs           []MOrderLeg `json:"legs"`
	DryRun         bool        `json:"dry_run"`
}

// MLegResult is the per-leg outcome of a submission.
type MLegResult struct {
	Symbol        string `json:"symbol"`
	Accepted      bool   `json:"accepted"`
	BrokerOrderID string `json:"broker_order_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// MOrderResult is persisted keyed by idempotency key with a bounded TTL.
type MOrderResult struct {
	IdempotencyKey string             `json:"idempotency_key"`
	Status         string             `json:"status"` // "accepted", "rejected" or "dry_run"
	ReasonCode     string             `json:"reason_code,omitempty"`
	Legs           []MLegResult       `json:"legs"`
	Advisory       *MComplianceStatus `json:"compliance_advisory,omitempty"`
	CreatedAt      int64              `json:"created_at"`
}

const (
	OrderStatusAccepted = "accepted"
	OrderStatusRejected = "rejected"
	OrderStatusDryRun   = "dry_run"
)

// -----------------------------------------------------------------------------
// Brokerage Acknowledgment / Fills
// -----------------------------------------------------------------------------

// MBrokerAck is the brokerage adapter's answer to a submission.
type MBrokerAck struct {
	Accepted bool         `json:"accepted"`
	Legs     []MLegResult `json:"legs"`
	Reason   string       `json:"reason,omitempty"`
}

// MFill is an executed (filled) order leg appended to the fill log
// and consumed by the compliance tracker.
type MFill struct {
	FillID         string  `json:"fill_id"`
	IdempotencyKey string  `json:"idempotency_key"`
	BrokerOrderID  string  `json:"broker_order_id"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Quantity       float64 `json:"quantity"`
	Price          float64 `json:"price"`
	Timestamp      int64   `json:"timestamp"`
	Atomic         bool    `json:"atomic"` // true when the leg closed as part of a single atomic order
}

// IsOpening reports whether the fill opens a position.
func (f MFill) IsOpening() bool {
	return f.Side == SideBuyToOpen || f.Side == SideSellToOpen
}

// IsClosing reports whether the fill closes a position.
func (f MFill) IsClosing() bool {
	return f.Side == SideBuyToClose || f.Side == SideSellToClose
}

// -----------------------------------------------------------------------------
// Kill Switch
// -----------------------------------------------------------------------------

// MKillSwitchState is the audited state of the account-wide kill switch.
type MKillSwitchState struct {
	Engaged   bool   `json:"engaged"`
	Actor     string `json:"actor"`
	ChangedAt int64  `json:"changed_at"`
}
