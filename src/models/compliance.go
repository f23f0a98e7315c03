package models

// -----------------------------------------------------------------------------
// Day-Trade Compliance
// -----------------------------------------------------------------------------

// MDayTradeRecord is a matched open/close pair for the same symbol on the
// same calendar day within the rolling window.
type MDayTradeRecord struct {
	Symbol    string `json:"symbol"`
	Day       string `json:"day"` // YYYY-MM-DD in the calendar timezone
	OpenFill  string `json:"open_fill"`
	CloseFill string `json:"close_fill"`
}

// MComplianceStatus answers "how close is this account to being flagged".
type MComplianceStatus struct {
	DayTradeCount   int     `json:"day_trade_count"`
	TotalTrades     int     `json:"total_trades"`
	Flagged         bool    `json:"flagged"`
	TradesRemaining int     `json:"trades_remaining"`
	WindowStart     string  `json:"window_start"` // YYYY-MM-DD
	WindowEnd       string  `json:"window_end"`   // YYYY-MM-DD
	Exempt          bool    `json:"exempt"`       // cash accounts bypass flagging
	UnsettledFunds  float64 `json:"unsettled_funds,omitempty"`
}
