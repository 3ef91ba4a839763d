package billing

// ErrorResponse is the structured error body returned by the API
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries an informational result with no document body
type MessageResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// WalletResponse is the external wallet representation. Balance is a
// canonical decimal string.
type WalletResponse struct {
	UserID         string  `json:"user_id"`
	Balance        string  `json:"balance"`
	Currency       string  `json:"currency"`
	AutoRecharge   bool    `json:"auto_recharge"`
	AllowNegative  bool    `json:"allow_negative"`
	LastDeductedAt *string `json:"last_deducted_at"`
	ArchivalID     string  `json:"archival_id"`
}

// TransactionResponse is the result of a credit or debit
type TransactionResponse struct {
	TxID         string `json:"tx_id"`
	Amount       string `json:"amount"`
	BalanceAfter string `json:"balance_after"`
	Type         string `json:"type"`
	Reason       string `json:"reason"`
	PriceVersion string `json:"price_version,omitempty"`
}

// PriceVersionResponse reports the version tag assigned to a schedule write
type PriceVersionResponse struct {
	PriceVersion string `json:"price_version"`
}
