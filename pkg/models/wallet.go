package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the relational wallet row. Balance carries at least MoneyScale
// fractional digits; ArchivalID links to the document-side transaction
// archive.
type Wallet struct {
	ID             string          `json:"-" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Balance        decimal.Decimal `json:"-" db:"balance"`
	Currency       string          `json:"currency" db:"currency"`
	AutoRecharge   bool            `json:"auto_recharge" db:"auto_recharge"`
	AllowNegative  bool            `json:"allow_negative" db:"allow_negative"`
	LastDeductedAt *time.Time      `json:"last_deducted_at" db:"last_deducted_at"`
	ArchivalID     string          `json:"archival_id" db:"archival_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction types
const (
	TxCredit = "credit"
	TxDebit  = "debit"
)

// Transaction is one archived wallet mutation. Amount is signed: credits are
// positive, debits negative. BalanceAfter chains: each entry's balance equals
// the previous entry's balance plus this amount.
type Transaction struct {
	TxID         string    `bson:"tx_id" json:"tx_id"`
	Time         time.Time `bson:"time" json:"time"`
	Amount       string    `bson:"amount" json:"amount"`
	BalanceAfter string    `bson:"balance_after" json:"balance_after"`
	Type         string    `bson:"type" json:"type"`
	Reason       string    `bson:"reason" json:"reason"`
	PriceVersion string    `bson:"price_version,omitempty" json:"price_version,omitempty"`
}

// TransactionArchive is the single document holding a wallet's ordered
// transaction history, keyed by the wallet's archival id.
type TransactionArchive struct {
	ID           string        `bson:"_id" json:"archival_id"`
	UserID       string        `bson:"user_id" json:"user_id"`
	Transactions []Transaction `bson:"transactions" json:"transactions"`
}
