package models

import "time"

// Bill statuses
const (
	BillStatusPending = "pending"
	BillStatusSuccess = "success"
	BillStatusFailed  = "failed"
)

// Charge is a single line item on a bill. Amount is a canonical decimal
// string (see FormatAmount).
type Charge struct {
	Type       string `bson:"type" json:"type"`
	ResourceID string `bson:"resource_id" json:"resource_id"`
	Amount     string `bson:"amount" json:"amount"`
}

// Bill is one billing cycle's result. A bill that reached
// status=success/paid=true is immutable; pending and failed bills may be
// retried to success.
type Bill struct {
	BillID       string    `bson:"bill_id" json:"bill_id"`
	UserID       string    `bson:"user_id" json:"user_id"`
	PeriodStart  time.Time `bson:"period_start" json:"period_start"`
	PeriodEnd    time.Time `bson:"period_end" json:"period_end"`
	Status       string    `bson:"status" json:"status"`
	Charges      []Charge  `bson:"charges" json:"charges"`
	Total        string    `bson:"total" json:"total"`
	Paid         bool      `bson:"paid" json:"paid"`
	PriceVersion string    `bson:"price_version" json:"price_version"`
	GeneratedAt  time.Time `bson:"generated_at" json:"generated_at"`
}
