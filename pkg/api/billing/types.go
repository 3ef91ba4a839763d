package billing

import "time"

// ComputeCreateRequest registers a new compute instance
type ComputeCreateRequest struct {
	ResourceID string `json:"resource_id" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
	Flavor     string `json:"flavor"`
}

// ComputeUpdateRequest patches compute state and/or flavor
type ComputeUpdateRequest struct {
	State  *string `json:"state,omitempty"`
	Flavor *string `json:"flavor,omitempty"`
}

// DiskCreateRequest registers a new block volume
type DiskCreateRequest struct {
	ResourceID string  `json:"resource_id" binding:"required"`
	UserID     string  `json:"user_id" binding:"required"`
	SizeGB     int     `json:"size_gb" binding:"required"`
	AttachedTo *string `json:"attached_to,omitempty"`
}

// DiskUpdateRequest patches disk state, size, or attachment
type DiskUpdateRequest struct {
	State      *string `json:"state,omitempty"`
	SizeGB     *int    `json:"size_gb,omitempty"`
	AttachedTo *string `json:"attached_to,omitempty"`
}

// FloatingIPCreateRequest registers a newly allocated floating IP
type FloatingIPCreateRequest struct {
	ResourceID string  `json:"resource_id" binding:"required"`
	UserID     string  `json:"user_id" binding:"required"`
	IPAddress  string  `json:"ip_address" binding:"required"`
	PortID     *string `json:"port_id,omitempty"`
	AttachedTo *string `json:"attached_to,omitempty"`
}

// WalletCreateRequest opens a wallet for a user
type WalletCreateRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
	AutoRecharge  bool   `json:"auto_recharge"`
	AllowNegative bool   `json:"allow_negative"`
}

// WalletAmountRequest credits or debits a wallet
type WalletAmountRequest struct {
	Amount       string `json:"amount" binding:"required"`
	Reason       string `json:"reason"`
	PriceVersion string `json:"price_version,omitempty"`
}

// BillingComputeRequest triggers a billing cycle for a user
type BillingComputeRequest struct {
	UserID    string     `json:"user_id" binding:"required"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// PricingCreateRequest publishes a full price schedule per currency
type PricingCreateRequest struct {
	Pricing []PricingData `json:"pricing" binding:"required"`
}

// PricingData is one currency's complete schedule
type PricingData struct {
	Currency   string                        `json:"currency" binding:"required"`
	Compute    map[string]map[string]float64 `json:"compute" binding:"required"`
	Disk       map[string]float64            `json:"disk" binding:"required"`
	FloatingIP map[string]float64            `json:"floating_ip" binding:"required"`
}

// PricingUpdateRequest partially updates existing schedules
type PricingUpdateRequest struct {
	Pricing []PricingUpdateData `json:"pricing" binding:"required"`
}

// PricingUpdateData is a partial schedule: absent sections keep their
// current values; compute entries merge per flavor.
type PricingUpdateData struct {
	Currency   string                        `json:"currency" binding:"required"`
	Compute    map[string]map[string]float64 `json:"compute,omitempty"`
	Disk       map[string]float64            `json:"disk,omitempty"`
	FloatingIP map[string]float64            `json:"floating_ip,omitempty"`
}
