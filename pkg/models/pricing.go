package models

import "github.com/shopspring/decimal"

// FlavorOthers is the fallback rate key consulted when a compute flavor has
// no explicit price.
const FlavorOthers = "others"

// ComputeRate is the hourly rate for one compute flavor.
type ComputeRate struct {
	PerHour decimal.Decimal `json:"per_hour" bson:"per_hour"`
}

// DiskRate is the per-gigabyte hourly rate for block storage.
type DiskRate struct {
	PerGBHour decimal.Decimal `json:"per_gb_hour" bson:"per_gb_hour"`
}

// FloatingIPRate is the flat hourly rate for a held floating IP.
type FloatingIPRate struct {
	PerHour decimal.Decimal `json:"per_hour" bson:"per_hour"`
}

// PriceSchedule is the current price schedule for one currency.
type PriceSchedule struct {
	Currency     string                 `json:"currency" bson:"currency"`
	Compute      map[string]ComputeRate `json:"compute" bson:"compute"`
	Disk         DiskRate               `json:"disk" bson:"disk"`
	FloatingIP   FloatingIPRate         `json:"floating_ip" bson:"floating_ip"`
	PriceVersion string                 `json:"price_version" bson:"price_version"`
}

// ComputeRateFor resolves the hourly rate for a flavor, falling back to the
// "others" entry and then to zero.
func (p *PriceSchedule) ComputeRateFor(flavor string) decimal.Decimal {
	if rate, ok := p.Compute[flavor]; ok {
		return rate.PerHour
	}
	if rate, ok := p.Compute[FlavorOthers]; ok {
		return rate.PerHour
	}
	return decimal.Zero
}

// PriceVersionEntry is one append-only entry in the price history document.
type PriceVersionEntry struct {
	PriceVersion string          `json:"price_version" bson:"price_version"`
	Pricing      []PriceSchedule `json:"pricing" bson:"pricing"`
}

// PriceHistory is the single history document: the latest version tag plus
// every schedule ever published.
type PriceHistory struct {
	Latest  string              `json:"latest" bson:"latest"`
	History []PriceVersionEntry `json:"price_history" bson:"price_history"`
}
