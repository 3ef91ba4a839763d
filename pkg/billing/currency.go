package billing

import "github.com/bhaijames252-sketch/billbillbill/pkg/config"

const (
	defaultCurrencyEnv      = "BILLING_CURRENCY"
	defaultCurrencyFallback = "USD"
)

// DefaultCurrency returns the currency used when a wallet or schedule is
// created without one.
func DefaultCurrency() string {
	return config.GetEnv(defaultCurrencyEnv, defaultCurrencyFallback)
}
