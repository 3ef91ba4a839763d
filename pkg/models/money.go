package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MoneyScale is the minimum number of fractional digits carried by monetary
// amounts before rendering.
const MoneyScale = 6

// FormatAmount renders a monetary amount as a canonical decimal string:
// rounded to MoneyScale places, trailing zeros trimmed, and negative zero
// normalized to "0".
func FormatAmount(v decimal.Decimal) string {
	rounded := v.Round(MoneyScale)
	if rounded.IsZero() {
		return "0"
	}
	return rounded.String()
}

// ParseAmount parses a decimal amount string.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}
