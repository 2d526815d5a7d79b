package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxScale is the number of fractional digits accepted on prices and
// quantities.
const MaxScale = 8

// CheckAmount validates that d is strictly positive and carries at most
// MaxScale fractional digits. field names the value in the error message.
func CheckAmount(d decimal.Decimal, field string, sentinel error) error {
	if !d.IsPositive() {
		return Invalid(sentinel, fmt.Sprintf("%s must be greater than 0", field))
	}
	if !d.Equal(d.Truncate(MaxScale)) {
		return Invalid(sentinel, fmt.Sprintf("%s must have at most %d decimal places", field, MaxScale))
	}
	return nil
}
