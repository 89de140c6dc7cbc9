package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents an ISO 4217 currency code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

// CurrencyInfo contains metadata about a currency
type CurrencyInfo struct {
	Code        Currency
	MinorUnits  int32 // Number of decimal places
	Symbol      string
	SymbolFirst bool
}

var currencies = map[Currency]CurrencyInfo{
	USD: {Code: USD, MinorUnits: 2, Symbol: "$", SymbolFirst: true},
	EUR: {Code: EUR, MinorUnits: 2, Symbol: "€", SymbolFirst: true},
	GBP: {Code: GBP, MinorUnits: 2, Symbol: "£", SymbolFirst: true},
	JPY: {Code: JPY, MinorUnits: 0, Symbol: "¥", SymbolFirst: true},
}

// GetCurrencyInfo returns info about a currency
func GetCurrencyInfo(c Currency) (CurrencyInfo, bool) {
	info, ok := currencies[c]
	return info, ok
}

// Legacy ledger payloads always carry cents, whatever the currency.
const legacyMinorUnits = 2

// ErrInvalidAmount is returned when an amount string cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// Money represents a monetary amount in major units (dollars, euros, etc.)
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// New creates a new Money value from a decimal amount
func New(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Parse creates Money from a decimal string such as "10.00"
func Parse(value string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustParse is like Parse but panics on malformed input
func MustParse(value string, currency Currency) Money {
	m, err := Parse(value, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromLegacyMinor converts a legacy minor-unit amount (cents) to major units,
// rounded to two decimal places.
func FromLegacyMinor(amountMinor int64, currency Currency) Money {
	return Money{
		Amount:   decimal.New(amountMinor, -legacyMinorUnits).Round(legacyMinorUnits),
		Currency: currency,
	}
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// Equal checks exact numeric equality of amount and currency code
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Fixed renders the amount with exactly two decimals ("10.00")
func (m Money) Fixed() string {
	return m.Amount.StringFixed(legacyMinorUnits)
}

// Major renders the amount in major units with trailing zeros trimmed ("5.00" -> "5")
func (m Money) Major() string {
	return m.Amount.String()
}

// String returns a human-readable representation
func (m Money) String() string {
	info, ok := GetCurrencyInfo(m.Currency)
	if !ok {
		return fmt.Sprintf("%s %s", m.Fixed(), m.Currency)
	}
	amount := m.Amount.StringFixed(info.MinorUnits)
	if info.SymbolFirst {
		return info.Symbol + amount
	}
	return amount + info.Symbol
}
