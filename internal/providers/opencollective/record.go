package opencollective

import (
	"strconv"

	"github.com/shopspring/decimal"

	"collectivepay/internal/common/money"
)

// FrequencyOneTime is the only frequency accepted for payment.
const FrequencyOneTime = "ONETIME"

// Amount is a ledger amount in major units.
type Amount struct {
	Value    *decimal.Decimal `json:"value"`
	Currency string           `json:"currency"`
}

// Account identifies a ledger account.
type Account struct {
	Slug string `json:"slug"`
	Name string `json:"name,omitempty"`
}

// OrderRecord is a contribution as returned by either lookup protocol.
type OrderRecord struct {
	ID          string   `json:"id,omitempty"`
	LegacyID    *int64   `json:"legacyId,omitempty"`
	Status      string   `json:"status"`
	Frequency   string   `json:"frequency,omitempty"`
	TotalAmount *Amount  `json:"totalAmount,omitempty"`
	Amount      *Amount  `json:"amount,omitempty"`
	ToAccount   *Account `json:"toAccount,omitempty"`
	FromAccount *Account `json:"fromAccount,omitempty"`
}

// Money returns the total amount, falling back to the partial amount.
func (r *OrderRecord) Money() (money.Money, bool) {
	for _, a := range []*Amount{r.TotalAmount, r.Amount} {
		if a != nil && a.Value != nil && a.Currency != "" {
			return money.New(*a.Value, money.Currency(a.Currency)), true
		}
	}
	return money.Money{}, false
}

// Destination returns the slug of the receiving account.
func (r *OrderRecord) Destination() string {
	if r.ToAccount == nil {
		return ""
	}
	return r.ToAccount.Slug
}

// Reference returns the identifier recorded for the order.
func (r *OrderRecord) Reference() string {
	if r.ID != "" {
		return r.ID
	}
	if r.LegacyID != nil {
		return strconv.FormatInt(*r.LegacyID, 10)
	}
	return ""
}
