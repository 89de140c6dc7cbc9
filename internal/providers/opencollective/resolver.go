package opencollective

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"collectivepay/internal/payment"
)

// ReturnParameters are the query values the ledger appends when it sends the
// buyer back. They come from the browser and are never trusted on their own.
type ReturnParameters struct {
	OrderID       string `validate:"omitempty,max=64,printascii"`
	OrderIDV2     string `validate:"omitempty,max=128,printascii"`
	Status        string `validate:"omitempty,max=64,printascii"`
	TransactionID string `validate:"omitempty,max=128,printascii"`
}

// ParseReturnParameters extracts the return parameters from a query string.
func ParseReturnParameters(q url.Values) ReturnParameters {
	return ReturnParameters{
		OrderID:       strings.TrimSpace(q.Get("orderId")),
		OrderIDV2:     strings.TrimSpace(q.Get("orderIdV2")),
		Status:        strings.TrimSpace(q.Get("status")),
		TransactionID: strings.TrimSpace(q.Get("transactionid")),
	}
}

// HasReference reports whether any identifying parameter is present.
func (p ReturnParameters) HasReference() bool {
	return p.OrderID != "" || p.OrderIDV2 != "" || p.TransactionID != ""
}

// Raw returns the parameters under their query names for the audit record.
func (p ReturnParameters) Raw() map[string]string {
	raw := make(map[string]string, 4)
	for k, v := range map[string]string{
		"orderId":       p.OrderID,
		"orderIdV2":     p.OrderIDV2,
		"status":        p.Status,
		"transactionid": p.TransactionID,
	} {
		if v != "" {
			raw[k] = v
		}
	}
	return raw
}

// ReferenceKind selects the lookup strategy.
type ReferenceKind int

const (
	RefOrder ReferenceKind = iota + 1
	RefOrderLegacy
	RefTransaction
)

func (k ReferenceKind) String() string {
	switch k {
	case RefOrder:
		return "order"
	case RefOrderLegacy:
		return "order_legacy"
	case RefTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Reference is the identifier a lookup is keyed by.
type Reference struct {
	Kind     ReferenceKind
	ID       string
	LegacyID int64
}

func (r Reference) String() string {
	if r.Kind == RefOrderLegacy {
		return fmt.Sprintf("%s:%d", r.Kind, r.LegacyID)
	}
	return r.Kind.String() + ":" + r.ID
}

// OrderID returns the order identifier the reference carries, if any.
func (r Reference) OrderID() string {
	switch r.Kind {
	case RefOrder:
		return r.ID
	case RefOrderLegacy:
		return strconv.FormatInt(r.LegacyID, 10)
	default:
		return ""
	}
}

// Resolve picks the lookup strategy for the return parameters. The structured
// order id wins, then the legacy order id, then the transaction id. A legacy
// id that is not an integer is looked up as a structured id.
func Resolve(p ReturnParameters) (Reference, error) {
	switch {
	case p.OrderIDV2 != "":
		return Reference{Kind: RefOrder, ID: p.OrderIDV2}, nil
	case p.OrderID != "":
		if n, err := strconv.ParseInt(p.OrderID, 10, 64); err == nil {
			return Reference{Kind: RefOrderLegacy, LegacyID: n}, nil
		}
		return Reference{Kind: RefOrder, ID: p.OrderID}, nil
	case p.TransactionID != "":
		return Reference{Kind: RefTransaction, ID: p.TransactionID}, nil
	default:
		return Reference{}, payment.ErrMissingReference
	}
}
