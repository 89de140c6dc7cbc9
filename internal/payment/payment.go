// Package payment tracks locally recorded payments that wait for an external
// ledger to confirm the contribution settling them.
package payment

import (
	"errors"
	"fmt"
	"time"

	"collectivepay/internal/common/money"
)

// State is the lifecycle state of a payment.
type State string

const (
	StateCreated   State = "created"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Payment is a local payment awaiting external confirmation.
type Payment struct {
	ID        string      `json:"id"`
	OrderCode string      `json:"order_code"`
	EventCode string      `json:"event_code,omitempty"`
	Amount    money.Money `json:"amount"`
	QuotaID   string      `json:"quota_id,omitempty"`

	// ExternalRef is the ledger order reference recorded by the last reconciliation.
	ExternalRef string `json:"external_ref,omitempty"`
	State       State  `json:"state"`
	Audit       *Audit `json:"audit,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// NewPayment creates a payment in the created state.
func NewPayment(id, orderCode, eventCode string, amount money.Money, quotaID string) (*Payment, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if orderCode == "" {
		return nil, errors.New("order_code is required")
	}
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	if amount.Currency == "" {
		return nil, errors.New("currency is required")
	}

	now := time.Now().UTC()
	return &Payment{
		ID:        id,
		OrderCode: orderCode,
		EventCode: eventCode,
		Amount:    amount,
		QuotaID:   quotaID,
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsTerminal returns true once the payment is confirmed or failed.
func (p *Payment) IsTerminal() bool {
	return p.State == StateConfirmed || p.State == StateFailed
}

// CheckTransition reports whether the payment may move to the given state.
// Pending may be re-entered so that a later callback can refresh the audit.
func (p *Payment) CheckTransition(to State) error {
	return checkTransition(p.State, to)
}

// checkTransition is shared by the stores, which guard every conditional
// update with it before touching a row.
func checkTransition(from, to State) error {
	if from == StateConfirmed || from == StateFailed {
		return fmt.Errorf("%w: %s -> %s", ErrPaymentFinal, from, to)
	}
	switch to {
	case StatePending, StateConfirmed, StateFailed:
		return nil
	default:
		return fmt.Errorf("invalid target state %q", to)
	}
}

// apply records a completed transition on the in-memory value.
func (p *Payment) apply(to State, audit Audit) {
	now := time.Now().UTC()
	p.State = to
	p.Audit = &audit
	if audit.OrderID != "" {
		p.ExternalRef = audit.OrderID
	}
	if to == StateConfirmed {
		p.ConfirmedAt = &now
	}
	p.UpdatedAt = now
}

// ControlInfo is the operator-facing summary of a reconciled payment.
type ControlInfo struct {
	OrderID       string `json:"order_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
	RefundURL     string `json:"refund_url,omitempty"`
	Advisory      string `json:"advisory,omitempty"`
}
