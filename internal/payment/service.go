package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"collectivepay/internal/common/events"
	"collectivepay/internal/common/money"
)

// Store persists payments. State changes are conditional on the expected
// prior state and fail with ErrStateConflict when another request won.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)

	// Transition moves a non-terminal payment to pending or failed and
	// records the audit in the same statement.
	Transition(ctx context.Context, id string, from, to State, audit Audit) error

	// Confirm marks the payment confirmed and allocates its quota in one
	// transaction. ErrCapacity leaves the payment unchanged.
	Confirm(ctx context.Context, id string, from State, audit Audit) error

	// SaveAudit records evidence without changing state.
	SaveAudit(ctx context.Context, id string, audit Audit) error
}

// Service creates and reads payments.
type Service struct {
	store     Store
	publisher *Publisher
	logger    *slog.Logger
}

// NewService creates a new payment service.
func NewService(store Store, publisher events.EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: NewPublisher(publisher, logger),
		logger:    logger,
	}
}

// CreatePaymentRequest is the request to start a payment.
type CreatePaymentRequest struct {
	OrderCode string `json:"order_code" validate:"required,max=64"`
	EventCode string `json:"event_code,omitempty" validate:"max=64"`
	Amount    string `json:"amount" validate:"required,numeric"`
	Currency  string `json:"currency" validate:"required,len=3,uppercase"`
	QuotaID   string `json:"quota_id,omitempty" validate:"max=64"`
}

// ErrInvalidRequest is returned for requests that pass shape validation but
// describe an impossible payment.
var ErrInvalidRequest = errors.New("invalid payment request")

// Create records a new payment in the created state.
func (s *Service) Create(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	amount, err := money.Parse(req.Amount, money.Currency(req.Currency))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	p, err := NewPayment(ulid.Make().String(), req.OrderCode, req.EventCode, amount, req.QuotaID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.logger.Info("payment created",
		"payment_id", p.ID,
		"order_code", p.OrderCode,
		"amount", p.Amount.String(),
	)
	s.publisher.Created(ctx, p)

	return p, nil
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}
