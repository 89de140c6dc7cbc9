package payment

import (
	"context"
	"log/slog"

	"collectivepay/internal/common/events"
	"collectivepay/internal/common/middleware"
	"collectivepay/internal/common/money"
)

const aggregateType = "payment"

// PaymentEvent is the payload of every payment.* event.
type PaymentEvent struct {
	PaymentID   string      `json:"payment_id"`
	OrderCode   string      `json:"order_code"`
	EventCode   string      `json:"event_code,omitempty"`
	Amount      money.Money `json:"amount"`
	State       State       `json:"state"`
	QuotaID     string      `json:"quota_id,omitempty"`
	ExternalRef string      `json:"external_ref,omitempty"`
	Status      string      `json:"status,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

// Publisher emits payment lifecycle events. A nil broker disables publishing.
// Publish failures are logged; the state change they describe is already durable.
type Publisher struct {
	broker events.EventPublisher
	logger *slog.Logger
}

// NewPublisher creates a publisher over the given broker, which may be nil.
func NewPublisher(broker events.EventPublisher, logger *slog.Logger) *Publisher {
	return &Publisher{broker: broker, logger: logger}
}

func (p *Publisher) Created(ctx context.Context, pay *Payment) {
	p.publish(ctx, events.EventPaymentCreated, pay)
}

func (p *Publisher) Confirmed(ctx context.Context, pay *Payment) {
	p.publish(ctx, events.EventPaymentConfirmed, pay)
}

func (p *Publisher) Pending(ctx context.Context, pay *Payment) {
	p.publish(ctx, events.EventPaymentPending, pay)
}

func (p *Publisher) Failed(ctx context.Context, pay *Payment) {
	p.publish(ctx, events.EventPaymentFailed, pay)
}

// Held is emitted when a verified payment could not be confirmed for lack of capacity.
func (p *Publisher) Held(ctx context.Context, pay *Payment) {
	p.publish(ctx, events.EventPaymentHeld, pay)
}

func (p *Publisher) publish(ctx context.Context, eventType string, pay *Payment) {
	if p == nil || p.broker == nil {
		return
	}

	data := PaymentEvent{
		PaymentID:   pay.ID,
		OrderCode:   pay.OrderCode,
		EventCode:   pay.EventCode,
		Amount:      pay.Amount,
		State:       pay.State,
		QuotaID:     pay.QuotaID,
		ExternalRef: pay.ExternalRef,
	}
	if pay.Audit != nil {
		data.Status = pay.Audit.Status
		data.Reason = pay.Audit.Reason
	}

	event, err := events.NewEvent(eventType, aggregateType, pay.ID, data)
	if err != nil {
		p.logger.Error("failed to build event", "type", eventType, "payment_id", pay.ID, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))

	if err := p.broker.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish event", "type", eventType, "payment_id", pay.ID, "error", err)
	}
}
