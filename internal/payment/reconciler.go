package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"collectivepay/internal/common/events"
)

// Decision is the verdict reached for one callback: the classified ledger
// status, the audit evidence, and the verification error if any.
type Decision struct {
	Class StatusClass
	Audit Audit
	Err   error
}

// OutcomeKind tells the caller what to render.
type OutcomeKind string

const (
	OutcomeConfirmed        OutcomeKind = "confirmed"
	OutcomeAlreadyConfirmed OutcomeKind = "already_confirmed"
	OutcomePending          OutcomeKind = "pending"
)

// Outcome is the non-error result of a reconciliation.
type Outcome struct {
	Kind    OutcomeKind
	Payment *Payment
}

// Reconciler drives the payment state machine from a Decision.
type Reconciler struct {
	store     Store
	publisher *Publisher
	logger    *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(store Store, publisher events.EventPublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		publisher: NewPublisher(publisher, logger),
		logger:    logger,
	}
}

// Apply transitions p according to d. Failures are returned as *Error after
// the audit has been persisted. On success p reflects the stored state.
func (r *Reconciler) Apply(ctx context.Context, p *Payment, d Decision) (*Outcome, error) {
	log := r.logger.With("payment_id", p.ID, "status", d.Audit.Status, "class", d.Class.String())

	switch p.State {
	case StateConfirmed:
		log.Info("payment already confirmed, ignoring callback")
		return &Outcome{Kind: OutcomeAlreadyConfirmed, Payment: p}, nil
	case StateFailed:
		log.Warn("callback for failed payment ignored")
		return nil, AsUserError(fmt.Errorf("reconcile payment %s: %w", p.ID, ErrPaymentFinal))
	}

	if d.Err != nil {
		return r.fail(ctx, log, p, d)
	}
	switch d.Class.Target() {
	case StateConfirmed:
		return r.confirm(ctx, log, p, d)
	case StatePending:
		return r.pending(ctx, log, p, d)
	default:
		return r.fail(ctx, log, p, d)
	}
}

func (r *Reconciler) confirm(ctx context.Context, log *slog.Logger, p *Payment, d Decision) (*Outcome, error) {
	err := r.store.Confirm(ctx, p.ID, p.State, d.Audit)
	switch {
	case err == nil:
	case errors.Is(err, ErrCapacity):
		log.Warn("payment verified but capacity exhausted", "quota_id", p.QuotaID)
		audit := d.Audit
		audit.Reason = ReasonCode(ErrCapacity)
		if serr := r.store.SaveAudit(ctx, p.ID, audit); serr != nil {
			log.Error("failed to save audit", "error", serr)
		} else {
			p.Audit = &audit
		}
		r.publisher.Held(ctx, p)
		return nil, AsUserError(fmt.Errorf("confirm payment %s: %w", p.ID, err))
	case errors.Is(err, ErrStateConflict):
		return r.resolveConflict(ctx, log, p)
	default:
		return nil, fmt.Errorf("confirm payment %s: %w", p.ID, err)
	}

	p.apply(StateConfirmed, d.Audit)
	log.Info("payment confirmed", "order_id", d.Audit.OrderID)
	r.publisher.Confirmed(ctx, p)

	return &Outcome{Kind: OutcomeConfirmed, Payment: p}, nil
}

func (r *Reconciler) pending(ctx context.Context, log *slog.Logger, p *Payment, d Decision) (*Outcome, error) {
	err := r.store.Transition(ctx, p.ID, p.State, StatePending, d.Audit)
	if errors.Is(err, ErrStateConflict) {
		return r.resolveConflict(ctx, log, p)
	}
	if err != nil {
		return nil, fmt.Errorf("mark payment %s pending: %w", p.ID, err)
	}

	p.apply(StatePending, d.Audit)
	log.Info("payment pending", "order_id", d.Audit.OrderID)
	r.publisher.Pending(ctx, p)

	return &Outcome{Kind: OutcomePending, Payment: p}, nil
}

func (r *Reconciler) fail(ctx context.Context, log *slog.Logger, p *Payment, d Decision) (*Outcome, error) {
	cause := d.Err
	if cause == nil {
		cause = fmt.Errorf("%w: status %q", ErrNotSettled, d.Audit.Status)
	}
	audit := d.Audit
	if audit.Reason == "" {
		audit.Reason = ReasonCode(cause)
	}

	err := r.store.Transition(ctx, p.ID, p.State, StateFailed, audit)
	if errors.Is(err, ErrStateConflict) {
		return r.resolveConflict(ctx, log, p)
	}
	if err != nil {
		return nil, fmt.Errorf("fail payment %s: %w", p.ID, err)
	}

	p.apply(StateFailed, audit)
	log.Warn("payment failed", "reason", audit.Reason, "error", cause)
	r.publisher.Failed(ctx, p)

	return nil, AsUserError(fmt.Errorf("reconcile payment %s: %w", p.ID, cause))
}

// resolveConflict re-reads a payment whose conditional update lost a race.
func (r *Reconciler) resolveConflict(ctx context.Context, log *slog.Logger, p *Payment) (*Outcome, error) {
	current, err := r.store.Get(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment %s: %w", p.ID, err)
	}
	*p = *current

	if current.State == StateConfirmed {
		log.Info("payment confirmed by a concurrent callback")
		return &Outcome{Kind: OutcomeAlreadyConfirmed, Payment: p}, nil
	}
	return nil, AsUserError(fmt.Errorf("reconcile payment %s (now %s): %w", p.ID, current.State, ErrStateConflict))
}
