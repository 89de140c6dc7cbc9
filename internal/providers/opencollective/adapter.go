package opencollective

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"collectivepay/internal/payment"
)

// PaymentStore loads the payment a return refers to.
type PaymentStore interface {
	Get(ctx context.Context, id string) (*payment.Payment, error)
}

// OrderFetcher resolves a reference to an order record.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, ref Reference, destination string) (*OrderRecord, error)
}

// Reconciler applies a decision to a payment.
type Reconciler interface {
	Apply(ctx context.Context, p *payment.Payment, d payment.Decision) (*payment.Outcome, error)
}

// Adapter runs the return flow and builds the URLs and texts shown around it.
type Adapter struct {
	cfg        *Config
	payments   PaymentStore
	fetcher    OrderFetcher
	verifier   *Verifier
	reconciler Reconciler
	baseURL    string
	logger     *slog.Logger
}

// NewAdapter creates an adapter. baseURL is the public URL of this service
// and is used to build the return URL.
func NewAdapter(cfg *Config, payments PaymentStore, fetcher OrderFetcher, reconciler Reconciler, baseURL string, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:        cfg,
		payments:   payments,
		fetcher:    fetcher,
		verifier:   NewVerifier(cfg),
		reconciler: reconciler,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

var userMessages = []struct {
	err error
	msg string
}{
	{payment.ErrConfiguration, "Open Collective payment settings are incomplete."},
	{payment.ErrMissingReference, "Missing Open Collective order reference."},
	{payment.ErrOrderNotFound, "The Open Collective contribution could not be found."},
	{payment.ErrUpstream, "Open Collective could not be reached. Please try again in a few minutes."},
	{payment.ErrVerification, "The Open Collective contribution does not match this order."},
	{payment.ErrNotSettled, "The Open Collective contribution was not completed."},
}

// userError wraps err with the buyer-facing message for its kind.
func userError(err error) error {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return payment.NewError(m.msg, err)
		}
	}
	return payment.AsUserError(err)
}

// HandleReturn reconciles a payment with the contribution the return
// parameters point at. Lookup failures leave the payment untouched.
func (a *Adapter) HandleReturn(ctx context.Context, paymentID string, params ReturnParameters) (*payment.Outcome, error) {
	log := a.logger.With("payment_id", paymentID)

	ref, err := Resolve(params)
	if err != nil {
		log.Warn("return without order reference")
		return nil, userError(err)
	}

	p, err := a.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, userError(err)
	}

	// Settled payments are answered without calling the ledger.
	switch p.State {
	case payment.StateConfirmed:
		log.Info("payment already confirmed, ignoring return")
		return &payment.Outcome{Kind: payment.OutcomeAlreadyConfirmed, Payment: p}, nil
	case payment.StateFailed:
		log.Warn("return for failed payment ignored")
		return nil, payment.AsUserError(fmt.Errorf("handle return %s: %w", p.ID, payment.ErrPaymentFinal))
	}

	destination := a.cfg.PrimarySlug(p.EventCode)
	if destination == "" && a.cfg.RequireDestination {
		return nil, userError(fmt.Errorf("handle return: no collective slug: %w", payment.ErrConfiguration))
	}

	rec, err := a.fetcher.FetchOrder(ctx, ref, destination)
	if err != nil {
		log.Warn("order lookup failed", "ref", ref.String(), "error", err)
		return nil, userError(err)
	}

	status, verr := a.verifier.Verify(rec, p)
	class := ClassifyStatus(status)
	if verr != nil {
		log.Warn("order verification failed", "order_id", rec.Reference(), "error", verr)
		class = payment.ClassFailed
	}

	slug := rec.Destination()
	if slug == "" {
		slug = destination
	}
	orderID := rec.Reference()
	if orderID == "" {
		orderID = ref.OrderID()
	}

	audit := payment.NewAudit(payment.AuditInput{
		OrderID:        orderID,
		TransactionID:  params.TransactionID,
		Status:         rec.Status,
		Class:          class,
		Reason:         verr,
		Order:          rec,
		Redirect:       params.Raw(),
		CollectiveSlug: slug,
		UseStaging:     a.cfg.UseStaging,
	})

	outcome, err := a.reconciler.Apply(ctx, p, payment.Decision{Class: class, Audit: audit, Err: verr})
	if err != nil {
		return nil, userError(err)
	}
	return outcome, nil
}

// DonationURL returns the donate page the buyer is sent to. The amount is in
// major units without trailing zeros and no order memo is attached.
func (a *Adapter) DonationURL(p *payment.Payment) (string, error) {
	slug := a.cfg.PrimarySlug(p.EventCode)
	if slug == "" {
		return "", userError(fmt.Errorf("donation url: no collective slug: %w", payment.ErrConfiguration))
	}

	q := url.Values{"redirect": {a.ReturnURL(p.ID)}}
	return fmt.Sprintf("%s/%s/donate/%s?%s",
		a.cfg.Endpoints().Site,
		url.PathEscape(slug),
		p.Amount.Major(),
		q.Encode(),
	), nil
}

// ReturnURL is where the ledger sends the buyer back to.
func (a *Adapter) ReturnURL(paymentID string) string {
	return a.baseURL + "/payments/" + url.PathEscape(paymentID) + "/opencollective/return"
}

// PendingMessage is shown while a contribution is still being processed.
func (a *Adapter) PendingMessage() string {
	if a.cfg.RecipientEmail != "" {
		return fmt.Sprintf("We will contact you at %s if we need further details.", a.cfg.RecipientEmail)
	}
	return "We will contact you if we need further details."
}

const refundAdvisory = "Refunds are not issued automatically. Refund the contribution on Open Collective, then mark the payment as refunded."

// ControlInfo summarises a reconciled payment for operators. The refund link
// uses the slug and environment recorded at reconciliation time.
func (a *Adapter) ControlInfo(p *payment.Payment) *payment.ControlInfo {
	if p.Audit == nil {
		return nil
	}
	info := &payment.ControlInfo{
		OrderID:       p.Audit.OrderID,
		TransactionID: p.Audit.TransactionID,
		Status:        p.Audit.Status,
		Advisory:      refundAdvisory,
	}
	if p.Audit.TransactionID != "" && p.Audit.CollectiveSlug != "" {
		info.RefundURL = fmt.Sprintf("%s/dashboard/%s/transactions?%s",
			SiteFor(p.Audit.UseStaging),
			url.PathEscape(p.Audit.CollectiveSlug),
			url.Values{"openTransactionId": {p.Audit.TransactionID}}.Encode(),
		)
	}
	return info
}
