package opencollective

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"collectivepay/internal/common/api"
	"collectivepay/internal/payment"
)

// ReturnProcessor runs the return flow for one payment.
type ReturnProcessor interface {
	HandleReturn(ctx context.Context, paymentID string, params ReturnParameters) (*payment.Outcome, error)
	PendingMessage() string
}

// ReturnHandler handles the buyer's redirect back from the ledger. Success
// and pending go to the success page; every error goes back to the checkout
// payment step with a message.
type ReturnHandler struct {
	processor   ReturnProcessor
	checkoutURL string
	successURL  string
	logger      *slog.Logger
}

// NewReturnHandler creates a return handler.
func NewReturnHandler(processor ReturnProcessor, checkoutURL, successURL string, logger *slog.Logger) *ReturnHandler {
	return &ReturnHandler{
		processor:   processor,
		checkoutURL: checkoutURL,
		successURL:  successURL,
		logger:      logger,
	}
}

// Routes mounts the return endpoint, with and without a cart namespace.
func (h *ReturnHandler) Routes(r chi.Router) {
	r.Get("/payments/{id}/opencollective/return", h.ServeHTTP)
	r.Get("/w/{cart_namespace}/payments/{id}/opencollective/return", h.ServeHTTP)
}

// ServeHTTP handles GET /payments/{id}/opencollective/return.
func (h *ReturnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "id")
	namespace := chi.URLParam(r, "cart_namespace")
	params := ParseReturnParameters(r.URL.Query())

	if err := api.Validate.Struct(params); err != nil {
		h.logger.Warn("malformed return parameters", "payment_id", paymentID, "error", err)
		h.toCheckout(w, r, namespace, userError(fmt.Errorf("%w: %v", payment.ErrMissingReference, err)))
		return
	}
	if !params.HasReference() {
		h.toCheckout(w, r, namespace, userError(payment.ErrMissingReference))
		return
	}

	outcome, err := h.processor.HandleReturn(r.Context(), paymentID, params)
	if err != nil {
		h.toCheckout(w, r, namespace, err)
		return
	}

	q := url.Values{"payment": {paymentID}}
	if outcome.Kind == payment.OutcomePending {
		q.Set("pending", "1")
		q.Set("message", h.processor.PendingMessage())
	}
	http.Redirect(w, r, withQuery(h.successURL, q), http.StatusSeeOther)
}

func (h *ReturnHandler) toCheckout(w http.ResponseWriter, r *http.Request, namespace string, err error) {
	ue := payment.AsUserError(err)
	var target *payment.Error
	if !errors.As(err, &target) {
		h.logger.Error("return processing failed", "path", r.URL.Path, "error", err)
	}

	q := url.Values{"step": {"payment"}, "error": {ue.Message}}
	if namespace != "" {
		q.Set("cart_namespace", namespace)
	}
	http.Redirect(w, r, withQuery(h.checkoutURL, q), http.StatusSeeOther)
}

// withQuery merges q into the query string of base.
func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String()
}
