package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"collectivepay/internal/common/api"
	"collectivepay/internal/common/database"
	"collectivepay/internal/payment"
)

// Provider builds the provider-specific parts of a payment response.
type Provider interface {
	DonationURL(p *payment.Payment) (string, error)
	ControlInfo(p *payment.Payment) *payment.ControlInfo
}

// Handler handles payment HTTP requests
type Handler struct {
	service  *payment.Service
	provider Provider
	logger   *slog.Logger
}

// NewHandler creates a new payment handler
func NewHandler(service *payment.Service, provider Provider, logger *slog.Logger) *Handler {
	return &Handler{service: service, provider: provider, logger: logger}
}

// Routes returns the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/payments", h.CreatePayment)
	r.Get("/payments/{id}", h.GetPayment)

	return r
}

// CreatePaymentResponse is returned when a payment is created
type CreatePaymentResponse struct {
	Payment     *payment.Payment `json:"payment"`
	DonationURL string           `json:"donation_url"`
}

// PaymentResponse is the API view of a payment
type PaymentResponse struct {
	Payment *payment.Payment     `json:"payment"`
	Control *payment.ControlInfo `json:"control,omitempty"`
}

// CreatePayment handles POST /payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req payment.CreatePaymentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	p, err := h.service.Create(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidRequest):
			api.BadRequest(w, err.Error())
		case database.IsUniqueViolation(err) || errors.Is(err, database.ErrAlreadyExists):
			api.Conflict(w, "payment already exists")
		default:
			h.logger.Error("failed to create payment", "error", err)
			api.InternalError(w, "failed to create payment")
		}
		return
	}

	donationURL, err := h.provider.DonationURL(p)
	if err != nil {
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrCodeMisconfigured, payment.AsUserError(err).Message)
		return
	}

	api.WriteData(w, http.StatusCreated, CreatePaymentResponse{Payment: p, DonationURL: donationURL})
}

// GetPayment handles GET /payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			api.NotFound(w, "payment not found")
			return
		}
		h.logger.Error("failed to get payment", "error", err)
		api.InternalError(w, "failed to get payment")
		return
	}

	api.WriteData(w, http.StatusOK, PaymentResponse{Payment: p, Control: h.provider.ControlInfo(p)})
}
