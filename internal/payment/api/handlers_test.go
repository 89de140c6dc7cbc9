package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectivepay/internal/common/money"
	"collectivepay/internal/payment"
)

type stubProvider struct {
	err error
}

func (s stubProvider) DonationURL(p *payment.Payment) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://opencollective.com/my-collective/donate/" + p.Amount.Major(), nil
}

func (stubProvider) ControlInfo(p *payment.Payment) *payment.ControlInfo {
	if p.Audit == nil {
		return nil
	}
	return &payment.ControlInfo{Status: p.Audit.Status}
}

func newTestHandler(provider Provider) (*payment.MemoryStore, http.Handler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := payment.NewMemoryStore()
	svc := payment.NewService(store, nil, logger)
	return store, NewHandler(svc, provider, logger).Routes()
}

func TestCreatePayment(t *testing.T) {
	_, h := newTestHandler(stubProvider{})

	body := `{"order_code":"ORD01","amount":"10.00","currency":"USD"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Data struct {
			Payment     payment.Payment `json:"payment"`
			DonationURL string          `json:"donation_url"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ORD01", resp.Data.Payment.OrderCode)
	assert.Equal(t, payment.StateCreated, resp.Data.Payment.State)
	assert.Equal(t, "https://opencollective.com/my-collective/donate/10", resp.Data.DonationURL)
}

func TestCreatePaymentValidation(t *testing.T) {
	_, h := newTestHandler(stubProvider{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing order code", `{"amount":"10.00","currency":"USD"}`, http.StatusUnprocessableEntity},
		{"lower case currency", `{"order_code":"A","amount":"10.00","currency":"usd"}`, http.StatusUnprocessableEntity},
		{"non numeric amount", `{"order_code":"A","amount":"ten","currency":"USD"}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"order_code":"A","amount":"0","currency":"USD"}`, http.StatusBadRequest},
		{"malformed json", `{`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(tt.body)))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestCreatePaymentMisconfigured(t *testing.T) {
	_, h := newTestHandler(stubProvider{err: payment.NewError("Open Collective payment settings are incomplete.", payment.ErrConfiguration)})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"order_code":"A","amount":"5","currency":"EUR"}`)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISCONFIGURED")
	assert.Contains(t, rec.Body.String(), "settings are incomplete")
}

func TestGetPayment(t *testing.T) {
	store, h := newTestHandler(stubProvider{})
	ctx := context.Background()

	p, err := payment.NewPayment("pay-1", "ORD01", "", money.MustParse("10.00", money.USD), "")
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, store.Transition(ctx, p.ID, payment.StateCreated, payment.StatePending, payment.Audit{Status: "PROCESSING"}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/pay-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"pending"`)
	assert.Contains(t, rec.Body.String(), `"control":{"status":"PROCESSING"}`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
