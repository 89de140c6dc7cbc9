package opencollective

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectivepay/internal/common/money"
	"collectivepay/internal/payment"
)

func validRecord() *OrderRecord {
	v := decimal.RequireFromString("10.00")
	return &OrderRecord{
		ID:          "abc",
		Status:      "PAID",
		Frequency:   FrequencyOneTime,
		TotalAmount: &Amount{Value: &v, Currency: "USD"},
		ToAccount:   &Account{Slug: "my-collective"},
	}
}

func pendingPayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment("pay-1", "ORD01", "", money.MustParse("10.00", money.USD), "")
	require.NoError(t, err)
	return p
}

func TestVerifyAccepts(t *testing.T) {
	v := NewVerifier(&Config{CollectiveSlugs: []string{"other", "my-collective"}})
	p := pendingPayment(t)

	status, err := v.Verify(validRecord(), p)
	require.NoError(t, err)
	assert.Equal(t, "PAID", status)

	// Exact decimal comparison ignores representation.
	rec := validRecord()
	ten := decimal.RequireFromString("10")
	rec.TotalAmount.Value = &ten
	rec.Frequency = ""
	status, err = v.Verify(rec, p)
	require.NoError(t, err)
	assert.Equal(t, "PAID", status)
}

func TestVerifySingleViolation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *OrderRecord)
		want   error
	}{
		{
			name:   "destination",
			mutate: func(r *OrderRecord) { r.ToAccount = &Account{Slug: "someone-else"} },
			want:   payment.ErrDestinationMismatch,
		},
		{
			name:   "missing destination",
			mutate: func(r *OrderRecord) { r.ToAccount = nil },
			want:   payment.ErrDestinationMismatch,
		},
		{
			name:   "amount missing",
			mutate: func(r *OrderRecord) { r.TotalAmount = nil },
			want:   payment.ErrAmountMissing,
		},
		{
			name: "amount mismatch",
			mutate: func(r *OrderRecord) {
				v := decimal.RequireFromString("5.00")
				r.TotalAmount.Value = &v
			},
			want: payment.ErrAmountMismatch,
		},
		{
			name: "amount off by a cent",
			mutate: func(r *OrderRecord) {
				v := decimal.RequireFromString("10.01")
				r.TotalAmount.Value = &v
			},
			want: payment.ErrAmountMismatch,
		},
		{
			name:   "currency",
			mutate: func(r *OrderRecord) { r.TotalAmount.Currency = "EUR" },
			want:   payment.ErrCurrencyMismatch,
		},
		{
			name:   "currency case",
			mutate: func(r *OrderRecord) { r.TotalAmount.Currency = "usd" },
			want:   payment.ErrCurrencyMismatch,
		},
		{
			name:   "recurring",
			mutate: func(r *OrderRecord) { r.Frequency = "MONTHLY" },
			want:   payment.ErrRecurring,
		},
		{
			name:   "status missing",
			mutate: func(r *OrderRecord) { r.Status = "" },
			want:   payment.ErrStatusMissing,
		},
	}

	allReasons := []error{
		payment.ErrDestinationMismatch, payment.ErrAmountMissing, payment.ErrAmountMismatch,
		payment.ErrCurrencyMismatch, payment.ErrRecurring, payment.ErrStatusMissing,
	}

	v := NewVerifier(&Config{CollectiveSlugs: []string{"my-collective"}})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(rec)

			status, err := v.Verify(rec, pendingPayment(t))
			require.Error(t, err)
			assert.Empty(t, status)
			assert.ErrorIs(t, err, payment.ErrVerification)
			for _, reason := range allReasons {
				if reason == tt.want {
					assert.ErrorIs(t, err, reason)
				} else {
					assert.NotErrorIs(t, err, reason)
				}
			}
		})
	}
}

func TestVerifyPartialAmountFallback(t *testing.T) {
	v := NewVerifier(&Config{CollectiveSlugs: []string{"my-collective"}})
	rec := validRecord()
	rec.Amount = rec.TotalAmount
	rec.TotalAmount = nil

	_, err := v.Verify(rec, pendingPayment(t))
	assert.NoError(t, err)
}

func TestVerifyDestinationSlugs(t *testing.T) {
	p := pendingPayment(t)
	p.EventCode = "conf"

	t.Run("event slug overrides collective slug", func(t *testing.T) {
		v := NewVerifier(&Config{
			CollectiveSlugs: []string{"my-collective"},
			EventSlugs:      map[string]string{"conf": "conf-2025"},
		})
		_, err := v.Verify(validRecord(), p)
		assert.ErrorIs(t, err, payment.ErrDestinationMismatch)

		rec := validRecord()
		rec.ToAccount.Slug = "conf-2025"
		_, err = v.Verify(rec, p)
		assert.NoError(t, err)
	})

	t.Run("no slug accepts any destination", func(t *testing.T) {
		v := NewVerifier(&Config{})
		rec := validRecord()
		rec.ToAccount.Slug = "anyone"
		_, err := v.Verify(rec, p)
		assert.NoError(t, err)
	})

	t.Run("no slug with required destination fails closed", func(t *testing.T) {
		v := NewVerifier(&Config{RequireDestination: true})
		_, err := v.Verify(validRecord(), p)
		assert.ErrorIs(t, err, payment.ErrDestinationMismatch)
	})
}

func TestVerifyDoesNotMutate(t *testing.T) {
	v := NewVerifier(&Config{CollectiveSlugs: []string{"my-collective"}})
	rec := validRecord()
	p := pendingPayment(t)

	_, err := v.Verify(rec, p)
	require.NoError(t, err)
	assert.Equal(t, validRecord(), rec)
	assert.Equal(t, payment.StateCreated, p.State)
}

func TestClassifyStatus(t *testing.T) {
	for _, s := range []string{"PAID", "ACTIVE"} {
		assert.Equal(t, payment.ClassConfirmed, ClassifyStatus(s), s)
	}
	for _, s := range []string{"PROCESSING", "PENDING", "REQUIRE_CLIENT_CONFIRMATION", "IN_REVIEW"} {
		assert.Equal(t, payment.ClassPending, ClassifyStatus(s), s)
	}
	for _, s := range []string{"", "EXPIRED", "REJECTED", "CANCELLED", "REFUNDED", "ERROR", "paid", "NEW_STATUS"} {
		assert.Equal(t, payment.ClassFailed, ClassifyStatus(s), s)
	}
}
