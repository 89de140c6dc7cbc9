package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectivepay/internal/common/events"
	"collectivepay/internal/common/money"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, quotaSize int) (*MemoryStore, *recordingPublisher, *Reconciler, *Payment) {
	t.Helper()
	store := NewMemoryStore()
	pub := &recordingPublisher{}
	quotaID := ""
	if quotaSize >= 0 {
		quotaID = "q1"
		store.SetQuota(quotaID, quotaSize)
	}

	p, err := NewPayment("pay-1", "ORD01", "conf", money.MustParse("10.00", money.USD), quotaID)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), p))

	return store, pub, NewReconciler(store, pub, testLogger()), p
}

func auditFor(status string) Audit {
	return NewAudit(AuditInput{
		OrderID:  "abc",
		Status:   status,
		Order:    map[string]string{"status": status},
		Redirect: map[string]string{"orderIdV2": "abc"},
	})
}

func TestReconcilerConfirm(t *testing.T) {
	store, pub, rec, p := newFixture(t, 5)
	ctx := context.Background()

	out, err := rec.Apply(ctx, p, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, out.Kind)
	assert.Equal(t, StateConfirmed, p.State)
	assert.Equal(t, "abc", p.ExternalRef)

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, stored.State)
	require.NotNil(t, stored.Audit)
	assert.Equal(t, "PAID", stored.Audit.Status)
	assert.JSONEq(t, `{"status":"PAID"}`, string(stored.Audit.Order))
	assert.Equal(t, "abc", stored.Audit.Redirect["orderIdV2"])
	assert.Equal(t, 1, store.Allocated("q1"))
	assert.Equal(t, []string{events.EventPaymentConfirmed}, pub.types())
}

func TestReconcilerConfirmIsIdempotent(t *testing.T) {
	store, pub, rec, p := newFixture(t, 5)
	ctx := context.Background()

	_, err := rec.Apply(ctx, p, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.NoError(t, err)

	again, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	out, err := rec.Apply(ctx, again, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyConfirmed, out.Kind)
	assert.Equal(t, 1, store.Allocated("q1"))
	assert.Len(t, pub.types(), 1)
}

func TestReconcilerStaleConfirmResolvesToNoop(t *testing.T) {
	store, pub, rec, p := newFixture(t, 5)
	ctx := context.Background()

	// Two callbacks loaded the payment before either confirmed it.
	first, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	second, err := store.Get(ctx, p.ID)
	require.NoError(t, err)

	_, err = rec.Apply(ctx, first, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.NoError(t, err)
	out, err := rec.Apply(ctx, second, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyConfirmed, out.Kind)
	assert.Equal(t, StateConfirmed, second.State)
	assert.Equal(t, 1, store.Allocated("q1"))
	assert.Len(t, pub.types(), 1)
}

func TestReconcilerCapacityExhausted(t *testing.T) {
	store, pub, rec, p := newFixture(t, 0)
	ctx := context.Background()

	out, err := rec.Apply(ctx, p, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCapacity)

	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.NotEmpty(t, ue.Message)

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, stored.State)
	require.NotNil(t, stored.Audit)
	assert.Equal(t, "capacity_exhausted", stored.Audit.Reason)
	assert.Equal(t, []string{events.EventPaymentHeld}, pub.types())
}

func TestReconcilerPending(t *testing.T) {
	store, pub, rec, p := newFixture(t, -1)
	ctx := context.Background()

	out, err := rec.Apply(ctx, p, Decision{Class: ClassPending, Audit: auditFor("PROCESSING")})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out.Kind)

	// A later callback may still confirm a pending payment.
	out, err = rec.Apply(ctx, p, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, out.Kind)

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, stored.State)
	assert.Equal(t, []string{events.EventPaymentPending, events.EventPaymentConfirmed}, pub.types())
}

func TestReconcilerFailure(t *testing.T) {
	tests := []struct {
		name       string
		decision   Decision
		wantErr    error
		wantReason string
	}{
		{
			name:       "failed status",
			decision:   Decision{Class: ClassFailed, Audit: auditFor("EXPIRED")},
			wantErr:    ErrNotSettled,
			wantReason: "not_settled",
		},
		{
			name:       "verification error",
			decision:   Decision{Class: ClassConfirmed, Audit: auditFor("PAID"), Err: ErrAmountMismatch},
			wantErr:    ErrAmountMismatch,
			wantReason: "amount_mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, pub, rec, p := newFixture(t, 5)
			ctx := context.Background()

			out, err := rec.Apply(ctx, p, tt.decision)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)

			var ue *Error
			require.ErrorAs(t, err, &ue)

			stored, err := store.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, StateFailed, stored.State)
			require.NotNil(t, stored.Audit)
			assert.Equal(t, tt.wantReason, stored.Audit.Reason)
			assert.Equal(t, 0, store.Allocated("q1"))
			assert.Equal(t, []string{events.EventPaymentFailed}, pub.types())
		})
	}
}

func TestReconcilerFailedIsTerminal(t *testing.T) {
	store, _, rec, p := newFixture(t, 5)
	ctx := context.Background()

	_, err := rec.Apply(ctx, p, Decision{Class: ClassFailed, Audit: auditFor("EXPIRED")})
	require.Error(t, err)

	_, err = rec.Apply(ctx, p, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	assert.ErrorIs(t, err, ErrPaymentFinal)

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, stored.State)
	assert.Equal(t, "EXPIRED", stored.Audit.Status)
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) Confirm(context.Context, string, State, Audit) error {
	return errors.New("connection reset")
}

func TestReconcilerStoreErrorIsNotUserError(t *testing.T) {
	store, pub, _, p := newFixture(t, -1)
	rec := NewReconciler(failingStore{store}, pub, testLogger())

	_, err := rec.Apply(context.Background(), p, Decision{Class: ClassConfirmed, Audit: auditFor("PAID")})
	require.Error(t, err)

	var ue *Error
	assert.False(t, errors.As(err, &ue))
	assert.Equal(t, StateCreated, p.State)
	assert.Empty(t, pub.types())
}
