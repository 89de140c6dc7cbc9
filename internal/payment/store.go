package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"collectivepay/internal/common/database"
	"collectivepay/internal/common/money"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const selectPayment = `
	SELECT id, order_code, event_code, amount::text, currency, quota_id,
		   external_ref, state, audit, created_at, updated_at, confirmed_at
	FROM payments
`

// Create inserts a new payment.
func (s *PostgresStore) Create(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (
			id, order_code, event_code, amount, currency, quota_id,
			external_ref, state, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.Exec(ctx, query,
		p.ID, p.OrderCode, nullStr(p.EventCode), p.Amount.Amount.String(), p.Amount.Currency,
		nullStr(p.QuotaID), nullStr(p.ExternalRef), p.State, p.CreatedAt, p.UpdatedAt,
	)
	switch {
	case database.IsUniqueViolation(err):
		return fmt.Errorf("payment %s: %w", p.ID, database.ErrAlreadyExists)
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown quota %q", ErrInvalidRequest, p.QuotaID)
	}
	return err
}

// Get retrieves a payment by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := s.db.QueryRow(ctx, selectPayment+` WHERE id = $1`, id)
	p, err := scanPayment(row)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("payment %s: %w", id, ErrPaymentNotFound)
	}
	return p, err
}

// Transition conditionally moves a payment from one state to another.
func (s *PostgresStore) Transition(ctx context.Context, id string, from, to State, audit Audit) error {
	if to == StateConfirmed {
		return s.Confirm(ctx, id, from, audit)
	}
	if err := checkTransition(from, to); err != nil {
		return fmt.Errorf("payment %s: %w", id, err)
	}

	auditJSON, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE payments SET
			state = $3, audit = $4,
			external_ref = COALESCE($5, external_ref),
			updated_at = now()
		WHERE id = $1 AND state = $2 AND state NOT IN ('confirmed', 'failed')
	`, id, from, to, auditJSON, nullStr(audit.OrderID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %s not in state %s: %w", id, from, ErrStateConflict)
	}
	return nil
}

// Confirm marks the payment confirmed and allocates one unit of its quota.
func (s *PostgresStore) Confirm(ctx context.Context, id string, from State, audit Audit) error {
	if err := checkTransition(from, StateConfirmed); err != nil {
		return fmt.Errorf("payment %s: %w", id, err)
	}

	auditJSON, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var quotaID *string
		err := tx.QueryRow(ctx, `
			UPDATE payments SET
				state = 'confirmed', audit = $3,
				external_ref = COALESCE($4, external_ref),
				confirmed_at = now(), updated_at = now()
			WHERE id = $1 AND state = $2 AND state NOT IN ('confirmed', 'failed')
			RETURNING quota_id
		`, id, from, auditJSON, nullStr(audit.OrderID)).Scan(&quotaID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("payment %s not in state %s: %w", id, from, ErrStateConflict)
		}
		if err != nil {
			return err
		}

		if quotaID == nil {
			return nil
		}

		tag, err := tx.Exec(ctx, `
			UPDATE quotas SET allocated = allocated + 1
			WHERE id = $1 AND allocated < size
		`, *quotaID)
		if err != nil {
			return fmt.Errorf("allocate quota %s: %w", *quotaID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("quota %s: %w", *quotaID, ErrCapacity)
		}
		return nil
	})
}

// SaveAudit records evidence on a payment without changing its state.
func (s *PostgresStore) SaveAudit(ctx context.Context, id string, audit Audit) error {
	auditJSON, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}

	tag, err := s.db.Exec(ctx, `UPDATE payments SET audit = $2, updated_at = now() WHERE id = $1`, id, auditJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %s: %w", id, ErrPaymentNotFound)
	}
	return nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p                               Payment
		eventCode, quotaID, externalRef *string
		amount, currency                string
		auditJSON                       []byte
		createdAt, updatedAt            time.Time
	)

	err := row.Scan(
		&p.ID, &p.OrderCode, &eventCode, &amount, &currency, &quotaID,
		&externalRef, &p.State, &auditJSON, &createdAt, &updatedAt, &p.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	p.Amount = money.New(d, money.Currency(currency))
	p.EventCode = derefStr(eventCode)
	p.QuotaID = derefStr(quotaID)
	p.ExternalRef = derefStr(externalRef)
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt

	if len(auditJSON) > 0 {
		var a Audit
		if err := json.Unmarshal(auditJSON, &a); err != nil {
			return nil, fmt.Errorf("decode audit: %w", err)
		}
		p.Audit = &a
	}

	return &p, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
