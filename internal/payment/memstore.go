package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collectivepay/internal/common/database"
)

// MemoryStore is an in-process Store for local runs and tests. It applies
// the same conditional-update rules as PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]*Payment
	quotas   map[string]*quota
}

type quota struct {
	size, allocated int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		quotas:   make(map[string]*quota),
	}
}

var _ Store = (*MemoryStore)(nil)

// SetQuota defines or resizes a quota.
func (s *MemoryStore) SetQuota(id string, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.quotas[id]; ok {
		q.size = size
		return
	}
	s.quotas[id] = &quota{size: size}
}

// Allocated returns the number of confirmed payments counted against a quota.
func (s *MemoryStore) Allocated(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.quotas[id]; ok {
		return q.allocated
	}
	return 0
}

func (s *MemoryStore) Create(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; ok {
		return fmt.Errorf("payment %s: %w", p.ID, database.ErrAlreadyExists)
	}
	if _, ok := s.quotas[p.QuotaID]; p.QuotaID != "" && !ok {
		return fmt.Errorf("%w: unknown quota %q", ErrInvalidRequest, p.QuotaID)
	}
	s.payments[p.ID] = clonePayment(p)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, ErrPaymentNotFound)
	}
	return clonePayment(p), nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to State, audit Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.expect(id, from)
	if err != nil {
		return err
	}
	if err := p.CheckTransition(to); err != nil {
		return fmt.Errorf("payment %s: %w", id, err)
	}
	if to == StateConfirmed {
		if err := s.allocate(p.QuotaID); err != nil {
			return err
		}
	}
	p.apply(to, audit)
	return nil
}

func (s *MemoryStore) Confirm(ctx context.Context, id string, from State, audit Audit) error {
	return s.Transition(ctx, id, from, StateConfirmed, audit)
}

func (s *MemoryStore) SaveAudit(_ context.Context, id string, audit Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return fmt.Errorf("payment %s: %w", id, ErrPaymentNotFound)
	}
	p.Audit = &audit
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) expect(id string, from State) (*Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, ErrPaymentNotFound)
	}
	if p.State != from {
		return nil, fmt.Errorf("payment %s not in state %s: %w", id, from, ErrStateConflict)
	}
	return p, nil
}

// allocate takes one unit from a quota.
func (s *MemoryStore) allocate(quotaID string) error {
	if quotaID == "" {
		return nil
	}
	q := s.quotas[quotaID]
	if q.allocated >= q.size {
		return fmt.Errorf("quota %s: %w", quotaID, ErrCapacity)
	}
	q.allocated++
	return nil
}

func clonePayment(p *Payment) *Payment {
	c := *p
	if p.Audit != nil {
		a := *p.Audit
		c.Audit = &a
	}
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		c.ConfirmedAt = &t
	}
	return &c
}
