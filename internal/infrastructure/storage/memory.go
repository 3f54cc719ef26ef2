package storage

import (
	"context"
	"fmt"
	"sync"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// MemoryStore keeps contributions and payouts in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	contributions map[string]domain.Contribution
	payouts       map[string]domain.Payout
}

var (
	_ ports.ContributionRepository = (*MemoryStore)(nil)
	_ ports.PayoutRepository       = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contributions: map[string]domain.Contribution{},
		payouts:       map[string]domain.Payout{},
	}
}

func (m *MemoryStore) ListContributions(context.Context) ([]domain.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Contribution, 0, len(m.contributions))
	for _, c := range m.contributions {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (m *MemoryStore) GetContribution(_ context.Context, id string) (domain.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contributions[id]
	if !ok {
		return domain.Contribution{}, fmt.Errorf("contribution %s: %w", id, domain.ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *MemoryStore) PutContribution(_ context.Context, contribution domain.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contributions[contribution.ID] = contribution.Clone()
	return nil
}

// UpdateContribution applies fn under the write lock.
func (m *MemoryStore) UpdateContribution(_ context.Context, id string, fn func(*domain.Contribution) error) (domain.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributions[id]
	if !ok {
		return domain.Contribution{}, fmt.Errorf("contribution %s: %w", id, domain.ErrNotFound)
	}
	next := c.Clone()
	if err := fn(&next); err != nil {
		return domain.Contribution{}, err
	}
	m.contributions[id] = next.Clone()
	return next, nil
}

func (m *MemoryStore) ListPayouts(context.Context) ([]domain.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Payout, 0, len(m.payouts))
	for _, p := range m.payouts {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *MemoryStore) GetPayout(_ context.Context, id string) (domain.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payouts[id]
	if !ok {
		return domain.Payout{}, fmt.Errorf("payout %s: %w", id, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *MemoryStore) PutPayout(_ context.Context, payout domain.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[payout.ID] = payout.Clone()
	return nil
}

// UpdatePayout applies fn under the write lock.
func (m *MemoryStore) UpdatePayout(_ context.Context, id string, fn func(*domain.Payout) error) (domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return domain.Payout{}, fmt.Errorf("payout %s: %w", id, domain.ErrNotFound)
	}
	next := p.Clone()
	if err := fn(&next); err != nil {
		return domain.Payout{}, err
	}
	m.payouts[id] = next.Clone()
	return next, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
