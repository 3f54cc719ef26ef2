// Package events carries cross-component notifications so the payout engine
// never writes contribution state directly.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"CollectiveLedger/internal/domain"
)

// PayoutCompleted is emitted once a payout settles on chain.
type PayoutCompleted struct {
	PayoutID        string
	ResearcherID    int64
	ContributionIDs []string
	TxHash          string
	At              time.Time
}

// ContributionChanged is emitted whenever a contribution is created or changes status.
type ContributionChanged struct {
	ContributionID string
	ResearcherID   int64
	Status         domain.ContributionStatus
}

// Bus is a synchronous in-process dispatcher. Handlers run on the publisher's
// goroutine, so a publish returns only after every subscriber has applied it.
type Bus struct {
	mu                  sync.RWMutex
	payoutCompleted     []func(context.Context, PayoutCompleted) error
	contributionChanged []func(context.Context, ContributionChanged) error
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// OnPayoutCompleted registers a handler.
func (b *Bus) OnPayoutCompleted(fn func(context.Context, PayoutCompleted) error) {
	if b == nil || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payoutCompleted = append(b.payoutCompleted, fn)
}

// OnContributionChanged registers a handler.
func (b *Bus) OnContributionChanged(fn func(context.Context, ContributionChanged) error) {
	if b == nil || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contributionChanged = append(b.contributionChanged, fn)
}

// PublishPayoutCompleted delivers evt to every handler and joins their errors.
func (b *Bus) PublishPayoutCompleted(ctx context.Context, evt PayoutCompleted) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]func(context.Context, PayoutCompleted) error(nil), b.payoutCompleted...)
	b.mu.RUnlock()

	var errs []error
	for _, handle := range handlers {
		if err := handle(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishContributionChanged delivers evt to every handler and joins their errors.
func (b *Bus) PublishContributionChanged(ctx context.Context, evt ContributionChanged) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]func(context.Context, ContributionChanged) error(nil), b.contributionChanged...)
	b.mu.RUnlock()

	var errs []error
	for _, handle := range handlers {
		if err := handle(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
