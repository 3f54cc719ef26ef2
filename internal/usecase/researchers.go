package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"CollectiveLedger/internal/clock"
	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/events"
	"CollectiveLedger/internal/ports"
)

// DefaultProfileTTL bounds how long a cached projection may be served.
const DefaultProfileTTL = time.Minute

type cachedProfile struct {
	researcher domain.Researcher
	at         time.Time
	generation uint64
}

// ResearcherService projects researcher profiles from the contribution and
// payout stores. The cache is read-through and dropped on every related event.
type ResearcherService struct {
	identities    ports.IdentitySource
	contributions ports.ContributionRepository
	payouts       ports.PayoutRepository
	clock         clock.Clock
	ttl           time.Duration

	cache *xsync.Map[int64, cachedProfile]
	// generations is bumped on every invalidation; a cached profile is only
	// served while its generation is current.
	generations *xsync.Map[int64, uint64]
}

// NewResearcherService builds the projection and subscribes it to bus events.
func NewResearcherService(identities ports.IdentitySource, contributions ports.ContributionRepository, payouts ports.PayoutRepository, bus *events.Bus, c clock.Clock, ttl time.Duration) *ResearcherService {
	if c == nil {
		c = clock.System{}
	}
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	svc := &ResearcherService{
		identities:    identities,
		contributions: contributions,
		payouts:       payouts,
		clock:         c,
		ttl:           ttl,
		cache:         xsync.NewMap[int64, cachedProfile](),
		generations:   xsync.NewMap[int64, uint64](),
	}
	bus.OnContributionChanged(func(_ context.Context, evt events.ContributionChanged) error {
		svc.Invalidate(evt.ResearcherID)
		return nil
	})
	bus.OnPayoutCompleted(func(_ context.Context, evt events.PayoutCompleted) error {
		svc.Invalidate(evt.ResearcherID)
		return nil
	})
	return svc
}

// Invalidate drops the cached projection for a researcher.
func (s *ResearcherService) Invalidate(researcherID int64) {
	s.generations.Compute(researcherID, func(old uint64, _ bool) (uint64, xsync.ComputeOp) {
		return old + 1, xsync.UpdateOp
	})
	s.cache.Delete(researcherID)
}

func (s *ResearcherService) generation(researcherID int64) uint64 {
	gen, _ := s.generations.Load(researcherID)
	return gen
}

// Profile returns the projected researcher, rebuilding it when stale.
func (s *ResearcherService) Profile(ctx context.Context, researcherID int64) (domain.Researcher, error) {
	now := s.clock.Now()
	gen := s.generation(researcherID)
	if cached, ok := s.cache.Load(researcherID); ok && cached.generation == gen && now.Sub(cached.at) < s.ttl {
		return cached.researcher, nil
	}

	identity, err := s.identities.Resolve(ctx, researcherID)
	if err != nil {
		return domain.Researcher{}, fmt.Errorf("resolve researcher %d: %w", researcherID, err)
	}
	contributions, err := s.contributions.ListContributions(ctx)
	if err != nil {
		return domain.Researcher{}, fmt.Errorf("list contributions: %w", err)
	}
	payouts, err := s.payouts.ListPayouts(ctx)
	if err != nil {
		return domain.Researcher{}, fmt.Errorf("list payouts: %w", err)
	}
	if err := checkAmounts(payouts); err != nil {
		return domain.Researcher{}, err
	}

	researcher := ProjectResearcher(identity, contributions, payouts, now)
	s.cache.Store(researcherID, cachedProfile{researcher: researcher, at: now, generation: gen})
	return researcher, nil
}

// Roster returns projections for every known identity.
func (s *ResearcherService) Roster(ctx context.Context) ([]domain.Researcher, error) {
	identities, err := s.identities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	out := make([]domain.Researcher, 0, len(identities))
	for _, identity := range identities {
		profile, err := s.Profile(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, profile)
	}
	return out, nil
}

// ProjectResearcher aggregates one researcher's activity. It is a pure function.
func ProjectResearcher(identity domain.Identity, contributions []domain.Contribution, payouts []domain.Payout, now time.Time) domain.Researcher {
	week := clock.CurrentWeek(now)
	researcher := domain.Researcher{Identity: identity}

	for _, c := range contributions {
		if c.ResearcherID != identity.ID {
			continue
		}
		researcher.TotalContributions++
		if researcher.JoinDate.IsZero() || c.Timestamp.Before(researcher.JoinDate) {
			researcher.JoinDate = c.Timestamp
		}
		if week.Contains(c.Timestamp) {
			researcher.Active = true
		}
	}

	mine := func(p domain.Payout) bool { return p.ResearcherID == identity.ID }
	researcher.TotalEarned = SumCompleted(payouts, mine).StringFixed(AmountPlaces)
	researcher.WeeklyEarnings = SumCompleted(payouts, func(p domain.Payout) bool {
		return mine(p) && week.Contains(p.Timestamp)
	}).StringFixed(AmountPlaces)
	return researcher
}
