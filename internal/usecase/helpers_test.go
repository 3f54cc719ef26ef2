package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"

	"CollectiveLedger/internal/clock"
	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/events"
	"CollectiveLedger/internal/infrastructure/payment"
	"CollectiveLedger/internal/infrastructure/storage"
	"CollectiveLedger/internal/ports"
)

var testNow = time.Date(2025, time.June, 16, 12, 0, 0, 0, time.UTC)

var dana = domain.Identity{
	ID:      7,
	Address: "0x1111111111111111111111111111111111111111",
	Handle:  "dana",
}

var eli = domain.Identity{
	ID:      9,
	Address: "0x2222222222222222222222222222222222222222",
	Handle:  "eli",
}

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	fail  error
	block chan struct{}
}

func (g *fakeGateway) Attest(ctx context.Context, payload ports.AttestationPayload, attester string) (string, error) {
	g.mu.Lock()
	g.calls++
	n, fail, block := g.calls, g.fail, g.block
	g.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail != nil {
		return "", fail
	}
	return fmt.Sprintf("0xatt%d", n), nil
}

func (g *fakeGateway) Verify(context.Context, string) (bool, error) {
	return true, nil
}

func (g *fakeGateway) setFail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = err
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	store         *storage.MemoryStore
	bus           *events.Bus
	gateway       *fakeGateway
	payments      *payment.Simulated
	contributions *ContributionService
	payouts       *PayoutService
	ids           int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    storage.NewMemoryStore(),
		bus:      events.NewBus(),
		gateway:  &fakeGateway{},
		payments: payment.NewSimulated(),
	}
	router := payment.NewRouter()
	for _, chain := range domain.SupportedChains {
		router.Register(chain, f.payments)
	}

	pool := pond.NewPool(2)
	t.Cleanup(pool.StopAndWait)

	var mu sync.Mutex
	nextID := func() string {
		mu.Lock()
		defer mu.Unlock()
		f.ids++
		return fmt.Sprintf("id-%03d", f.ids)
	}

	f.contributions = NewContributionService(ContributionDeps{
		Repository: f.store,
		Gateway:    f.gateway,
		Bus:        f.bus,
		Clock:      clock.Fixed(testNow),
		Pool:       pool,
		NewID:      nextID,
	})
	f.payouts = NewPayoutService(PayoutDeps{
		Payouts:       f.store,
		Contributions: f.store,
		Payments:      router,
		Authorizer:    router,
		Bus:           f.bus,
		Clock:         clock.Fixed(testNow),
		NewID:         nextID,
	})
	return f
}

func (f *fixture) seed(t *testing.T, c domain.Contribution) domain.Contribution {
	t.Helper()
	if c.ResearcherID == 0 {
		c.ResearcherID = dana.ID
		c.ResearcherAddress = dana.Address
	}
	if c.Title == "" {
		c.Title = "seeded"
		c.Description = "seeded"
		c.ImpactScore = 5
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if err := f.store.PutContribution(context.Background(), c); err != nil {
		t.Fatalf("seed contribution: %v", err)
	}
	return c
}

func contribution(id string, status domain.ContributionStatus, age time.Duration) domain.Contribution {
	c := domain.Contribution{
		ID:                id,
		ResearcherID:      dana.ID,
		ResearcherAddress: dana.Address,
		Title:             "t",
		Description:       "d",
		ImpactScore:       5,
		Tags:              []string{},
		Status:            status,
		Timestamp:         testNow.Add(-age),
	}
	if status != domain.ContributionPending {
		c.AttestationID = "0xatt-" + id
	}
	return c
}

func validInput() domain.ContributionInput {
	return domain.ContributionInput{
		Title:       "  Soil carbon survey ",
		Description: "Quarterly readings from the east plot",
		Tags:        []string{"soil", "carbon"},
		ImpactScore: 7,
	}
}
