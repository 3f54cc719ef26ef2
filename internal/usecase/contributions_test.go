package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/events"
)

func TestSubmitRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := map[string]func(in *domain.ContributionInput){
		"empty title":      func(in *domain.ContributionInput) { in.Title = "   " },
		"empty desc":       func(in *domain.ContributionInput) { in.Description = "" },
		"too many tags":    func(in *domain.ContributionInput) { in.Tags = []string{"a", "b", "c", "d", "e", "f"} },
		"duplicate tags":   func(in *domain.ContributionInput) { in.Tags = []string{"soil", "Soil"} },
		"impact too high":  func(in *domain.ContributionInput) { in.ImpactScore = 11 },
		"impact too low":   func(in *domain.ContributionInput) { in.ImpactScore = 0 },
		"relative postUrl": func(in *domain.ContributionInput) { in.PostURL = "/casts/1" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			mutate(&in)

			_, err := f.contributions.Submit(context.Background(), dana, in)
			require.True(t, domain.IsValidation(err), "got %v", err)

			all, err := f.store.ListContributions(context.Background())
			require.NoError(t, err)
			require.Empty(t, all)
			require.Zero(t, f.gateway.callCount())
		})
	}
}

func TestSubmitRejectsInvalidIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.contributions.Submit(context.Background(), domain.Identity{ID: 1, Address: "nope"}, validInput())
	require.True(t, domain.IsValidation(err))
}

func TestSubmitPersistsPendingThenVerifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.contributions.Submit(ctx, dana, validInput())
	require.NoError(t, err)
	require.Equal(t, domain.ContributionPending, sub.Contribution.Status)
	require.Equal(t, "Soil carbon survey", sub.Contribution.Title)
	require.Equal(t, []string{"soil", "carbon"}, sub.Contribution.Tags)
	require.Equal(t, testNow, sub.Contribution.Timestamp)
	require.Empty(t, sub.Contribution.AttestationID)

	require.NoError(t, sub.Wait())

	got, err := f.contributions.Get(ctx, sub.Contribution.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContributionVerified, got.Status)
	require.NotEmpty(t, got.AttestationID)
	require.Equal(t, sub.Contribution.Timestamp, got.Timestamp)
}

func TestAttestationFailureKeepsContributionPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("relayer unavailable")
	f.gateway.setFail(boom)

	sub, err := f.contributions.Submit(ctx, dana, validInput())
	require.NoError(t, err)

	err = sub.Wait()
	var attErr *domain.AttestationError
	require.ErrorAs(t, err, &attErr)
	require.Equal(t, sub.Contribution.ID, attErr.ContributionID)
	require.ErrorIs(t, err, boom)

	got, err := f.contributions.Get(ctx, sub.Contribution.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContributionPending, got.Status)
	require.Empty(t, got.AttestationID)

	f.gateway.setFail(nil)
	retried, err := f.contributions.RetryAttestation(ctx, sub.Contribution.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContributionVerified, retried.Status)
	require.NotEmpty(t, retried.AttestationID)
}

func TestRetryAttestationIsNoOpOnceVerified(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	verified := f.seed(t, contribution("c-1", domain.ContributionVerified, time.Hour))
	paid := f.seed(t, contribution("c-2", domain.ContributionPaid, time.Hour))

	got, err := f.contributions.RetryAttestation(ctx, verified.ID)
	require.NoError(t, err)
	require.Equal(t, verified.AttestationID, got.AttestationID)

	got, err = f.contributions.RetryAttestation(ctx, paid.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContributionPaid, got.Status)
	require.Zero(t, f.gateway.callCount())

	_, err = f.contributions.RetryAttestation(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentRetriesAttestOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pending := f.seed(t, contribution("c-1", domain.ContributionPending, time.Hour))

	release := make(chan struct{})
	f.gateway.block = release

	var wg sync.WaitGroup
	results := make([]domain.Contribution, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.contributions.RetryAttestation(ctx, pending.ID)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, f.gateway.callCount())
	for _, r := range results {
		require.Equal(t, domain.ContributionVerified, r.Status)
		require.Equal(t, "0xatt1", r.AttestationID)
	}
}

func TestMarkPaidOnlyAdvancesVerified(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, contribution("pending", domain.ContributionPending, time.Hour))
	f.seed(t, contribution("verified", domain.ContributionVerified, time.Hour))
	f.seed(t, contribution("paid", domain.ContributionPaid, time.Hour))

	marked, err := f.contributions.MarkPaid(ctx, []string{"pending", "verified", "paid", "missing"})
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	for id, want := range map[string]domain.ContributionStatus{
		"pending":  domain.ContributionPending,
		"verified": domain.ContributionPaid,
		"paid":     domain.ContributionPaid,
	} {
		got, err := f.contributions.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got.Status, id)
	}

	marked, err = f.contributions.MarkPaid(ctx, []string{"verified"})
	require.NoError(t, err)
	require.Zero(t, marked)
}

func TestPayoutCompletedEventMarksContributionsPaid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, contribution("c-1", domain.ContributionVerified, time.Hour))

	require.NoError(t, f.bus.PublishPayoutCompleted(ctx, events.PayoutCompleted{
		PayoutID:        "p-1",
		ContributionIDs: []string{"c-1"},
	}))

	got, err := f.contributions.Get(ctx, "c-1")
	require.NoError(t, err)
	require.Equal(t, domain.ContributionPaid, got.Status)
}

func TestContributionQueriesAreNewestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, contribution("old", domain.ContributionVerified, 3*time.Hour))
	f.seed(t, contribution("new", domain.ContributionPending, time.Hour))
	other := contribution("other", domain.ContributionVerified, 2*time.Hour)
	other.ResearcherID = eli.ID
	other.ResearcherAddress = eli.Address
	f.seed(t, other)

	all, err := f.contributions.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"new", "other", "old"}, ids(all))

	mine, err := f.contributions.ByResearcher(ctx, dana.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"new", "old"}, ids(mine))

	verified, err := f.contributions.ByStatus(ctx, domain.ContributionVerified)
	require.NoError(t, err)
	require.Equal(t, []string{"other", "old"}, ids(verified))
}

func TestVerifyAttestation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, contribution("pending", domain.ContributionPending, time.Hour))
	f.seed(t, contribution("verified", domain.ContributionVerified, time.Hour))

	ok, err := f.contributions.VerifyAttestation(ctx, "pending")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.contributions.VerifyAttestation(ctx, "verified")
	require.NoError(t, err)
	require.True(t, ok)
}

func ids(cs []domain.Contribution) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
