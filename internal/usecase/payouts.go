package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"

	"CollectiveLedger/internal/clock"
	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/events"
	"CollectiveLedger/internal/observability"
	"CollectiveLedger/internal/ports"
)

const (
	// AmountPlaces is the fixed precision of payout amounts in native currency.
	AmountPlaces = 4
	// USDPlaces is the fixed precision of USD aggregates.
	USDPlaces = 2
)

// DefaultWeeklyAmount is the flat per-researcher weekly reward in native currency.
var DefaultWeeklyAmount = decimal.RequireFromString("0.08")

// PayoutDeps wires the driven adapters used by the payout engine.
type PayoutDeps struct {
	Payouts       ports.PayoutRepository
	Contributions ports.ContributionRepository
	Payments      ports.PaymentService
	Authorizer    ports.AccountAuthorizer
	Bus           *events.Bus
	Clock         clock.Clock
	Metrics       *observability.LedgerMetrics
	Logger        *slog.Logger
	WeeklyAmount  decimal.Decimal
	NewID         func() string
}

// PayoutService computes eligibility and drives payouts through their state machine.
type PayoutService struct {
	payouts       ports.PayoutRepository
	contributions ports.ContributionRepository
	payments      ports.PaymentService
	authorizer    ports.AccountAuthorizer
	bus           *events.Bus
	clock         clock.Clock
	metrics       *observability.LedgerMetrics
	logger        *slog.Logger
	weeklyAmount  decimal.Decimal
	newID         func() string

	inFlight *xsync.Map[string, struct{}]
	createMu sync.Mutex
}

// NewPayoutService builds the payout engine.
func NewPayoutService(deps PayoutDeps) *PayoutService {
	svc := &PayoutService{
		payouts:       deps.Payouts,
		contributions: deps.Contributions,
		payments:      deps.Payments,
		authorizer:    deps.Authorizer,
		bus:           deps.Bus,
		clock:         deps.Clock,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		weeklyAmount:  deps.WeeklyAmount,
		newID:         deps.NewID,
		inFlight:      xsync.NewMap[string, struct{}](),
	}
	if svc.clock == nil {
		svc.clock = clock.System{}
	}
	if svc.logger == nil {
		svc.logger = slog.New(slog.DiscardHandler)
	}
	if svc.weeklyAmount.IsZero() {
		svc.weeklyAmount = DefaultWeeklyAmount
	}
	if svc.newID == nil {
		svc.newID = uuid.NewString
	}
	return svc
}

// ComputeEligibility returns the weekly amount when at least one contribution is
// verified and inside the trailing week, otherwise zero. The amount is flat: it
// does not scale with the number or impact of contributions.
func (s *PayoutService) ComputeEligibility(contributions []domain.Contribution) decimal.Decimal {
	return ComputeEligibility(contributions, s.clock.Now(), s.weeklyAmount)
}

// ComputeEligibility is the pure eligibility rule.
func ComputeEligibility(contributions []domain.Contribution, now time.Time, weekly decimal.Decimal) decimal.Decimal {
	if len(qualifying(contributions, now)) == 0 {
		return decimal.Zero
	}
	return weekly
}

func qualifying(contributions []domain.Contribution, now time.Time) []domain.Contribution {
	week := clock.CurrentWeek(now)
	var out []domain.Contribution
	for _, c := range contributions {
		if c.Status == domain.ContributionVerified && week.Contains(c.Timestamp) {
			out = append(out, c)
		}
	}
	return out
}

// CreatePayout builds a pending payout covering the qualifying contributions.
// Eligibility is decided on the stored records, and a contribution already
// covered by an open payout (pending, processing or failed) cannot qualify again.
func (s *PayoutService) CreatePayout(ctx context.Context, who domain.Identity, contributions []domain.Contribution, chain domain.Chain) (domain.Payout, error) {
	if err := who.Validate(); err != nil {
		return domain.Payout{}, err
	}
	if _, err := domain.ParseChain(string(chain)); err != nil {
		return domain.Payout{}, domain.NewValidationError("chain", err.Error())
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	current, err := s.reload(ctx, who, contributions)
	if err != nil {
		return domain.Payout{}, err
	}

	now := s.clock.Now().UTC()
	covered := qualifying(current, now)
	if len(covered) == 0 {
		return domain.Payout{}, domain.ErrNoEligiblePayout
	}

	open, err := s.openlyCovered(ctx)
	if err != nil {
		return domain.Payout{}, err
	}
	ids := make([]string, 0, len(covered))
	for _, c := range covered {
		if payoutID, ok := open[c.ID]; ok {
			return domain.Payout{}, fmt.Errorf("contribution %s is covered by open payout %s: %w", c.ID, payoutID, domain.ErrNoEligiblePayout)
		}
		ids = append(ids, c.ID)
	}

	payout := domain.Payout{
		ID:                s.newID(),
		ResearcherAddress: who.Address,
		ResearcherID:      who.ID,
		Amount:            s.weeklyAmount.StringFixed(AmountPlaces),
		ContributionIDs:   ids,
		Status:            domain.PayoutPending,
		Timestamp:         now,
		Chain:             chain,
	}
	if err := s.payouts.PutPayout(ctx, payout); err != nil {
		return domain.Payout{}, fmt.Errorf("persist payout: %w", err)
	}

	s.metrics.RecordPayoutTransition(string(chain), string(domain.PayoutPending))
	s.logger.Info("payout created",
		"payout_id", payout.ID,
		"researcher_id", payout.ResearcherID,
		"amount", payout.Amount,
		"chain", payout.Chain,
		"contributions", len(ids))
	return payout, nil
}

// reload replaces the caller's copies with the stored records. Without a
// contribution repository the caller's copies are used as given.
func (s *PayoutService) reload(ctx context.Context, who domain.Identity, contributions []domain.Contribution) ([]domain.Contribution, error) {
	if s.contributions == nil {
		return contributions, nil
	}
	out := make([]domain.Contribution, 0, len(contributions))
	for _, c := range contributions {
		stored, err := s.contributions.GetContribution(ctx, c.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("contributionIds", "unknown contribution "+c.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("load contribution %s: %w", c.ID, err)
		}
		if stored.ResearcherID != who.ID {
			return nil, domain.NewValidationError("contributionIds", "contribution "+c.ID+" belongs to another researcher")
		}
		out = append(out, stored)
	}
	return out, nil
}

// openlyCovered maps contribution ids to the open payout that covers them.
func (s *PayoutService) openlyCovered(ctx context.Context) (map[string]string, error) {
	all, err := s.payouts.ListPayouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	open := map[string]string{}
	for _, p := range all {
		switch p.Status {
		case domain.PayoutPending, domain.PayoutProcessing, domain.PayoutFailed:
			for _, id := range p.ContributionIDs {
				open[id] = p.ID
			}
		}
	}
	return open, nil
}

// CreateWeeklyPayout loads the researcher's contributions from the store and
// creates a payout for them.
func (s *PayoutService) CreateWeeklyPayout(ctx context.Context, who domain.Identity, chain domain.Chain) (domain.Payout, error) {
	if s.contributions == nil {
		return domain.Payout{}, errors.New("contribution repository not configured")
	}
	all, err := s.contributions.ListContributions(ctx)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("list contributions: %w", err)
	}
	mine := make([]domain.Contribution, 0, len(all))
	for _, c := range all {
		if c.ResearcherID == who.ID {
			mine = append(mine, c)
		}
	}
	return s.CreatePayout(ctx, who, mine, chain)
}

// ProcessPayout submits a pending payout to the payment service. At most one
// attempt per payout id runs at a time; concurrent callers get ErrPayoutInFlight.
// Once the payment service has been called the attempt runs to completion.
func (s *PayoutService) ProcessPayout(ctx context.Context, id string) (domain.Payout, error) {
	if _, loaded := s.inFlight.LoadOrStore(id, struct{}{}); loaded {
		return domain.Payout{}, domain.ErrPayoutInFlight
	}
	defer s.inFlight.Delete(id)

	current, err := s.payouts.GetPayout(ctx, id)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("load payout %s: %w", id, err)
	}
	if current.Status != domain.PayoutPending {
		return current, fmt.Errorf("process payout %s in status %s: %w", id, current.Status, domain.ErrInvalidTransition)
	}
	if s.payments == nil {
		return current, errors.New("payment service not configured")
	}
	amount, err := decimal.NewFromString(current.Amount)
	if err != nil {
		return current, fmt.Errorf("parse payout amount %q: %w", current.Amount, err)
	}
	if s.authorizer != nil {
		if err := s.authorizer.Authorize(ctx, current.ResearcherAddress, current.Chain); err != nil {
			return current, fmt.Errorf("%w: %v", domain.ErrUnauthorizedAccount, err)
		}
	}

	processing, err := s.transition(ctx, id, domain.PayoutProcessing, nil)
	if err != nil {
		return current, err
	}

	// The payment call and the state write that follows are not cancellable.
	ctx = context.WithoutCancel(ctx)
	start := s.clock.Now()
	txHash, sendErr := s.payments.Send(ctx, processing.ResearcherAddress, amount, processing.Chain)
	elapsed := s.clock.Now().Sub(start)

	if sendErr != nil {
		s.metrics.ObservePayment(string(processing.Chain), "failed", elapsed)
		failed, err := s.transition(ctx, id, domain.PayoutFailed, nil)
		if err != nil {
			return processing, errors.Join(&domain.PaymentError{PayoutID: id, Err: sendErr}, err)
		}
		s.logger.Warn("payout failed", "payout_id", id, "chain", processing.Chain, "error", sendErr)
		return failed, &domain.PaymentError{PayoutID: id, Err: sendErr}
	}

	s.metrics.ObservePayment(string(processing.Chain), "completed", elapsed)
	completed, err := s.transition(ctx, id, domain.PayoutCompleted, func(p *domain.Payout) {
		p.TxHash = txHash
	})
	if err != nil {
		return processing, fmt.Errorf("record settlement %s (tx %s): %w", id, txHash, err)
	}
	s.logger.Info("payout completed",
		"payout_id", id,
		"amount", completed.Amount,
		"chain", completed.Chain,
		"tx_hash", txHash)

	if err := s.announce(ctx, completed); err != nil {
		return completed, err
	}
	return completed, nil
}

// RetryFailedPayout resets a failed payout to pending and processes it again.
// Any other status is rejected with ErrPayoutNotRetryable and left untouched.
func (s *PayoutService) RetryFailedPayout(ctx context.Context, id string) (domain.Payout, error) {
	if _, ok := s.inFlight.Load(id); ok {
		return domain.Payout{}, domain.ErrPayoutInFlight
	}
	_, err := s.payouts.UpdatePayout(ctx, id, func(p *domain.Payout) error {
		if p.Status != domain.PayoutFailed {
			return domain.ErrPayoutNotRetryable
		}
		p.Status = domain.PayoutPending
		p.TxHash = ""
		return nil
	})
	if err != nil {
		return domain.Payout{}, fmt.Errorf("retry payout %s: %w", id, err)
	}
	s.logger.Info("payout reset for retry", "payout_id", id)
	return s.ProcessPayout(ctx, id)
}

// Reconcile re-announces every completed payout so contributions left verified
// by an interrupted run catch up to paid. Marking paid is idempotent. Payouts
// left in processing are reported, never resent.
func (s *PayoutService) Reconcile(ctx context.Context) error {
	all, err := s.payouts.ListPayouts(ctx)
	if err != nil {
		return fmt.Errorf("list payouts: %w", err)
	}
	var errs []error
	for _, p := range all {
		switch p.Status {
		case domain.PayoutCompleted:
			if err := s.announce(ctx, p); err != nil {
				errs = append(errs, err)
			}
		case domain.PayoutProcessing:
			// The send may have reached the chain; only an operator can tell.
			s.logger.Warn("payout stuck in processing, settle manually",
				"payout_id", p.ID,
				"researcher_id", p.ResearcherID,
				"amount", p.Amount,
				"chain", p.Chain)
		}
	}
	return errors.Join(errs...)
}

func (s *PayoutService) announce(ctx context.Context, p domain.Payout) error {
	err := s.bus.PublishPayoutCompleted(ctx, events.PayoutCompleted{
		PayoutID:        p.ID,
		ResearcherID:    p.ResearcherID,
		ContributionIDs: append([]string(nil), p.ContributionIDs...),
		TxHash:          p.TxHash,
		At:              s.clock.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("payout completion handlers failed", "payout_id", p.ID, "error", err)
		return fmt.Errorf("announce payout %s: %w", p.ID, err)
	}
	return nil
}

func (s *PayoutService) transition(ctx context.Context, id string, next domain.PayoutStatus, mutate func(*domain.Payout)) (domain.Payout, error) {
	updated, err := s.payouts.UpdatePayout(ctx, id, func(p *domain.Payout) error {
		if !p.Status.CanTransitionTo(next) {
			return fmt.Errorf("%s -> %s: %w", p.Status, next, domain.ErrInvalidTransition)
		}
		p.Status = next
		if mutate != nil {
			mutate(p)
		}
		return nil
	})
	if err != nil {
		return domain.Payout{}, fmt.Errorf("transition payout %s: %w", id, err)
	}
	s.metrics.RecordPayoutTransition(string(updated.Chain), string(next))
	return updated, nil
}

// Get returns a single payout.
func (s *PayoutService) Get(ctx context.Context, id string) (domain.Payout, error) {
	return s.payouts.GetPayout(ctx, id)
}

// List returns every payout, newest first.
func (s *PayoutService) List(ctx context.Context) ([]domain.Payout, error) {
	return s.filter(ctx, func(domain.Payout) bool { return true })
}

// ByResearcher returns the payouts owed to a researcher id.
func (s *PayoutService) ByResearcher(ctx context.Context, researcherID int64) ([]domain.Payout, error) {
	return s.filter(ctx, func(p domain.Payout) bool { return p.ResearcherID == researcherID })
}

// ByStatus returns the payouts currently in status.
func (s *PayoutService) ByStatus(ctx context.Context, status domain.PayoutStatus) ([]domain.Payout, error) {
	return s.filter(ctx, func(p domain.Payout) bool { return p.Status == status })
}

// InWindow returns the payouts created inside the window.
func (s *PayoutService) InWindow(ctx context.Context, window clock.Window) ([]domain.Payout, error) {
	return s.filter(ctx, func(p domain.Payout) bool { return window.Contains(p.Timestamp) })
}

// Weekly returns the payouts created in the trailing week.
func (s *PayoutService) Weekly(ctx context.Context) ([]domain.Payout, error) {
	return s.InWindow(ctx, clock.CurrentWeek(s.clock.Now()))
}

// TotalPaid sums completed payout amounts with fixed four-place precision.
func (s *PayoutService) TotalPaid(ctx context.Context) (string, error) {
	all, err := s.payouts.ListPayouts(ctx)
	if err != nil {
		return "", fmt.Errorf("list payouts: %w", err)
	}
	if err := checkAmounts(all); err != nil {
		return "", err
	}
	return SumCompleted(all, nil).StringFixed(AmountPlaces), nil
}

func (s *PayoutService) filter(ctx context.Context, keep func(domain.Payout) bool) ([]domain.Payout, error) {
	all, err := s.payouts.ListPayouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	out := make([]domain.Payout, 0, len(all))
	for _, p := range all {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// checkAmounts reports every completed payout whose stored amount does not parse.
// Totals refuse to compute over such records instead of under-reporting.
func checkAmounts(payouts []domain.Payout) error {
	var errs []error
	for _, p := range payouts {
		if p.Status != domain.PayoutCompleted {
			continue
		}
		if _, err := decimal.NewFromString(p.Amount); err != nil {
			errs = append(errs, fmt.Errorf("payout %s has unparsable amount %q: %w", p.ID, p.Amount, err))
		}
	}
	return errors.Join(errs...)
}

// SumCompleted adds the amounts of completed payouts accepted by keep.
// A nil keep accepts every completed payout. Unparsable amounts are skipped;
// callers run checkAmounts first.
func SumCompleted(payouts []domain.Payout, keep func(domain.Payout) bool) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payouts {
		if p.Status != domain.PayoutCompleted {
			continue
		}
		if keep != nil && !keep(p) {
			continue
		}
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}
	return total
}
