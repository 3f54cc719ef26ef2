package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"CollectiveLedger/internal/clock"
	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/events"
	"CollectiveLedger/internal/observability"
	"CollectiveLedger/internal/ports"
	"CollectiveLedger/internal/retry"
)

// errSkip aborts a repository update without surfacing an error.
var errSkip = errors.New("skip update")

// ContributionDeps wires the driven adapters used by the contribution store.
type ContributionDeps struct {
	Repository ports.ContributionRepository
	Gateway    ports.AttestationGateway
	Resolver   ports.PostResolver
	Bus        *events.Bus
	Clock      clock.Clock
	Pool       pond.Pool
	Backoff    retry.Config
	Metrics    *observability.LedgerMetrics
	Logger     *slog.Logger
	// Attester signs attestations; when empty the researcher address is used.
	Attester string
	NewID    func() string
}

// ContributionService owns contribution records, their status and attestation linkage.
type ContributionService struct {
	repo     ports.ContributionRepository
	gateway  ports.AttestationGateway
	resolver ports.PostResolver
	bus      *events.Bus
	clock    clock.Clock
	pool     pond.Pool
	ownsPool bool
	backoff  retry.Config
	metrics  *observability.LedgerMetrics
	logger   *slog.Logger
	attester string
	newID    func() string

	inFlight *xsync.Map[string, chan struct{}]
}

// Submission is the result of a submit call. The contribution is persisted as
// pending; Wait blocks until the attestation attempt has been recorded.
type Submission struct {
	Contribution domain.Contribution
	task         pond.Task
}

// Wait returns the non-fatal attestation failure, if any. A nil error means the
// contribution is verified in the store by the time Wait returns.
func (s *Submission) Wait() error {
	if s == nil || s.task == nil {
		return nil
	}
	return s.task.Wait()
}

// NewContributionService builds the store and subscribes it to payout completions.
func NewContributionService(deps ContributionDeps) *ContributionService {
	svc := &ContributionService{
		repo:     deps.Repository,
		gateway:  deps.Gateway,
		resolver: deps.Resolver,
		bus:      deps.Bus,
		clock:    deps.Clock,
		pool:     deps.Pool,
		backoff:  deps.Backoff,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		attester: deps.Attester,
		newID:    deps.NewID,
		inFlight: xsync.NewMap[string, chan struct{}](),
	}
	if svc.clock == nil {
		svc.clock = clock.System{}
	}
	if svc.pool == nil {
		svc.pool = pond.NewPool(4)
		svc.ownsPool = true
	}
	if svc.logger == nil {
		svc.logger = slog.New(slog.DiscardHandler)
	}
	if svc.newID == nil {
		svc.newID = uuid.NewString
	}
	svc.bus.OnPayoutCompleted(func(ctx context.Context, evt events.PayoutCompleted) error {
		_, err := svc.MarkPaid(ctx, evt.ContributionIDs)
		return err
	})
	return svc
}

// Close drains pending attestation attempts when the service owns its pool.
func (s *ContributionService) Close() {
	if s.ownsPool {
		s.pool.StopAndWait()
	}
}

// Submit validates and persists a contribution, then requests attestation asynchronously.
func (s *ContributionService) Submit(ctx context.Context, who domain.Identity, input domain.ContributionInput) (*Submission, error) {
	if err := who.Validate(); err != nil {
		s.metrics.RecordSubmission("rejected")
		return nil, err
	}
	in := input.Normalize()
	if err := in.Validate(); err != nil {
		s.metrics.RecordSubmission("rejected")
		return nil, err
	}

	contribution := domain.Contribution{
		ID:                s.newID(),
		ResearcherAddress: who.Address,
		ResearcherID:      who.ID,
		Title:             in.Title,
		Description:       in.Description,
		PostURL:           in.PostURL,
		Timestamp:         s.clock.Now().UTC(),
		Status:            domain.ContributionPending,
		Tags:              in.Tags,
		ImpactScore:       in.ImpactScore,
	}
	if contribution.Tags == nil {
		contribution.Tags = []string{}
	}

	if err := s.repo.PutContribution(ctx, contribution); err != nil {
		return nil, fmt.Errorf("persist contribution: %w", err)
	}
	s.metrics.RecordSubmission("accepted")
	s.logger.Info("contribution submitted",
		"contribution_id", contribution.ID,
		"researcher_id", contribution.ResearcherID,
		"tags", len(contribution.Tags))
	s.publishChanged(ctx, contribution)

	detached := context.WithoutCancel(ctx)
	task := s.pool.SubmitErr(func() error {
		s.preview(detached, contribution)
		_, err := s.attest(detached, contribution.ID)
		return err
	})

	return &Submission{Contribution: contribution.Clone(), task: task}, nil
}

// RetryAttestation re-invokes the gateway for a pending contribution.
// Verified and paid contributions are returned unchanged.
func (s *ContributionService) RetryAttestation(ctx context.Context, id string) (domain.Contribution, error) {
	current, err := s.repo.GetContribution(ctx, id)
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("load contribution %s: %w", id, err)
	}
	if current.Status != domain.ContributionPending {
		return current, nil
	}
	return s.attest(ctx, id)
}

// VerifyAttestation asks the gateway whether the linked attestation is still valid.
func (s *ContributionService) VerifyAttestation(ctx context.Context, id string) (bool, error) {
	current, err := s.repo.GetContribution(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load contribution %s: %w", id, err)
	}
	if !current.Attested() || s.gateway == nil {
		return false, nil
	}
	ok, err := s.gateway.Verify(ctx, current.AttestationID)
	if err != nil {
		return false, &domain.AttestationError{ContributionID: id, Err: err}
	}
	return ok, nil
}

// attest runs one attestation attempt per contribution at a time. A caller that
// finds an attempt in flight waits for it and then re-evaluates.
func (s *ContributionService) attest(ctx context.Context, id string) (domain.Contribution, error) {
	done := make(chan struct{})
	if running, loaded := s.inFlight.LoadOrStore(id, done); loaded {
		select {
		case <-running:
		case <-ctx.Done():
			return domain.Contribution{}, ctx.Err()
		}
		return s.RetryAttestation(ctx, id)
	}
	defer func() {
		s.inFlight.Delete(id)
		close(done)
	}()

	current, err := s.repo.GetContribution(ctx, id)
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("load contribution %s: %w", id, err)
	}
	if current.Status != domain.ContributionPending {
		return current, nil
	}
	if s.gateway == nil {
		s.metrics.RecordAttestation("skipped")
		return current, &domain.AttestationError{ContributionID: id, Err: errors.New("attestation gateway not configured")}
	}

	attester := s.attester
	if attester == "" {
		attester = current.ResearcherAddress
	}
	payload := attestationPayload(current)

	var attestationID string
	err = retry.WithBackoff(ctx, s.backoff, s.logger, "attest contribution", func() error {
		uid, attErr := s.gateway.Attest(ctx, payload, attester)
		if attErr != nil {
			return attErr
		}
		attestationID = uid
		return nil
	})
	if err != nil {
		s.metrics.RecordAttestation("failed")
		s.logger.Warn("contribution saved but attestation failed",
			"contribution_id", id,
			"error", err)
		return current, &domain.AttestationError{ContributionID: id, Err: err}
	}

	updated, err := s.repo.UpdateContribution(ctx, id, func(c *domain.Contribution) error {
		if !c.Status.CanAdvanceTo(domain.ContributionVerified) {
			return errSkip
		}
		c.Status = domain.ContributionVerified
		c.AttestationID = attestationID
		return nil
	})
	if errors.Is(err, errSkip) {
		return s.repo.GetContribution(ctx, id)
	}
	if err != nil {
		return current, fmt.Errorf("record attestation %s: %w", id, err)
	}

	s.metrics.RecordAttestation("verified")
	s.logger.Info("contribution verified",
		"contribution_id", id,
		"attestation_id", attestationID)
	s.publishChanged(ctx, updated)
	return updated, nil
}

// MarkPaid moves verified contributions to paid. Other states are skipped
// silently, so a paid contribution never regresses and a pending one never jumps.
func (s *ContributionService) MarkPaid(ctx context.Context, ids []string) (int, error) {
	marked := 0
	for _, id := range ids {
		updated, err := s.repo.UpdateContribution(ctx, id, func(c *domain.Contribution) error {
			if !c.Status.CanAdvanceTo(domain.ContributionPaid) {
				return errSkip
			}
			c.Status = domain.ContributionPaid
			return nil
		})
		switch {
		case errors.Is(err, errSkip), errors.Is(err, domain.ErrNotFound):
			continue
		case err != nil:
			return marked, fmt.Errorf("mark contribution %s paid: %w", id, err)
		}
		marked++
		s.publishChanged(ctx, updated)
	}
	if marked > 0 {
		s.logger.Info("contributions marked paid", "count", marked)
	}
	return marked, nil
}

// Get returns a single contribution.
func (s *ContributionService) Get(ctx context.Context, id string) (domain.Contribution, error) {
	return s.repo.GetContribution(ctx, id)
}

// List returns every contribution, newest first.
func (s *ContributionService) List(ctx context.Context) ([]domain.Contribution, error) {
	return s.filter(ctx, func(domain.Contribution) bool { return true })
}

// ByResearcher returns the contributions attributed to a researcher id.
func (s *ContributionService) ByResearcher(ctx context.Context, researcherID int64) ([]domain.Contribution, error) {
	return s.filter(ctx, func(c domain.Contribution) bool { return c.ResearcherID == researcherID })
}

// ByStatus returns the contributions currently in status.
func (s *ContributionService) ByStatus(ctx context.Context, status domain.ContributionStatus) ([]domain.Contribution, error) {
	return s.filter(ctx, func(c domain.Contribution) bool { return c.Status == status })
}

func (s *ContributionService) filter(ctx context.Context, keep func(domain.Contribution) bool) ([]domain.Contribution, error) {
	all, err := s.repo.ListContributions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	out := make([]domain.Contribution, 0, len(all))
	for _, c := range all {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *ContributionService) preview(ctx context.Context, c domain.Contribution) {
	if s.resolver == nil || c.PostURL == "" {
		return
	}
	preview, err := s.resolver.Resolve(ctx, c.PostURL)
	if err != nil {
		s.logger.Warn("could not resolve post reference", "contribution_id", c.ID, "url", c.PostURL, "error", err)
		return
	}
	s.logger.Debug("post reference associated",
		"contribution_id", c.ID,
		"post_title", preview.Title,
		"post_author", preview.Author)
}

func (s *ContributionService) publishChanged(ctx context.Context, c domain.Contribution) {
	err := s.bus.PublishContributionChanged(ctx, events.ContributionChanged{
		ContributionID: c.ID,
		ResearcherID:   c.ResearcherID,
		Status:         c.Status,
	})
	if err != nil {
		s.logger.Error("contribution change handlers failed", "contribution_id", c.ID, "error", err)
	}
}

func attestationPayload(c domain.Contribution) ports.AttestationPayload {
	return ports.AttestationPayload{
		ContributionID: c.ID,
		Recipient:      c.ResearcherAddress,
		Title:          c.Title,
		Description:    c.Description,
		PostURL:        c.PostURL,
		ImpactScore:    c.ImpactScore,
		Tags:           append([]string(nil), c.Tags...),
		Timestamp:      c.Timestamp,
	}
}
