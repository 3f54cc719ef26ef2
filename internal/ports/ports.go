package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"CollectiveLedger/internal/domain"
)

// AttestationPayload is the contribution data submitted for attestation.
type AttestationPayload struct {
	ContributionID string
	Recipient      string
	Title          string
	Description    string
	PostURL        string
	ImpactScore    int
	Tags           []string
	Timestamp      time.Time
}

// AttestationGateway records contributions on an external attestation network.
type AttestationGateway interface {
	Attest(ctx context.Context, payload AttestationPayload, attester string) (string, error)
	Verify(ctx context.Context, attestationID string) (bool, error)
}

// PaymentService settles payouts on a chain and returns the transaction reference.
type PaymentService interface {
	Send(ctx context.Context, to string, amount decimal.Decimal, chain domain.Chain) (string, error)
}

// AccountAuthorizer checks that a researcher account can receive funds on a chain.
type AccountAuthorizer interface {
	Authorize(ctx context.Context, address string, chain domain.Chain) error
}

// ContributionRepository persists contributions keyed by id.
// Update applies fn atomically; returning an error from fn aborts the write.
type ContributionRepository interface {
	ListContributions(ctx context.Context) ([]domain.Contribution, error)
	GetContribution(ctx context.Context, id string) (domain.Contribution, error)
	PutContribution(ctx context.Context, contribution domain.Contribution) error
	UpdateContribution(ctx context.Context, id string, fn func(*domain.Contribution) error) (domain.Contribution, error)
}

// PayoutRepository persists payouts keyed by id with the same atomicity contract.
type PayoutRepository interface {
	ListPayouts(ctx context.Context) ([]domain.Payout, error)
	GetPayout(ctx context.Context, id string) (domain.Payout, error)
	PutPayout(ctx context.Context, payout domain.Payout) error
	UpdatePayout(ctx context.Context, id string, fn func(*domain.Payout) error) (domain.Payout, error)
}

// IdentitySource resolves researcher identities; the core treats them as read-only.
type IdentitySource interface {
	Resolve(ctx context.Context, researcherID int64) (domain.Identity, error)
	List(ctx context.Context) ([]domain.Identity, error)
}

// PostPreview is metadata scraped from an external post reference.
type PostPreview struct {
	URL         string
	Title       string
	Description string
	Author      string
}

// PostResolver fetches metadata for an external post reference.
type PostResolver interface {
	Resolve(ctx context.Context, postURL string) (PostPreview, error)
}

// Notifier streams weekly digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
