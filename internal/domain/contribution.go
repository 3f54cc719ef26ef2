package domain

import (
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxTags bounds the number of tags attached to a contribution.
	MaxTags = 5
	// MinImpactScore and MaxImpactScore bound the self-reported impact.
	MinImpactScore = 1
	MaxImpactScore = 10
)

// ContributionStatus enumerates lifecycle milestones of a contribution.
type ContributionStatus string

const (
	ContributionPending  ContributionStatus = "pending"
	ContributionVerified ContributionStatus = "verified"
	ContributionPaid     ContributionStatus = "paid"
)

// Valid reports whether the status is one of the known milestones.
func (s ContributionStatus) Valid() bool {
	switch s {
	case ContributionPending, ContributionVerified, ContributionPaid:
		return true
	}
	return false
}

func (s ContributionStatus) rank() int {
	switch s {
	case ContributionPending:
		return 0
	case ContributionVerified:
		return 1
	case ContributionPaid:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next is a single forward step.
func (s ContributionStatus) CanAdvanceTo(next ContributionStatus) bool {
	return next.rank() == s.rank()+1
}

// Contribution is a research contribution submitted by a member of the collective.
type Contribution struct {
	ID                string             `json:"id"`
	ResearcherAddress string             `json:"researcherAddress"`
	ResearcherID      int64              `json:"researcherId"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	PostURL           string             `json:"postUrl,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
	AttestationID     string             `json:"attestationId,omitempty"`
	Status            ContributionStatus `json:"status"`
	Tags              []string           `json:"tags"`
	ImpactScore       int                `json:"impactScore"`
}

// Attested reports whether an attestation has been linked to the contribution.
func (c Contribution) Attested() bool {
	return c.AttestationID != ""
}

// Clone returns a deep copy so callers never share the tag slice.
func (c Contribution) Clone() Contribution {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return out
}

// ContributionInput carries the user-provided fields of a submission.
type ContributionInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ImpactScore int      `json:"impactScore"`
	PostURL     string   `json:"postUrl,omitempty"`
}

// Normalize trims free-form fields. Tags keep their order.
func (in ContributionInput) Normalize() ContributionInput {
	out := ContributionInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		ImpactScore: in.ImpactScore,
		PostURL:     strings.TrimSpace(in.PostURL),
	}
	if len(in.Tags) > 0 {
		out.Tags = make([]string, 0, len(in.Tags))
		for _, tag := range in.Tags {
			out.Tags = append(out.Tags, strings.TrimSpace(tag))
		}
	}
	return out
}

// Validate checks a normalized input. It never mutates anything.
func (in ContributionInput) Validate() error {
	if in.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if in.Description == "" {
		return NewValidationError("description", "must not be empty")
	}
	if len(in.Tags) > MaxTags {
		return NewValidationError("tags", "at most 5 tags are allowed")
	}
	seen := make(map[string]struct{}, len(in.Tags))
	for _, tag := range in.Tags {
		if tag == "" {
			return NewValidationError("tags", "tags must not be empty")
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			return NewValidationError("tags", "duplicate tag "+tag)
		}
		seen[key] = struct{}{}
	}
	if in.ImpactScore < MinImpactScore || in.ImpactScore > MaxImpactScore {
		return NewValidationError("impactScore", "must be between 1 and 10")
	}
	if in.PostURL != "" {
		parsed, err := url.Parse(in.PostURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return NewValidationError("postUrl", "must be an absolute http(s) url")
		}
	}
	return nil
}

// Identity is the researcher as supplied by the identity source.
type Identity struct {
	ID          int64  `json:"id" yaml:"id"`
	Address     string `json:"address" yaml:"address"`
	Handle      string `json:"handle" yaml:"handle"`
	DisplayName string `json:"displayName" yaml:"displayName"`
}

// Validate ensures the identity can be attributed on-chain.
func (i Identity) Validate() error {
	if i.ID <= 0 {
		return NewValidationError("researcherId", "must be positive")
	}
	if !common.IsHexAddress(i.Address) {
		return NewValidationError("researcherAddress", "must be a hex chain address")
	}
	return nil
}
