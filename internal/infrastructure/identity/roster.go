package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// Roster is a fixed set of researcher identities loaded from configuration.
type Roster struct {
	byID map[int64]domain.Identity
}

var _ ports.IdentitySource = (*Roster)(nil)

// NewRoster validates entries and normalizes addresses to checksum form.
// Duplicate ids or addresses are rejected.
func NewRoster(entries []domain.Identity) (*Roster, error) {
	byID := make(map[int64]domain.Identity, len(entries))
	addresses := make(map[string]int64, len(entries))
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", entry.ID, err)
		}
		entry.Address = common.HexToAddress(entry.Address).Hex()
		if _, dup := byID[entry.ID]; dup {
			return nil, fmt.Errorf("roster entry %d: duplicate id", entry.ID)
		}
		key := strings.ToLower(entry.Address)
		if other, dup := addresses[key]; dup {
			return nil, fmt.Errorf("roster entry %d: address already used by %d", entry.ID, other)
		}
		addresses[key] = entry.ID
		byID[entry.ID] = entry
	}
	return &Roster{byID: byID}, nil
}

// Resolve returns the identity registered under researcherID.
func (r *Roster) Resolve(_ context.Context, researcherID int64) (domain.Identity, error) {
	identity, ok := r.byID[researcherID]
	if !ok {
		return domain.Identity{}, fmt.Errorf("researcher %d: %w", researcherID, domain.ErrNotFound)
	}
	return identity, nil
}

// List returns every identity ordered by id.
func (r *Roster) List(context.Context) ([]domain.Identity, error) {
	out := make([]domain.Identity, 0, len(r.byID))
	for _, identity := range r.byID {
		out = append(out, identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
