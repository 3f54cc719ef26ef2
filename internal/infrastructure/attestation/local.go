package attestation

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/puzpuzpuz/xsync/v4"

	"CollectiveLedger/internal/ports"
)

// LocalGateway issues deterministic keccak256 UIDs without touching a network.
// It is meant for development and tests.
type LocalGateway struct {
	nonce  atomic.Uint64
	issued *xsync.Map[string, bool]
}

var _ ports.AttestationGateway = (*LocalGateway)(nil)

// NewLocalGateway builds an empty gateway.
func NewLocalGateway() *LocalGateway {
	return &LocalGateway{issued: xsync.NewMap[string, bool]()}
}

// Attest hashes the encoded payload together with the attester and a nonce.
func (g *LocalGateway) Attest(ctx context.Context, payload ports.AttestationPayload, attester string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := EncodePayload(payload)
	if err != nil {
		return "", err
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], g.nonce.Add(1))

	uid := crypto.Keccak256Hash(
		[]byte(payload.ContributionID),
		[]byte(payload.Recipient),
		[]byte(attester),
		[]byte(data),
		nonce[:],
	).Hex()
	g.issued.Store(uid, true)
	return uid, nil
}

// Verify reports whether uid was issued here and not revoked.
func (g *LocalGateway) Verify(_ context.Context, attestationID string) (bool, error) {
	valid, ok := g.issued.Load(attestationID)
	return ok && valid, nil
}

// Revoke marks a previously issued uid as revoked.
func (g *LocalGateway) Revoke(attestationID string) error {
	if _, ok := g.issued.Load(attestationID); !ok {
		return fmt.Errorf("attestation %s was not issued", attestationID)
	}
	g.issued.Store(attestationID, false)
	return nil
}
