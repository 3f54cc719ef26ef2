package payment

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// Simulated settles transfers locally and derives keccak transaction hashes.
type Simulated struct {
	mu    sync.Mutex
	nonce uint64
	fail  func(to string, chain domain.Chain) error
	sent  []Transfer
}

// Transfer is a settled simulated payment.
type Transfer struct {
	To     string
	Amount decimal.Decimal
	Chain  domain.Chain
	TxHash string
}

var _ ports.PaymentService = (*Simulated)(nil)

// NewSimulated builds a payment service that always succeeds.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// FailWith installs a hook that may reject transfers.
func (s *Simulated) FailWith(fn func(to string, chain domain.Chain) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

func (s *Simulated) Send(ctx context.Context, to string, amount decimal.Decimal, chain domain.Chain) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(to, chain); err != nil {
			return "", err
		}
	}

	s.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], s.nonce)
	hash := crypto.Keccak256Hash([]byte(to), []byte(amount.String()), []byte(chain), nonce[:]).Hex()
	s.sent = append(s.sent, Transfer{To: to, Amount: amount, Chain: chain, TxHash: hash})
	return hash, nil
}

// Sent returns a copy of the settled transfers.
func (s *Simulated) Sent() []Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transfer(nil), s.sent...)
}
