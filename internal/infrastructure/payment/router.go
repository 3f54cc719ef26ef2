package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// Router keeps a mapping from chains to the services that settle on them.
type Router struct {
	mu       sync.RWMutex
	services map[domain.Chain]ports.PaymentService
}

var (
	_ ports.PaymentService    = (*Router)(nil)
	_ ports.AccountAuthorizer = (*Router)(nil)
)

// NewRouter builds an empty router.
func NewRouter() *Router {
	return &Router{services: map[domain.Chain]ports.PaymentService{}}
}

// Register adds or replaces the service for chain.
func (r *Router) Register(chain domain.Chain, svc ports.PaymentService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[chain] = svc
}

// Resolve returns the service for chain or an error if it is absent.
func (r *Router) Resolve(chain domain.Chain) (ports.PaymentService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if svc, ok := r.services[chain]; ok {
		return svc, nil
	}
	return nil, fmt.Errorf("chain %s: %w", chain, domain.ErrUnsupportedChain)
}

// Chains lists the chains with a registered service, in canonical order.
func (r *Router) Chains() []domain.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Chain, 0, len(r.services))
	for _, chain := range domain.SupportedChains {
		if _, ok := r.services[chain]; ok {
			out = append(out, chain)
		}
	}
	return out
}

// Send dispatches to the service registered for chain.
func (r *Router) Send(ctx context.Context, to string, amount decimal.Decimal, chain domain.Chain) (string, error) {
	svc, err := r.Resolve(chain)
	if err != nil {
		return "", err
	}
	return svc.Send(ctx, to, amount, chain)
}

// Authorize accepts well-formed addresses on chains that have a service.
func (r *Router) Authorize(_ context.Context, address string, chain domain.Chain) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("address %q is not a valid account", address)
	}
	if _, err := r.Resolve(chain); err != nil {
		return err
	}
	return nil
}
