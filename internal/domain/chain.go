package domain

import (
	"fmt"
	"strings"
)

// Chain identifies a supported settlement network.
type Chain string

const (
	ChainBase     Chain = "base"
	ChainCelo     Chain = "celo"
	ChainArbitrum Chain = "arbitrum"
)

// SupportedChains lists settlement networks in display order.
var SupportedChains = []Chain{ChainBase, ChainCelo, ChainArbitrum}

// ParseChain resolves a chain name case-insensitively.
func ParseChain(raw string) (Chain, error) {
	candidate := Chain(strings.ToLower(strings.TrimSpace(raw)))
	for _, chain := range SupportedChains {
		if chain == candidate {
			return chain, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedChain, raw)
}

// ChainID returns the EVM chain id for the network.
func (c Chain) ChainID() int64 {
	switch c {
	case ChainBase:
		return 8453
	case ChainCelo:
		return 42220
	case ChainArbitrum:
		return 42161
	}
	return 0
}
