// Package consensus implements the naive longest-valid-chain rule used to
// reconcile a node's chain with its peers.
package consensus

import (
	"fmt"

	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/internal/peers"
	"go.uber.org/zap"
)

// ChainValidator re-verifies a complete chain from genesis.
type ChainValidator interface {
	ValidateChain(blocks []*chain.Block) error
}

// Candidate is a peer chain selected to replace the local chain.
type Candidate struct {
	Address string
	Chain   []*chain.Block
}

// Resolver selects replacement chains.
type Resolver struct {
	validator ChainValidator
	logger    *zap.Logger
}

// NewResolver creates a Resolver that validates peer chains with validator.
func NewResolver(validator ChainValidator, logger *zap.Logger) *Resolver {
	return &Resolver{validator: validator, logger: logger}
}

// Resolve returns the longest peer chain that is strictly longer than local
// and passes validation. When several share the maximal length, the first in
// snapshot order (peer registration order) wins. ok is false when no peer
// chain qualifies.
func (r *Resolver) Resolve(local []*chain.Block, snapshots []peers.Snapshot) (Candidate, bool) {
	best := Candidate{}
	bestLen := len(local)

	for _, s := range snapshots {
		if len(s.Chain) <= bestLen {
			continue
		}
		if err := r.validator.ValidateChain(s.Chain); err != nil {
			r.logger.Warn("ignoring peer snapshot",
				zap.String("peer", s.Address),
				zap.Int("length", len(s.Chain)),
				zap.Error(fmt.Errorf("%w: %v", chain.ErrPeerChainInvalid, err)),
			)
			continue
		}
		best = Candidate{Address: s.Address, Chain: s.Chain}
		bestLen = len(s.Chain)
	}

	if best.Chain == nil {
		return Candidate{}, false
	}
	r.logger.Info("longer valid peer chain found",
		zap.String("peer", best.Address),
		zap.Int("local_length", len(local)),
		zap.Int("peer_length", bestLen),
	)
	return best, true
}
