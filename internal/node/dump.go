package node

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

// ReconstructChain rebuilds a ledger from a chain dump. The first element must
// carry the genesis hash and is regenerated locally; every following block is
// re-appended against its claimed hash. A dump that fails to replay is
// reported as chain.ErrTamperedChainDump.
func ReconstructChain(dump []*chain.Block, difficulty int, logger *zap.Logger, opts ...chain.Option) (*chain.Ledger, error) {
	if len(dump) == 0 {
		return nil, fmt.Errorf("%w: empty dump", chain.ErrTamperedChainDump)
	}

	if dump[0] == nil || dump[0].Hash != chain.GenesisHash() {
		return nil, fmt.Errorf("%w: %v", chain.ErrTamperedChainDump, chain.ErrInvalidGenesis)
	}

	ledger, err := chain.NewWithGenesis(difficulty, logger, opts...)
	if err != nil {
		return nil, err
	}

	for i, desc := range dump[1:] {
		if desc == nil {
			return nil, fmt.Errorf("%w: block %d missing", chain.ErrTamperedChainDump, i+1)
		}
		if err := ledger.Append(desc.Unsealed(), desc.Hash); err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", chain.ErrTamperedChainDump, desc.Index, err)
		}
	}
	return ledger, nil
}
