package chain

import "errors"

var (
	// ErrInvalidTransaction is returned when a transaction lacks an author or content.
	ErrInvalidTransaction = errors.New("invalid transaction data")

	// ErrLinkageMismatch is returned when a block does not extend the current tip.
	ErrLinkageMismatch = errors.New("block does not link to the chain tip")

	// ErrInvalidProof is returned when a claimed hash fails the difficulty
	// predicate or does not match the block contents.
	ErrInvalidProof = errors.New("invalid proof of work")

	// ErrInvalidGenesis is returned when a chain does not start with the
	// sentinel genesis block.
	ErrInvalidGenesis = errors.New("chain does not start with the genesis block")

	// ErrEmptyChain is returned when an operation needs a tip before genesis exists.
	ErrEmptyChain = errors.New("chain is empty")

	// ErrGenesisExists is returned by CreateGenesis on a ledger that already has blocks.
	ErrGenesisExists = errors.New("genesis block already exists")

	// ErrTamperedChainDump aborts chain reconstruction from a dump.
	ErrTamperedChainDump = errors.New("the chain dump is tampered")

	// ErrPeerChainInvalid marks a peer snapshot that failed validation.
	ErrPeerChainInvalid = errors.New("peer chain is invalid")

	// ErrChainNotLonger is returned by Replace when the candidate chain is not
	// strictly longer than the current one.
	ErrChainNotLonger = errors.New("replacement chain is not longer than the local chain")

	// ErrMiningCanceled is returned when proof-of-work is preempted.
	ErrMiningCanceled = errors.New("mining canceled")

	// ErrMiningTimedOut is returned when proof-of-work exceeds its time or attempt budget.
	ErrMiningTimedOut = errors.New("mining timed out")
)
