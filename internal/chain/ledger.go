package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Ledger is an in-memory, thread-safe proof-of-work chain.
type Ledger struct {
	mu     sync.RWMutex
	blocks []*Block

	difficulty  int
	prefix      string
	genesisHash string
	maxAttempts uint64
	logger      *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxAttempts bounds every ProofOfWork call to n nonce attempts.
// Zero means unbounded.
func WithMaxAttempts(n uint64) Option {
	return func(l *Ledger) { l.maxAttempts = n }
}

// New creates a Ledger with an empty chain. Call CreateGenesis before use.
// difficulty is the number of leading zero hex characters a block hash needs.
func New(difficulty int, logger *zap.Logger, opts ...Option) *Ledger {
	if difficulty < 0 {
		difficulty = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		difficulty:  difficulty,
		prefix:      strings.Repeat("0", difficulty),
		genesisHash: GenesisHash(),
		logger:      logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// NewWithGenesis is New followed by CreateGenesis.
func NewWithGenesis(difficulty int, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	l := New(difficulty, logger, opts...)
	if err := l.CreateGenesis(); err != nil {
		return nil, err
	}
	return l, nil
}

// Difficulty returns the ledger's fixed difficulty.
func (l *Ledger) Difficulty() int { return l.difficulty }

// CreateGenesis commits the sentinel block. Its hash is computed without a
// proof-of-work requirement.
func (l *Ledger) CreateGenesis() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.blocks) > 0 {
		return ErrGenesisExists
	}

	genesis := NewGenesis()
	hash, err := genesis.ComputeHash()
	if err != nil {
		return fmt.Errorf("hash genesis: %w", err)
	}
	genesis.Hash = hash
	l.blocks = append(l.blocks, genesis)
	return nil
}

// Tip returns a copy of the last committed block.
func (l *Ledger) Tip() (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 {
		return nil, ErrEmptyChain
	}
	return l.blocks[len(l.blocks)-1].clone(), nil
}

// Len returns the number of committed blocks, genesis included.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// Blocks returns a copy of the full committed chain.
func (l *Ledger) Blocks() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return CloneBlocks(l.blocks)
}

// Get returns a copy of the block at index.
func (l *Ledger) Get(index int) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.blocks) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	return l.blocks[index].clone(), nil
}

// IsValidProof reports whether claimed meets the difficulty predicate and
// equals the hash of block's contents.
func (l *Ledger) IsValidProof(block *Block, claimed string) bool {
	if !l.meetsDifficulty(claimed) {
		return false
	}
	computed, err := block.Unsealed().ComputeHash()
	if err != nil {
		return false
	}
	return computed == claimed
}

// Append commits block with the given proof as its hash. The block must
// extend the current tip and the proof must be valid for it.
func (l *Ledger) Append(block *Block, proof string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.blocks) == 0 {
		return ErrEmptyChain
	}
	tip := l.blocks[len(l.blocks)-1]

	if block.PreviousHash != tip.Hash {
		return fmt.Errorf("%w: previous hash %q, tip %q", ErrLinkageMismatch, block.PreviousHash, tip.Hash)
	}
	if block.Index != tip.Index+1 {
		return fmt.Errorf("%w: index %d does not follow tip index %d", ErrLinkageMismatch, block.Index, tip.Index)
	}
	if !l.IsValidProof(block, proof) {
		return fmt.Errorf("%w: block %d", ErrInvalidProof, block.Index)
	}

	committed := block.clone()
	committed.Hash = proof
	block.Hash = proof
	l.blocks = append(l.blocks, committed)

	l.logger.Debug("block appended",
		zap.Int("index", committed.Index),
		zap.Int("transactions", len(committed.Transactions)),
		zap.String("hash", committed.Hash),
	)
	return nil
}

// ValidateChain walks blocks from genesis and checks indices, linkage,
// hashes and proofs. The first block must be the sentinel genesis (no
// transactions, timestamp 0, nonce 0), which is exempt from the difficulty
// predicate. blocks is not modified.
func (l *Ledger) ValidateChain(blocks []*Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	prevHash := GenesisPreviousHash
	for i, b := range blocks {
		if b == nil {
			return fmt.Errorf("%w: block %d is missing", ErrLinkageMismatch, i)
		}
		if b.Index != i {
			return fmt.Errorf("%w: block at position %d has index %d", ErrLinkageMismatch, i, b.Index)
		}
		if b.PreviousHash != prevHash {
			return fmt.Errorf("%w: hash chain broken at index %d", ErrLinkageMismatch, i)
		}

		computed, err := b.Unsealed().ComputeHash()
		if err != nil {
			return err
		}
		if computed != b.Hash {
			return fmt.Errorf("%w: block %d has invalid hash", ErrInvalidProof, i)
		}
		if i == 0 && b.Hash != l.genesisHash {
			return fmt.Errorf("%w: got hash %q", ErrInvalidGenesis, b.Hash)
		}
		if i > 0 && !l.meetsDifficulty(b.Hash) {
			return fmt.Errorf("%w: block %d does not meet difficulty %d", ErrInvalidProof, i, l.difficulty)
		}
		prevHash = b.Hash
	}
	return nil
}

// IsValidChain is ValidateChain reduced to a boolean.
func (l *Ledger) IsValidChain(blocks []*Block) bool {
	return l.ValidateChain(blocks) == nil
}

// Verify audits the ledger's own chain.
func (l *Ledger) Verify(_ context.Context) error {
	return l.ValidateChain(l.Blocks())
}

// Replace validates blocks and installs them as the new chain in a single
// swap. The candidate must be strictly longer than the chain at swap time.
func (l *Ledger) Replace(blocks []*Block) error {
	if err := l.ValidateChain(blocks); err != nil {
		return err
	}
	replacement := CloneBlocks(blocks)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(replacement) <= len(l.blocks) {
		return fmt.Errorf("%w: %d <= %d", ErrChainNotLonger, len(replacement), len(l.blocks))
	}
	old := len(l.blocks)
	l.blocks = replacement

	l.logger.Info("chain replaced",
		zap.Int("old_length", old),
		zap.Int("new_length", len(replacement)),
	)
	return nil
}

func (l *Ledger) meetsDifficulty(hash string) bool {
	return hash != "" && strings.HasPrefix(hash, l.prefix)
}
