// Package node wires the ledger, transaction pool, peer registry and
// consensus resolver into a single gridledger node.
//
// A Node is the only writer of its chain, pool and registry. Mining runs on a
// dedicated worker goroutine so that transaction submission and snapshot
// queries stay responsive while a proof-of-work search is in progress.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/archive"
	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/internal/consensus"
	"github.com/jmerrifield20/gridledger/internal/mempool"
	"github.com/jmerrifield20/gridledger/internal/peers"
)

// ErrClosed is returned by Mine after Close.
var ErrClosed = errors.New("node is closed")

// Config holds node configuration.
type Config struct {
	Difficulty    int           // leading zero hex characters required per block hash
	MaxAttempts   uint64        // nonce attempts per mining cycle; 0 = unbounded
	MiningTimeout time.Duration // wall-clock bound per mining cycle; 0 = unbounded
}

// Metrics receives node events. Nil fields are ignored.
type Metrics struct {
	BlockMined    func(result string, took time.Duration)
	ChainLength   func(length int)
	PendingTxs    func(count int)
	ChainReplaced func()
}

// BlockAnnouncer pushes a freshly mined block to peers.
type BlockAnnouncer interface {
	Announce(ctx context.Context, block *chain.Block, peers []string)
}

// Snapshot is the serialized view of a node: its complete chain and peers.
type Snapshot struct {
	Length int            `json:"length"`
	Chain  []*chain.Block `json:"chain"`
	Peers  []string       `json:"peers"`
}

// Node is a single gridledger node.
type Node struct {
	cfg      Config
	ledger   *chain.Ledger
	pool     *mempool.Pool
	registry *peers.Registry
	resolver *consensus.Resolver

	archive   archive.Store
	announcer BlockAnnouncer
	metrics   Metrics

	jobs    chan mineJob
	life    context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	logger *zap.Logger
}

// New creates a Node with a fresh genesis chain and starts its mining worker.
// Call Close to stop the worker.
func New(cfg Config, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []chain.Option
	if cfg.MaxAttempts > 0 {
		opts = append(opts, chain.WithMaxAttempts(cfg.MaxAttempts))
	}
	ledger, err := chain.NewWithGenesis(cfg.Difficulty, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	life, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:      cfg,
		ledger:   ledger,
		pool:     mempool.New(),
		registry: peers.NewRegistry(),
		resolver: consensus.NewResolver(ledger, logger),
		jobs:     make(chan mineJob),
		life:     life,
		cancel:   cancel,
		stopped:  make(chan struct{}),
		logger:   logger,
	}
	go n.runMiner()
	return n, nil
}

// SetArchive configures where chain dumps are saved after every change.
func (n *Node) SetArchive(s archive.Store) { n.archive = s }

// SetAnnouncer configures the peer block announcer.
func (n *Node) SetAnnouncer(a BlockAnnouncer) { n.announcer = a }

// SetMetrics configures the metrics callbacks.
func (n *Node) SetMetrics(m Metrics) {
	n.metrics = m
	n.observeChain()
	n.observePool()
}

// Close stops the mining worker, preempting any search in progress.
func (n *Node) Close() {
	n.cancel()
	<-n.stopped
}

// Ledger returns the node's ledger.
func (n *Node) Ledger() *chain.Ledger { return n.ledger }

// Registry returns the node's peer registry.
func (n *Node) Registry() *peers.Registry { return n.registry }

// SubmitTransaction admits a transaction to the pool.
func (n *Node) SubmitTransaction(author string, content map[string]any) (chain.Transaction, error) {
	tx, err := n.pool.Submit(author, content)
	if err != nil {
		return chain.Transaction{}, err
	}
	n.observePool()
	return tx, nil
}

// PendingTransactions returns the transactions waiting to be mined.
func (n *Node) PendingTransactions() []chain.Transaction {
	return n.pool.Pending()
}

// RegisterPeer records a peer and returns the node's current snapshot for the
// bootstrap exchange.
func (n *Node) RegisterPeer(address string) (Snapshot, error) {
	added, err := n.registry.Register(address)
	if err != nil {
		return Snapshot{}, err
	}
	if added {
		n.logger.Info("peer registered", zap.String("address", address))
	}
	return n.Snapshot(), nil
}

// RecordPeerSnapshot stores the chain obtained from a registered peer.
func (n *Node) RecordPeerSnapshot(address string, blocks []*chain.Block) error {
	return n.registry.RecordSnapshot(address, blocks)
}

// Snapshot returns the complete committed chain together with the peer list.
func (n *Node) Snapshot() Snapshot {
	blocks := n.ledger.Blocks()
	return Snapshot{
		Length: len(blocks),
		Chain:  blocks,
		Peers:  n.registry.Addresses(),
	}
}

// IngestRemoteBlock verifies a block mined elsewhere and appends it when it
// extends the local tip with a valid proof.
func (n *Node) IngestRemoteBlock(desc *chain.Block) (string, int) {
	if desc == nil {
		return MsgBlockDiscarded, http.StatusBadRequest
	}

	block := desc.Unsealed()
	if err := n.ledger.Append(block, desc.Hash); err != nil {
		n.logger.Info("remote block discarded",
			zap.Int("index", desc.Index),
			zap.String("hash", desc.Hash),
			zap.Error(err),
		)
		return MsgBlockDiscarded, http.StatusBadRequest
	}

	n.logger.Info("remote block added", zap.Int("index", block.Index))
	n.observeChain()
	n.saveArchive()
	return MsgBlockAdded, http.StatusCreated
}

// ResolveConflicts applies the longest-valid-chain rule against the stored
// peer snapshots. It reports whether the local chain was replaced.
func (n *Node) ResolveConflicts() (bool, error) {
	cand, ok := n.resolver.Resolve(n.ledger.Blocks(), n.registry.Snapshots())
	if !ok {
		return false, nil
	}

	if err := n.ledger.Replace(cand.Chain); err != nil {
		if errors.Is(err, chain.ErrChainNotLonger) {
			// The local chain grew past the candidate since Resolve ran.
			n.logger.Info("consensus candidate outgrown", zap.String("peer", cand.Address))
			return false, nil
		}
		return false, fmt.Errorf("install chain from %s: %w", cand.Address, err)
	}

	if n.metrics.ChainReplaced != nil {
		n.metrics.ChainReplaced()
	}
	n.observeChain()
	n.saveArchive()
	return true, nil
}

// Restore replaces the genesis-only chain with the latest archived dump. It
// is a no-op without an archive or when nothing has been archived.
func (n *Node) Restore(ctx context.Context) error {
	if n.archive == nil {
		return nil
	}
	dump, err := n.archive.Latest(ctx)
	if err != nil {
		if errors.Is(err, archive.ErrNoDump) {
			return nil
		}
		return fmt.Errorf("load archived chain: %w", err)
	}

	restored, err := ReconstructChain(dump, n.cfg.Difficulty, n.logger)
	if err != nil {
		return err
	}
	if restored.Len() <= n.ledger.Len() {
		return nil
	}
	if err := n.ledger.Replace(restored.Blocks()); err != nil {
		return fmt.Errorf("install archived chain: %w", err)
	}
	n.logger.Info("chain restored from archive", zap.Int("length", n.ledger.Len()))
	n.observeChain()
	return nil
}

func (n *Node) saveArchive() {
	if n.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(n.life, 10*time.Second)
	defer cancel()
	if err := n.archive.Save(ctx, n.ledger.Blocks()); err != nil {
		n.logger.Warn("archive chain dump", zap.Error(err))
	}
}

func (n *Node) observeChain() {
	if n.metrics.ChainLength != nil {
		n.metrics.ChainLength(n.ledger.Len())
	}
}

func (n *Node) observePool() {
	if n.metrics.PendingTxs != nil {
		n.metrics.PendingTxs(n.pool.Len())
	}
}
