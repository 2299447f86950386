// Package peersync periodically pulls every reachable peer's chain into the
// node's registry and runs consensus over the fresh snapshots.
package peersync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/internal/peers"
	"github.com/jmerrifield20/gridledger/pkg/client"
	"github.com/jmerrifield20/gridledger/pkg/peeraddr"
)

// Config holds peer sync configuration.
type Config struct {
	SyncInterval  time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
	Concurrency   int
}

// PeerLister exposes the registered peers and accepts status updates.
type PeerLister interface {
	Addresses() []string
	MarkStatus(address string, status peers.Status) error
}

// SnapshotSink receives pulled chains and resolves conflicts afterwards.
type SnapshotSink interface {
	RecordPeerSnapshot(address string, blocks []*chain.Block) error
	ResolveConflicts() (bool, error)
}

// ChainFetcher pulls the full chain of the node at base.
type ChainFetcher func(ctx context.Context, base string) ([]*chain.Block, error)

// MetricsRecordFunc is an optional callback for recording pull results.
type MetricsRecordFunc func(success bool)

// Syncer runs periodic peer chain pulls.
type Syncer struct {
	peers      PeerLister
	sink       SnapshotSink
	fetch      ChainFetcher
	failCounts map[string]int
	mu         sync.Mutex
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Syncer that pulls chains over HTTP with the gridledger SDK.
func New(lister PeerLister, sink SnapshotSink, cfg Config, logger *zap.Logger) *Syncer {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 10
	}

	return &Syncer{
		peers:      lister,
		sink:       sink,
		fetch:      HTTPFetcher(cfg.ProbeTimeout),
		failCounts: make(map[string]int),
		cfg:        cfg,
		logger:     logger,
	}
}

// SetFetcher replaces the chain fetcher.
func (s *Syncer) SetFetcher(fn ChainFetcher) {
	s.fetch = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (s *Syncer) SetMetricsRecord(fn MetricsRecordFunc) {
	s.onMetrics = fn
}

// Start runs the sync loop until ctx is cancelled.
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			roundCtx, cancel := context.WithTimeout(ctx, s.cfg.SyncInterval)
			s.SyncAll(roundCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// SyncAll pulls every HTTP-reachable peer with bounded concurrency, then
// runs one consensus round. It reports whether the local chain was replaced.
func (s *Syncer) SyncAll(ctx context.Context) bool {
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	var pulled int
	var pulledMu sync.Mutex

	for _, addr := range s.peers.Addresses() {
		base, ok := peeraddr.HTTPBase(addr)
		if !ok {
			continue
		}

		wg.Add(1)
		go func(addr, base string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if s.syncPeer(ctx, addr, base) {
				pulledMu.Lock()
				pulled++
				pulledMu.Unlock()
			}
		}(addr, base)
	}
	wg.Wait()

	if pulled == 0 {
		return false
	}
	replaced, err := s.sink.ResolveConflicts()
	if err != nil {
		s.logger.Warn("peersync: resolve conflicts", zap.Error(err))
		return false
	}
	return replaced
}

func (s *Syncer) syncPeer(ctx context.Context, addr, base string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	blocks, err := s.fetch(probeCtx, base)
	if err == nil {
		err = s.sink.RecordPeerSnapshot(addr, blocks)
	}
	success := err == nil

	if s.onMetrics != nil {
		s.onMetrics(success)
	}

	s.mu.Lock()
	prevCount := s.failCounts[addr]
	if success {
		s.failCounts[addr] = 0
	} else {
		s.failCounts[addr]++
	}
	count := s.failCounts[addr]
	s.mu.Unlock()

	switch {
	case success:
		if prevCount >= s.cfg.FailThreshold {
			s.logger.Info("peersync: peer recovered", zap.String("peer", addr))
		}
		s.markStatus(addr, peers.StatusHealthy)
	case count == s.cfg.FailThreshold:
		// Transition: healthy → degraded (exactly at threshold)
		s.markStatus(addr, peers.StatusDegraded)
		s.logger.Warn("peersync: peer degraded",
			zap.String("peer", addr),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	default:
		s.logger.Debug("peersync: pull failed", zap.String("peer", addr), zap.Error(err))
	}
	return success
}

func (s *Syncer) markStatus(addr string, status peers.Status) {
	if err := s.peers.MarkStatus(addr, status); err != nil {
		s.logger.Warn("peersync: update status", zap.String("peer", addr), zap.Error(err))
	}
}

// HTTPFetcher returns a ChainFetcher backed by the gridledger SDK.
func HTTPFetcher(timeout time.Duration) ChainFetcher {
	return func(ctx context.Context, base string) ([]*chain.Block, error) {
		c, err := client.New(base, client.WithTimeout(timeout))
		if err != nil {
			return nil, err
		}
		snap, err := c.Chain(ctx)
		if err != nil {
			return nil, fmt.Errorf("pull chain from %s: %w", base, err)
		}
		return snap.Chain, nil
	}
}
