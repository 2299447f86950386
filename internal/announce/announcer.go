// Package announce pushes freshly mined blocks to a node's peers.
package announce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/pkg/client"
	"github.com/jmerrifield20/gridledger/pkg/peeraddr"
)

// BlockPoster offers a block to the node at base.
type BlockPoster func(ctx context.Context, base string, block *chain.Block) (accepted bool, message string, err error)

// MetricsRecordFunc is an optional callback for recording delivery results.
type MetricsRecordFunc func(success bool)

// Announcer fans a mined block out to peers over POST /add_block.
type Announcer struct {
	post      BlockPoster
	timeout   time.Duration
	delays    []time.Duration
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates an Announcer. Each delivery attempt is bounded by timeout.
func New(timeout time.Duration, logger *zap.Logger) *Announcer {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Announcer{
		post:    HTTPPoster(timeout),
		timeout: timeout,
		// Retry with backoff: immediately, then 1s, then 5s.
		delays: []time.Duration{0, time.Second, 5 * time.Second},
		logger: logger,
	}
}

// SetPoster replaces the block poster.
func (a *Announcer) SetPoster(fn BlockPoster) { a.post = fn }

// SetRetryDelays replaces the delays before each delivery attempt.
func (a *Announcer) SetRetryDelays(delays []time.Duration) { a.delays = delays }

// SetMetricsRecord configures the metrics recording callback.
func (a *Announcer) SetMetricsRecord(fn MetricsRecordFunc) { a.onMetrics = fn }

// Announce delivers block to every HTTP-reachable peer and waits for all
// deliveries to finish. Non-HTTP peer addresses are skipped.
func (a *Announcer) Announce(ctx context.Context, block *chain.Block, peers []string) {
	var wg sync.WaitGroup
	for _, addr := range peers {
		base, ok := peeraddr.HTTPBase(addr)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(base string) {
			defer wg.Done()
			a.deliver(ctx, base, block)
		}(base)
	}
	wg.Wait()
}

// deliver offers the block to a single peer with retries. A peer that
// answers and rejects the block is not retried: its chain has diverged and
// consensus will reconcile it.
func (a *Announcer) deliver(ctx context.Context, base string, block *chain.Block) {
	for attempt, delay := range a.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
		accepted, msg, err := a.post(attemptCtx, base, block)
		cancel()

		if a.onMetrics != nil {
			a.onMetrics(err == nil && accepted)
		}

		switch {
		case err == nil && accepted:
			a.logger.Debug("announce: block accepted",
				zap.String("peer", base),
				zap.Int("index", block.Index),
			)
			return
		case err == nil:
			a.logger.Info("announce: block rejected by peer",
				zap.String("peer", base),
				zap.Int("index", block.Index),
				zap.String("message", msg),
			)
			return
		default:
			a.logger.Warn("announce: delivery failed",
				zap.String("peer", base),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
	}
}

// HTTPPoster returns a BlockPoster backed by the gridledger SDK.
func HTTPPoster(timeout time.Duration) BlockPoster {
	return func(ctx context.Context, base string, block *chain.Block) (bool, string, error) {
		c, err := client.New(base, client.WithTimeout(timeout))
		if err != nil {
			return false, "", err
		}
		return c.AddBlock(ctx, block)
	}
}
