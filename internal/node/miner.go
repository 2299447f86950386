package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

type mineJob struct {
	ctx  context.Context
	done chan mineOutcome
}

type mineOutcome struct {
	result MineResult
	err    error
}

// Mine runs one mining cycle on the mining worker and waits for its outcome.
// With an empty pool it returns MineResult{Mined: false} and no error.
//
// Drained transactions are requeued at the head of the pool whenever the
// cycle fails to commit (cancellation, timeout, or a rejected append), so a
// failed cycle never loses pending transactions.
func (n *Node) Mine(ctx context.Context) (MineResult, error) {
	job := mineJob{ctx: ctx, done: make(chan mineOutcome, 1)}

	select {
	case n.jobs <- job:
	case <-ctx.Done():
		return MineResult{}, stopReason(ctx.Err())
	case <-n.stopped:
		return MineResult{}, ErrClosed
	}

	out := <-job.done
	return out.result, out.err
}

// StartAutoMine triggers a mining cycle every interval while transactions
// are pending, until ctx is cancelled.
func (n *Node) StartAutoMine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n.pool.Len() == 0 {
					continue
				}
				if _, err := n.Mine(ctx); err != nil && !errors.Is(err, chain.ErrMiningCanceled) {
					n.logger.Warn("auto-mine cycle failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (n *Node) runMiner() {
	defer close(n.stopped)
	for {
		select {
		case job := <-n.jobs:
			res, err := n.mineOnce(job.ctx)
			job.done <- mineOutcome{result: res, err: err}
		case <-n.life.Done():
			return
		}
	}
}

func (n *Node) mineOnce(jobCtx context.Context) (MineResult, error) {
	// Preempt on caller cancellation or node shutdown, whichever comes first.
	ctx, cancel := context.WithCancel(jobCtx)
	defer cancel()
	stop := context.AfterFunc(n.life, cancel)
	defer stop()

	if n.cfg.MiningTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, n.cfg.MiningTimeout)
		defer cancelTimeout()
	}

	txs := n.pool.Drain()
	if len(txs) == 0 {
		return MineResult{}, nil
	}
	start := time.Now()

	tip, err := n.ledger.Tip()
	if err != nil {
		n.pool.Requeue(txs)
		return MineResult{}, err
	}

	candidate := &chain.Block{
		Index:        tip.Index + 1,
		Transactions: txs,
		Timestamp:    chain.Now(),
		PreviousHash: tip.Hash,
	}

	proof, err := n.ledger.ProofOfWork(ctx, candidate)
	if err != nil {
		n.pool.Requeue(txs)
		n.recordMine(resultLabel(err), start)
		n.logger.Warn("mining stopped",
			zap.Int("index", candidate.Index),
			zap.Int("transactions", len(txs)),
			zap.Error(err),
		)
		return MineResult{}, err
	}

	if err := n.ledger.Append(candidate, proof); err != nil {
		// The chain moved underneath the search (e.g. a peer chain was installed).
		n.pool.Requeue(txs)
		n.recordMine("rejected", start)
		n.logger.Warn("mined block rejected", zap.Int("index", candidate.Index), zap.Error(err))
		return MineResult{}, err
	}

	n.recordMine("mined", start)
	n.logger.Info("block mined",
		zap.Int("index", candidate.Index),
		zap.Int("transactions", len(txs)),
		zap.Uint64("nonce", candidate.Nonce),
		zap.String("hash", candidate.Hash),
		zap.Duration("took", time.Since(start)),
	)
	n.observePool()
	n.observeChain()
	n.saveArchive()

	if n.announcer != nil {
		if addrs := n.registry.Addresses(); len(addrs) > 0 {
			go n.announcer.Announce(n.life, candidate, addrs)
		}
	}

	// Make sure we hold the longest chain before reporting.
	if _, err := n.ResolveConflicts(); err != nil {
		n.logger.Warn("consensus after mining", zap.Error(err))
	}

	return MineResult{Mined: true, NewIndex: candidate.Index}, nil
}

func (n *Node) recordMine(result string, start time.Time) {
	if n.metrics.BlockMined != nil {
		n.metrics.BlockMined(result, time.Since(start))
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, chain.ErrMiningTimedOut):
		return "timeout"
	case errors.Is(err, chain.ErrMiningCanceled):
		return "canceled"
	default:
		return "error"
	}
}

func stopReason(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", chain.ErrMiningTimedOut, err)
	}
	return fmt.Errorf("%w: %v", chain.ErrMiningCanceled, err)
}
