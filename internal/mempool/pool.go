// Package mempool holds transactions that are waiting to be mined.
package mempool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

// Pool is a FIFO queue of unconfirmed transactions. A single mutex
// serializes all writers so admission order is preserved.
type Pool struct {
	mu    sync.Mutex
	queue []chain.Transaction
	now   func() float64
}

// New creates an empty Pool.
func New() *Pool {
	return &Pool{now: chain.Now}
}

// Submit validates and admits a transaction, stamping its timestamp.
// It returns chain.ErrInvalidTransaction when author or content is missing
// or content cannot be encoded as JSON.
//
// Content is stored in its JSON-decoded form (numbers become float64), so a
// block hashes the same before and after a chain dump round-trip.
func (p *Pool) Submit(author string, content map[string]any) (chain.Transaction, error) {
	if author == "" || len(content) == 0 {
		return chain.Transaction{}, chain.ErrInvalidTransaction
	}
	normalized, err := normalize(content)
	if err != nil {
		return chain.Transaction{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx := chain.Transaction{
		Author:    author,
		Content:   normalized,
		Timestamp: p.now(),
	}
	p.queue = append(p.queue, tx)
	return tx, nil
}

// Drain removes and returns every queued transaction in admission order.
func (p *Pool) Drain() []chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.queue
	p.queue = nil
	return out
}

// Requeue puts a drained batch back at the head of the queue, ahead of
// anything submitted since the drain.
func (p *Pool) Requeue(txs []chain.Transaction) {
	if len(txs) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	merged := make([]chain.Transaction, 0, len(txs)+len(p.queue))
	merged = append(merged, txs...)
	merged = append(merged, p.queue...)
	p.queue = merged
}

// Pending returns a copy of the queued transactions.
func (p *Pool) Pending() []chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]chain.Transaction, len(p.queue))
	copy(out, p.queue)
	return out
}

// Len returns the number of queued transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func normalize(content map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrInvalidTransaction, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrInvalidTransaction, err)
	}
	return out, nil
}
