// Package peers tracks the peers known to a node and the last chain
// snapshot obtained from each.
package peers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/pkg/peeraddr"
)

var (
	// ErrInvalidAddress is returned for empty or malformed peer addresses.
	ErrInvalidAddress = errors.New("invalid peer address")

	// ErrUnknownPeer is returned when a snapshot arrives for an unregistered peer.
	ErrUnknownPeer = errors.New("unknown peer")
)

// Status is the reachability state of a peer as seen by the sync loop.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Peer is a registered peer.
type Peer struct {
	Address      string    `json:"address"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at,omitempty"`
	ChainLength  int       `json:"chain_length"`
}

// Snapshot is the last chain obtained from a peer. Chain is nil until the
// first snapshot is recorded.
type Snapshot struct {
	Address string
	Chain   []*chain.Block
}

type entry struct {
	peer      Peer
	lastChain []*chain.Block
}

// Registry is a thread-safe, insertion-ordered set of peers keyed by
// normalized address. Registration is idempotent.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register records a peer. It returns false when the address was already
// registered, in which case the stored snapshot is kept.
func (r *Registry) Register(address string) (bool, error) {
	addr, err := peeraddr.Normalize(address)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[addr]; ok {
		return false, nil
	}
	r.entries[addr] = &entry{peer: Peer{
		Address:      addr,
		Status:       StatusUnknown,
		RegisteredAt: time.Now().UTC(),
	}}
	r.order = append(r.order, addr)
	return true, nil
}

// Remove forgets a peer. Removing an unknown peer is a no-op.
func (r *Registry) Remove(address string) {
	addr, err := peeraddr.Normalize(address)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[addr]; !ok {
		return
	}
	delete(r.entries, addr)
	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// RecordSnapshot stores the chain most recently obtained from a peer.
func (r *Registry) RecordSnapshot(address string, blocks []*chain.Block) error {
	addr, err := peeraddr.Normalize(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	e.lastChain = chain.CloneBlocks(blocks)
	e.peer.ChainLength = len(blocks)
	e.peer.LastSeenAt = time.Now().UTC()
	return nil
}

// MarkStatus updates the reachability status of a peer.
func (r *Registry) MarkStatus(address string, status Status) error {
	addr, err := peeraddr.Normalize(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	e.peer.Status = status
	return nil
}

// Addresses returns peer addresses in registration order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Peers returns the peer records in registration order.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.entries[a].peer)
	}
	return out
}

// Snapshots returns every peer's last snapshot in registration order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.order))
	for _, a := range r.order {
		e := r.entries[a]
		out = append(out, Snapshot{Address: a, Chain: chain.CloneBlocks(e.lastChain)})
	}
	return out
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
