package peers_test

import (
	"errors"
	"testing"

	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/internal/peers"
	"go.uber.org/zap"
)

func genesisChain(t *testing.T) []*chain.Block {
	t.Helper()
	l, err := chain.NewWithGenesis(1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return l.Blocks()
}

func TestRegister_idempotent(t *testing.T) {
	r := peers.NewRegistry()

	added, err := r.Register("http://node-a:8000")
	if err != nil || !added {
		t.Fatalf("first register: added=%v err=%v", added, err)
	}
	added, err = r.Register("http://node-a:8000/")
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("re-registering the same address should not add a second entry")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 peer, got %d", r.Len())
	}
}

func TestRegister_keepsSnapshotOnReregister(t *testing.T) {
	r := peers.NewRegistry()
	r.Register("http://node-a:8000")
	if err := r.RecordSnapshot("http://node-a:8000", genesisChain(t)); err != nil {
		t.Fatal(err)
	}

	r.Register("http://node-a:8000")

	snaps := r.Snapshots()
	if len(snaps) != 1 || len(snaps[0].Chain) != 1 {
		t.Errorf("snapshot lost on re-register: %+v", snaps)
	}
}

func TestRegister_invalidAddress(t *testing.T) {
	r := peers.NewRegistry()
	if _, err := r.Register(""); !errors.Is(err, peers.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestRecordSnapshot_unknownPeer(t *testing.T) {
	r := peers.NewRegistry()
	if err := r.RecordSnapshot("http://ghost:1", nil); !errors.Is(err, peers.ErrUnknownPeer) {
		t.Errorf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestSnapshots_registrationOrder(t *testing.T) {
	r := peers.NewRegistry()
	for _, a := range []string{"http://c:1", "http://a:1", "http://b:1"} {
		r.Register(a)
	}

	snaps := r.Snapshots()
	want := []string{"http://c:1", "http://a:1", "http://b:1"}
	for i, s := range snaps {
		if s.Address != want[i] {
			t.Errorf("position %d: got %q, want %q", i, s.Address, want[i])
		}
		if s.Chain != nil {
			t.Errorf("peer %q should have no snapshot yet", s.Address)
		}
	}
}

func TestRemove(t *testing.T) {
	r := peers.NewRegistry()
	r.Register("http://a:1")
	r.Register("http://b:1")
	r.Remove("http://a:1")

	addrs := r.Addresses()
	if len(addrs) != 1 || addrs[0] != "http://b:1" {
		t.Errorf("unexpected addresses after remove: %v", addrs)
	}
}

func TestMarkStatus(t *testing.T) {
	r := peers.NewRegistry()
	r.Register("http://a:1")
	if err := r.MarkStatus("http://a:1", peers.StatusDegraded); err != nil {
		t.Fatal(err)
	}
	if got := r.Peers()[0].Status; got != peers.StatusDegraded {
		t.Errorf("expected degraded, got %q", got)
	}
}

func TestMarkStatus_normalizesAddress(t *testing.T) {
	r := peers.NewRegistry()
	r.Register("http://a:1")
	if err := r.MarkStatus("  HTTP://A:1/ ", peers.StatusHealthy); err != nil {
		t.Fatalf("MarkStatus with unnormalized address: %v", err)
	}
	if got := r.Peers()[0].Status; got != peers.StatusHealthy {
		t.Errorf("expected healthy, got %q", got)
	}
	if err := r.MarkStatus("", peers.StatusHealthy); !errors.Is(err, peers.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if err := r.MarkStatus("http://b:1", peers.StatusHealthy); !errors.Is(err, peers.ErrUnknownPeer) {
		t.Errorf("expected ErrUnknownPeer, got %v", err)
	}
}
