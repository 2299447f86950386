package archive_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmerrifield20/gridledger/internal/archive"
	"github.com/jmerrifield20/gridledger/internal/chain"
	"go.uber.org/zap"
)

func TestFileStore_latestBeforeSave(t *testing.T) {
	s := archive.NewFileStore(filepath.Join(t.TempDir(), "chain.json"))
	if _, err := s.Latest(context.Background()); !errors.Is(err, archive.ErrNoDump) {
		t.Errorf("expected ErrNoDump, got %v", err)
	}
}

func TestFileStore_roundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := chain.NewWithGenesis(1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	tip, _ := l.Tip()
	b := &chain.Block{
		Index:        1,
		Transactions: []chain.Transaction{{Author: "a", Content: map[string]any{"payment": 12.5}, Timestamp: 3.25}},
		Timestamp:    4.5,
		PreviousHash: tip.Hash,
	}
	proof, _ := l.ProofOfWork(ctx, b)
	if err := l.Append(b, proof); err != nil {
		t.Fatal(err)
	}

	s := archive.NewFileStore(filepath.Join(t.TempDir(), "nested", "chain.json"))
	if err := s.Save(ctx, l.Blocks()); err != nil {
		t.Fatal(err)
	}

	dump, err := s.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dump) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(dump))
	}
	if err := l.ValidateChain(dump); err != nil {
		t.Errorf("reloaded dump failed validation: %v", err)
	}
}
