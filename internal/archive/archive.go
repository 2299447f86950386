// Package archive stores chain dumps for interchange and warm restarts.
//
// A dump is the ordered list of block descriptors that GET /chain serves.
// The authoritative chain always lives in memory; an archive only ever
// holds copies, and a node restoring from one replays the dump through
// node.ReconstructChain so that a tampered archive is rejected.
//
// Two implementations of the Store interface are provided:
//   - FileStore: a single JSON file, replaced atomically on every save.
//   - PostgresStore: an append-only chain_dumps table.
package archive

import (
	"context"
	"errors"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

// ErrNoDump is returned by Latest when nothing has been saved yet.
var ErrNoDump = errors.New("no chain dump archived")

// Store persists chain dumps.
type Store interface {
	// Save archives a full chain dump.
	Save(ctx context.Context, dump []*chain.Block) error

	// Latest returns the most recently saved dump.
	Latest(ctx context.Context) ([]*chain.Block, error)
}
