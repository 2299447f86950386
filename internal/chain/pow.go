package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PoWCheckInterval is the number of nonce attempts between cancellation checks.
const PoWCheckInterval = 4096

// ProofOfWork searches for a nonce, starting from zero, whose block hash
// starts with Difficulty zero characters. It sets block.Nonce and returns the
// digest. The search stops with ErrMiningCanceled or ErrMiningTimedOut when
// ctx is done or the attempt budget is spent.
func (l *Ledger) ProofOfWork(ctx context.Context, block *Block) (string, error) {
	block.Nonce = 0

	var attempts uint64
	for {
		if attempts%PoWCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return "", miningStopped(err, block.Index)
			}
		}
		if l.maxAttempts > 0 && attempts >= l.maxAttempts {
			return "", fmt.Errorf("%w: no proof for block %d after %d attempts", ErrMiningTimedOut, block.Index, attempts)
		}

		hash, err := block.ComputeHash()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(hash, l.prefix) {
			return hash, nil
		}
		block.Nonce++
		attempts++
	}
}

func miningStopped(err error, index int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: block %d", ErrMiningTimedOut, index)
	}
	return fmt.Errorf("%w: block %d", ErrMiningCanceled, index)
}
