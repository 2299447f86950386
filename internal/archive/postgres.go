package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

// PostgresStore appends every dump to the chain_dumps table
// (see migrations/001_chain_dumps.up.sql).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, dump []*chain.Block) error {
	if len(dump) == 0 {
		return fmt.Errorf("refusing to archive an empty dump")
	}
	payload, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	tip := dump[len(dump)-1]

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO chain_dumps (length, tip_hash, dump) VALUES ($1, $2, $3)`,
		len(dump), tip.Hash, payload,
	); err != nil {
		return fmt.Errorf("insert chain dump: %w", err)
	}

	s.logger.Debug("chain dump archived",
		zap.Int("length", len(dump)),
		zap.String("tip", tip.Hash),
	)
	return nil
}

// Latest implements Store.
func (s *PostgresStore) Latest(ctx context.Context) ([]*chain.Block, error) {
	var payload []byte
	if err := s.pool.QueryRow(ctx,
		"SELECT dump FROM chain_dumps ORDER BY id DESC LIMIT 1",
	).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDump
		}
		return nil, fmt.Errorf("read latest chain dump: %w", err)
	}

	var dump []*chain.Block
	if err := json.Unmarshal(payload, &dump); err != nil {
		return nil, fmt.Errorf("decode chain dump: %w", err)
	}
	return dump, nil
}

// Prune deletes all but the newest keep dumps and returns the number removed.
func (s *PostgresStore) Prune(ctx context.Context, keep int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chain_dumps WHERE id NOT IN (
			SELECT id FROM chain_dumps ORDER BY id DESC LIMIT $1
		)`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune chain dumps: %w", err)
	}
	return tag.RowsAffected(), nil
}
