package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

// FileStore keeps the latest dump in a single JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Save implements Store. The file is written to a temporary sibling and
// renamed into place.
func (s *FileStore) Save(_ context.Context, dump []*chain.Block) error {
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace dump: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *FileStore) Latest(_ context.Context) ([]*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoDump
		}
		return nil, fmt.Errorf("read dump: %w", err)
	}
	var dump []*chain.Block
	if err := json.Unmarshal(raw, &dump); err != nil {
		return nil, fmt.Errorf("decode dump: %w", err)
	}
	return dump, nil
}
