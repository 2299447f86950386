package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// GenesisPreviousHash is the sentinel previous hash of the genesis block.
const GenesisPreviousHash = "0"

// Transaction is a payload admitted to the pool and later sealed into a block.
type Transaction struct {
	Author    string         `json:"author"`
	Content   map[string]any `json:"content"`
	Timestamp float64        `json:"timestamp"` // seconds since epoch, set on admission
}

// Block is a single unit of the chain.
type Block struct {
	Index        int           `json:"index"`
	Transactions []Transaction `json:"transactions"`
	Timestamp    float64       `json:"timestamp"`
	PreviousHash string        `json:"previous_hash"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash,omitempty"`
}

// Now returns the current time as fractional seconds since epoch.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewGenesis returns the unhashed sentinel block.
func NewGenesis() *Block {
	return &Block{
		Index:        0,
		Transactions: []Transaction{},
		Timestamp:    0,
		PreviousHash: GenesisPreviousHash,
		Nonce:        0,
	}
}

// GenesisHash returns the hash of the sentinel genesis block.
var GenesisHash = sync.OnceValue(func() string {
	hash, err := NewGenesis().ComputeHash()
	if err != nil {
		panic(fmt.Sprintf("chain: hash genesis: %v", err))
	}
	return hash
})

// ComputeHash returns the lowercase hex SHA-256 of the block's canonical
// encoding. The encoding is JSON with sorted keys and never includes Hash.
func (b *Block) ComputeHash() (string, error) {
	txs := b.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	// encoding/json sorts map keys, nested content maps included.
	payload, err := json.Marshal(map[string]any{
		"index":         b.Index,
		"nonce":         b.Nonce,
		"previous_hash": b.PreviousHash,
		"timestamp":     b.Timestamp,
		"transactions":  txs,
	})
	if err != nil {
		return "", fmt.Errorf("encode block %d: %w", b.Index, err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Unsealed returns a copy of the block with Hash cleared.
func (b *Block) Unsealed() *Block {
	cp := b.clone()
	cp.Hash = ""
	return cp
}

// Sealed reports whether the block carries a committed hash.
func (b *Block) Sealed() bool { return b.Hash != "" }

func (b *Block) clone() *Block {
	cp := *b
	if b.Transactions != nil {
		cp.Transactions = make([]Transaction, len(b.Transactions))
		copy(cp.Transactions, b.Transactions)
	}
	return &cp
}

// CloneBlocks returns a copy of blocks that shares no block structs with the input.
func CloneBlocks(blocks []*Block) []*Block {
	if blocks == nil {
		return nil
	}
	out := make([]*Block, len(blocks))
	for i, b := range blocks {
		if b != nil {
			out[i] = b.clone()
		}
	}
	return out
}
