package sim

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

// Wallet is an agent's signing identity. Its address is the last 20 bytes of
// the Keccak-256 digest of the public key, hex encoded with a 0x prefix.
type Wallet struct {
	PublicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	Address    string
}

// NewWallet generates a wallet from the given entropy source.
func NewWallet(entropy io.Reader) (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(entropy)
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	return &Wallet{PublicKey: pub, privateKey: priv, Address: AddressOf(pub)}, nil
}

// AddressOf derives the wallet address of a public key.
func AddressOf(pub ed25519.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// Sign signs msg with the wallet's private key.
func (w *Wallet) Sign(msg []byte) []byte {
	return ed25519.Sign(w.privateKey, msg)
}
