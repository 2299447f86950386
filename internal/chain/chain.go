// Package chain implements the proof-of-work block chain at the core of a
// gridledger node.
//
// The chain begins with a deterministic genesis block (index 0, previous hash
// "0", nonce 0) whose hash carries no proof-of-work requirement. Every
// subsequent block records the hash of its predecessor and must carry a hash
// whose hex form starts with Difficulty zero characters, making any tampering
// detectable via ValidateChain.
//
// A Ledger owns one chain. Blocks move through three states: unhashed (Hash
// is empty), proof found (ProofOfWork returned a digest the caller holds),
// and committed (Append accepted the proof and set Hash). Committed blocks
// are never mutated; validation works on unsealed copies.
package chain
