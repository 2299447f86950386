package node

import "fmt"

// Status messages returned to callers of the node's external interface.
const (
	MsgSuccess        = "Success"
	MsgInvalidTx      = "Invalid transaction data"
	MsgNothingToMine  = "No transactions to mine"
	MsgInvalidData    = "Invalid data"
	MsgBlockAdded     = "Block added to the chain"
	MsgBlockDiscarded = "The block was discarded by the node"
	MsgMiningTimedOut = "Mining timed out"
	MsgMiningCanceled = "Mining canceled"
	MsgMinedDiscarded = "The mined block was discarded by the node"
	msgBlockMinedFmt  = "Block #%d is mined."
)

// MineResult is the outcome of one mining cycle.
type MineResult struct {
	Mined    bool `json:"mined"`
	NewIndex int  `json:"new_index,omitempty"`
}

// Message renders the result the way the node reports it to clients.
func (r MineResult) Message() string {
	if !r.Mined {
		return MsgNothingToMine
	}
	return fmt.Sprintf(msgBlockMinedFmt, r.NewIndex)
}
