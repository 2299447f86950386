// Package handler exposes a gridledger node over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/gridledger/internal/chain"
	"github.com/jmerrifield20/gridledger/internal/identity"
	"github.com/jmerrifield20/gridledger/internal/node"
	"github.com/jmerrifield20/gridledger/internal/peers"
)

// nodeSvc is the interface expected by NodeHandler, satisfied by *node.Node.
type nodeSvc interface {
	SubmitTransaction(author string, content map[string]any) (chain.Transaction, error)
	Mine(ctx context.Context) (node.MineResult, error)
	Snapshot() node.Snapshot
	RegisterPeer(address string) (node.Snapshot, error)
	RecordPeerSnapshot(address string, blocks []*chain.Block) error
	IngestRemoteBlock(desc *chain.Block) (string, int)
	PendingTransactions() []chain.Transaction
	ResolveConflicts() (bool, error)
	Ledger() *chain.Ledger
	Registry() *peers.Registry
}

// NodeHandler serves the node's HTTP routes.
type NodeHandler struct {
	node      nodeSvc
	tokens    *identity.OperatorTokens
	mineLimit *RateLimit
	logger    *zap.Logger
}

// NewNodeHandler creates a NodeHandler. tokens may be nil to leave operator
// routes unauthenticated.
func NewNodeHandler(n nodeSvc, tokens *identity.OperatorTokens, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{node: n, tokens: tokens, logger: logger}
}

// SetMineLimit throttles /mine per client on top of the router-wide limit.
// Must be called before Register.
func (h *NodeHandler) SetMineLimit(rl *RateLimit) { h.mineLimit = rl }

// Register mounts the node routes on the given router group.
func (h *NodeHandler) Register(rg *gin.RouterGroup) {
	mine := []gin.HandlerFunc{identity.RequireOperator(h.tokens, identity.ScopeMine)}
	if h.mineLimit != nil {
		mine = append(mine, h.mineLimit.Middleware())
	}
	mine = append(mine, h.Mine)
	peersWrite := identity.RequireOperator(h.tokens, identity.ScopePeers)
	consensus := identity.RequireOperator(h.tokens, identity.ScopeConsensus)

	rg.POST("/new_transaction", h.NewTransaction)
	rg.GET("/mine", mine...)
	rg.POST("/mine", mine...)
	rg.GET("/chain", h.Chain)
	rg.GET("/chain/verify", h.Verify)
	rg.GET("/pending_tx", h.PendingTx)
	rg.POST("/add_block", h.AddBlock)
	rg.POST("/register_node", peersWrite, h.RegisterNode)
	rg.GET("/peers", h.Peers)
	rg.POST("/peers/snapshot", peersWrite, h.PeerSnapshot)
	rg.POST("/consensus", consensus, h.Consensus)
}

// Request types.

type newTransactionRequest struct {
	Author  string         `json:"author"`
	Content map[string]any `json:"content"`
}

type registerNodeRequest struct {
	Address string `json:"address"`
}

type peerSnapshotRequest struct {
	Address string         `json:"address"`
	Chain   []*chain.Block `json:"chain"`
}

// Handlers.

// NewTransaction handles POST /new_transaction.
func (h *NodeHandler) NewTransaction(c *gin.Context) {
	var req newTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": node.MsgInvalidTx})
		return
	}
	if _, err := h.node.SubmitTransaction(req.Author, req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": node.MsgInvalidTx})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": node.MsgSuccess})
}

// Mine handles GET|POST /mine. It blocks until the mining cycle finishes.
func (h *NodeHandler) Mine(c *gin.Context) {
	res, err := h.node.Mine(c.Request.Context())
	if err != nil {
		status, msg := mineErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("mine", zap.Error(err))
		}
		c.JSON(status, gin.H{"message": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   res.Message(),
		"mined":     res.Mined,
		"new_index": res.NewIndex,
	})
}

func mineErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chain.ErrMiningTimedOut):
		return http.StatusGatewayTimeout, node.MsgMiningTimedOut
	case errors.Is(err, chain.ErrMiningCanceled), errors.Is(err, node.ErrClosed):
		return http.StatusServiceUnavailable, node.MsgMiningCanceled
	case errors.Is(err, chain.ErrLinkageMismatch), errors.Is(err, chain.ErrInvalidProof):
		return http.StatusConflict, node.MsgMinedDiscarded
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// Chain handles GET /chain and returns the full chain snapshot.
func (h *NodeHandler) Chain(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.Snapshot())
}

// Verify handles GET /chain/verify and audits the local chain.
func (h *NodeHandler) Verify(c *gin.Context) {
	if err := h.node.Ledger().Verify(c.Request.Context()); err != nil {
		h.logger.Warn("chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "length": h.node.Ledger().Len()})
}

// PendingTx handles GET /pending_tx.
func (h *NodeHandler) PendingTx(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.PendingTransactions())
}

// AddBlock handles POST /add_block with a block mined by a peer.
func (h *NodeHandler) AddBlock(c *gin.Context) {
	var desc chain.Block
	if err := c.ShouldBindJSON(&desc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": node.MsgBlockDiscarded})
		return
	}
	msg, status := h.node.IngestRemoteBlock(&desc)
	c.JSON(status, gin.H{"message": msg})
}

// RegisterNode handles POST /register_node. The response is the node's
// snapshot so that the new peer can bootstrap from it.
func (h *NodeHandler) RegisterNode(c *gin.Context) {
	var req registerNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": node.MsgInvalidData})
		return
	}
	snap, err := h.node.RegisterPeer(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": node.MsgInvalidData, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Peers handles GET /peers.
func (h *NodeHandler) Peers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"peers": h.node.Registry().Peers()})
}

// PeerSnapshot handles POST /peers/snapshot, storing a chain pulled from a
// registered peer for the next consensus round.
func (h *NodeHandler) PeerSnapshot(c *gin.Context) {
	var req peerSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": node.MsgInvalidData})
		return
	}
	if err := h.node.RecordPeerSnapshot(req.Address, req.Chain); err != nil {
		switch {
		case errors.Is(err, peers.ErrUnknownPeer):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"message": node.MsgInvalidData, "error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": node.MsgSuccess, "length": len(req.Chain)})
}

// Consensus handles POST /consensus.
func (h *NodeHandler) Consensus(c *gin.Context) {
	replaced, err := h.node.ResolveConflicts()
	if err != nil {
		h.logger.Error("resolve conflicts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "consensus failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replaced": replaced, "length": h.node.Ledger().Len()})
}
