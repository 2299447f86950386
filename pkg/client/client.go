// Package client provides the gridledger Go SDK for talking to a node's
// HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmerrifield20/gridledger/internal/chain"
)

// maxBody bounds response bodies. Chain snapshots grow with the chain.
const maxBody = 64 << 20

var (
	// ErrUnauthorized is returned when the node rejects the operator token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx response from a node.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("node returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known status codes onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// Snapshot is a node's full chain together with its peers.
type Snapshot struct {
	Length int            `json:"length"`
	Chain  []*chain.Block `json:"chain"`
	Peers  []string       `json:"peers"`
}

// MineResult is the outcome of a mine request.
type MineResult struct {
	Message  string `json:"message"`
	Mined    bool   `json:"mined"`
	NewIndex int    `json:"new_index"`
}

// VerifyResult is the outcome of a chain self-audit.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Length int    `json:"length,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ConsensusResult is the outcome of a consensus round.
type ConsensusResult struct {
	Replaced bool `json:"replaced"`
	Length   int  `json:"length"`
}

// Peer is a peer record as reported by a node.
type Peer struct {
	Address      string    `json:"address"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	ChainLength  int       `json:"chain_length"`
}

// Client is the gridledger SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout. Mining requests block until the
// node finishes a cycle, so callers that mine at high difficulty need more
// than the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// WithBearerToken attaches an operator token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the node at base, e.g. "http://localhost:8000".
//
//	c, err := client.New("http://localhost:8000",
//	    client.WithBearerToken(token),
//	    client.WithTimeout(2*time.Minute),
//	)
func New(base string, opts ...Option) (*Client, error) {
	if base == "" {
		return nil, errors.New("node address is required")
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Base returns the node address the client talks to.
func (c *Client) Base() string { return c.base }

// SubmitTransaction posts a transaction to the node's pool.
func (c *Client) SubmitTransaction(ctx context.Context, author string, content map[string]any) error {
	body := map[string]any{"author": author, "content": content}
	return c.call(ctx, http.MethodPost, "/new_transaction", body, nil)
}

// Mine asks the node to mine its pending transactions and waits for the result.
func (c *Client) Mine(ctx context.Context) (*MineResult, error) {
	var res MineResult
	if err := c.call(ctx, http.MethodPost, "/mine", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Chain fetches the node's full chain snapshot.
func (c *Client) Chain(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.call(ctx, http.MethodGet, "/chain", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Verify asks the node to audit its own chain.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var res VerifyResult
	if err := c.call(ctx, http.MethodGet, "/chain/verify", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Pending returns the node's pending transactions.
func (c *Client) Pending(ctx context.Context) ([]chain.Transaction, error) {
	var txs []chain.Transaction
	if err := c.call(ctx, http.MethodGet, "/pending_tx", nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// RegisterNode registers address as a peer of the node and returns the
// node's snapshot.
func (c *Client) RegisterNode(ctx context.Context, address string) (*Snapshot, error) {
	var snap Snapshot
	body := map[string]string{"address": address}
	if err := c.call(ctx, http.MethodPost, "/register_node", body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Peers lists the node's registered peers.
func (c *Client) Peers(ctx context.Context) ([]Peer, error) {
	var resp struct {
		Peers []Peer `json:"peers"`
	}
	if err := c.call(ctx, http.MethodGet, "/peers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Peers, nil
}

// AddBlock offers a mined block to the node. A rejected block is not an
// error: accepted is false and message carries the node's reason.
func (c *Client) AddBlock(ctx context.Context, block *chain.Block) (accepted bool, message string, err error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/add_block", block)
	if err != nil {
		return false, "", err
	}
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return false, "", err
	}

	var resp struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &resp)

	switch {
	case status == http.StatusCreated:
		return true, resp.Message, nil
	case status == http.StatusBadRequest:
		return false, resp.Message, nil
	default:
		return false, "", &APIError{StatusCode: status, Message: string(body)}
	}
}

// PushPeerSnapshot hands the node a chain obtained from one of its peers.
func (c *Client) PushPeerSnapshot(ctx context.Context, address string, blocks []*chain.Block) error {
	body := map[string]any{"address": address, "chain": blocks}
	return c.call(ctx, http.MethodPost, "/peers/snapshot", body, nil)
}

// Consensus runs a consensus round on the node.
func (c *Client) Consensus(ctx context.Context) (*ConsensusResult, error) {
	var res ConsensusResult
	if err := c.call(ctx, http.MethodPost, "/consensus", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if respBody != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, reqBody any) (*http.Request, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes an HTTP request, attaching the Bearer token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, &APIError{StatusCode: status, Message: errorMessage(body)}
	}
	return body, nil
}

// doStatusBody is a lower-level HTTP call that returns (statusCode, body, error)
// without failing on 4xx responses. The caller interprets the status code.
func (c *Client) doStatusBody(req *http.Request) (int, []byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// errorMessage extracts the "message" or "error" field of a JSON error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
