// Package client is the gridledger Go SDK.
//
// It wraps every route of a node's HTTP API: submitting transactions,
// triggering mining, reading the chain and pending pool, registering peers,
// exchanging blocks and snapshots between nodes, and running consensus.
//
// # Submitting and mining
//
//	c := client.MustNew("http://localhost:8000", client.WithBearerToken(token))
//
//	err := c.SubmitTransaction(ctx, "0x3f2a...", map[string]any{
//	    "payment": 13.4,
//	    "seller":  "0x91bc...",
//	})
//	res, err := c.Mine(ctx)
//	fmt.Println(res.Message) // Block #1 is mined.
//
// # Node to node
//
// Peers use the same client to pull chains and announce blocks:
//
//	snap, err := peer.Chain(ctx)
//	accepted, msg, err := peer.AddBlock(ctx, block)
//
// Errors for non-2xx responses are *APIError values. 401/403 responses
// unwrap to ErrUnauthorized and 404 to ErrNotFound:
//
//	if errors.Is(err, client.ErrUnauthorized) { ... }
package client
