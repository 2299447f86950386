package sim

import (
	"context"

	"github.com/jmerrifield20/gridledger/internal/node"
	"github.com/jmerrifield20/gridledger/pkg/client"
)

// NodeLedger drives an in-process node.
type NodeLedger struct {
	Node *node.Node
}

func (l NodeLedger) RegisterPeer(_ context.Context, address string) error {
	_, err := l.Node.RegisterPeer(address)
	return err
}

func (l NodeLedger) SubmitTransaction(_ context.Context, author string, content map[string]any) error {
	_, err := l.Node.SubmitTransaction(author, content)
	return err
}

func (l NodeLedger) Mine(ctx context.Context) (bool, int, error) {
	res, err := l.Node.Mine(ctx)
	return res.Mined, res.NewIndex, err
}

// ClientLedger drives a remote node through the SDK.
type ClientLedger struct {
	Client *client.Client
}

func (l ClientLedger) RegisterPeer(ctx context.Context, address string) error {
	_, err := l.Client.RegisterNode(ctx, address)
	return err
}

func (l ClientLedger) SubmitTransaction(ctx context.Context, author string, content map[string]any) error {
	return l.Client.SubmitTransaction(ctx, author, content)
}

func (l ClientLedger) Mine(ctx context.Context) (bool, int, error) {
	res, err := l.Client.Mine(ctx)
	if err != nil {
		return false, 0, err
	}
	return res.Mined, res.NewIndex, nil
}
