// Package node describes the upstream full node the rich list reads blocks and transactions from,
// and the sources of its block notifications.
package node

import (
	"context"

	"github.com/bsv-blockchain/richlist/model"
)

// Node is the upstream collaborator. Lookups of unknown blocks fail with ERR_BLOCK_NOT_FOUND and
// of unknown transactions with ERR_TX_NOT_FOUND; anything else is a transport failure.
type Node interface {
	Notifier

	GetBestBlockHash(ctx context.Context) (string, error)

	// GetBlockHeader returns the header of hash. NextHash is only set when the block is on the
	// node's best chain and has a successor.
	GetBlockHeader(ctx context.Context, hash string) (*model.BlockHeader, error)
	GetBlockHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error)
	GetBlockOverview(ctx context.Context, hash string) (*model.BlockOverview, error)
	GetDetailedTransaction(ctx context.Context, txid string) (*model.Transaction, error)

	Health(ctx context.Context, checkLiveness bool) (int, string, error)
}

// Notifier delivers a notification for every newly accepted best block. The channel is closed
// once ctx is done.
type Notifier interface {
	Subscribe(ctx context.Context, source string) (<-chan *model.Notification, error)
}

type withNotifier struct {
	Node
	notifier Notifier
}

// WithNotifier returns n with its notifications taken from notifier instead.
func WithNotifier(n Node, notifier Notifier) Node {
	return &withNotifier{
		Node:     n,
		notifier: notifier,
	}
}

func (w *withNotifier) Subscribe(ctx context.Context, source string) (<-chan *model.Notification, error) {
	return w.notifier.Subscribe(ctx, source)
}
