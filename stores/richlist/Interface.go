// Package richlist defines the storage contract of the rich list: the balance ledger, the rank
// index built on it and the pointer to the last applied block.
package richlist

import (
	"context"

	"github.com/bsv-blockchain/richlist/model"
)

// Store owns all persisted rich list state. InsertBlock and InvalidateLatestBlock are atomic:
// after an error the state is the same as before the call, and no reader ever observes a
// partially applied block.
type Store interface {
	// Init performs idempotent setup such as schema creation or loading the rank index.
	Init(ctx context.Context) error

	// BestBlock returns the last applied block, or the zero ChainPointer when nothing is applied.
	BestBlock(ctx context.Context) (model.ChainPointer, error)

	// InsertBlock applies block on top of BestBlock. The block height must be BestBlock height + 1.
	InsertBlock(ctx context.Context, block *model.Block) error

	// InvalidateLatestBlock undoes the last applied block and returns the new best block. It fails
	// with ERR_NO_BLOCK_AVAILABLE when nothing is applied.
	InvalidateLatestBlock(ctx context.Context) (model.ChainPointer, error)

	// GetMostRichest returns up to n balances, richest first, ties ordered by address.
	GetMostRichest(ctx context.Context, n int) ([]model.Balance, error)

	Health(ctx context.Context, checkLiveness bool) (int, string, error)
	Close(ctx context.Context) error
}
