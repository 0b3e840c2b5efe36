// Package memnode is an in-process node holding a scriptable chain. It backs the end to end
// tests of the scanner and local development without a full node.
package memnode

import (
	"context"
	"net/http"
	"sync"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
)

const GenesisHash = "genesis"

type block struct {
	header model.BlockHeader
	txs    []*model.Transaction
}

type subscriber struct {
	source string
	ch     chan *model.Notification
}

type Node struct {
	mu          sync.RWMutex
	chain       []*block
	byHash      map[string]*block
	txs         map[string]*model.Transaction
	missingTxs  map[string]struct{}
	err         error
	txHook      func(txid string)
	subscribers map[*subscriber]struct{}
}

// New returns a node whose chain holds only the genesis block at height 0.
func New() *Node {
	genesis := &block{header: model.BlockHeader{Hash: GenesisHash}}

	return &Node{
		chain:       []*block{genesis},
		byHash:      map[string]*block{GenesisHash: genesis},
		txs:         make(map[string]*model.Transaction),
		missingTxs:  make(map[string]struct{}),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// AddBlock appends a block to the best chain without notifying subscribers. Transaction heights
// are set to the block height.
func (n *Node) AddBlock(hash string, txs ...*model.Transaction) (*model.BlockHeader, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.byHash[hash]; ok {
		return nil, errors.NewBlockExistsError("block %s already in chain", hash)
	}

	tip := n.chain[len(n.chain)-1]

	b := &block{
		header: model.BlockHeader{
			Hash:         hash,
			Height:       tip.header.Height + 1,
			PreviousHash: tip.header.Hash,
		},
		txs: make([]*model.Transaction, 0, len(txs)),
	}

	for _, tx := range txs {
		c := *tx
		c.Height = int64(b.header.Height)
		b.txs = append(b.txs, &c)
		n.txs[c.Hash] = &c
	}

	n.chain = append(n.chain, b)
	n.byHash[hash] = b

	h := b.header

	return &h, nil
}

// Reorg drops the top depth blocks and their transactions. The node forgets them entirely, as
// if they had never been seen.
func (n *Node) Reorg(depth int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if depth >= len(n.chain) {
		return errors.NewInvalidArgumentError("cannot reorg %d blocks of a chain of height %d", depth, len(n.chain)-1)
	}

	for i := 0; i < depth; i++ {
		b := n.chain[len(n.chain)-1]
		n.chain = n.chain[:len(n.chain)-1]

		delete(n.byHash, b.header.Hash)

		for _, tx := range b.txs {
			delete(n.txs, tx.Hash)
		}
	}

	return nil
}

// ReplaceTransaction overwrites what the node reports for tx.Hash, for example to report a
// different height.
func (n *Node) ReplaceTransaction(tx *model.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()

	c := *tx
	n.txs[tx.Hash] = &c
}

// SetTxMissing makes lookups of txid fail with ERR_TX_NOT_FOUND until cleared.
func (n *Node) SetTxMissing(txid string, missing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if missing {
		n.missingTxs[txid] = struct{}{}
	} else {
		delete(n.missingTxs, txid)
	}
}

// SetError makes every lookup fail with err until it is set back to nil.
func (n *Node) SetError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.err = err
}

// SetTxHook installs a function called before every transaction lookup, outside of any lock.
func (n *Node) SetTxHook(hook func(txid string)) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.txHook = hook
}

// Notify sends a block notification for the current tip to every subscriber. Subscribers that
// already have a notification pending are skipped.
func (n *Node) Notify() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	hash := n.chain[len(n.chain)-1].header.Hash

	for s := range n.subscribers {
		select {
		case s.ch <- &model.Notification{Type: model.NotificationTypeBlock, Hash: hash}:
		default:
		}
	}
}

func (n *Node) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.subscribers)
}

func (n *Node) Subscribe(ctx context.Context, source string) (<-chan *model.Notification, error) {
	s := &subscriber{
		source: source,
		ch:     make(chan *model.Notification, 1),
	}

	n.mu.Lock()
	n.subscribers[s] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()

		n.mu.Lock()
		delete(n.subscribers, s)
		close(s.ch)
		n.mu.Unlock()
	}()

	return s.ch, nil
}

func (n *Node) GetBestBlockHash(_ context.Context) (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.err != nil {
		return "", n.err
	}

	return n.chain[len(n.chain)-1].header.Hash, nil
}

func (n *Node) headerOf(b *block) *model.BlockHeader {
	h := b.header

	if next := int(h.Height) + 1; next < len(n.chain) {
		h.NextHash = n.chain[next].header.Hash
	}

	return &h
}

func (n *Node) GetBlockHeader(_ context.Context, hash string) (*model.BlockHeader, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.err != nil {
		return nil, n.err
	}

	b, ok := n.byHash[hash]
	if !ok {
		return nil, errors.NewBlockNotFoundError("block %s not found", hash)
	}

	return n.headerOf(b), nil
}

func (n *Node) GetBlockHeaderByHeight(_ context.Context, height uint32) (*model.BlockHeader, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.err != nil {
		return nil, n.err
	}

	if int(height) >= len(n.chain) {
		return nil, errors.NewBlockNotFoundError("no block at height %d", height)
	}

	return n.headerOf(n.chain[height]), nil
}

func (n *Node) GetBlockOverview(_ context.Context, hash string) (*model.BlockOverview, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.err != nil {
		return nil, n.err
	}

	b, ok := n.byHash[hash]
	if !ok {
		return nil, errors.NewBlockNotFoundError("block %s not found", hash)
	}

	overview := &model.BlockOverview{
		Hash:         b.header.Hash,
		Height:       b.header.Height,
		PreviousHash: b.header.PreviousHash,
		TxIDs:        make([]string, 0, len(b.txs)),
	}

	for _, tx := range b.txs {
		overview.TxIDs = append(overview.TxIDs, tx.Hash)
	}

	return overview, nil
}

func (n *Node) GetDetailedTransaction(_ context.Context, txid string) (*model.Transaction, error) {
	n.mu.RLock()
	hook := n.txHook
	n.mu.RUnlock()

	if hook != nil {
		hook(txid)
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.err != nil {
		return nil, n.err
	}

	if _, ok := n.missingTxs[txid]; ok {
		return nil, errors.NewTxNotFoundError("tx %s not found", txid)
	}

	tx, ok := n.txs[txid]
	if !ok {
		return nil, errors.NewTxNotFoundError("tx %s not found", txid)
	}

	c := *tx

	return &c, nil
}

func (n *Node) Health(_ context.Context, _ bool) (int, string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.err != nil {
		return http.StatusServiceUnavailable, "memnode failing", n.err
	}

	return http.StatusOK, "OK", nil
}
