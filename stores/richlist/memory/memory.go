// Package memory is an ephemeral rich list store. Nothing survives a restart.
package memory

import (
	"context"
	"net/http"
	"sync"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/ledger"
	"github.com/bsv-blockchain/richlist/ledger/rank"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/ulogger"
)

type Memory struct {
	mu       sync.RWMutex
	logger   ulogger.Logger
	blocks   []*ledger.BlockRecord
	hashes   map[string]struct{}
	outputs  map[ledger.OutPoint]*ledger.OutputRecord
	balances ledger.Balances
	rank     *rank.Index
}

func New(logger ulogger.Logger) *Memory {
	return &Memory{
		logger:   logger,
		blocks:   make([]*ledger.BlockRecord, 0),
		hashes:   make(map[string]struct{}),
		outputs:  make(map[ledger.OutPoint]*ledger.OutputRecord),
		balances: make(ledger.Balances),
		rank:     rank.New(),
	}
}

func (m *Memory) Init(_ context.Context) error {
	return nil
}

func (m *Memory) best() model.ChainPointer {
	if len(m.blocks) == 0 {
		return model.ChainPointer{}
	}

	return m.blocks[len(m.blocks)-1].Pointer()
}

func (m *Memory) BestBlock(_ context.Context) (model.ChainPointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.best(), nil
}

func (m *Memory) lookup(_ context.Context, op ledger.OutPoint) (*ledger.OutputRecord, error) {
	return m.outputs[op], nil
}

func (m *Memory) InsertBlock(ctx context.Context, block *model.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ledger.CheckSuccessor(m.best(), block); err != nil {
		return err
	}

	if _, ok := m.hashes[block.Hash]; ok {
		return errors.NewBlockExistsError("block %s already applied", block.Hash)
	}

	// everything that can fail happens before the first mutation
	record, err := ledger.Build(ctx, block, m.lookup)
	if err != nil {
		return err
	}

	for _, out := range record.Created {
		c := *out
		m.outputs[out.OutPoint] = &c
	}

	for _, out := range record.PriorSpent() {
		m.outputs[out.OutPoint].SpentBy = block.Hash
	}

	m.applyChanges(record.Changes(false))

	m.blocks = append(m.blocks, record)
	m.hashes[block.Hash] = struct{}{}

	return nil
}

func (m *Memory) InvalidateLatestBlock(_ context.Context) (model.ChainPointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.blocks) == 0 {
		return model.ChainPointer{}, errors.NewNoBlockAvailableError("no block to invalidate")
	}

	record := m.blocks[len(m.blocks)-1]

	for _, out := range record.PriorSpent() {
		if stored, ok := m.outputs[out.OutPoint]; ok {
			stored.SpentBy = ""
		}
	}

	for _, out := range record.Created {
		delete(m.outputs, out.OutPoint)
	}

	m.applyChanges(record.Changes(true))

	m.blocks = m.blocks[:len(m.blocks)-1]
	delete(m.hashes, record.Hash)

	return m.best(), nil
}

func (m *Memory) applyChanges(changes []ledger.Change) {
	for _, b := range m.balances.Apply(changes) {
		m.rank.Update(b.Address, b.Balance)
	}
}

func (m *Memory) GetMostRichest(_ context.Context, n int) ([]model.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rank.TopN(n), nil
}

func (m *Memory) Health(_ context.Context, _ bool) (int, string, error) {
	return http.StatusOK, "Memory Store available", nil
}

func (m *Memory) Close(_ context.Context) error {
	return nil
}
