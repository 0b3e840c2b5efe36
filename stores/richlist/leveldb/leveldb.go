// Package leveldb is an embedded, durable rich list store. Block undo records, outputs and
// balances live in leveldb; the ranking is held in memory and rebuilt from the balances on Init.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/ledger"
	"github.com/bsv-blockchain/richlist/ledger/rank"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

// key prefixes
const (
	prefixBlock   = 'B'
	prefixHash    = 'H'
	prefixOutput  = 'O'
	prefixBalance = 'A'
	keyTip        = "T"
)

type LevelDB struct {
	mu       sync.RWMutex
	logger   ulogger.Logger
	db       *leveldb.DB
	tip      model.ChainPointer
	balances ledger.Balances
	rank     *rank.Index
	writeOpt *opt.WriteOptions
}

// New opens the database named by storeURL. The leveldb scheme stores under the data folder,
// leveldbmemory keeps everything in memory.
func New(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*LevelDB, error) {
	logger = logger.New("rlldb")

	var (
		db  *leveldb.DB
		err error
	)

	switch storeURL.Scheme {
	case "leveldbmemory":
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	case "leveldb":
		name := strings.Trim(storeURL.Host+storeURL.Path, "/")
		if name == "" {
			name = "richlist"
		}

		folder := filepath.Join(tSettings.DataFolder, name)
		if err = os.MkdirAll(folder, 0755); err != nil {
			return nil, errors.NewStorageError("failed to create leveldb folder %s", folder, err)
		}

		logger.Infof("Using leveldb: %s", folder)

		db, err = leveldb.OpenFile(folder, nil)
	default:
		return nil, errors.NewConfigurationError("leveldb: unknown scheme: %s", storeURL.Scheme)
	}

	if err != nil {
		return nil, errors.NewStorageError("failed to open leveldb", err)
	}

	return &LevelDB{
		logger:   logger,
		db:       db,
		balances: make(ledger.Balances),
		rank:     rank.New(),
		writeOpt: &opt.WriteOptions{Sync: true},
	}, nil
}

// Init loads the tip and rebuilds the ranking from the persisted balances.
func (l *LevelDB) Init(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := model.ChainPointer{}

	value, err := l.db.Get([]byte(keyTip), nil)

	switch {
	case err == nil:
		if err = json.Unmarshal(value, &tip); err != nil {
			return errors.NewStorageError("invalid tip record", err)
		}
	case !errors.Is(err, leveldb.ErrNotFound):
		return errors.NewStorageError("could not read tip", err)
	}

	balances := make(ledger.Balances)

	iter := l.db.NewIterator(util.BytesPrefix([]byte{prefixBalance}), nil)
	defer iter.Release()

	for iter.Next() {
		amount, err := model.ParseAmount(string(iter.Value()))
		if err != nil {
			return errors.NewStorageError("invalid balance for %s", string(iter.Key()[1:]), err)
		}

		balances[string(iter.Key()[1:])] = amount
	}

	if err = iter.Error(); err != nil {
		return errors.NewStorageError("could not iterate balances", err)
	}

	l.tip = tip
	l.balances = balances
	l.rank.Rebuild(balances)

	l.logger.Infof("[LevelDB] loaded tip %s at height %d with %d balances", tip.Hash, tip.Height, len(balances))

	return nil
}

func blockKey(height uint32) []byte {
	key := make([]byte, 5)
	key[0] = prefixBlock
	binary.BigEndian.PutUint32(key[1:], height)

	return key
}

func hashKey(hash string) []byte {
	return append([]byte{prefixHash}, hash...)
}

func outputKey(op ledger.OutPoint) []byte {
	key := make([]byte, 0, len(op.TxID)+6)
	key = append(key, prefixOutput)
	key = append(key, op.TxID...)
	key = append(key, 0)

	return binary.BigEndian.AppendUint32(key, op.Index)
}

func balanceKey(address string) []byte {
	return append([]byte{prefixBalance}, address...)
}

func (l *LevelDB) BestBlock(_ context.Context) (model.ChainPointer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tip, nil
}

func (l *LevelDB) lookup(_ context.Context, op ledger.OutPoint) (*ledger.OutputRecord, error) {
	value, err := l.db.Get(outputKey(op), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	out := &ledger.OutputRecord{}
	if err = json.Unmarshal(value, out); err != nil {
		return nil, err
	}

	return out, nil
}

func putJSON(batch *leveldb.Batch, key []byte, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}

	batch.Put(key, value)

	return nil
}

// stageBalances resolves the changes against the in-memory balances and stages the new values.
func (l *LevelDB) stageBalances(ctx context.Context, batch *leveldb.Batch, changes []ledger.Change) error {
	balances, err := ledger.Resolve(ctx, changes, func(_ context.Context, address string) (model.Amount, error) {
		return l.balances[address], nil
	})
	if err != nil {
		return err
	}

	for _, b := range balances {
		if b.Balance.Sign() <= 0 {
			batch.Delete(balanceKey(b.Address))
		} else {
			batch.Put(balanceKey(b.Address), []byte(b.Balance.String()))
		}
	}

	return nil
}

func (l *LevelDB) applyChanges(changes []ledger.Change) {
	for _, b := range l.balances.Apply(changes) {
		l.rank.Update(b.Address, b.Balance)
	}
}

func (l *LevelDB) InsertBlock(ctx context.Context, block *model.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ledger.CheckSuccessor(l.tip, block); err != nil {
		return err
	}

	exists, err := l.db.Has(hashKey(block.Hash), nil)
	if err != nil {
		return errors.NewStorageError("[InsertBlock] could not check block %s", block.Hash, err)
	}

	if exists {
		return errors.NewBlockExistsError("[InsertBlock] block %s already applied", block.Hash)
	}

	record, err := ledger.Build(ctx, block, l.lookup)
	if err != nil {
		return err
	}

	changes := record.Changes(false)
	batch := new(leveldb.Batch)

	if err = putJSON(batch, blockKey(record.Height), record); err != nil {
		return errors.NewStorageError("[InsertBlock] could not encode block %s", block.Hash, err)
	}

	batch.Put(hashKey(record.Hash), blockKey(record.Height)[1:])

	for _, out := range record.Created {
		if err = putJSON(batch, outputKey(out.OutPoint), out); err != nil {
			return errors.NewStorageError("[InsertBlock] could not encode output %s", out.OutPoint, err)
		}
	}

	for _, out := range record.PriorSpent() {
		if err = putJSON(batch, outputKey(out.OutPoint), out); err != nil {
			return errors.NewStorageError("[InsertBlock] could not encode output %s", out.OutPoint, err)
		}
	}

	if err = l.stageBalances(ctx, batch, changes); err != nil {
		return errors.NewStorageError("[InsertBlock] could not stage balances", err)
	}

	tip := record.Pointer()
	if err = putJSON(batch, []byte(keyTip), tip); err != nil {
		return errors.NewStorageError("[InsertBlock] could not encode tip", err)
	}

	if err = l.db.Write(batch, l.writeOpt); err != nil {
		return errors.NewStorageError("[InsertBlock] could not write block %s", block.Hash, err)
	}

	l.applyChanges(changes)
	l.tip = tip

	return nil
}

func (l *LevelDB) readBlock(height uint32) (*ledger.BlockRecord, error) {
	value, err := l.db.Get(blockKey(height), nil)
	if err != nil {
		return nil, err
	}

	record := &ledger.BlockRecord{}
	if err = json.Unmarshal(value, record); err != nil {
		return nil, err
	}

	return record, nil
}

func (l *LevelDB) InvalidateLatestBlock(ctx context.Context) (model.ChainPointer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tip.IsGenesis() {
		return model.ChainPointer{}, errors.NewNoBlockAvailableError("[InvalidateLatestBlock] no block to invalidate")
	}

	record, err := l.readBlock(l.tip.Height)
	if err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not read block %s", l.tip.Hash, err)
	}

	tip := model.ChainPointer{}

	if record.Height > 1 {
		previous, err := l.readBlock(record.Height - 1)
		if err != nil {
			return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not read block at height %d", record.Height-1, err)
		}

		tip = previous.Pointer()
	}

	changes := record.Changes(true)
	batch := new(leveldb.Batch)

	for _, out := range record.PriorSpent() {
		restored := *out
		restored.SpentBy = ""

		if err = putJSON(batch, outputKey(out.OutPoint), &restored); err != nil {
			return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not encode output %s", out.OutPoint, err)
		}
	}

	for _, out := range record.Created {
		batch.Delete(outputKey(out.OutPoint))
	}

	if err = l.stageBalances(ctx, batch, changes); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not stage balances", err)
	}

	batch.Delete(blockKey(record.Height))
	batch.Delete(hashKey(record.Hash))

	if tip.IsGenesis() {
		batch.Delete([]byte(keyTip))
	} else if err = putJSON(batch, []byte(keyTip), tip); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not encode tip", err)
	}

	if err = l.db.Write(batch, l.writeOpt); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not write", err)
	}

	l.applyChanges(changes)
	l.tip = tip

	return tip, nil
}

func (l *LevelDB) GetMostRichest(_ context.Context, n int) ([]model.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.rank.TopN(n), nil
}

func (l *LevelDB) Health(_ context.Context, _ bool) (int, string, error) {
	if _, err := l.db.Has([]byte(keyTip), nil); err != nil {
		return http.StatusServiceUnavailable, "LevelDB unavailable", errors.NewStorageUnavailableError("leveldb unavailable", err)
	}

	return http.StatusOK, "LevelDB available", nil
}

func (l *LevelDB) Close(_ context.Context) error {
	return l.db.Close()
}
