// Package logger wraps a rich list store and logs every call with its result and call site.
package logger

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/bsv-blockchain/richlist/ulogger"
)

type Store struct {
	logger ulogger.Logger
	store  richlist.Store
}

func New(logger ulogger.Logger, store richlist.Store) richlist.Store {
	return &Store{
		logger: logger,
		store:  store,
	}
}

func caller() string {
	var callers []string

	depth := 3

	for i := 0; i < depth; i++ {
		pc, file, line, ok := runtime.Caller(2 + i)
		if !ok {
			break
		}

		// keep the last two path elements, the rest is build machine noise
		folders := strings.Split(file, string(filepath.Separator))
		if len(folders) > 2 {
			folders = folders[len(folders)-2:]
		}

		file = filepath.Join(folders...)

		funcName := runtime.FuncForPC(pc).Name()
		funcPaths := strings.Split(funcName, "/")
		funcName = funcPaths[len(funcPaths)-1]

		callers = append(callers, fmt.Sprintf("called from %s: %s:%d", funcName, file, line))
	}

	return strings.Join(callers, ",")
}

func (s *Store) Init(ctx context.Context) error {
	err := s.store.Init(ctx)
	s.logger.Infof("[RichListStore][logger][Init] err %v : %s", err, caller())

	return err
}

func (s *Store) BestBlock(ctx context.Context) (model.ChainPointer, error) {
	best, err := s.store.BestBlock(ctx)
	s.logger.Infof("[RichListStore][logger][BestBlock] hash %s height %d err %v : %s", best.Hash, best.Height, err, caller())

	return best, err
}

func (s *Store) InsertBlock(ctx context.Context, block *model.Block) error {
	start := time.Now()
	err := s.store.InsertBlock(ctx, block)

	var (
		hash   string
		height uint32
		txs    int
	)

	if block != nil {
		hash, height, txs = block.Hash, block.Height, len(block.Transactions)
	}

	s.logger.Infof("[RichListStore][logger][InsertBlock] hash %s height %d txs %d took %s err %v : %s", hash, height, txs, time.Since(start), err, caller())

	return err
}

func (s *Store) InvalidateLatestBlock(ctx context.Context) (model.ChainPointer, error) {
	start := time.Now()
	best, err := s.store.InvalidateLatestBlock(ctx)
	s.logger.Infof("[RichListStore][logger][InvalidateLatestBlock] new best %s height %d took %s err %v : %s", best.Hash, best.Height, time.Since(start), err, caller())

	return best, err
}

func (s *Store) GetMostRichest(ctx context.Context, n int) ([]model.Balance, error) {
	balances, err := s.store.GetMostRichest(ctx, n)
	s.logger.Infof("[RichListStore][logger][GetMostRichest] n %d returned %d err %v : %s", n, len(balances), err, caller())

	return balances, err
}

func (s *Store) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	return s.store.Health(ctx, checkLiveness)
}

func (s *Store) Close(ctx context.Context) error {
	err := s.store.Close(ctx)
	s.logger.Infof("[RichListStore][logger][Close] err %v : %s", err, caller())

	return err
}
