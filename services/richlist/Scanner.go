package richlist

import (
	"context"
	"sync"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/node"
	"github.com/bsv-blockchain/richlist/settings"
	richliststore "github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of a single tick.
type Outcome int

const (
	// Applied means the next block was fetched and applied.
	Applied Outcome = iota
	// InvalidatedAndRetry means the latest local block was rolled back because it is no longer
	// on the node's best chain.
	InvalidatedAndRetry
	// CaughtUp means the local tip equals the node's best block.
	CaughtUp
	// Fatal means the tick failed and the scanner parks until the next wake-up.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case InvalidatedAndRetry:
		return "invalidated"
	case CaughtUp:
		return "caught_up"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type TickResult struct {
	Outcome Outcome
	Hash    string
	Height  uint32
	Err     error
}

type EventType string

const (
	EventTypeProgress EventType = "progress"
	EventTypeCaughtUp EventType = "caught_up"
	EventTypeFatal    EventType = "fatal"
)

// Event is an informational notification about the scanner's progress. Events are dropped when
// nobody reads them fast enough.
type Event struct {
	Type   EventType
	Hash   string
	Height uint32
	Err    error
}

const eventBufferSize = 16

// Scanner keeps a store in step with the node's best chain, one block at a time.
type Scanner struct {
	logger   ulogger.Logger
	settings *settings.Settings
	store    richliststore.Store
	node     node.Node
	fsm      *fsm.FSM
	mu       sync.Mutex
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	events   chan Event
}

func NewScanner(logger ulogger.Logger, tSettings *settings.Settings, store richliststore.Store, n node.Node) *Scanner {
	initPrometheusMetrics()

	return &Scanner{
		logger:   logger,
		settings: tSettings,
		store:    store,
		node:     n,
		fsm:      NewFiniteStateMachine(),
		wake:     make(chan struct{}, 1),
		events:   make(chan Event, eventBufferSize),
	}
}

func (s *Scanner) State() State {
	return State(s.fsm.Current())
}

func (s *Scanner) Events() <-chan Event {
	return s.events
}

// Start moves the scanner to RUNNING and begins the first catch-up. Ticks run on a context that
// keeps the values of ctx but is never cancelled, so Stop cannot abort a tick halfway.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fsm.Event(ctx, EventRun); err != nil {
		return errors.NewStateError("[RichList] cannot start scanner in state %s", s.fsm.Current(), err)
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(context.WithoutCancel(ctx), s.stop, s.done)

	s.Trigger()

	return nil
}

// Trigger requests a catch-up. Requests made while a sequence is in flight collapse into a
// single pending wake-up.
func (s *Scanner) Trigger() {
	if s.fsm.Is(string(StateStopping)) {
		return
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop asks the loop to finish its current tick and waits for it to reach STOPPED, or for ctx to
// expire.
func (s *Scanner) Stop(ctx context.Context) error {
	s.mu.Lock()

	if s.fsm.Is(string(StateRunning)) {
		if err := s.fsm.Event(ctx, EventStop); err != nil {
			s.mu.Unlock()
			return errors.NewStateError("[RichList] cannot stop scanner in state %s", s.fsm.Current(), err)
		}

		close(s.stop)
	}

	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.NewContextError("[RichList] scanner did not stop in time", ctx.Err())
	}
}

func (s *Scanner) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.fsm.Event(ctx, EventHalt); err != nil {
			s.logger.Errorf("[RichList] failed to halt scanner: %v", err)
		}

		s.logger.Infof("[RichList] scanner stopped")
	}()

	var poll <-chan time.Time

	if s.settings.RichList.PollInterval > 0 {
		ticker := time.NewTicker(s.settings.RichList.PollInterval)
		defer ticker.Stop()

		poll = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-s.wake:
		case <-poll:
		}

		s.sequence(ctx)
	}
}

// sequence ticks until the scanner is caught up, parks on a fatal error, or is asked to stop.
func (s *Scanner) sequence(ctx context.Context) {
	for {
		if !s.fsm.Is(string(StateRunning)) {
			return
		}

		result := s.Tick(ctx)

		prometheusRichListTicks.WithLabelValues(result.Outcome.String()).Inc()

		switch result.Outcome {
		case Applied:
			prometheusRichListBlocksApplied.Inc()
			prometheusRichListBestHeight.Set(float64(result.Height))

			interval := s.settings.RichList.ProgressInterval
			if interval > 0 && result.Height%uint32(interval) == 0 {
				s.logger.Infof("[RichList] applied block %s at height %d", result.Hash, result.Height)
				s.emit(Event{Type: EventTypeProgress, Hash: result.Hash, Height: result.Height})
			}

		case InvalidatedAndRetry:
			prometheusRichListBlocksInvalidated.Inc()
			prometheusRichListBestHeight.Set(float64(result.Height))

			s.logger.Warnf("[RichList] rolled back to %s at height %d: %v", result.Hash, result.Height, result.Err)

		case CaughtUp:
			s.logger.Infof("[RichList] caught up at %s height %d", result.Hash, result.Height)
			s.emit(Event{Type: EventTypeCaughtUp, Hash: result.Hash, Height: result.Height})

			return

		case Fatal:
			prometheusRichListFatalErrors.WithLabelValues(errors.GetErrorCategory(result.Err)).Inc()

			s.logger.Errorf("[RichList] scan parked at %s height %d: %v", result.Hash, result.Height, result.Err)
			s.emit(Event{Type: EventTypeFatal, Hash: result.Hash, Height: result.Height, Err: result.Err})

			return
		}
	}
}

func (s *Scanner) emit(event Event) {
	select {
	case s.events <- event:
	default:
	}
}

// Tick performs one reconciliation step between the store and the node.
func (s *Scanner) Tick(ctx context.Context) TickResult {
	best, err := s.store.BestBlock(ctx)
	if err != nil {
		return TickResult{Outcome: Fatal, Err: err}
	}

	fatal := func(err error) TickResult {
		return TickResult{Outcome: Fatal, Hash: best.Hash, Height: best.Height, Err: err}
	}

	var header *model.BlockHeader

	if best.IsGenesis() {
		header, err = s.node.GetBlockHeaderByHeight(ctx, 0)
	} else {
		header, err = s.node.GetBlockHeader(ctx, best.Hash)
	}

	if err != nil {
		if errors.Is(err, errors.ErrBlockNotFound) {
			return s.invalidate(ctx, best, err)
		}

		return fatal(err)
	}

	// at the sentinel the node's height 0 block stands in for the local tip
	localHash := best.Hash
	if best.IsGenesis() {
		localHash = header.Hash
	}

	nextHeight := best.Height + 1
	nextHash := header.NextHash

	if nextHash == "" {
		bestHash, err := s.node.GetBestBlockHash(ctx)
		if err != nil {
			return fatal(err)
		}

		if bestHash == localHash {
			return TickResult{Outcome: CaughtUp, Hash: best.Hash, Height: best.Height}
		}

		next, err := s.node.GetBlockHeaderByHeight(ctx, nextHeight)
		if err != nil {
			if errors.Is(err, errors.ErrBlockNotFound) {
				return s.invalidate(ctx, best, errors.NewBlockInvalidError("block %s is not on the node's best chain", localHash, err))
			}

			return fatal(err)
		}

		if next.PreviousHash != localHash {
			return s.invalidate(ctx, best, errors.NewBlockInvalidError("block %s at height %d does not follow %s", next.Hash, nextHeight, localHash))
		}

		nextHash = next.Hash
	}

	start := time.Now()

	block, err := s.fetchBlock(ctx, nextHash, nextHeight, localHash)
	if err != nil {
		if errors.Is(err, errors.ErrBlockNotFound) || errors.Is(err, errors.ErrBlockInvalid) || errors.Is(err, errors.ErrTxNotFound) {
			return s.invalidate(ctx, best, err)
		}

		return fatal(err)
	}

	if err = s.store.InsertBlock(ctx, block); err != nil {
		return fatal(err)
	}

	prometheusRichListApplyBlock.Observe(time.Since(start).Seconds())

	return TickResult{Outcome: Applied, Hash: block.Hash, Height: block.Height}
}

// fetchBlock loads hash with all its transactions and checks that it extends prevHash at height.
func (s *Scanner) fetchBlock(ctx context.Context, hash string, height uint32, prevHash string) (*model.Block, error) {
	overview, err := s.node.GetBlockOverview(ctx, hash)
	if err != nil {
		return nil, err
	}

	if overview.Height != height {
		return nil, errors.NewBlockInvalidError("block %s has height %d, expected %d", hash, overview.Height, height)
	}

	if overview.PreviousHash != prevHash {
		return nil, errors.NewBlockInvalidError("block %s follows %s, expected %s", hash, overview.PreviousHash, prevHash)
	}

	txIDs := make([]string, 0, len(overview.TxIDs))
	seen := make(map[string]struct{}, len(overview.TxIDs))

	for _, txID := range overview.TxIDs {
		if _, ok := seen[txID]; ok {
			continue
		}

		seen[txID] = struct{}{}
		txIDs = append(txIDs, txID)
	}

	start := time.Now()
	txs := make([]*model.Transaction, len(txIDs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.settings.RichList.FetchConcurrency))

	for i, txID := range txIDs {
		i, txID := i, txID

		g.Go(func() error {
			tx, err := s.node.GetDetailedTransaction(gCtx, txID)
			if err != nil {
				return err
			}

			txs[i] = tx

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	prometheusRichListFetchTransactions.Observe(time.Since(start).Seconds())

	block := &model.Block{
		Hash:         overview.Hash,
		Height:       overview.Height,
		PreviousHash: overview.PreviousHash,
		Transactions: make([]*model.Transaction, 0, len(txs)),
	}

	for _, tx := range txs {
		if tx.Height != int64(height) {
			s.logger.Debugf("[RichList] skipping tx %s reported at height %d in block %s at height %d", tx.Hash, tx.Height, hash, height)
			continue
		}

		block.Transactions = append(block.Transactions, tx)
	}

	return block, nil
}

// invalidate rolls back the latest applied block. The block under construction is never part of
// the store, so it is always the previously applied one that goes.
func (s *Scanner) invalidate(ctx context.Context, best model.ChainPointer, reason error) TickResult {
	ptr, err := s.store.InvalidateLatestBlock(ctx)
	if err != nil {
		return TickResult{Outcome: Fatal, Hash: best.Hash, Height: best.Height, Err: errors.NewProcessingError("[RichList] failed to roll back block %s: %v", best.Hash, reason, err)}
	}

	return TickResult{Outcome: InvalidatedAndRetry, Hash: ptr.Hash, Height: ptr.Height, Err: reason}
}
