package richlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/node/memnode"
	"github.com/bsv-blockchain/richlist/settings"
	richliststore "github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/bsv-blockchain/richlist/stores/richlist/memory"
	"github.com/bsv-blockchain/richlist/stores/richlist/tests"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T) (*Scanner, *memnode.Node, richliststore.Store) {
	t.Helper()

	store := memory.New(ulogger.TestLogger{})
	require.NoError(t, store.Init(context.Background()))

	n := memnode.New()

	return NewScanner(ulogger.TestLogger{}, settings.NewTestSettings(), store, n), n, store
}

func requireTick(t *testing.T, s *Scanner, outcome Outcome, hash string, height uint32) TickResult {
	t.Helper()

	result := s.Tick(context.Background())
	require.Equal(t, outcome, result.Outcome, "unexpected outcome, err: %v", result.Err)
	require.Equal(t, hash, result.Hash)
	require.Equal(t, height, result.Height)

	return result
}

func requireTop(t *testing.T, store richliststore.Store, expected ...string) {
	t.Helper()

	top, err := store.GetMostRichest(context.Background(), 100)
	require.NoError(t, err)

	if expected == nil {
		expected = []string{}
	}

	require.Equal(t, expected, tests.Pairs(top))
}

func addBlock(t *testing.T, n *memnode.Node, hash string, txs ...*model.Transaction) {
	t.Helper()

	_, err := n.AddBlock(hash, txs...)
	require.NoError(t, err)
}

func chainA(t *testing.T, n *memnode.Node) {
	addBlock(t, n, "b1", tests.Block1.Transactions...)
	addBlock(t, n, "b2a", tests.Block2A.Transactions...)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "invalidated", InvalidatedAndRetry.String())
	assert.Equal(t, "caught_up", CaughtUp.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestTickFollowsReorg(t *testing.T) {
	s, n, store := newTestScanner(t)

	chainA(t, n)

	requireTick(t, s, Applied, "b1", 1)
	requireTop(t, store, "addr1=80", "addr2=4")

	requireTick(t, s, Applied, "b2a", 2)
	requireTick(t, s, CaughtUp, "b2a", 2)
	requireTop(t, store, "addr3=40", "addr4=40", "addr2=4")

	require.NoError(t, n.Reorg(1))
	addBlock(t, n, "b2b", tests.Block2B.Transactions...)
	addBlock(t, n, "b3b", tests.Block3B.Transactions...)

	result := requireTick(t, s, InvalidatedAndRetry, "b1", 1)
	assert.True(t, errors.Is(result.Err, errors.ErrBlockNotFound))
	requireTop(t, store, "addr1=80", "addr2=4")

	requireTick(t, s, Applied, "b2b", 2)
	requireTop(t, store, "addr5=80", "addr2=4")

	requireTick(t, s, Applied, "b3b", 3)
	requireTick(t, s, CaughtUp, "b3b", 3)
	requireTop(t, store, "addr2=50", "addr6=34")
}

func TestTickShorterReplacementChain(t *testing.T) {
	s, n, store := newTestScanner(t)

	chainA(t, n)

	requireTick(t, s, Applied, "b1", 1)
	requireTick(t, s, Applied, "b2a", 2)

	// the node forgets b1 and b2a and replaces them with a single block
	require.NoError(t, n.Reorg(2))
	addBlock(t, n, "c1", tests.Tx("x1", 1, []model.Input{{}}, tests.Out("addr9", "9")))

	requireTick(t, s, InvalidatedAndRetry, "b1", 1)
	requireTick(t, s, InvalidatedAndRetry, "", 0)
	requireTick(t, s, Applied, "c1", 1)
	requireTick(t, s, CaughtUp, "c1", 1)
	requireTop(t, store, "addr9=9")
}

func TestTickLocalTipOffBestChain(t *testing.T) {
	ctx := context.Background()

	newScanner := func(t *testing.T) (*Scanner, *mockNode, richliststore.Store) {
		store := memory.New(ulogger.TestLogger{})
		require.NoError(t, store.Init(ctx))
		require.NoError(t, store.InsertBlock(ctx, tests.Block1))

		n := &mockNode{}
		n.On("GetBlockHeader", mock.Anything, "b1").Return(&model.BlockHeader{Hash: "b1", Height: 1, PreviousHash: "g"}, nil)
		n.On("GetBestBlockHash", mock.Anything).Return("x2", nil)

		return NewScanner(ulogger.TestLogger{}, settings.NewTestSettings(), store, n), n, store
	}

	t.Run("successor does not follow local tip", func(t *testing.T) {
		s, n, store := newScanner(t)
		n.On("GetBlockHeaderByHeight", mock.Anything, uint32(2)).Return(&model.BlockHeader{Hash: "x2", Height: 2, PreviousHash: "x1"}, nil)

		result := requireTick(t, s, InvalidatedAndRetry, "", 0)
		assert.True(t, errors.Is(result.Err, errors.ErrBlockInvalid))
		requireTop(t, store)
		n.AssertExpectations(t)
	})

	t.Run("node chain is shorter", func(t *testing.T) {
		s, n, store := newScanner(t)
		n.On("GetBlockHeaderByHeight", mock.Anything, uint32(2)).Return(nil, errors.NewBlockNotFoundError("no block at height 2"))

		result := requireTick(t, s, InvalidatedAndRetry, "", 0)
		assert.True(t, errors.Is(result.Err, errors.ErrBlockInvalid))
		requireTop(t, store)
		n.AssertExpectations(t)
	})

	t.Run("overview at wrong height", func(t *testing.T) {
		s, n, store := newScanner(t)
		n.On("GetBlockHeaderByHeight", mock.Anything, uint32(2)).Return(&model.BlockHeader{Hash: "x2", Height: 2, PreviousHash: "b1"}, nil)
		n.On("GetBlockOverview", mock.Anything, "x2").Return(&model.BlockOverview{Hash: "x2", Height: 3, PreviousHash: "b1"}, nil)

		result := requireTick(t, s, InvalidatedAndRetry, "", 0)
		assert.True(t, errors.Is(result.Err, errors.ErrBlockInvalid))
		requireTop(t, store)
		n.AssertExpectations(t)
	})
}

func TestTickCaughtUpAtGenesis(t *testing.T) {
	s, _, store := newTestScanner(t)

	requireTick(t, s, CaughtUp, "", 0)
	requireTop(t, store)
}

func TestTickTxNotFoundInvalidatesPreviousBlock(t *testing.T) {
	s, n, store := newTestScanner(t)

	chainA(t, n)

	requireTick(t, s, Applied, "b1", 1)

	n.SetTxMissing("a2", true)

	result := requireTick(t, s, InvalidatedAndRetry, "", 0)
	assert.True(t, errors.Is(result.Err, errors.ErrTxNotFound))
	requireTop(t, store)

	n.SetTxMissing("a2", false)

	requireTick(t, s, Applied, "b1", 1)
	requireTick(t, s, Applied, "b2a", 2)
	requireTop(t, store, "addr3=40", "addr4=40", "addr2=4")
}

func TestTickInvalidateAtGenesisIsFatal(t *testing.T) {
	s, n, store := newTestScanner(t)

	chainA(t, n)
	n.SetTxMissing("a1", true)

	result := requireTick(t, s, Fatal, "", 0)
	assert.True(t, errors.Is(result.Err, errors.ErrNoBlockAvailable))
	requireTop(t, store)
}

func TestTickTransportErrorIsFatal(t *testing.T) {
	s, n, store := newTestScanner(t)

	chainA(t, n)
	requireTick(t, s, Applied, "b1", 1)

	n.SetError(errors.NewNetworkError("connection refused"))

	result := requireTick(t, s, Fatal, "b1", 1)
	assert.True(t, errors.Is(result.Err, errors.ErrNetworkError))
	requireTop(t, store, "addr1=80", "addr2=4")

	n.SetError(nil)
	requireTick(t, s, Applied, "b2a", 2)
}

func TestTickDuplicateTransactionIDs(t *testing.T) {
	s, n, store := newTestScanner(t)

	tx := tests.Tx("t1", 1, []model.Input{{}}, tests.Out("addr1", "80"))
	addBlock(t, n, "b1", tx, tx)

	requireTick(t, s, Applied, "b1", 1)
	requireTop(t, store, "addr1=80")
}

func TestTickSkipsTransactionsAtOtherHeights(t *testing.T) {
	s, n, store := newTestScanner(t)

	addBlock(t, n, "b1",
		tests.Tx("t1", 1, []model.Input{{}}, tests.Out("addr1", "10")),
		tests.Tx("t2", 1, []model.Input{{}}, tests.Out("addr2", "20")),
	)

	n.ReplaceTransaction(tests.Tx("t2", 7, []model.Input{{}}, tests.Out("addr2", "20")))

	requireTick(t, s, Applied, "b1", 1)
	requireTop(t, store, "addr1=10")
}

func TestTriggerCoalesces(t *testing.T) {
	s, _, _ := newTestScanner(t)

	for i := 0; i < 5; i++ {
		s.Trigger()
	}

	assert.Len(t, s.wake, 1)
}

func waitForEvent(t *testing.T, s *Scanner, eventType EventType) Event {
	t.Helper()

	timeout := time.After(5 * time.Second)

	for {
		select {
		case event := <-s.Events():
			if event.Type == eventType {
				return event
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for event", string(eventType))
		}
	}
}

func TestScannerRunsToTip(t *testing.T) {
	s, n, store := newTestScanner(t)
	ctx := context.Background()

	chainA(t, n)

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, StateRunning, s.State())
	assert.Error(t, s.Start(ctx))

	event := waitForEvent(t, s, EventTypeCaughtUp)
	assert.Equal(t, "b2a", event.Hash)
	assert.Equal(t, uint32(2), event.Height)
	requireTop(t, store, "addr3=40", "addr4=40", "addr2=4")

	addBlock(t, n, "b3a", tests.Tx("t3", 3, []model.Input{{}}, tests.Out("addr7", "7")))
	s.Trigger()

	event = waitForEvent(t, s, EventTypeCaughtUp)
	assert.Equal(t, "b3a", event.Hash)

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, StateStopped, s.State())

	// a stopped scanner can stop again and be restarted
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Start(ctx))
	waitForEvent(t, s, EventTypeCaughtUp)
	require.NoError(t, s.Stop(ctx))
}

func TestScannerEmitsProgressAndFatal(t *testing.T) {
	s, n, _ := newTestScanner(t)
	s.settings.RichList.ProgressInterval = 2
	ctx := context.Background()

	chainA(t, n)

	require.NoError(t, s.Start(ctx))

	event := waitForEvent(t, s, EventTypeProgress)
	assert.Equal(t, "b2a", event.Hash)
	waitForEvent(t, s, EventTypeCaughtUp)

	fatalNetwork := prometheusRichListFatalErrors.WithLabelValues("network")
	before := testutil.ToFloat64(fatalNetwork)

	n.SetError(errors.NewNetworkError("connection refused"))
	s.Trigger()

	event = waitForEvent(t, s, EventTypeFatal)
	assert.True(t, errors.Is(event.Err, errors.ErrNetworkError))
	assert.Equal(t, before+1, testutil.ToFloat64(fatalNetwork))

	require.NoError(t, s.Stop(ctx))
}

func TestScannerPollInterval(t *testing.T) {
	s, n, store := newTestScanner(t)
	s.settings.RichList.PollInterval = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	waitForEvent(t, s, EventTypeCaughtUp)

	chainA(t, n)

	require.Eventually(t, func() bool {
		best, err := store.BestBlock(ctx)
		return err == nil && best.Hash == "b2a"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(ctx))
}

func TestStopWaitsForActiveTick(t *testing.T) {
	s, n, store := newTestScanner(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	n.SetTxHook(func(txid string) {
		if txid == "a2" {
			once.Do(func() { close(entered) })
			<-release
		}
	})

	chainA(t, n)

	require.NoError(t, s.Start(ctx))

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "tick never reached the second block")
	}

	// a caller that gives up early gets an error while the tick keeps going
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := s.Stop(shortCtx)
	require.Error(t, err)
	assert.Equal(t, StateStopping, s.State())

	stopped := make(chan error, 1)

	go func() {
		stopped <- s.Stop(ctx)
	}()

	select {
	case <-stopped:
		require.FailNow(t, "Stop returned while a tick was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err = <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "Stop never returned")
	}

	assert.Equal(t, StateStopped, s.State())

	// the in-flight tick completed and nothing ran after it
	best, err := store.BestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ChainPointer{Hash: "b2a", Height: 2}, best)

	addBlock(t, n, "b3a", tests.Tx("t3", 3, []model.Input{{}}, tests.Out("addr7", "7")))
	s.Trigger()

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateStopped, s.State())

	best, err = store.BestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ChainPointer{Hash: "b2a", Height: 2}, best)
}

func TestStoppedScannerIgnoresWakeUps(t *testing.T) {
	s, n, store := newTestScanner(t)
	s.settings.RichList.PollInterval = 5 * time.Millisecond
	ctx := context.Background()

	chainA(t, n)

	require.NoError(t, s.Start(ctx))
	waitForEvent(t, s, EventTypeCaughtUp)
	require.NoError(t, s.Stop(ctx))

	for len(s.Events()) > 0 {
		<-s.Events()
	}

	addBlock(t, n, "b3a", tests.Tx("t3", 3, []model.Input{{}}, tests.Out("addr7", "7")))
	s.Trigger()
	s.Trigger()

	// several poll intervals pass without a tick
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateStopped, s.State())

	best, err := store.BestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ChainPointer{Hash: "b2a", Height: 2}, best)
	requireTop(t, store, "addr3=40", "addr4=40", "addr2=4")

	select {
	case event := <-s.Events():
		assert.Failf(t, "unexpected event after stop", "%+v", event)
	default:
	}

	// the pending wake-up is picked up once the scanner runs again
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		best, err = store.BestBlock(ctx)
		return err == nil && best.Hash == "b3a"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(ctx))
}
