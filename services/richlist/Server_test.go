package richlist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/node/memnode"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/stores/richlist/memory"
	"github.com/bsv-blockchain/richlist/stores/richlist/tests"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *memnode.Node) {
	t.Helper()

	n := memnode.New()
	s := New(ulogger.TestLogger{}, settings.NewTestSettings(), memory.New(ulogger.TestLogger{}), n)

	return s, n
}

func list(t *testing.T, s *Server) *recorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/richlist", nil)
	rec := &recorder{}

	require.NoError(t, s.List(req, rec))

	return rec
}

func TestListFollowsNotifications(t *testing.T) {
	s, n := newTestServer(t)
	ctx := context.Background()

	chainA(t, n)

	require.NoError(t, s.Init(ctx))
	waitForEvent(t, s.scanner, EventTypeCaughtUp)
	assert.Equal(t, 1, n.Subscribers())

	rec := list(t, s)
	require.Equal(t, http.StatusOK, rec.code)
	assert.Equal(t, []string{"addr3=40", "addr4=40", "addr2=4"}, tests.Pairs(rec.body.([]model.Balance)))

	require.NoError(t, n.Reorg(1))
	addBlock(t, n, "b2b", tests.Block2B.Transactions...)
	addBlock(t, n, "b3b", tests.Block3B.Transactions...)
	n.Notify()

	event := waitForEvent(t, s.scanner, EventTypeCaughtUp)
	assert.Equal(t, "b3b", event.Hash)

	rec = list(t, s)
	require.Equal(t, http.StatusOK, rec.code)
	assert.Equal(t, []string{"addr2=50", "addr6=34"}, tests.Pairs(rec.body.([]model.Balance)))

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, StateStopped, s.scanner.State())
	assert.Equal(t, 0, n.Subscribers())
}

func TestListNotSynchronized(t *testing.T) {
	s, n := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.store.Init(ctx))
	require.NoError(t, s.store.InsertBlock(ctx, tests.Block1))

	chainA(t, n)

	rec := list(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.code)
	assert.Equal(t, NotSynchronized{Error: "not synchronized", LocalHash: "b1", LocalHeight: 1, NodeHash: "b2a"}, rec.body)

	_, err := s.RichList(ctx)
	assert.True(t, errors.Is(err, errors.ErrNotSynchronized))
}

func TestListAtGenesis(t *testing.T) {
	s, n := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.store.Init(ctx))

	rec := list(t, s)
	require.Equal(t, http.StatusOK, rec.code)
	assert.Equal(t, []model.Balance{}, rec.body)

	addBlock(t, n, "b1", tests.Block1.Transactions...)

	rec = list(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.code)
	assert.Equal(t, NotSynchronized{Error: "not synchronized", NodeHash: "b1"}, rec.body)
}

func TestListRespectsListSize(t *testing.T) {
	s, n := newTestServer(t)
	s.settings.RichList.ListSize = 1
	ctx := context.Background()

	chainA(t, n)

	require.NoError(t, s.Init(ctx))
	waitForEvent(t, s.scanner, EventTypeCaughtUp)

	rec := list(t, s)
	require.Equal(t, http.StatusOK, rec.code)
	assert.Equal(t, []string{"addr3=40"}, tests.Pairs(rec.body.([]model.Balance)))

	require.NoError(t, s.Stop(ctx))
}

func TestListNodeUnavailable(t *testing.T) {
	n := &mockNode{}
	n.On("GetBestBlockHash", mock.Anything).Return("", errors.NewNetworkError("connection refused"))

	s := New(ulogger.TestLogger{}, settings.NewTestSettings(), memory.New(ulogger.TestLogger{}), n)

	rec := list(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.code)
	assert.Equal(t, NotSynchronized{Error: "node unavailable"}, rec.body)
	n.AssertExpectations(t)
}

func TestInitFailsWhenSubscribeFails(t *testing.T) {
	n := &mockNode{}
	n.On("Subscribe", mock.Anything, notificationSource).Return(nil, errors.NewServiceError("no notifications"))

	s := New(ulogger.TestLogger{}, settings.NewTestSettings(), memory.New(ulogger.TestLogger{}), n)

	err := s.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, s.scanner.State())

	require.NoError(t, s.Stop(context.Background()))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	status, _, err := s.Health(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	// the scanner is not running yet
	status, details, err := s.Health(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, details, string(StateStopped))

	require.NoError(t, s.Init(ctx))

	status, _, err = s.Health(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	require.NoError(t, s.Stop(ctx))
}

func TestHTTPRoutes(t *testing.T) {
	s, n := newTestServer(t)
	ctx := context.Background()

	chainA(t, n)

	require.NoError(t, s.Init(ctx))
	waitForEvent(t, s.scanner, EventTypeCaughtUp)

	h := NewHTTP(ulogger.TestLogger{}, s.settings, s)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/richlist", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"address":"addr3","balance":40},{"address":"addr4","balance":40},{"address":"addr2","balance":4}]`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "200", body["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?liveness=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.Stop(ctx))
}

func TestStartServesHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	s.settings.RichList.HTTPListenAddress = "localhost:0"

	ctx, cancel := context.WithCancel(context.Background())
	readyCh := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx, readyCh)
	}()

	select {
	case <-readyCh:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "server never became ready")
	}

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "server never shut down")
	}
}
