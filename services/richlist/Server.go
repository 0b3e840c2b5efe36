// Package richlist keeps a ranking of the richest addresses in step with a node's best chain and
// serves it to clients.
package richlist

import (
	"context"
	"net/http"
	"sync"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/node"
	"github.com/bsv-blockchain/richlist/settings"
	richliststore "github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/bsv-blockchain/richlist/util/health"
)

const notificationSource = "richlist"

// Responder writes a JSON response. echo.Context satisfies it.
type Responder interface {
	JSON(code int, i interface{}) error
}

// NotSynchronized is the body of a 503 response.
type NotSynchronized struct {
	Error       string `json:"error"`
	LocalHash   string `json:"localHash,omitempty"`
	LocalHeight uint32 `json:"localHeight"`
	NodeHash    string `json:"nodeHash,omitempty"`
}

// Server is the rich list service: it owns the scanner, routes node notifications to it and
// answers rich list queries.
type Server struct {
	logger     ulogger.Logger
	settings   *settings.Settings
	store      richliststore.Store
	node       node.Node
	scanner    *Scanner
	httpServer *HTTP
	mu         sync.Mutex
	cancel     context.CancelFunc
	forwarding sync.WaitGroup
}

func New(logger ulogger.Logger, tSettings *settings.Settings, store richliststore.Store, n node.Node) *Server {
	initPrometheusMetrics()

	return &Server{
		logger:   logger,
		settings: tSettings,
		store:    store,
		node:     n,
		scanner:  NewScanner(logger, tSettings, store, n),
	}
}

func (s *Server) Scanner() *Scanner {
	return s.scanner
}

func (s *Server) Events() <-chan Event {
	return s.scanner.Events()
}

// Init prepares the store, subscribes to the node's block notifications and starts the first
// catch-up. It returns as soon as the scanner is running.
func (s *Server) Init(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return errors.NewServiceError("[RichList] failed to initialize store", err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	notifications, err := s.node.Subscribe(subCtx, notificationSource)
	if err != nil {
		cancel()
		return errors.NewServiceError("[RichList] failed to subscribe to node notifications", err)
	}

	if err = s.scanner.Start(ctx); err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.forwarding.Add(1)

	go func() {
		defer s.forwarding.Done()

		for notification := range notifications {
			s.logger.Debugf("[RichList] received %s notification %s", notification.Type, notification.Hash)
			s.scanner.Trigger()
		}
	}()

	s.logger.Infof("[RichList] initialized")

	return nil
}

// Start serves the HTTP API when a listen address is configured and blocks until ctx is done.
func (s *Server) Start(ctx context.Context, readyCh chan<- struct{}) error {
	addr := s.settings.RichList.HTTPListenAddress

	if addr == "" {
		close(readyCh)
		<-ctx.Done()

		return nil
	}

	s.mu.Lock()
	s.httpServer = NewHTTP(s.logger, s.settings, s)
	s.mu.Unlock()

	close(readyCh)

	return s.httpServer.Start(ctx, addr)
}

// Stop waits for the scanner to finish its current tick, then ends the subscription.
func (s *Server) Stop(ctx context.Context) error {
	err := s.scanner.Stop(ctx)

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	httpServer := s.httpServer
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.forwarding.Wait()
	}

	if httpServer != nil {
		if stopErr := httpServer.Stop(ctx); stopErr != nil && err == nil {
			err = stopErr
		}
	}

	return err
}

func (s *Server) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	checks := []health.Check{
		{Name: "Store", Check: s.store.Health},
		{Name: "Node", Check: s.node.Health},
		{Name: "Scanner", Check: s.scannerHealth},
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

func (s *Server) scannerHealth(_ context.Context, _ bool) (int, string, error) {
	state := s.scanner.State()
	if state != StateRunning {
		return http.StatusServiceUnavailable, string(state), nil
	}

	return http.StatusOK, string(state), nil
}

// RichList returns the top balances when the store has caught up with the node's best block and
// a NOT_SYNCHRONIZED error otherwise.
func (s *Server) RichList(ctx context.Context) ([]model.Balance, error) {
	local, err := s.store.BestBlock(ctx)
	if err != nil {
		return nil, err
	}

	nodeHash, err := s.node.GetBestBlockHash(ctx)
	if err != nil {
		return nil, errors.NewServiceUnavailableError("node unavailable", err)
	}

	synced := local.Hash == nodeHash

	if local.IsGenesis() && !synced {
		// nothing applied and the node has nothing beyond its height 0 block
		header, err := s.node.GetBlockHeaderByHeight(ctx, 0)
		if err != nil {
			return nil, errors.NewServiceUnavailableError("node unavailable", err)
		}

		synced = header.Hash == nodeHash
	}

	if !synced {
		notSyncedErr := errors.New(errors.ERR_NOT_SYNCHRONIZED, "not synchronized: local %s at height %d, node %s", local.Hash, local.Height, nodeHash)
		notSyncedErr.SetData("localHash", local.Hash)
		notSyncedErr.SetData("localHeight", local.Height)
		notSyncedErr.SetData("nodeHash", nodeHash)

		return nil, notSyncedErr
	}

	balances, err := s.store.GetMostRichest(ctx, s.settings.RichList.ListSize)
	if err != nil {
		return nil, err
	}

	if balances == nil {
		balances = []model.Balance{}
	}

	return balances, nil
}

// List answers a rich list request: 200 with the ranking, or 503 when the store lags behind the
// node or the node cannot be reached.
func (s *Server) List(req *http.Request, responder Responder) error {
	balances, err := s.RichList(req.Context())
	if err == nil {
		prometheusRichListListRequests.WithLabelValues("200").Inc()
		return responder.JSON(http.StatusOK, balances)
	}

	var tErr *errors.Error

	switch {
	case errors.Is(err, errors.ErrNotSynchronized) && errors.As(err, &tErr):
		prometheusRichListListRequests.WithLabelValues("503").Inc()

		body := NotSynchronized{Error: "not synchronized"}
		body.LocalHash, _ = tErr.GetData("localHash").(string)
		body.LocalHeight, _ = tErr.GetData("localHeight").(uint32)
		body.NodeHash, _ = tErr.GetData("nodeHash").(string)

		return responder.JSON(http.StatusServiceUnavailable, body)

	case errors.Is(err, errors.ErrServiceUnavailable):
		prometheusRichListListRequests.WithLabelValues("503").Inc()
		s.logger.Warnf("[RichList] node unavailable: %v", err)

		return responder.JSON(http.StatusServiceUnavailable, NotSynchronized{Error: "node unavailable"})

	default:
		prometheusRichListListRequests.WithLabelValues("500").Inc()
		s.logger.Errorf("[RichList] failed to list balances: %v", err)

		return responder.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
