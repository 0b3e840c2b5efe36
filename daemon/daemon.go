// Package daemon wires settings, store, node and the rich list service into one process.
package daemon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/node"
	richlistservice "github.com/bsv-blockchain/richlist/services/richlist"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/bsv-blockchain/richlist/stores/richlist/factory"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/bsv-blockchain/richlist/util/servicemanager"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultStopTimeout = 10 * time.Second

type Daemon struct {
	Ctx           context.Context
	doneCh        chan struct{}
	closeDoneOnce sync.Once
	stopCh        chan struct{}
	closeStopOnce sync.Once
	serverMu      sync.Mutex
	server        *http.Server

	ServiceManager *servicemanager.ServiceManager
	loggerFactory  func(serviceName string) ulogger.Logger
	store          richlist.Store
	node           node.Node
}

func New(opts ...Option) *Daemon {
	d := &Daemon{
		Ctx:    context.Background(),
		doneCh: make(chan struct{}),
		stopCh: make(chan struct{}),
		loggerFactory: func(serviceName string) ulogger.Logger {
			return ulogger.New(serviceName)
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	d.ServiceManager = servicemanager.NewServiceManager(d.Ctx, d.loggerFactory("ServiceManager"))

	return d
}

// Stop asks a running daemon to shut down and waits for it to finish.
func (d *Daemon) Stop(timeout ...time.Duration) error {
	d.closeDoneOnce.Do(func() { close(d.doneCh) })

	stopTimeout := defaultStopTimeout
	if len(timeout) > 0 {
		stopTimeout = timeout[0]
	}

	select {
	case <-d.stopCh:
		return nil
	case <-time.After(stopTimeout):
		return errors.NewProcessingError("timeout waiting for services to stop after %v", stopTimeout)
	}
}

// Start runs the rich list service until Stop is called, a signal arrives or the service fails.
// readyCh, when given, is closed once the service is ready.
func (d *Daemon) Start(logger ulogger.Logger, tSettings *settings.Settings, readyCh ...chan struct{}) (err error) {
	defer d.closeStopOnce.Do(func() { close(d.stopCh) })

	sm := d.ServiceManager

	store := d.store
	if store == nil {
		if store, err = factory.NewStore(sm.Ctx, d.loggerFactory("RichListStore"), tSettings, nil); err != nil {
			sm.ForceShutdown()
			return err
		}
	}

	defer func() {
		if closeErr := store.Close(context.Background()); closeErr != nil {
			logger.Warnf("[Daemon] failed to close store: %v", closeErr)
		}
	}()

	n := d.node
	if n == nil {
		var closeNode func()

		if n, closeNode, err = newNode(d.loggerFactory("Node"), tSettings); err != nil {
			sm.ForceShutdown()
			return err
		}

		defer closeNode()
	}

	service := richlistservice.New(d.loggerFactory("RichList"), tSettings, store, n)

	if err = sm.AddService("RichList", service); err != nil {
		sm.ForceShutdown()
		_ = sm.Wait()

		return err
	}

	d.startMetricsServer(logger, tSettings)
	defer d.stopMetricsServer(logger)

	if len(readyCh) > 0 && readyCh[0] != nil {
		go func() {
			sm.WaitForServiceToBeReady()
			close(readyCh[0])
		}()
	}

	waitErr := make(chan error, 1)

	go func() {
		waitErr <- sm.Wait()
	}()

	select {
	case err = <-waitErr:
		if err != nil {
			logger.Errorf("services failed: %v", err)
		}
	case <-d.doneCh:
		logger.Infof("daemon shutdown requested")

		sm.ForceShutdown()

		if err = <-waitErr; err != nil {
			logger.Errorf("error during service shutdown: %v", err)
		}

		logger.Infof("daemon shutdown completed")
	}

	return err
}

// startMetricsServer exposes prometheus metrics and health endpoints on
// prometheusListenAddress. An empty address disables it.
func (d *Daemon) startMetricsServer(logger ulogger.Logger, tSettings *settings.Settings) {
	if tSettings.PrometheusListenAddress == "" {
		return
	}

	sm := d.ServiceManager

	healthFunc := func(liveness bool) func(http.ResponseWriter, *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			status, details, _ := sm.HealthHandler(r.Context(), liveness)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(details))
		}
	}

	mux := http.NewServeMux()
	mux.Handle(tSettings.PrometheusEndpoint, promhttp.Handler())
	mux.HandleFunc("/health", healthFunc(false))
	mux.HandleFunc("/health/readiness", healthFunc(false))
	mux.HandleFunc("/health/liveness", healthFunc(true))
	mux.HandleFunc("/services", servicemanager.ServicesHandler)

	server := &http.Server{
		Addr:              tSettings.PrometheusListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	d.serverMu.Lock()
	d.server = server
	d.serverMu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[Daemon] metrics server failed: %v", err)
		}
	}()

	servicemanager.AddListenerInfo("Metrics and health listening on " + tSettings.PrometheusListenAddress)
	logger.Infof("Metrics on http://%s%s, health on /health", tSettings.PrometheusListenAddress, tSettings.PrometheusEndpoint)
}

func (d *Daemon) stopMetricsServer(logger ulogger.Logger) {
	d.serverMu.Lock()
	defer d.serverMu.Unlock()

	if d.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		logger.Warnf("Error shutting down metrics server: %v", err)
	}

	d.server = nil
}
