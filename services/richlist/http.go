package richlist

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/bsv-blockchain/richlist/util/servicemanager"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HTTP exposes the rich list over REST.
//
//	GET /health            dependency health, ?liveness=true for a liveness probe
//	GET {prefix}/richlist  top balances or 503 when not synchronized
type HTTP struct {
	logger   ulogger.Logger
	settings *settings.Settings
	server   *Server
	e        *echo.Echo
}

func NewHTTP(logger ulogger.Logger, tSettings *settings.Settings, server *Server) *HTTP {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Gzip())
	e.Use(requestLoggerMiddleware(logger))

	h := &HTTP{
		logger:   logger,
		settings: tSettings,
		server:   server,
		e:        e,
	}

	e.GET("/health", h.health)

	apiGroup := e.Group(tSettings.RichList.APIPrefix)
	apiGroup.GET("/richlist", h.richList)

	return h
}

func (h *HTTP) health(c echo.Context) error {
	checkLiveness := c.QueryParam("liveness") == "true"

	status, details, err := h.server.Health(c.Request().Context(), checkLiveness)
	if err != nil {
		h.logger.Errorf("[RichList] health check failed: %v", err)
	}

	return c.String(status, details)
}

func (h *HTTP) richList(c echo.Context) error {
	return h.server.List(c.Request(), c)
}

func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.e.ServeHTTP(w, r)
}

func (h *HTTP) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()

		h.logger.Infof("[RichList] HTTP service shutting down")

		if err := h.e.Shutdown(context.Background()); err != nil {
			h.logger.Errorf("[RichList] HTTP service shutdown error: %s", err)
		}
	}()

	servicemanager.AddListenerInfo(fmt.Sprintf("RichList HTTP listening on %s", addr))

	err := h.e.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.NewServiceError("[RichList] HTTP server failed", err)
	}

	return nil
}

func (h *HTTP) Stop(ctx context.Context) error {
	return h.e.Shutdown(ctx)
}

func requestLoggerMiddleware(logger ulogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Debugf("http request: Method=%s, URI=%s, RemoteAddr=%s Status=%d, Duration=%v, err=%v", c.Request().Method, c.Request().RequestURI, c.Request().RemoteAddr, c.Response().Status, time.Since(start), err)

			return err
		}
	}
}
