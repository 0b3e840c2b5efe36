package daemon

import (
	"context"

	"github.com/bsv-blockchain/richlist/node"
	"github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/bsv-blockchain/richlist/ulogger"
)

// Option is a functional option type for configuring the Daemon.
type Option func(*Daemon)

// WithLoggerFactory provides a custom logger factory for the Daemon and its services.
func WithLoggerFactory(factory func(serviceName string) ulogger.Logger) Option {
	return func(d *Daemon) {
		d.loggerFactory = factory
	}
}

func WithContext(ctx context.Context) Option {
	return func(d *Daemon) {
		d.Ctx = ctx
	}
}

// WithNode replaces the node built from settings.
func WithNode(n node.Node) Option {
	return func(d *Daemon) {
		d.node = n
	}
}

// WithStore replaces the store built from settings. The daemon still initializes and closes it.
func WithStore(store richlist.Store) Option {
	return func(d *Daemon) {
		d.store = store
	}
}
