package node

import (
	"context"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/ulogger"
)

type bestHashGetter interface {
	GetBestBlockHash(ctx context.Context) (string, error)
}

// PollingNotifier notifies whenever the node's best block hash changes between two polls. It is
// used when the node offers no push notifications.
type PollingNotifier struct {
	logger   ulogger.Logger
	node     bestHashGetter
	interval time.Duration
}

func NewPollingNotifier(logger ulogger.Logger, node bestHashGetter, interval time.Duration) *PollingNotifier {
	return &PollingNotifier{
		logger:   logger,
		node:     node,
		interval: interval,
	}
}

func (p *PollingNotifier) Subscribe(ctx context.Context, source string) (<-chan *model.Notification, error) {
	if p.interval <= 0 {
		return nil, errors.NewConfigurationError("poll interval must be positive, got %s", p.interval)
	}

	ch := make(chan *model.Notification, 1)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last string

		for {
			select {
			case <-ctx.Done():
				p.logger.Infof("[PollingNotifier] %s unsubscribed", source)
				return
			case <-ticker.C:
				hash, err := p.node.GetBestBlockHash(ctx)
				if err != nil {
					p.logger.Warnf("[PollingNotifier] could not get best block hash: %v", err)
					continue
				}

				if hash == last {
					continue
				}

				last = hash

				select {
				case ch <- &model.Notification{Type: model.NotificationTypeBlock, Hash: hash}:
				default:
					// a notification is already pending
				}
			}
		}
	}()

	return ch, nil
}
