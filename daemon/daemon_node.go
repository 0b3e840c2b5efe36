package daemon

import (
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/node"
	"github.com/bsv-blockchain/richlist/node/bitcoind"
	"github.com/bsv-blockchain/richlist/node/kafka"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/ulogger"
)

const defaultNodePollInterval = time.Second

// newNode connects to the node's RPC interface and picks the notification source named by
// richlist_notificationSource. The returned func releases everything that was opened.
func newNode(logger ulogger.Logger, tSettings *settings.Settings) (node.Node, func(), error) {
	rpcNode, err := bitcoind.New(logger, tSettings)
	if err != nil {
		return nil, nil, err
	}

	source := tSettings.RichList.NotificationSource

	switch source {
	case "", "zmq":
		return rpcNode, rpcNode.Close, nil

	case "kafka":
		notifier, err := kafka.New(logger, tSettings)
		if err != nil {
			rpcNode.Close()
			return nil, nil, err
		}

		closeFn := func() {
			if err := notifier.Close(); err != nil {
				logger.Warnf("[Daemon] failed to close kafka notifier: %v", err)
			}

			rpcNode.Close()
		}

		return node.WithNotifier(rpcNode, notifier), closeFn, nil

	case "poll":
		interval := tSettings.RichList.PollInterval
		if interval <= 0 {
			interval = defaultNodePollInterval
		}

		return node.WithNotifier(rpcNode, node.NewPollingNotifier(logger, rpcNode, interval)), rpcNode.Close, nil

	default:
		rpcNode.Close()
		return nil, nil, errors.NewConfigurationError("unknown notification source %q, expected zmq, kafka or poll", source)
	}
}
