package bitcoind

import (
	"context"
	"strconv"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/ordishs/go-bitcoin"
)

// Subscribe listens to the node's ZMQ hashblock topic.
func (n *Node) Subscribe(ctx context.Context, source string) (<-chan *model.Notification, error) {
	if n.zmqURL == nil {
		return nil, errors.NewConfigurationError("richlist_nodeZMQ is not set")
	}

	port, err := strconv.Atoi(n.zmqURL.Port())
	if err != nil {
		return nil, errors.NewConfigurationError("invalid zmq port in %s", n.zmqURL, err)
	}

	zmq := bitcoin.NewZMQ(n.zmqURL.Hostname(), port)

	zmqCh := make(chan []string, 16)
	if err = zmq.Subscribe(n.zmqTopic, zmqCh); err != nil {
		return nil, errors.NewServiceError("could not subscribe to %s on %s", n.zmqTopic, n.zmqURL.Host, err)
	}

	n.logger.Infof("[bitcoind] %s subscribed to %s on %s", source, n.zmqTopic, n.zmqURL.Host)

	ch := make(chan *model.Notification, 1)

	go func() {
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				if err := zmq.Unsubscribe(n.zmqTopic, zmqCh); err != nil {
					n.logger.Warnf("[bitcoind] could not unsubscribe from %s: %v", n.zmqTopic, err)
				}

				return
			case msg := <-zmqCh:
				notification := &model.Notification{Type: model.NotificationTypeBlock}
				if len(msg) > 1 {
					notification.Hash = msg[1]
				}

				n.logger.Debugf("[bitcoind] hashblock %s", notification.Hash)

				select {
				case ch <- notification:
				default:
				}
			}
		}
	}()

	return ch, nil
}
