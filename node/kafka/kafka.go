// Package kafka delivers block notifications read from a Kafka topic. Each message names a new
// best block, either as a bare hash or as a JSON object with a hash field.
package kafka

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/IBM/sarama"
	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/ulogger"
)

// MemoryHost selects the in-process broker instead of a Kafka cluster.
const MemoryHost = "memory"

type Notifier struct {
	logger    ulogger.Logger
	consumer  sarama.Consumer
	topic     string
	partition int32
}

// New connects to the brokers in KAFKA_HOSTS.
func New(logger ulogger.Logger, tSettings *settings.Settings) (*Notifier, error) {
	hosts := tSettings.Kafka.Hosts
	if len(hosts) == 0 {
		return nil, errors.NewConfigurationError("KAFKA_HOSTS is not set")
	}

	var (
		consumer sarama.Consumer
		err      error
	)

	if len(hosts) == 1 && hosts[0] == MemoryHost {
		consumer = SharedBroker().NewConsumer(tSettings.Kafka.Blocks)
	} else {
		config := sarama.NewConfig()
		config.Consumer.Return.Errors = true

		consumer, err = sarama.NewConsumer(hosts, config)
		if err != nil {
			return nil, errors.NewKafkaError("could not connect to kafka at %s", strings.Join(hosts, ","), err)
		}
	}

	return NewWithConsumer(logger, consumer, tSettings.Kafka.Blocks, int32(tSettings.Kafka.Partition)), nil //nolint:gosec // partition numbers are small
}

func NewWithConsumer(logger ulogger.Logger, consumer sarama.Consumer, topic string, partition int32) *Notifier {
	return &Notifier{
		logger:    logger,
		consumer:  consumer,
		topic:     topic,
		partition: partition,
	}
}

func decodeHash(value []byte) string {
	v := strings.TrimSpace(string(value))

	if strings.HasPrefix(v, "{") {
		var msg struct {
			Hash string `json:"hash"`
		}

		if err := json.Unmarshal([]byte(v), &msg); err == nil {
			return msg.Hash
		}
	}

	return v
}

// Subscribe consumes new messages from the end of the partition.
func (n *Notifier) Subscribe(ctx context.Context, source string) (<-chan *model.Notification, error) {
	pc, err := n.consumer.ConsumePartition(n.topic, n.partition, sarama.OffsetNewest)
	if err != nil {
		return nil, errors.NewKafkaError("could not consume %s/%d", n.topic, n.partition, err)
	}

	n.logger.Infof("[Kafka] %s consuming %s/%d", source, n.topic, n.partition)

	ch := make(chan *model.Notification, 1)

	go func() {
		defer close(ch)

		defer func() {
			if err := pc.Close(); err != nil {
				n.logger.Warnf("[Kafka] could not close partition consumer: %v", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				n.logger.Infof("[Kafka] %s stopped consuming %s", source, n.topic)
				return
			case cErr, ok := <-pc.Errors():
				if ok && cErr != nil {
					n.logger.Errorf("[Kafka] error consuming %s: %v", n.topic, cErr.Err)
				}
			case msg, ok := <-pc.Messages():
				if !ok {
					return
				}

				notification := &model.Notification{Type: model.NotificationTypeBlock, Hash: decodeHash(msg.Value)}

				n.logger.Debugf("[Kafka] block %s at offset %d", notification.Hash, msg.Offset)

				select {
				case ch <- notification:
				default:
				}
			}
		}
	}()

	return ch, nil
}

// Close closes the underlying consumer.
func (n *Notifier) Close() error {
	return n.consumer.Close()
}
