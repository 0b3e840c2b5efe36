package kafka

import (
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/bsv-blockchain/richlist/errors"
)

var (
	sharedBroker     *Broker
	sharedBrokerOnce sync.Once
)

// SharedBroker returns the process wide in-memory broker used when KAFKA_HOSTS is "memory".
func SharedBroker() *Broker {
	sharedBrokerOnce.Do(func() {
		sharedBroker = NewBroker()
	})

	return sharedBroker
}

// Broker is an in-process, single partition stand-in for a Kafka cluster. Messages are only
// delivered to consumers subscribed when they are produced.
type Broker struct {
	mu        sync.RWMutex
	offsets   map[string]int64
	consumers map[string][]*memoryConsumer
}

func NewBroker() *Broker {
	return &Broker{
		offsets:   make(map[string]int64),
		consumers: make(map[string][]*memoryConsumer),
	}
}

// Produce delivers value to every consumer of topic. Slow consumers miss the message.
func (b *Broker) Produce(topic string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := &sarama.ConsumerMessage{
		Topic:     topic,
		Value:     value,
		Offset:    b.offsets[topic],
		Timestamp: time.Now(),
	}

	b.offsets[topic]++

	for _, c := range b.consumers[topic] {
		select {
		case c.ch <- msg:
		default:
		}
	}
}

// NewConsumer returns a sarama.Consumer reading topic from this broker.
func (b *Broker) NewConsumer(topic string) sarama.Consumer {
	c := &memoryConsumer{
		broker: b,
		topic:  topic,
		ch:     make(chan *sarama.ConsumerMessage, 100),
	}

	b.mu.Lock()
	b.consumers[topic] = append(b.consumers[topic], c)
	b.mu.Unlock()

	return c
}

type memoryConsumer struct {
	broker    *Broker
	topic     string
	ch        chan *sarama.ConsumerMessage
	closeOnce sync.Once
}

func (c *memoryConsumer) ConsumePartition(topic string, partition int32, _ int64) (sarama.PartitionConsumer, error) {
	if topic != c.topic || partition != 0 {
		return nil, errors.NewKafkaError("only partition 0 of %s is available", c.topic)
	}

	return &memoryPartitionConsumer{consumer: c}, nil
}

func (c *memoryConsumer) Topics() ([]string, error) {
	return []string{c.topic}, nil
}

func (c *memoryConsumer) Partitions(_ string) ([]int32, error) {
	return []int32{0}, nil
}

// Close unregisters the consumer from the broker and closes its message channel.
func (c *memoryConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.broker.mu.Lock()
		defer c.broker.mu.Unlock()

		consumers := c.broker.consumers[c.topic]
		kept := make([]*memoryConsumer, 0, len(consumers))

		for _, other := range consumers {
			if other != c {
				kept = append(kept, other)
			}
		}

		c.broker.consumers[c.topic] = kept

		close(c.ch)
	})

	return nil
}

func (c *memoryConsumer) HighWaterMarks() map[string]map[int32]int64 {
	c.broker.mu.RLock()
	defer c.broker.mu.RUnlock()

	return map[string]map[int32]int64{c.topic: {0: c.broker.offsets[c.topic]}}
}

func (c *memoryConsumer) Pause(map[string][]int32)  {}
func (c *memoryConsumer) Resume(map[string][]int32) {}
func (c *memoryConsumer) PauseAll()                 {}
func (c *memoryConsumer) ResumeAll()                {}

type memoryPartitionConsumer struct {
	consumer *memoryConsumer
}

func (pc *memoryPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage {
	return pc.consumer.ch
}

// Errors returns a nil channel, the in-memory broker never fails.
func (pc *memoryPartitionConsumer) Errors() <-chan *sarama.ConsumerError {
	return nil
}

func (pc *memoryPartitionConsumer) Close() error {
	return nil
}

func (pc *memoryPartitionConsumer) AsyncClose() {}

func (pc *memoryPartitionConsumer) HighWaterMarkOffset() int64 {
	return pc.consumer.HighWaterMarks()[pc.consumer.topic][0]
}

func (pc *memoryPartitionConsumer) IsPaused() bool { return false }
func (pc *memoryPartitionConsumer) Pause()         {}
func (pc *memoryPartitionConsumer) Resume()        {}
