package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

const headerEventType = "event-type"

// EventPublisher appends chat events to a topic through an async producer.
// Delivery results are only logged; callers never wait for the broker.
type EventPublisher struct {
	producer sarama.AsyncProducer
	client   sarama.Client
	topic    string
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Dial connects to the brokers, makes sure the topic exists and starts the producer.
func Dial(c Config, log *zap.Logger) (*EventPublisher, error) {
	c = c.withDefaults()
	client, err := sarama.NewClient(c.Brokers, BuildConfig(c))
	if err != nil {
		return nil, errs.ErrInternal.Wrap(err, "brokers", c.Brokers)
	}
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.ErrInternal.Wrap(err)
	}
	if err := EnsureTopic(admin, c.Topic, c.Partitions, c.ReplicationFactor, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	p, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.ErrInternal.Wrap(err)
	}
	ep := NewEventPublisher(p, c.Topic, log)
	ep.client = client
	return ep, nil
}

// NewEventPublisher takes ownership of p and drains its result channels.
func NewEventPublisher(p sarama.AsyncProducer, topic string, log *zap.Logger) *EventPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	ep := &EventPublisher{producer: p, topic: topic, log: log.Named("kafka"), done: make(chan struct{})}
	safe.Go("kafka-drain", ep.drain)
	return ep
}

func (ep *EventPublisher) drain() {
	defer close(ep.done)
	successes, failures := ep.producer.Successes(), ep.producer.Errors()
	for successes != nil || failures != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			ep.log.Debug("event stored", zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset))
		case perr, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			ep.log.Error("event lost", zap.String("topic", perr.Msg.Topic), zap.Error(perr.Err))
		}
	}
}

// Publish enqueues ev keyed by its conversation.
func (ep *EventPublisher) Publish(ctx context.Context, ev model.ChatEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errs.ErrInternal.Wrap(err, "type", ev.Type)
	}
	msg := &sarama.ProducerMessage{
		Topic:   ep.topic,
		Key:     sarama.StringEncoder(ev.ConversationID),
		Value:   sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{{Key: []byte(headerEventType), Value: []byte(ev.Type)}},
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()
	if ep.closed {
		return errs.ErrInternal.WrapMsg("event publisher closed")
	}
	select {
	case ep.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered events and releases the producer.
func (ep *EventPublisher) Close() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	ep.mu.Unlock()

	ep.producer.AsyncClose()
	<-ep.done
	if ep.client != nil {
		return ep.client.Close()
	}
	return nil
}
