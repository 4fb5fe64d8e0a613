package messaging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

// Headers attached to order events and to dead-lettered copies of them.
const (
	HeaderEventType      = "event-type"
	HeaderOriginalTopic  = "dead-letter-original-topic"
	HeaderOriginalOffset = "dead-letter-original-offset"
	HeaderFailure        = "dead-letter-error"
)

// Message is an order event as seen by worker handlers, independent of the broker.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

// Handler processes one inbound message. A non-nil error asks for redelivery.
type Handler func(context.Context, Message) error

// Client publishes order events and feeds consumed ones to a Handler.
type Client interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewClient returns the kafka client, or a client that drops everything when messaging is off.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	m := cfg.Messaging
	if !m.Enabled || m.Driver == "noop" {
		logger.Info("order events disabled", zap.String("topic", m.Kafka.Topic))
		return discard{topic: m.Kafka.Topic}, nil
	}
	if m.Driver != "kafka" {
		return nil, fmt.Errorf("unsupported messaging driver: %s", m.Driver)
	}
	return newKafkaClient(lc, m, logger), nil
}

type discard struct {
	topic string
}

func (d discard) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }

func (d discard) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d discard) Topic() string { return d.topic }
