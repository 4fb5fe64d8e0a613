package messaging

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

const fetchRetryDelay = time.Second

type kafkaClient struct {
	events     *kafka.Writer
	deadLetter *kafka.Writer
	reader     *kafka.Reader
	topic      string
	delivery   Delivery
	logger     *zap.Logger
}

func newKafkaClient(lc fx.Lifecycle, m config.Messaging, logger *zap.Logger) *kafkaClient {
	kc := m.Kafka
	writer := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(kc.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Logger:       kafkaLogger{logger: logger},
			ErrorLogger:  kafkaLogger{logger: logger, errors: true},
		}
	}

	c := &kafkaClient{
		events:     writer(kc.Topic),
		deadLetter: writer(kc.DeadLetterTopic),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        kc.Brokers,
			GroupID:        m.ConsumerGroup,
			Topic:          kc.Topic,
			MinBytes:       kc.MinBytes,
			MaxBytes:       kc.MaxBytes,
			CommitInterval: kc.CommitInterval,
			Dialer:         &kafka.Dialer{Timeout: kc.ConnectTimeout, ClientID: kc.ClientID},
		}),
		topic:  kc.Topic,
		logger: logger.Named("kafka"),
	}
	c.delivery = Delivery{
		MaxAttempts: kc.MaxAttempts,
		Backoff:     kc.RetryBackoff,
		DeadLetter:  c.park,
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			c.logger.Info("closing kafka client", zap.String("topic", c.topic))
			return errors.Join(c.events.Close(), c.deadLetter.Close(), c.reader.Close())
		},
	})
	return c
}

func (c *kafkaClient) Topic() string { return c.topic }

func (c *kafkaClient) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	return c.events.WriteMessages(ctx, kafka.Message{Key: key, Value: value, Headers: toKafkaHeaders(headers)})
}

// Consume commits a message once it is handled or dead-lettered. It returns only when ctx ends,
// leaving an in-flight message uncommitted so the group redelivers it.
func (c *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("fetch order event", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		if err := c.delivery.Deliver(ctx, FromKafka(km), handler); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, km); err != nil {
			c.logger.Warn("commit order event", zap.Int64("offset", km.Offset), zap.Error(err))
		}
	}
}

func (c *kafkaClient) park(ctx context.Context, msg Message, cause error) error {
	c.logger.Error("dead-lettering order event",
		zap.Int64("offset", msg.Offset),
		zap.String("dead_letter_topic", c.deadLetter.Topic),
		zap.Error(cause),
	)
	return c.deadLetter.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toKafkaHeaders(DeadLetterHeaders(msg, cause)),
	})
}

// DeadLetterHeaders keeps msg's headers and records where it came from and why it failed.
func DeadLetterHeaders(msg Message, cause error) map[string]string {
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers[HeaderOriginalOffset] = strconv.FormatInt(msg.Offset, 10)
	if cause != nil {
		headers[HeaderFailure] = cause.Error()
	}
	return headers
}

// FromKafka copies a kafka-go message so handlers never alias the reader's buffers.
func FromKafka(km kafka.Message) Message {
	msg := Message{
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Key:       append([]byte(nil), km.Key...),
		Value:     append([]byte(nil), km.Value...),
		Time:      km.Time,
	}
	if len(km.Headers) > 0 {
		msg.Headers = make(map[string]string, len(km.Headers))
		for _, h := range km.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

type kafkaLogger struct {
	logger *zap.Logger
	errors bool
}

func (k kafkaLogger) Printf(msg string, args ...any) {
	if k.errors {
		k.logger.Sugar().Warnf(msg, args...)
		return
	}
	k.logger.Sugar().Debugf(msg, args...)
}
