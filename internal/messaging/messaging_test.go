package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

func TestFromKafka(t *testing.T) {
	at := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)
	key := []byte("order-7")
	msg := kafka.Message{
		Topic:  "orders.events",
		Key:    key,
		Value:  []byte(`{"type":"order.created"}`),
		Offset: 42,
		Time:   at,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte("order.created")},
		},
	}

	got := FromKafka(msg)
	assert.Equal(t, "orders.events", got.Topic)
	assert.Equal(t, "order-7", string(got.Key))
	assert.Equal(t, int64(42), got.Offset)
	assert.Equal(t, at, got.Time)
	assert.Equal(t, map[string]string{HeaderEventType: "order.created"}, got.Headers)

	key[0] = 'X'
	assert.Equal(t, "order-7", string(got.Key), "key must be copied")
}

func TestFromKafkaWithoutHeaders(t *testing.T) {
	assert.Nil(t, FromKafka(kafka.Message{Topic: "orders.events"}).Headers)
}

func TestNewClientNoop(t *testing.T) {
	cfg := config.Config{Messaging: config.Messaging{
		Driver:  "kafka",
		Enabled: false,
		Kafka:   config.Kafka{Topic: "orders.events"},
	}}

	client, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "orders.events", client.Topic())
	assert.NoError(t, client.Publish(context.Background(), []byte("k"), []byte("v"), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.Consume(ctx, func(context.Context, Message) error { return nil }), context.Canceled)
}

func TestNewClientUnsupportedDriver(t *testing.T) {
	cfg := config.Config{Messaging: config.Messaging{Driver: "nats", Enabled: true}}

	_, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestDeadLetterHeaders(t *testing.T) {
	msg := Message{
		Topic:   "orders.events",
		Offset:  42,
		Headers: map[string]string{HeaderEventType: "order.created"},
	}

	headers := DeadLetterHeaders(msg, errors.New("invalid order"))
	assert.Equal(t, map[string]string{
		HeaderEventType:      "order.created",
		HeaderOriginalTopic:  "orders.events",
		HeaderOriginalOffset: "42",
		HeaderFailure:        "invalid order",
	}, headers)
	assert.Len(t, msg.Headers, 1, "source headers must not be modified")
}

type parked struct {
	msg   Message
	cause error
}

func TestDelivery_Deliver(t *testing.T) {
	failure := errors.New("invalid order")

	testCases := map[string]struct {
		failures      int
		parkFailures  int
		withoutPark   bool
		wantErr       error
		wantAttempts  int
		wantParked    bool
		wantParkCalls int
	}{
		"should settle a message handled on the first attempt": {
			wantAttempts: 1,
		},
		"should redeliver until the handler succeeds": {
			failures:     2,
			wantAttempts: 3,
		},
		"should dead-letter once attempts are spent": {
			failures:      5,
			wantAttempts:  3,
			wantParked:    true,
			wantParkCalls: 1,
		},
		"should retry a failing dead-letter write": {
			failures:      5,
			parkFailures:  2,
			wantAttempts:  3,
			wantParked:    true,
			wantParkCalls: 3,
		},
		"should return the handler error without a dead-letter sink": {
			failures:     5,
			withoutPark:  true,
			wantErr:      failure,
			wantAttempts: 3,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			attempts, parkCalls := 0, 0
			var got []parked

			d := Delivery{MaxAttempts: 3, Backoff: time.Millisecond}
			if !tc.withoutPark {
				d.DeadLetter = func(_ context.Context, msg Message, cause error) error {
					parkCalls++
					if parkCalls <= tc.parkFailures {
						return errors.New("broker unavailable")
					}
					got = append(got, parked{msg: msg, cause: cause})
					return nil
				}
			}

			msg := Message{Topic: "orders.events", Offset: 7}
			err := d.Deliver(context.Background(), msg, func(context.Context, Message) error {
				attempts++
				if attempts <= tc.failures {
					return failure
				}
				return nil
			})

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantAttempts, attempts)
			assert.Equal(t, tc.wantParkCalls, parkCalls)
			if tc.wantParked {
				require.Len(t, got, 1)
				assert.Equal(t, msg, got[0].msg)
				assert.ErrorIs(t, got[0].cause, failure)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestDelivery_DeliverStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	d := Delivery{
		MaxAttempts: 1,
		Backoff:     time.Millisecond,
		DeadLetter: func(context.Context, Message, error) error {
			cancel()
			return errors.New("broker unavailable")
		},
	}

	err := d.Deliver(ctx, Message{Topic: "orders.events"}, func(context.Context, Message) error {
		return errors.New("invalid order")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeliveryDefaults(t *testing.T) {
	var d Delivery
	assert.Equal(t, defaultDeliverAttempts, d.attempts())
	assert.Equal(t, defaultRetryBackoff, d.backoff())
}
