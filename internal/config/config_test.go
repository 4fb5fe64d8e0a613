package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 9090, cfg.GRPC.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.Equal(t, defaultOrdersPageSize, cfg.Orders.PageSize)
	assert.Equal(t, "ordertrack", cfg.Cache.Prefix)
	assert.Equal(t, "orders.events", cfg.Messaging.Kafka.Topic)
	assert.Equal(t, "ordertrack-worker", cfg.Messaging.ConsumerGroup)
	assert.Equal(t, "ordertrack", cfg.Observability.ServiceName)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, "orders.events.dlq", cfg.Messaging.Kafka.DeadLetterTopic)
	assert.Equal(t, 3, cfg.Messaging.Kafka.MaxAttempts)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestNewDeadLetterTopicFollowsTopic(t *testing.T) {
	t.Setenv("KAFKA_TOPIC", "orders.v2")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "orders.v2.dlq", cfg.Messaging.Kafka.DeadLetterTopic)
}

func TestNewReportsEveryInvalidSetting(t *testing.T) {
	t.Setenv("HTTP_PORT", "0")
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("CACHE_DRIVER", "memcached")

	_, err := New()
	require.Error(t, err)
	for _, want := range []string{"invalid HTTP port", "unsupported database driver", "unsupported cache driver"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_WRITER_DSN", "file:orders.db")
	t.Setenv("ORDERS_PAGE_SIZE", "25")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("CACHE_PREFIX", "staging")
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("CACHE_DEFAULT_TTL", "30s")
	t.Setenv("OBS_LOG_LEVEL", " DEBUG ")
	t.Setenv("OBS_PROMETHEUS_PATH", "internal/metrics")
	t.Setenv("WORKER_CONCURRENCY", "0")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:orders.db", cfg.Database.ReaderDSN)
	assert.Equal(t, 25, cfg.Orders.PageSize)
	assert.Equal(t, "noop", cfg.Cache.Driver)
	assert.Equal(t, "staging", cfg.Cache.Prefix)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "/internal/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, 4, cfg.Messaging.Workers.Concurrency)
}

func TestNewPageSizeFallback(t *testing.T) {
	for _, value := range []string{"0", "-4", "many"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("ORDERS_PAGE_SIZE", value)

			cfg, err := New()
			require.NoError(t, err)
			assert.Equal(t, defaultOrdersPageSize, cfg.Orders.PageSize)
		})
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	testCases := map[string]struct {
		env      map[string]string
		contains string
	}{
		"should reject an unknown database driver": {
			env:      map[string]string{"DB_DRIVER": "oracle"},
			contains: "unsupported database driver",
		},
		"should reject an empty writer dsn": {
			env:      map[string]string{"DB_WRITER_DSN": ""},
			contains: "DB_WRITER_DSN",
		},
		"should reject a bad http port": {
			env:      map[string]string{"HTTP_PORT": "-1"},
			contains: "invalid HTTP port",
		},
		"should reject an unknown cache driver": {
			env:      map[string]string{"CACHE_DRIVER": "memcached"},
			contains: "unsupported cache driver",
		},
		"should reject a dead-letter topic equal to the event topic": {
			env:      map[string]string{"KAFKA_DEAD_LETTER_TOPIC": "orders.events"},
			contains: "KAFKA_DEAD_LETTER_TOPIC",
		},
		"should reject an unknown messaging driver": {
			env:      map[string]string{"MESSAGING_DRIVER": "nats"},
			contains: "unsupported messaging driver",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ORDERTRACK_TEST_INT", " 12 ")
	t.Setenv("ORDERTRACK_TEST_NEG", "-3")
	t.Setenv("ORDERTRACK_TEST_BOOL", "nope")
	t.Setenv("ORDERTRACK_TEST_LIST", "a:9092, ,b:9092")
	t.Setenv("ORDERTRACK_TEST_EMPTY_LIST", " , ")

	assert.Equal(t, 12, getEnvAsInt("ORDERTRACK_TEST_INT", 1))
	assert.Equal(t, 5, getEnvAsPositiveInt("ORDERTRACK_TEST_NEG", 5))
	assert.True(t, getEnvAsBool("ORDERTRACK_TEST_BOOL", true))
	assert.Equal(t, []string{"a:9092", "b:9092"}, getEnvAsStringSlice("ORDERTRACK_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvAsStringSlice("ORDERTRACK_TEST_EMPTY_LIST", []string{"x"}))
	assert.Equal(t, "fallback", getEnv("ORDERTRACK_TEST_UNSET", "fallback"))
}
