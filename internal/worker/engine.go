package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/messaging"
)

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

var workerMeter = otel.Meter("github.com/Additional-Code/ordertrack/worker")

// HandlerRegistration routes messages of one topic to a handler.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs a fixed pool of consumers over the order event topic.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	enabled  bool
	workers  int
	routes   map[string]messaging.Handler
	messages metric.Int64Counter

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{OnStart: engine.start, OnStop: engine.stop})
	}),
)

// NewEngine constructs the worker Engine. Registrations without a topic or handler are ignored.
func NewEngine(p Params) *Engine {
	routes := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic != "" && r.Handler != nil {
			routes[r.Topic] = r.Handler
		}
	}

	messages, err := workerMeter.Int64Counter("worker.messages",
		metric.WithDescription("Order events consumed, by outcome"),
	)
	if err != nil {
		p.Logger.Warn("worker message counter unavailable", zap.Error(err))
		messages = noop.Int64Counter{}
	}

	return &Engine{
		client:   p.Client,
		logger:   p.Logger.Named("worker"),
		enabled:  p.Config.Messaging.Enabled && p.Config.Messaging.Workers.Enabled,
		workers:  max(p.Config.Messaging.Workers.Concurrency, 1),
		routes:   routes,
		messages: messages,
	}
}

func (e *Engine) start(context.Context) error {
	switch {
	case !e.enabled:
		e.logger.Info("worker engine disabled")
		return nil
	case len(e.routes) == 0:
		e.logger.Info("no order event handlers registered")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group = new(errgroup.Group)
	for id := range e.workers {
		e.group.Go(func() error {
			e.consume(ctx, id)
			return nil
		})
	}

	e.logger.Info("worker engine started", zap.Int("workers", e.workers))
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		e.logger.Info("worker engine stopped")
		return err
	}
}

// consume keeps one consumer attached to the broker, reconnecting with capped exponential backoff
// until ctx ends.
func (e *Engine) consume(ctx context.Context, id int) {
	reconnect := retry.WithCappedDuration(reconnectCap, retry.NewExponential(reconnectBase))
	_ = retry.Do(ctx, reconnect, func(ctx context.Context) error {
		err := e.client.Consume(ctx, func(ctx context.Context, msg messaging.Message) error {
			return e.dispatch(ctx, id, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		e.logger.Error("order event consumer failed", zap.Int("worker", id), zap.Error(err))
		return retry.RetryableError(err)
	})
}

// dispatch hands msg to the handler for its topic. Messages for unknown topics are dropped.
func (e *Engine) dispatch(ctx context.Context, id int, msg messaging.Message) error {
	handler, ok := e.routes[msg.Topic]
	if !ok {
		e.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
		e.count(ctx, msg.Topic, "unrouted")
		return nil
	}

	e.logger.Debug("handling order event", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset), zap.Int("worker", id))
	if err := handler(ctx, msg); err != nil {
		e.count(ctx, msg.Topic, "failed")
		return err
	}
	e.count(ctx, msg.Topic, "processed")
	return nil
}

func (e *Engine) count(ctx context.Context, topic, outcome string) {
	e.messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("messaging.topic", topic),
		attribute.String("outcome", outcome),
	))
}
