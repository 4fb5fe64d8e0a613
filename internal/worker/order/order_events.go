package order

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/dto"
	"github.com/Additional-Code/ordertrack/internal/entity"
	"github.com/Additional-Code/ordertrack/internal/messaging"
	"github.com/Additional-Code/ordertrack/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/ordertrack/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderEventsHandler sets up a worker handler that audits order lifecycle events.
func NewOrderEventsHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: HandleOrderEvent(logger),
	}
}

// HandleOrderEvent decodes an order event and logs it. Malformed events are returned as errors; the
// consumer redelivers them and dead-letters them once attempts run out.
func HandleOrderEvent(logger *zap.Logger) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.String("messaging.event_type", msg.Headers[messaging.HeaderEventType]),
		))
		defer span.End()

		event, err := decodeEvent(msg)
		if err != nil {
			logger.Error("failed to decode order event", zap.Int64("offset", msg.Offset), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		fields := []zap.Field{
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Int64("order_id", event.OrderID),
		}

		switch event.Type {
		case dto.OrderCreated, dto.OrderUpdated:
			order, err := new(entity.Order).Deserialize(event.Order)
			if err != nil {
				logger.Error("order event carried an invalid order", append(fields, zap.Error(err))...)

				span.RecordError(err)
				span.SetStatus(codes.Error, "invalid order")
				return err
			}
			logger.Info("order event processed", append(fields,
				zap.String("userid", order.UserID),
				zap.String("status", order.Status),
				zap.Int("items", len(order.Items)),
			)...)
		case dto.OrderDeleted:
			logger.Info("order event processed", fields...)
		default:
			logger.Warn("ignoring unknown order event", fields...)
		}

		return nil
	}
}

func decodeEvent(msg messaging.Message) (dto.OrderEvent, error) {
	var event dto.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return dto.OrderEvent{}, err
	}
	if event.Type == "" {
		event.Type = msg.Headers[messaging.HeaderEventType]
	}
	if event.ID == "" || event.OrderID == 0 {
		return dto.OrderEvent{}, errors.New("order event missing id or order_id")
	}
	return event, nil
}
