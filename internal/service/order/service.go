package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/dto"
	"github.com/Additional-Code/ordertrack/internal/entity"
	"github.com/Additional-Code/ordertrack/internal/messaging"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/ordertrack/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/ordertrack/service/order")
)

// Service is the order use-case layer: it validates writes, stores them, keeps the snapshot cache
// in step and announces every change on the event topic.
type Service struct {
	repo      *repo.Repository
	snapshots snapshots
	logger    *zap.Logger
	events    messaging.Client
	topic     string
	mutations metric.Int64Counter
	now       func() time.Time
}

// Params lists what NewService needs from the Fx graph. Cache and Publisher may be nil.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService builds the order service. Events are only published while messaging is enabled.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("orders")

	mutations, err := serviceMeter.Int64Counter("orders.mutations",
		metric.WithDescription("Order writes by operation"),
	)
	if err != nil {
		logger.Warn("mutation counter unavailable", zap.Error(err))
		mutations = noop.Int64Counter{}
	}

	s := &Service{
		repo:      p.Repository,
		snapshots: snapshots{store: p.Cache, ttl: p.Config.Cache.DefaultTTL, logger: logger},
		logger:    logger,
		topic:     p.Config.Messaging.Kafka.Topic,
		mutations: mutations,
		now:       time.Now,
	}
	if p.Config.Messaging.Enabled {
		s.events = p.Publisher
	}
	return s
}

// today is the current calendar date in UTC.
func (s *Service) today() entity.Date {
	return entity.DateOf(s.now().UTC())
}

// Get returns the cached snapshot of an order when there is one, otherwise the stored order.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "orders.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if order, ok := s.snapshots.load(ctx, id); ok {
		span.SetAttributes(attribute.Bool("order.cached", true))
		return order, nil
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, readFailed(span, "failed to load order", id, err)
	}
	s.snapshots.save(ctx, order)
	return order, nil
}

// Create persists a new order, refreshes cache state and announces it.
func (s *Service) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errorbank.BadRequest("order payload is required")
	}
	if order.UserID == "" {
		return errorbank.BadRequest("userid is required", errorbank.WithField("userid"))
	}
	today := s.today()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = today
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = today
	}
	if order.Status == "" {
		order.Status = entity.StatusPending
	}

	ctx, span := serviceTracer.Start(ctx, "orders.Create", trace.WithAttributes(attribute.String("order.userid", order.UserID)))
	defer span.End()

	if err := s.repo.Create(ctx, order); err != nil {
		return writeFailed(span, "failed to create order", order.ID, err)
	}

	s.recordMutation(ctx, "create")
	s.snapshots.save(ctx, order)
	s.publish(ctx, dto.OrderCreated, order.ID, order)
	return nil
}

// CreateFromMapping builds an order from a request mapping. Any id is ignored since storage assigns
// it; created_at and updated_at default to today and status to PENDING when omitted.
func (s *Service) CreateFromMapping(ctx context.Context, data map[string]any) (*entity.Order, error) {
	if data == nil {
		return nil, errorbank.BadRequest("order payload is required")
	}
	payload := maps.Clone(data)
	delete(payload, "id")
	today := s.today().String()
	setDefault(payload, "created_at", today)
	setDefault(payload, "updated_at", today)
	setDefault(payload, "status", entity.StatusPending)

	order, err := new(entity.Order).Deserialize(payload)
	if err != nil {
		return nil, TranslateError(err)
	}
	if err := s.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Update writes a modified order and refreshes the cached copy.
func (s *Service) Update(ctx context.Context, order *entity.Order) error {
	if order == nil || order.ID == 0 {
		return errorbank.BadRequest("order id is required")
	}
	ctx, span := serviceTracer.Start(ctx, "orders.Update", trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	if err := s.repo.Update(ctx, order); err != nil {
		return writeFailed(span, "failed to update order", order.ID, err)
	}

	s.recordMutation(ctx, "update")
	s.snapshots.save(ctx, order)
	s.publish(ctx, dto.OrderUpdated, order.ID, order)
	return nil
}

// UpdateFromMapping replaces an order with the request mapping. The path id wins over any id in the
// body; a missing created_at keeps the stored value and a missing updated_at becomes today.
func (s *Service) UpdateFromMapping(ctx context.Context, id int64, data map[string]any) (*entity.Order, error) {
	if data == nil {
		return nil, errorbank.BadRequest("order payload is required")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := maps.Clone(data)
	payload["id"] = id
	setDefault(payload, "created_at", current.CreatedAt.String())
	setDefault(payload, "updated_at", s.today().String())

	order, err := new(entity.Order).Deserialize(payload)
	if err != nil {
		return nil, TranslateError(err)
	}
	if err := s.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Delete removes an order; its items stay persisted and detached.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "orders.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		return readFailed(span, "failed to delete order", id, err)
	}

	s.recordMutation(ctx, "delete")
	s.snapshots.drop(ctx, id)
	s.publish(ctx, dto.OrderDeleted, id, nil)
	return nil
}

// FindBy looks orders up by an indexed field. Errors surfaced while ranging are already translated.
func (s *Service) FindBy(ctx context.Context, field, value string) (iter.Seq2[*entity.Order, error], error) {
	seq, err := s.repo.FindBy(ctx, field, value)
	if err != nil {
		return nil, TranslateError(err)
	}
	return func(yield func(*entity.Order, error) bool) {
		for order, err := range seq {
			if err != nil {
				yield(nil, TranslateError(err))
				return
			}
			if !yield(order, nil) {
				return
			}
		}
	}, nil
}

// Items exposes an order's attached items.
func (s *Service) Items(ctx context.Context, orderID int64) ([]*entity.Item, error) {
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, errorbank.Internal("failed to list items", errorbank.WithCause(err))
	}
	return items, nil
}

// TranslateError maps domain and repository errors onto errorbank kinds.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var conflict *repo.ItemConflictError
	if errors.As(err, &conflict) {
		return errorbank.Conflict(conflict.Error(),
			errorbank.WithField(fmt.Sprintf("items[%d].id", conflict.Index)),
			errorbank.WithDetail("order_id", conflict.OwnerID),
		)
	}
	var dve *entity.DataValidationError
	if errors.As(err, &dve) {
		opts := []errorbank.Option{errorbank.WithCause(err)}
		if dve.Field != "" {
			opts = append(opts, errorbank.WithField(dve.Field))
		}
		return errorbank.BadRequest(dve.Message, opts...)
	}
	switch {
	case errors.Is(err, repo.ErrUnsupportedField):
		return errorbank.BadRequest(err.Error(), errorbank.WithDetail("allowed", []string{repo.FieldUserID, repo.FieldStatus}))
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found")
	default:
		return errorbank.Internal("order storage failure", errorbank.WithCause(err))
	}
}

// writeFailed maps a repository write error onto an errorbank kind. Only unexpected failures mark the span.
func writeFailed(span trace.Span, message string, id int64, err error) error {
	if errors.Is(err, repo.ErrItemConflict) {
		return TranslateError(err)
	}
	return readFailed(span, message, id, err)
}

func readFailed(span trace.Span, message string, id int64, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errorbank.NotFound("order not found", errorbank.WithDetail("id", id))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "storage failure")
	return errorbank.Internal(message, errorbank.WithCause(err))
}

func setDefault(m map[string]any, key string, value any) {
	if v, ok := m[key]; !ok || v == nil {
		m[key] = value
	}
}

func (s *Service) recordMutation(ctx context.Context, operation string) {
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// publish announces a change keyed by order so one order's events stay ordered on a partition.
// Publication failures are logged; the write has already committed.
func (s *Service) publish(ctx context.Context, eventType string, id int64, order *entity.Order) {
	if s.events == nil {
		return
	}
	event := dto.OrderEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    id,
		OccurredAt: s.now().UTC(),
	}
	if order != nil {
		event.Order = order.Serialize()
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = s.events.Publish(ctx, []byte("order-"+strconv.FormatInt(id, 10)), payload,
			map[string]string{messaging.HeaderEventType: eventType})
	}
	if err != nil {
		s.logger.Error("order event not published",
			zap.String("type", eventType), zap.Int64("id", id), zap.String("topic", s.topic), zap.Error(err))
	}
}
