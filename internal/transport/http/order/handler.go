package order

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/ordertrack/internal/dto"
	"github.com/Additional-Code/ordertrack/internal/presentation/http/response"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/ordertrack/transport/http/order")

// Handler serves the /orders resource over the order service.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the order routes on e.
func Register(e *echo.Echo, h *Handler) {
	orders := e.Group("/orders")
	orders.GET("", h.find)
	orders.POST("", h.create)
	orders.GET("/:id", h.byID(h.get))
	orders.PUT("/:id", h.byID(h.update))
	orders.DELETE("/:id", h.byID(h.delete))
}

type idHandler func(ctx context.Context, c echo.Context, id int64) (status int, data any, err error)

// byID parses the :id parameter, opens a span for the route and renders whatever next returns.
func (h *Handler) byID(next idHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := response.New(c)
		id, err := parseID(c)
		if err != nil {
			return b.WithError(err).Build()
		}

		ctx, span := httpTracer.Start(c.Request().Context(), "orders."+strings.ToLower(c.Request().Method),
			trace.WithAttributes(attribute.Int64("order.id", id)))
		defer span.End()

		status, data, err := next(ctx, c, id)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithStatus(status).WithData(data).Build()
	}
}

func (h *Handler) get(ctx context.Context, _ echo.Context, id int64) (int, any, error) {
	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, order.Serialize(), nil
}

func (h *Handler) update(ctx context.Context, c echo.Context, id int64) (int, any, error) {
	payload, err := bindMapping(c)
	if err != nil {
		return 0, nil, err
	}
	order, err := h.svc.UpdateFromMapping(ctx, id, payload)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, order.Serialize(), nil
}

func (h *Handler) delete(ctx context.Context, _ echo.Context, id int64) (int, any, error) {
	return http.StatusNoContent, nil, h.svc.Delete(ctx, id)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)
	payload, err := bindMapping(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.post")
	defer span.End()

	order, err := h.svc.CreateFromMapping(ctx, payload)
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	return b.WithStatus(http.StatusCreated).WithData(order.Serialize()).Build()
}

// find lists the orders matching one lookup filter. The body is only written once the whole
// sequence has been read, so a storage error mid-stream still produces an error envelope.
func (h *Handler) find(c echo.Context) error {
	b := response.New(c)
	field, value, err := lookupQuery(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.find",
		trace.WithAttributes(attribute.String("order.lookup.field", field)))
	defer span.End()

	matches, err := h.svc.FindBy(ctx, field, value)
	if err != nil {
		return b.WithError(err).Build()
	}
	list := dto.OrderList{Field: field, Value: value, Orders: []map[string]any{}}
	for order, err := range matches {
		if err != nil {
			return b.WithError(err).Build()
		}
		list.Orders = append(list.Orders, order.Serialize())
	}
	list.Count = len(list.Orders)
	return b.WithData(list).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

func bindMapping(c echo.Context) (map[string]any, error) {
	var payload map[string]any
	binder := &echo.DefaultBinder{}
	if err := binder.BindBody(c, &payload); err != nil {
		return nil, errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	if payload == nil {
		return nil, errorbank.BadRequest("order payload is required")
	}
	return payload, nil
}

// lookupQuery accepts exactly one of the lookup fields as a query parameter.
func lookupQuery(c echo.Context) (string, string, error) {
	var field, value string
	for _, candidate := range []string{repo.FieldUserID, repo.FieldStatus} {
		v := c.QueryParam(candidate)
		if v == "" {
			continue
		}
		if field != "" {
			return "", "", errorbank.BadRequest("only one lookup filter is allowed")
		}
		field, value = candidate, v
	}
	if field == "" {
		return "", "", errorbank.BadRequest("a lookup filter is required",
			errorbank.WithDetail("allowed", []string{repo.FieldUserID, repo.FieldStatus}))
	}
	return field, value, nil
}
