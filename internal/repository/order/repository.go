package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/database"
	"github.com/Additional-Code/ordertrack/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/ordertrack/repository/order")

// Lookup fields accepted by FindBy. Both columns are indexed.
const (
	FieldUserID = "userid"
	FieldStatus = "status"
)

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrUnsupportedField is returned when FindBy is asked to filter on a non-lookup column.
	ErrUnsupportedField = errors.New("unsupported order lookup field")
	// ErrItemConflict is returned when a write references an item attached to another order.
	ErrItemConflict = errors.New("item belongs to another order")
)

// ItemConflictError identifies the item a write tried to take from another order.
type ItemConflictError struct {
	Index   int
	ItemID  int64
	OwnerID int64
}

func (e *ItemConflictError) Error() string {
	return fmt.Sprintf("items[%d]: item %d belongs to order %d", e.Index, e.ItemID, e.OwnerID)
}

// Is matches ErrItemConflict.
func (e *ItemConflictError) Is(target error) bool {
	return target == ErrItemConflict
}

// Repository encapsulates read/write access for orders and their items.
type Repository struct {
	writer   *bun.DB
	reader   *bun.DB
	pageSize int
	logger   *zap.Logger
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections, cfg config.Config, logger *zap.Logger) *Repository {
	pageSize := cfg.Orders.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		writer:   conns.Writer,
		reader:   conns.Reader,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Create persists a new order and its items in one transaction.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.userid", order.UserID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return attachItems(ctx, tx, order)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order and its items using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().
		Model(order).
		Relation("Items", orderItems).
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// Update writes the order's columns and reconciles its item set. Items dropped from the order are
// detached, not deleted.
func (r *Repository) Update(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*entity.Order)(nil)).Where("o.id = ?", order.ID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return ErrNotFound
		}

		if _, err := tx.NewUpdate().
			Model(order).
			Column("userid", "status", "created_at", "updated_at", "shipping_address_id").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		keep := make([]int64, 0, len(order.Items))
		for _, item := range order.Items {
			if item != nil && item.ID != 0 {
				keep = append(keep, item.ID)
			}
		}
		detach := tx.NewUpdate().
			Model((*entity.Item)(nil)).
			Set("order_id = NULL").
			Where("order_id = ?", order.ID)
		if len(keep) > 0 {
			detach = detach.Where("id NOT IN (?)", bun.In(keep))
		}
		if _, err := detach.Exec(ctx); err != nil {
			return fmt.Errorf("detach items: %w", err)
		}

		return attachItems(ctx, tx, order)
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrItemConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// Delete removes an order. Its items stay persisted with order_id cleared.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*entity.Item)(nil)).
			Set("order_id = NULL").
			Where("order_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("detach items: %w", err)
		}

		res, err := tx.NewDelete().
			Model((*entity.Order)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// FindBy returns the orders whose field equals value. Nothing is queried until the sequence is
// ranged over; each range re-runs the lookup, paging through matches by ascending id.
func (r *Repository) FindBy(ctx context.Context, field, value string) (iter.Seq2[*entity.Order, error], error) {
	if !IsLookupField(field) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, field)
	}

	return func(yield func(*entity.Order, error) bool) {
		ctx, span := repoTracer.Start(ctx, "OrderRepository.FindBy", trace.WithAttributes(
			attribute.String("order.lookup.field", field),
			attribute.String("order.lookup.value", value),
		))
		defer span.End()

		r.logger.Info("processing order query", zap.String("field", field), zap.String("value", value))

		var afterID int64
		for {
			var page []*entity.Order
			err := r.reader.NewSelect().
				Model(&page).
				Relation("Items", orderItems).
				Where("o.? = ?", bun.Ident(field), value).
				Where("o.id > ?", afterID).
				OrderExpr("o.id ASC").
				Limit(r.pageSize).
				Scan(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "select failed")
				yield(nil, err)
				return
			}

			for _, order := range page {
				if !yield(order, nil) {
					return
				}
			}
			if len(page) < r.pageSize {
				return
			}
			afterID = page[len(page)-1].ID
		}
	}, nil
}

// GetItem fetches a single item regardless of whether it is attached to an order.
func (r *Repository) GetItem(ctx context.Context, id int64) (*entity.Item, error) {
	item := new(entity.Item)
	err := r.reader.NewSelect().Model(item).Where("i.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns the items currently attached to an order.
func (r *Repository) ListItems(ctx context.Context, orderID int64) ([]*entity.Item, error) {
	items := make([]*entity.Item, 0)
	err := r.reader.NewSelect().
		Model(&items).
		Where("i.order_id = ?", orderID).
		OrderExpr("i.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// IsLookupField reports whether FindBy accepts the field.
func IsLookupField(field string) bool {
	return field == FieldUserID || field == FieldStatus
}

func orderItems(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("i.id ASC")
}

// attachItems points every item at the order. New items are inserted; an existing item is
// re-parented only when it is detached or already belongs to the order.
func attachItems(ctx context.Context, tx bun.Tx, order *entity.Order) error {
	for idx, item := range order.Items {
		if item == nil {
			continue
		}

		if item.ID != 0 {
			owner, found, err := itemOwner(ctx, tx, item.ID)
			if err != nil {
				return fmt.Errorf("check item %d: %w", item.ID, err)
			}
			if found {
				if owner != 0 && owner != order.ID {
					return &ItemConflictError{Index: idx, ItemID: item.ID, OwnerID: owner}
				}
				item.OrderID = order.ID
				if _, err := tx.NewUpdate().
					Model(item).
					Column("order_id", "name", "quantity", "price").
					WherePK().
					Exec(ctx); err != nil {
					return fmt.Errorf("update item %d: %w", item.ID, err)
				}
				continue
			}
		}

		item.OrderID = order.ID
		if _, err := tx.NewInsert().Model(item).Exec(ctx); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	return nil
}

// itemOwner returns the stored order_id of an item, zero when detached.
func itemOwner(ctx context.Context, tx bun.Tx, id int64) (int64, bool, error) {
	var owner sql.NullInt64
	err := tx.NewSelect().
		Model((*entity.Item)(nil)).
		ColumnExpr("i.order_id").
		Where("i.id = ?", id).
		Scan(ctx, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return owner.Int64, true, nil
}
