package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// Common order status labels. Status is free-form; these are the labels the service emits itself.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCancelled  = "CANCELLED"
)

// Order represents a customer order stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID                int64   `bun:"id,pk,autoincrement" validate:"gte=0"`
	UserID            string  `bun:"userid,notnull" validate:"required,max=16"`
	Status            string  `bun:"status,notnull,default:'PENDING'" validate:"required,max=64"`
	CreatedAt         Date    `bun:"created_at,type:date,nullzero,notnull"`
	UpdatedAt         Date    `bun:"updated_at,type:date,nullzero,notnull"`
	ShippingAddressID int64   `bun:"shipping_address_id,notnull" validate:"gte=0"`
	Items             []*Item `bun:"rel:has-many,join:id=order_id" validate:"-"`
}

var orderKeys = map[string]struct{}{
	"id":                  {},
	"userid":              {},
	"status":              {},
	"created_at":          {},
	"updated_at":          {},
	"shipping_address_id": {},
	"items":               {},
}

var _ bun.BeforeAppendModelHook = (*Order)(nil)

// NewOrder creates a pending order dated today. updated_at is left for the caller.
func NewOrder(userID string, shippingAddressID int64) *Order {
	return &Order{
		UserID:            userID,
		Status:            StatusPending,
		CreatedAt:         Today(),
		ShippingAddressID: shippingAddressID,
	}
}

// BeforeAppendModel fills creation defaults for orders built without NewOrder.
func (o *Order) BeforeAppendModel(_ context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = Today()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	return nil
}

func (o *Order) String() string {
	return fmt.Sprintf("<Order id=[%d]>", o.ID)
}

// Serialize projects the order into a plain mapping.
func (o *Order) Serialize() map[string]any {
	items := make([]any, 0, len(o.Items))
	for _, item := range o.Items {
		if item == nil {
			continue
		}
		items = append(items, item.Serialize())
	}

	return map[string]any{
		"id":                  nullableID(o.ID),
		"userid":              o.UserID,
		"status":              o.Status,
		"created_at":          dateValue(o.CreatedAt),
		"updated_at":          dateValue(o.UpdatedAt),
		"shipping_address_id": o.ShippingAddressID,
		"items":               items,
	}
}

// Deserialize populates the order from a mapping. The receiver is only modified on success.
func (o *Order) Deserialize(data map[string]any) (*Order, error) {
	const record = "Order"
	if data == nil {
		return nil, &DataValidationError{Message: "Invalid Order: body of request contained bad or no data"}
	}
	if err := rejectUnknown(data, orderKeys); err != nil {
		return nil, err
	}

	var (
		next Order
		err  error
	)
	if next.ID, err = optionalInt(record, data, "id"); err != nil {
		return nil, err
	}
	if next.UserID, err = requiredString(record, data, "userid"); err != nil {
		return nil, err
	}
	if next.Status, err = requiredString(record, data, "status"); err != nil {
		return nil, err
	}
	if next.CreatedAt, err = requiredDate(record, data, "created_at"); err != nil {
		return nil, err
	}
	if next.UpdatedAt, err = requiredDate(record, data, "updated_at"); err != nil {
		return nil, err
	}
	if next.ShippingAddressID, err = requiredInt(record, data, "shipping_address_id"); err != nil {
		return nil, err
	}
	if next.Items, err = deserializeItems(data["items"]); err != nil {
		return nil, err
	}
	if err := validateRecord(record, &next); err != nil {
		return nil, err
	}

	o.ID = next.ID
	o.UserID = next.UserID
	o.Status = next.Status
	o.CreatedAt = next.CreatedAt
	o.UpdatedAt = next.UpdatedAt
	o.ShippingAddressID = next.ShippingAddressID
	o.Items = next.Items
	return o, nil
}

func deserializeItems(raw any) ([]*Item, error) {
	if raw == nil {
		return []*Item{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		if typed, isMaps := raw.([]map[string]any); isMaps {
			list = make([]any, len(typed))
			for i := range typed {
				list[i] = typed[i]
			}
		} else {
			return nil, badData("Order", "items", fmt.Sprintf("must be a list, got %T", raw))
		}
	}

	items := make([]*Item, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, badData("Order", fmt.Sprintf("items[%d]", i), fmt.Sprintf("must be a mapping, got %T", entry))
		}
		item, err := new(Item).Deserialize(m)
		if err != nil {
			var dve *DataValidationError
			if errors.As(err, &dve) {
				return nil, dve.within(fmt.Sprintf("items[%d]", i))
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func dateValue(d Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}
