package entity

import "github.com/uptrace/bun"

// Item is a line of an order. Items outlive their order: deleting an order clears OrderID.
type Item struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID       int64   `bun:"id,pk,autoincrement" validate:"gte=0"`
	OrderID  int64   `bun:"order_id,nullzero" validate:"gte=0"`
	Name     string  `bun:"name,notnull" validate:"required,max=64"`
	Quantity int64   `bun:"quantity,notnull" validate:"gte=1"`
	Price    float64 `bun:"price,notnull" validate:"gte=0"`
}

var itemKeys = map[string]struct{}{
	"id":       {},
	"order_id": {},
	"name":     {},
	"quantity": {},
	"price":    {},
}

// Detached reports whether the item no longer belongs to an order.
func (i *Item) Detached() bool {
	return i.OrderID == 0
}

// Serialize projects the item into a plain mapping.
func (i *Item) Serialize() map[string]any {
	return map[string]any{
		"id":       nullableID(i.ID),
		"order_id": nullableID(i.OrderID),
		"name":     i.Name,
		"quantity": i.Quantity,
		"price":    i.Price,
	}
}

// Deserialize populates the item from a mapping.
func (i *Item) Deserialize(data map[string]any) (*Item, error) {
	const record = "Item"
	if data == nil {
		return nil, &DataValidationError{Message: "Invalid Item: body of request contained bad or no data"}
	}
	if err := rejectUnknown(data, itemKeys); err != nil {
		return nil, err
	}

	var (
		next Item
		err  error
	)
	if next.ID, err = optionalInt(record, data, "id"); err != nil {
		return nil, err
	}
	if next.OrderID, err = optionalInt(record, data, "order_id"); err != nil {
		return nil, err
	}
	if next.Name, err = requiredString(record, data, "name"); err != nil {
		return nil, err
	}
	if next.Quantity, err = requiredInt(record, data, "quantity"); err != nil {
		return nil, err
	}
	if next.Price, err = requiredFloat(record, data, "price"); err != nil {
		return nil, err
	}
	if err := validateRecord(record, &next); err != nil {
		return nil, err
	}

	i.ID = next.ID
	i.OrderID = next.OrderID
	i.Name = next.Name
	i.Quantity = next.Quantity
	i.Price = next.Price
	return i, nil
}
