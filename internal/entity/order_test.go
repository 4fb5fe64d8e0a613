package entity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func wellFormedOrder() map[string]any {
	return map[string]any{
		"id":                  int64(7),
		"userid":              "alice",
		"status":              "SHIPPED",
		"created_at":          "2024-03-01",
		"updated_at":          "2024-03-05",
		"shipping_address_id": int64(42),
		"items": []any{
			map[string]any{
				"id":       int64(1),
				"order_id": int64(7),
				"name":     "espresso beans",
				"quantity": int64(2),
				"price":    12.5,
			},
		},
	}
}

func TestNewOrder(t *testing.T) {
	order := NewOrder("alice", 42)

	assert.Equal(t, "alice", order.UserID)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, int64(42), order.ShippingAddressID)
	assert.True(t, order.CreatedAt.Equal(Today()))
	assert.True(t, order.UpdatedAt.IsZero())
	assert.Equal(t, "<Order id=[0]>", order.String())
}

func TestOrder_Serialize(t *testing.T) {
	testCases := map[string]struct {
		order    *Order
		expected map[string]any
	}{
		"should render empty items and ISO dates": {
			order: &Order{
				ID:                3,
				UserID:            "bob",
				Status:            StatusPending,
				CreatedAt:         NewDate(2024, time.January, 2),
				UpdatedAt:         NewDate(2024, time.January, 3),
				ShippingAddressID: 9,
			},
			expected: map[string]any{
				"id":                  int64(3),
				"userid":              "bob",
				"status":              StatusPending,
				"created_at":          "2024-01-02",
				"updated_at":          "2024-01-03",
				"shipping_address_id": int64(9),
				"items":               []any{},
			},
		},
		"should render unset dates and id as nil": {
			order: &Order{UserID: "carol", Status: StatusProcessing},
			expected: map[string]any{
				"id":                  nil,
				"userid":              "carol",
				"status":              StatusProcessing,
				"created_at":          nil,
				"updated_at":          nil,
				"shipping_address_id": int64(0),
				"items":               []any{},
			},
		},
		"should nest serialized items": {
			order: &Order{
				ID:        5,
				UserID:    "dave",
				Status:    StatusShipped,
				CreatedAt: NewDate(2024, time.May, 1),
				UpdatedAt: NewDate(2024, time.May, 2),
				Items: []*Item{
					{ID: 11, OrderID: 5, Name: "mug", Quantity: 1, Price: 8},
				},
			},
			expected: map[string]any{
				"id":                  int64(5),
				"userid":              "dave",
				"status":              StatusShipped,
				"created_at":          "2024-05-01",
				"updated_at":          "2024-05-02",
				"shipping_address_id": int64(0),
				"items": []any{
					map[string]any{
						"id":       int64(11),
						"order_id": int64(5),
						"name":     "mug",
						"quantity": int64(1),
						"price":    float64(8),
					},
				},
			},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.order.Serialize())
		})
	}
}

func TestOrder_DeserializeRoundTrip(t *testing.T) {
	input := wellFormedOrder()

	order, err := new(Order).Deserialize(input)
	require.NoError(t, err)

	assert.Equal(t, wellFormedOrder(), order.Serialize())
	assert.Equal(t, "<Order id=[7]>", order.String())
}

func TestOrder_DeserializeJSON(t *testing.T) {
	raw := `{"userid":"alice","status":"PENDING","created_at":"2024-03-01","updated_at":"2024-03-01",` +
		`"shipping_address_id":42,"items":[{"name":"filter","quantity":3,"price":4}]}`

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	order, err := new(Order).Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, int64(0), order.ID)
	assert.Equal(t, int64(42), order.ShippingAddressID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(3), order.Items[0].Quantity)
	assert.True(t, order.Items[0].Detached())
}

func TestOrder_DeserializeErrors(t *testing.T) {
	testCases := map[string]struct {
		mutate          func(map[string]any)
		expectedField   string
		expectedMessage string
	}{
		"should name missing userid": {
			mutate:          func(m map[string]any) { delete(m, "userid") },
			expectedField:   "userid",
			expectedMessage: "Invalid Order: missing userid",
		},
		"should name missing updated_at": {
			mutate:          func(m map[string]any) { delete(m, "updated_at") },
			expectedField:   "updated_at",
			expectedMessage: "Invalid Order: missing updated_at",
		},
		"should reject non-date created_at": {
			mutate:        func(m map[string]any) { m["created_at"] = "last tuesday" },
			expectedField: "created_at",
		},
		"should reject non-string created_at": {
			mutate:        func(m map[string]any) { m["created_at"] = 20240301 },
			expectedField: "created_at",
		},
		"should reject non-string userid": {
			mutate:        func(m map[string]any) { m["userid"] = 12 },
			expectedField: "userid",
		},
		"should reject fractional shipping address": {
			mutate:        func(m map[string]any) { m["shipping_address_id"] = 1.5 },
			expectedField: "shipping_address_id",
		},
		"should reject over-long userid": {
			mutate:        func(m map[string]any) { m["userid"] = "a-very-long-user-identifier" },
			expectedField: "userid",
		},
		"should reject empty status": {
			mutate:        func(m map[string]any) { m["status"] = "" },
			expectedField: "status",
		},
		"should reject unexpected attribute": {
			mutate:          func(m map[string]any) { m["email"] = "alice@example.com" },
			expectedField:   "email",
			expectedMessage: "Invalid attribute: email",
		},
		"should reject non-list items": {
			mutate:        func(m map[string]any) { m["items"] = "none" },
			expectedField: "items",
		},
		"should reject non-mapping item": {
			mutate:        func(m map[string]any) { m["items"] = []any{"mug"} },
			expectedField: "items[0]",
		},
		"should reject invalid item quantity": {
			mutate: func(m map[string]any) {
				m["items"] = []any{map[string]any{"name": "mug", "quantity": 0, "price": 1.0}}
			},
			expectedField: "items[0].quantity",
		},
		"should locate a missing field in a later item": {
			mutate: func(m map[string]any) {
				m["items"] = []any{
					map[string]any{"name": "mug", "quantity": 1, "price": 1.0},
					map[string]any{"quantity": 1, "price": 1.0},
				}
			},
			expectedField:   "items[1].name",
			expectedMessage: "Invalid Item: missing items[1].name",
		},
		"should locate an unknown item attribute": {
			mutate: func(m map[string]any) {
				m["items"] = []any{map[string]any{"name": "mug", "quantity": 1, "price": 1.0, "color": "red"}}
			},
			expectedField: "items[0].color",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			data := wellFormedOrder()
			tc.mutate(data)

			original := &Order{UserID: "untouched", Status: StatusPending}
			result, err := original.Deserialize(data)

			require.Error(t, err)
			assert.Nil(t, result)

			var dve *DataValidationError
			require.True(t, errors.As(err, &dve))
			assert.Equal(t, tc.expectedField, dve.Field)
			assert.Contains(t, dve.Error(), tc.expectedField)
			if tc.expectedMessage != "" {
				assert.Equal(t, tc.expectedMessage, dve.Error())
			}
			assert.Equal(t, "untouched", original.UserID)
			assert.True(t, original.CreatedAt.IsZero())
		})
	}
}

func TestOrder_DeserializeNil(t *testing.T) {
	_, err := new(Order).Deserialize(nil)

	var dve *DataValidationError
	require.ErrorAs(t, err, &dve)
	assert.Contains(t, dve.Error(), "bad or no data")
}

func TestOrder_BeforeAppendModel(t *testing.T) {
	t.Run("should default creation fields on insert", func(t *testing.T) {
		order := &Order{UserID: "alice"}

		require.NoError(t, order.BeforeAppendModel(context.Background(), &bun.InsertQuery{}))

		assert.Equal(t, StatusPending, order.Status)
		assert.True(t, order.CreatedAt.Equal(Today()))
		assert.True(t, order.UpdatedAt.IsZero())
	})

	t.Run("should leave updates alone", func(t *testing.T) {
		order := &Order{UserID: "alice"}

		require.NoError(t, order.BeforeAppendModel(context.Background(), &bun.UpdateQuery{}))

		assert.Empty(t, order.Status)
		assert.True(t, order.CreatedAt.IsZero())
	})
}
