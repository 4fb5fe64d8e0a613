package seeder

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/entity"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	svc    *service.Service
	logger *zap.Logger
}

type sample struct {
	userID    string
	addressID int64
	status    string
	items     []entity.Item
}

var samples = []sample{
	{
		userID:    "alice",
		addressID: 1,
		status:    entity.StatusPending,
		items: []entity.Item{
			{Name: "espresso beans", Quantity: 2, Price: 12.5},
			{Name: "paper filters", Quantity: 1, Price: 3.2},
		},
	},
	{
		userID:    "alice",
		addressID: 1,
		status:    entity.StatusShipped,
		items: []entity.Item{
			{Name: "burr grinder", Quantity: 1, Price: 89},
		},
	},
	{
		userID:    "bob",
		addressID: 2,
		status:    entity.StatusProcessing,
		items: []entity.Item{
			{Name: "pour-over kettle", Quantity: 1, Price: 45.9},
		},
	},
}

// New constructs a Seeder that writes through the order service.
func New(svc *service.Service, logger *zap.Logger) *Seeder {
	return &Seeder{svc: svc, logger: logger}
}

// Orders seeds sample orders for users that have none yet.
func (s *Seeder) Orders(ctx context.Context) error {
	seeded := make(map[string]bool)
	created := 0

	for _, sm := range samples {
		skip, known := seeded[sm.userID]
		if !known {
			has, err := s.hasOrders(ctx, sm.userID)
			if err != nil {
				return err
			}
			skip = has
			seeded[sm.userID] = has
		}
		if skip {
			continue
		}

		order := entity.NewOrder(sm.userID, sm.addressID)
		order.Status = sm.status
		for i := range sm.items {
			item := sm.items[i]
			order.Items = append(order.Items, &item)
		}
		if err := s.svc.Create(ctx, order); err != nil {
			return err
		}
		created++
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", created))
	}
	return nil
}

func (s *Seeder) hasOrders(ctx context.Context, userID string) (bool, error) {
	seq, err := s.svc.FindBy(ctx, repo.FieldUserID, userID)
	if err != nil {
		return false, err
	}
	for _, err := range seq {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
