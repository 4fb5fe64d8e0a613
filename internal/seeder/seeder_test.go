package seeder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/entity"
	"github.com/Additional-Code/ordertrack/internal/messaging"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
	"github.com/Additional-Code/ordertrack/internal/testutil"
)

func TestSeeder_Orders(t *testing.T) {
	cfg := testutil.Config(t)
	conns := testutil.MigratedDB(t, cfg)
	lc := fxtest.NewLifecycle(t)

	store, err := cache.NewStore(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	client, err := messaging.NewClient(lc, cfg, zap.NewNop())
	require.NoError(t, err)

	orders := repo.NewRepository(conns, cfg, zap.NewNop())
	svc := service.NewService(service.Params{
		Repository: orders,
		Cache:      store,
		Config:     cfg,
		Logger:     zap.NewNop(),
		Publisher:  client,
	})
	seed := New(svc, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, seed.Orders(ctx))
	require.NoError(t, seed.Orders(ctx), "seeding twice must not duplicate orders")

	count := func(field, value string) []*entity.Order {
		seq, err := orders.FindBy(ctx, field, value)
		require.NoError(t, err)
		var out []*entity.Order
		for order, err := range seq {
			require.NoError(t, err)
			out = append(out, order)
		}
		return out
	}

	alice := count(repo.FieldUserID, "alice")
	require.Len(t, alice, 2)
	assert.Len(t, alice[0].Items, 2)
	assert.Equal(t, entity.StatusShipped, alice[1].Status)

	bob := count(repo.FieldUserID, "bob")
	require.Len(t, bob, 1)
	assert.Equal(t, entity.StatusProcessing, bob[0].Status)
	assert.Equal(t, int64(2), bob[0].ShippingAddressID)
}
