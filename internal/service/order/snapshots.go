package order

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/entity"
)

// snapshots keeps the serialized form of recently read or written orders. Cache failures are
// logged and otherwise ignored; storage stays the source of truth.
type snapshots struct {
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

func snapshotKey(id int64) string {
	return "orders:" + strconv.FormatInt(id, 10)
}

func (s snapshots) load(ctx context.Context, id int64) (*entity.Order, bool) {
	if s.store == nil {
		return nil, false
	}
	raw, err := s.store.Get(ctx, snapshotKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("order snapshot read failed", zap.Int64("id", id), zap.Error(err))
		}
		return nil, false
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("order snapshot unreadable", zap.Int64("id", id), zap.Error(err))
		return nil, false
	}
	order, err := new(entity.Order).Deserialize(data)
	if err != nil {
		s.logger.Warn("order snapshot invalid", zap.Int64("id", id), zap.Error(err))
		return nil, false
	}
	return order, true
}

func (s snapshots) save(ctx context.Context, order *entity.Order) {
	if s.store == nil {
		return
	}
	raw, err := json.Marshal(order.Serialize())
	if err == nil {
		err = s.store.Set(ctx, snapshotKey(order.ID), raw, s.ttl)
	}
	if err != nil {
		s.logger.Warn("order snapshot write failed", zap.Int64("id", order.ID), zap.Error(err))
	}
}

func (s snapshots) drop(ctx context.Context, id int64) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, snapshotKey(id)); err != nil {
		s.logger.Warn("order snapshot invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}
