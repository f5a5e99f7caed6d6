package service

import (
	"context"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type capacityLedger struct {
	store   repository.Store
	metrics *metrics.Metrics
	now     Clock
}

func NewCapacityLedger(store repository.Store, m *metrics.Metrics, now Clock) CapacityLedger {
	if now == nil {
		now = SystemClock
	}
	return &capacityLedger{store: store, metrics: m, now: now}
}

// reserveKg is the ledger's check-and-increment, shared with the rental
// lifecycle so both run inside the caller's transaction.
func reserveKg(ctx context.Context, assets repository.AssetRepository, m *metrics.Metrics, coldRoomID uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error) {
	if !kg.IsPositive() {
		return nil, domain.ValidationError("kg must be positive")
	}
	if err := domain.CheckKg("kg", kg); err != nil {
		return nil, err
	}
	room, err := assets.ReserveCapacity(ctx, coldRoomID, kg, now)
	m.CapacityOp("reserve", kg.InexactFloat64(), err)
	return room, err
}

func releaseKg(ctx context.Context, assets repository.AssetRepository, m *metrics.Metrics, coldRoomID uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error) {
	if !kg.IsPositive() {
		return nil, domain.ValidationError("kg must be positive")
	}
	if err := domain.CheckKg("kg", kg); err != nil {
		return nil, err
	}
	room, err := assets.ReleaseCapacity(ctx, coldRoomID, kg, now)
	m.CapacityOp("release", kg.InexactFloat64(), err)
	return room, err
}

func (l *capacityLedger) Reserve(ctx context.Context, actor domain.Actor, coldRoomID uuid.UUID, kg decimal.Decimal) (domain.Occupancy, error) {
	if err := actor.Require("adjust cold-room capacity", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return domain.Occupancy{}, err
	}
	var room *domain.ColdRoom
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		room, err = reserveKg(ctx, repos.Assets, l.metrics, coldRoomID, kg, l.now())
		return err
	})
	if err != nil {
		return domain.Occupancy{}, err
	}
	return room.Occupancy(), nil
}

func (l *capacityLedger) Release(ctx context.Context, actor domain.Actor, coldRoomID uuid.UUID, kg decimal.Decimal) (domain.Occupancy, error) {
	if err := actor.Require("adjust cold-room capacity", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return domain.Occupancy{}, err
	}
	var room *domain.ColdRoom
	err := l.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		room, err = releaseKg(ctx, repos.Assets, l.metrics, coldRoomID, kg, l.now())
		return err
	})
	if err != nil {
		return domain.Occupancy{}, err
	}
	return room.Occupancy(), nil
}

func (l *capacityLedger) OccupancySnapshot(ctx context.Context, coldRoomID uuid.UUID) (domain.Occupancy, error) {
	a, err := l.store.Repositories().Assets.GetByID(ctx, coldRoomID)
	if err != nil {
		return domain.Occupancy{}, err
	}
	room, ok := a.(*domain.ColdRoom)
	if !ok {
		return domain.Occupancy{}, domain.NotFoundError("cold room", coldRoomID)
	}
	return room.Occupancy(), nil
}
