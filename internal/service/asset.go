package service

import (
	"context"
	"iter"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// discoverPageSize is how many assets Discover pulls from storage per query.
const discoverPageSize = 100

type assetService struct {
	store   repository.Store
	metrics *metrics.Metrics
	now     Clock
}

func NewAssetService(store repository.Store, m *metrics.Metrics, now Clock) AssetService {
	return &assetService{store: store, metrics: m, now: now}
}

func (s *assetService) RegisterAsset(ctx context.Context, actor domain.Actor, asset domain.Asset) (domain.Asset, error) {
	logger.EnterMethod("assetService.RegisterAsset", "actor", actor.UserID)
	if err := actor.Require("register assets", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, domain.ValidationError("asset is required")
	}

	now := s.now()
	base := asset.Base()
	base.ID = uuid.New()
	base.CreatedAt = now
	base.UpdatedAt = now
	switch v := asset.(type) {
	case *domain.ColdRoom:
		v.UsedCapacityKg = decimal.Zero
	case domain.ExclusiveAsset:
		v.SetStatus(domain.AssetStatusAvailable)
	}
	if err := asset.Validate(); err != nil {
		s.metrics.DomainError(err)
		return nil, err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		return repos.Assets.Create(ctx, asset)
	})
	if err != nil {
		logger.ExitMethodWithError("assetService.RegisterAsset", err)
		return nil, err
	}
	logger.ExitMethod("assetService.RegisterAsset", "assetID", base.ID, "type", asset.Type())
	return asset, nil
}

func (s *assetService) UpdateAsset(ctx context.Context, actor domain.Actor, id uuid.UUID, patch domain.AssetPatch) (domain.Asset, error) {
	if err := actor.Require("update assets", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var updated domain.Asset
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		a, err := repos.Assets.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ex, ok := a.(domain.ExclusiveAsset); ok && ex.CurrentStatus() == domain.AssetStatusRetired {
			return domain.InvalidStateError("asset %s is retired", id)
		}
		if err := patch.ApplyTo(a); err != nil {
			return err
		}
		if room, ok := a.(*domain.ColdRoom); ok && room.TotalCapacityKg.LessThan(room.UsedCapacityKg) {
			return &domain.CapacityConflictError{
				ColdRoomID:       id.String(),
				UsedKg:           room.UsedCapacityKg,
				RequestedTotalKg: room.TotalCapacityKg,
			}
		}
		a.Base().UpdatedAt = s.now()
		if err := repos.Assets.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		s.metrics.DomainError(err)
		return nil, err
	}
	return updated, nil
}

func (s *assetService) RetireAsset(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Asset, error) {
	if err := actor.Require("retire assets", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var retired domain.Asset
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		a, err := repos.Assets.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		ex, ok := a.(domain.ExclusiveAsset)
		if !ok {
			return domain.ValidationError("cold rooms cannot be retired")
		}
		if ex.CurrentStatus() == domain.AssetStatusRetired {
			return domain.InvalidStateError("asset %s is already retired", id)
		}
		claims, err := repos.Rentals.ListClaims(ctx, id)
		if err != nil {
			return err
		}
		if len(claims) > 0 {
			return domain.ConflictError("asset %s has %d open rental(s)", id, len(claims))
		}
		ex.SetStatus(domain.AssetStatusRetired)
		a.Base().UpdatedAt = s.now()
		if err := repos.Assets.Update(ctx, a); err != nil {
			return err
		}
		retired = a
		return nil
	})
	if err != nil {
		s.metrics.DomainError(err)
		return nil, err
	}
	logger.Info("Asset retired", "assetID", id, "actor", actor.UserID)
	return retired, nil
}

func (s *assetService) GetAsset(ctx context.Context, id uuid.UUID) (domain.Asset, error) {
	return s.store.Repositories().Assets.GetByID(ctx, id)
}

func (s *assetService) Discover(ctx context.Context, filter domain.AssetFilter) iter.Seq2[domain.Asset, error] {
	return func(yield func(domain.Asset, error) bool) {
		repo := s.store.Repositories().Assets
		after := uuid.Nil
		for {
			batch, err := repo.List(ctx, filter, after, discoverPageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, a := range batch {
				if !yield(a, nil) {
					return
				}
			}
			if len(batch) < discoverPageSize {
				return
			}
			after = batch[len(batch)-1].Base().ID
		}
	}
}
