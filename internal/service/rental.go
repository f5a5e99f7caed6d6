package service

import (
	"context"
	"fmt"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
)

// expireBatchSize bounds how many stale rentals one sweep cancels.
const expireBatchSize = 200

type rentalService struct {
	store    repository.Store
	notifier Notifier
	metrics  *metrics.Metrics
	now      Clock
}

func NewRentalService(store repository.Store, notifier Notifier, m *metrics.Metrics, now Clock) RentalService {
	return &rentalService{store: store, notifier: notifier, metrics: m, now: now}
}

func (s *rentalService) CreateRental(ctx context.Context, actor domain.Actor, in CreateRentalInput) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.CreateRental", "actor", actor.UserID, "assetID", in.AssetID)

	clientID := actor.UserID
	if actor.IsStaff() && in.ClientID != uuid.Nil {
		clientID = in.ClientID
	}
	now := s.now()
	if err := validateRentalInput(in, now); err != nil {
		s.metrics.DomainError(err)
		return nil, err
	}

	rental := &domain.Rental{
		ID:              uuid.New(),
		AssetType:       in.AssetType,
		AssetID:         in.AssetID,
		ClientID:        clientID,
		RentalStartDate: in.StartDate,
		RentalEndDate:   in.EndDate,
		EstimatedFee:    in.EstimatedFee,
		Status:          domain.RentalStatusRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		asset, err := repos.Assets.GetForUpdate(ctx, in.AssetID)
		if err != nil {
			return err
		}
		if asset.Type() != in.AssetType {
			return domain.ValidationError("asset %s is a %s, not a %s", in.AssetID, asset.Type(), in.AssetType)
		}

		switch a := asset.(type) {
		case *domain.ColdRoom:
			if in.CapacityNeededKg == nil || !in.CapacityNeededKg.IsPositive() {
				return domain.ValidationError("capacity_needed_kg must be greater than zero for a cold room")
			}
			if err := domain.CheckKg("capacity_needed_kg", *in.CapacityNeededKg); err != nil {
				return err
			}
			kg := *in.CapacityNeededKg
			rental.CapacityNeededKg = &kg
			if _, err := reserveKg(ctx, repos.Assets, s.metrics, a.ID, kg, s.now()); err != nil {
				return err
			}
		case domain.ExclusiveAsset:
			switch a.CurrentStatus() {
			case domain.AssetStatusRetired, domain.AssetStatusMaintenance:
				return domain.ConflictError("asset %s is %s", in.AssetID, a.CurrentStatus())
			}
			claims, err := repos.Rentals.ListClaims(ctx, in.AssetID)
			if err != nil {
				return err
			}
			for i := range claims {
				if claims[i].Overlaps(in.StartDate, in.EndDate) {
					return domain.ConflictError("asset already booked for overlapping window (rental %s)", claims[i].ID)
				}
			}
		}
		return repos.Rentals.Create(ctx, rental)
	})
	if err != nil {
		s.metrics.DomainError(err)
		logger.ExitMethodWithError("rentalService.CreateRental", err)
		return nil, err
	}

	s.metrics.RentalTransition(rental.AssetType, rental.Status)
	if s.notifier != nil {
		if nerr := s.notifier.RentalRequested(ctx, rental); nerr != nil {
			logger.Warn("Failed to send rental request notice", "rentalID", rental.ID, "error", nerr)
		}
	}
	logger.ExitMethod("rentalService.CreateRental", "rentalID", rental.ID)
	return rental, nil
}

func validateRentalInput(in CreateRentalInput, now time.Time) error {
	if !in.AssetType.Valid() {
		return domain.ValidationError("asset_type %q is not supported", in.AssetType)
	}
	if in.AssetID == uuid.Nil {
		return domain.ValidationError("asset_id is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return domain.ValidationError("rental_start_date and rental_end_date are required")
	}
	if !in.StartDate.Before(in.EndDate) {
		return domain.ValidationError("rental_start_date must be before rental_end_date")
	}
	if !in.EndDate.After(now) {
		return domain.ValidationError("rental_end_date must be in the future")
	}
	if in.EstimatedFee.IsNegative() {
		return domain.ValidationError("estimated_fee cannot be negative")
	}
	return domain.CheckMoney("estimated_fee", in.EstimatedFee)
}

func (s *rentalService) ApproveRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error) {
	if err := actor.Require("approve rentals", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, "rentalService.ApproveRental", func(ctx context.Context, repos repository.Repos, r *domain.Rental) error {
		return r.TransitionTo(domain.RentalStatusApproved, s.now())
	})
}

func (s *rentalService) ActivateRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error) {
	if err := actor.Require("activate rentals", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, "rentalService.ActivateRental", func(ctx context.Context, repos repository.Repos, r *domain.Rental) error {
		now := s.now()
		if err := r.TransitionTo(domain.RentalStatusActive, now); err != nil {
			return err
		}
		if !r.AssetType.Exclusive() {
			return nil
		}
		asset, err := repos.Assets.GetForUpdate(ctx, r.AssetID)
		if err != nil {
			return err
		}
		ex := asset.(domain.ExclusiveAsset)
		if ex.CurrentStatus() != domain.AssetStatusAvailable {
			return domain.ConflictError("asset %s is %s and cannot be handed out", r.AssetID, ex.CurrentStatus())
		}
		ex.SetStatus(domain.AssetStatusRented)
		asset.Base().UpdatedAt = now
		return repos.Assets.Update(ctx, asset)
	})
}

func (s *rentalService) CompleteRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error) {
	if err := actor.Require("complete rentals", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, "rentalService.CompleteRental", func(ctx context.Context, repos repository.Repos, r *domain.Rental) error {
		now := s.now()
		if err := r.TransitionTo(domain.RentalStatusCompleted, now); err != nil {
			return err
		}
		if !r.AssetType.Exclusive() {
			return s.releaseRental(ctx, repos, r)
		}
		asset, err := repos.Assets.GetForUpdate(ctx, r.AssetID)
		if err != nil {
			return err
		}
		ex := asset.(domain.ExclusiveAsset)
		if ex.CurrentStatus() == domain.AssetStatusRented {
			ex.SetStatus(domain.AssetStatusAvailable)
			asset.Base().UpdatedAt = now
			return repos.Assets.Update(ctx, asset)
		}
		return nil
	})
}

func (s *rentalService) CancelRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error) {
	return s.transition(ctx, id, "rentalService.CancelRental", func(ctx context.Context, repos repository.Repos, r *domain.Rental) error {
		if r.ClientID != actor.UserID && !actor.IsStaff() {
			return domain.PermissionError("only the client or site staff may cancel rental %s", r.ID)
		}
		return s.cancelLocked(ctx, repos, r)
	})
}

// cancelLocked expects r to be row-locked by the caller's transaction.
func (s *rentalService) cancelLocked(ctx context.Context, repos repository.Repos, r *domain.Rental) error {
	if err := r.TransitionTo(domain.RentalStatusCancelled, s.now()); err != nil {
		return err
	}
	return s.releaseRental(ctx, repos, r)
}

func (s *rentalService) releaseRental(ctx context.Context, repos repository.Repos, r *domain.Rental) error {
	kg := r.ReservedKg()
	if !kg.IsPositive() {
		return nil
	}
	_, err := releaseKg(ctx, repos.Assets, s.metrics, r.AssetID, kg, s.now())
	return err
}

type rentalStep func(ctx context.Context, repos repository.Repos, r *domain.Rental) error

// transition locks the rental, applies step and persists the result in one
// transaction. The rental is locked before any asset row.
func (s *rentalService) transition(ctx context.Context, id uuid.UUID, method string, step rentalStep) (*domain.Rental, error) {
	logger.EnterMethod(method, "rentalID", id)
	var rental *domain.Rental
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		r, err := repos.Rentals.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := step(ctx, repos, r); err != nil {
			return err
		}
		if err := repos.Rentals.Update(ctx, r); err != nil {
			return err
		}
		rental = r
		return nil
	})
	if err != nil {
		s.metrics.DomainError(err)
		logger.ExitMethodWithError(method, err)
		return nil, err
	}
	s.metrics.RentalTransition(rental.AssetType, rental.Status)
	logger.ExitMethod(method, "rentalID", id, "status", rental.Status)
	return rental, nil
}

func (s *rentalService) GetRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error) {
	r, err := s.store.Repositories().Rentals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ClientID != actor.UserID && !actor.IsStaff() {
		return nil, domain.PermissionError("rental %s belongs to another client", id)
	}
	return r, nil
}

func (s *rentalService) ListRentals(ctx context.Context, actor domain.Actor, filter domain.RentalFilter) ([]domain.Rental, int32, error) {
	if !actor.IsStaff() {
		own := actor.UserID
		filter.ClientID = &own
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.ValidationError("unknown rental status %q", filter.Status)
	}
	if err := domain.ValidatePage(filter.Page); err != nil {
		return nil, 0, err
	}
	filter.Normalize()
	return s.store.Repositories().Rentals.List(ctx, filter)
}

func (s *rentalService) ExpireStaleRentals(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.Repositories().Rentals.ListExpired(ctx, now, expireBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing expired rentals: %w", err)
	}

	expired := 0
	for _, candidate := range stale {
		cancelled := false
		err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			r, err := repos.Rentals.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Re-checked under the lock; it may have moved since the scan.
			if r.Status != domain.RentalStatusRequested && r.Status != domain.RentalStatusApproved {
				return nil
			}
			if !r.RentalEndDate.Before(now) {
				return nil
			}
			if err := s.cancelLocked(ctx, repos, r); err != nil {
				return err
			}
			if err := repos.Rentals.Update(ctx, r); err != nil {
				return err
			}
			cancelled = true
			return nil
		})
		if err != nil {
			logger.Error("Failed to expire rental", "rentalID", candidate.ID, "error", err)
			continue
		}
		if !cancelled {
			continue
		}
		expired++
		s.metrics.RentalTransition(candidate.AssetType, domain.RentalStatusCancelled)
	}
	return expired, nil
}
