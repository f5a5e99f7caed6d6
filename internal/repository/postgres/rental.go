package postgres

import (
	"context"
	"fmt"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// The asset reference is stored in one of four typed FK columns; reads fold
// them back into AssetID.
const rentalColumns = `id, asset_type, COALESCE(cold_room_id, cold_box_id, cold_plate_id, tricycle_id),
	client_id, rental_start_date, rental_end_date, estimated_fee, capacity_needed_kg, status, invoice_id,
	created_at, updated_at`

type rentalRepository struct {
	db dbtx
}

func NewRentalRepository(db dbtx) repository.RentalRepository {
	return &rentalRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRental(s rowScanner) (*domain.Rental, error) {
	rt := &domain.Rental{}
	var capacity decimal.NullDecimal
	var invoiceID uuid.NullUUID
	err := s.Scan(&rt.ID, &rt.AssetType, &rt.AssetID, &rt.ClientID, &rt.RentalStartDate, &rt.RentalEndDate,
		&rt.EstimatedFee, &capacity, &rt.Status, &invoiceID, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if capacity.Valid {
		rt.CapacityNeededKg = &capacity.Decimal
	}
	if invoiceID.Valid {
		rt.InvoiceID = &invoiceID.UUID
	}
	return rt, nil
}

// assetColumn picks the typed FK column for an asset type.
func assetColumn(t domain.AssetType) (string, error) {
	switch t {
	case domain.AssetTypeColdRoom:
		return "cold_room_id", nil
	case domain.AssetTypeColdBox:
		return "cold_box_id", nil
	case domain.AssetTypeColdPlate:
		return "cold_plate_id", nil
	case domain.AssetTypeTricycle:
		return "tricycle_id", nil
	}
	return "", domain.ValidationError("unknown asset type %q", t)
}

func (r *rentalRepository) Create(ctx context.Context, rt *domain.Rental) error {
	column, err := assetColumn(rt.AssetType)
	if err != nil {
		return err
	}
	var capacity decimal.NullDecimal
	if rt.CapacityNeededKg != nil {
		capacity = decimal.NewNullDecimal(*rt.CapacityNeededKg)
	}
	query := `INSERT INTO rentals (id, asset_type, ` + column + `, client_id, rental_start_date, rental_end_date,
	          estimated_fee, capacity_needed_kg, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	res, err := r.db.ExecContext(ctx, query, rt.ID, rt.AssetType, rt.AssetID, rt.ClientID, rt.RentalStartDate, rt.RentalEndDate,
		rt.EstimatedFee, capacity, rt.Status, rt.CreatedAt, rt.UpdatedAt)
	logExec("rentals.create", query, res, err)
	if err != nil {
		return mapError(err, "rental")
	}
	return nil
}

func (r *rentalRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	rt, err := scanRental(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "rental", id)
	}
	return rt, nil
}

func (r *rentalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return r.get(ctx, id, false)
}

func (r *rentalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return r.get(ctx, id, true)
}

// Update writes the mutable fields only; the asset, client and window are
// fixed at creation.
func (r *rentalRepository) Update(ctx context.Context, rt *domain.Rental) error {
	query := `UPDATE rentals SET status=$1, invoice_id=$2, updated_at=$3 WHERE id=$4`
	var invoiceID uuid.NullUUID
	if rt.InvoiceID != nil {
		invoiceID = uuid.NullUUID{UUID: *rt.InvoiceID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, query, rt.Status, invoiceID, rt.UpdatedAt, rt.ID)
	logExec("rentals.update", query, res, err)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError("rental", rt.ID)
	}
	return nil
}

func (r *rentalRepository) ListClaims(ctx context.Context, assetID uuid.UUID) ([]domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals
	          WHERE COALESCE(cold_room_id, cold_box_id, cold_plate_id, tricycle_id) = $1 AND status = ANY($2)
	          ORDER BY rental_start_date`
	return r.list(ctx, query, assetID, pq.Array(claimStatuses()))
}

func claimStatuses() []string {
	var out []string
	for _, s := range domain.ClaimStatuses() {
		out = append(out, string(s))
	}
	return out
}

func (r *rentalRepository) List(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, int32, error) {
	filter.Normalize()
	where := ` FROM rentals WHERE TRUE`
	var args []any
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		where += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*)`+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	offset := domain.PageOffset(filter.Page, filter.Limit)
	query := `SELECT ` + rentalColumns + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, offset)

	rentals, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return rentals, count, nil
}

func (r *rentalRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals
	          WHERE status IN ('REQUESTED', 'APPROVED') AND rental_end_date < $1
	          ORDER BY rental_end_date LIMIT $2`
	return r.list(ctx, query, cutoff, limit)
}

func (r *rentalRepository) list(ctx context.Context, query string, args ...any) ([]domain.Rental, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []domain.Rental
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, *rt)
	}
	return rentals, rows.Err()
}
