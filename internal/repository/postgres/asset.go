package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const assetColumns = `id, site_id, asset_type, status, name, total_capacity_kg, used_capacity_kg,
	temperature_min, temperature_max, power_type, identification_number, size, cooling_spec,
	plate_number, capacity, category, created_at, updated_at`

type assetRepository struct {
	db dbtx
}

func NewAssetRepository(db dbtx) repository.AssetRepository {
	return &assetRepository{db: db}
}

// assetRow mirrors one row of the single assets table. Columns belonging to
// other variants are NULL.
type assetRow struct {
	ID             uuid.UUID
	SiteID         uuid.UUID
	Type           domain.AssetType
	Status         sql.NullString
	Name           sql.NullString
	TotalKg        decimal.NullDecimal
	UsedKg         decimal.NullDecimal
	TempMin        sql.NullFloat64
	TempMax        sql.NullFloat64
	PowerType      sql.NullString
	Identification sql.NullString
	Size           sql.NullString
	CoolingSpec    sql.NullString
	PlateNumber    sql.NullString
	Capacity       sql.NullString
	Category       sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *assetRow) dest() []any {
	return []any{&r.ID, &r.SiteID, &r.Type, &r.Status, &r.Name, &r.TotalKg, &r.UsedKg,
		&r.TempMin, &r.TempMax, &r.PowerType, &r.Identification, &r.Size, &r.CoolingSpec,
		&r.PlateNumber, &r.Capacity, &r.Category, &r.CreatedAt, &r.UpdatedAt}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func (r *assetRow) toDomain() (domain.Asset, error) {
	base := domain.AssetBase{ID: r.ID, SiteID: r.SiteID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	switch r.Type {
	case domain.AssetTypeColdRoom:
		return &domain.ColdRoom{
			AssetBase:       base,
			Name:            r.Name.String,
			TotalCapacityKg: r.TotalKg.Decimal,
			UsedCapacityKg:  r.UsedKg.Decimal,
			TemperatureMin:  floatPtr(r.TempMin),
			TemperatureMax:  floatPtr(r.TempMax),
			PowerType:       domain.PowerType(r.PowerType.String),
		}, nil
	case domain.AssetTypeColdBox:
		b := domain.NewColdBox(r.SiteID, r.Identification.String, r.Size.String, r.CoolingSpec.String)
		b.AssetBase = base
		b.Status = domain.AssetStatus(r.Status.String)
		return b, nil
	case domain.AssetTypeColdPlate:
		p := domain.NewColdPlate(r.SiteID, r.Identification.String, r.Size.String, r.CoolingSpec.String)
		p.AssetBase = base
		p.Status = domain.AssetStatus(r.Status.String)
		return p, nil
	case domain.AssetTypeTricycle:
		return &domain.Tricycle{
			AssetBase:   base,
			PlateNumber: r.PlateNumber.String,
			Capacity:    r.Capacity.String,
			Category:    r.Category.String,
			Status:      domain.AssetStatus(r.Status.String),
		}, nil
	}
	return nil, fmt.Errorf("unknown asset_type %q in row %s", r.Type, r.ID)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromDomain(a domain.Asset) *assetRow {
	b := a.Base()
	row := &assetRow{ID: b.ID, SiteID: b.SiteID, Type: a.Type(), CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
	switch v := a.(type) {
	case *domain.ColdRoom:
		row.Name = nullString(v.Name)
		row.TotalKg = decimal.NewNullDecimal(v.TotalCapacityKg)
		row.UsedKg = decimal.NewNullDecimal(v.UsedCapacityKg)
		row.TempMin = nullFloat(v.TemperatureMin)
		row.TempMax = nullFloat(v.TemperatureMax)
		row.PowerType = nullString(string(v.PowerType))
	case *domain.ColdBox:
		row.Status = nullString(string(v.Status))
		row.Identification = nullString(v.IdentificationNumber)
		row.Size = nullString(v.Size)
		row.CoolingSpec = nullString(v.CoolingSpec)
	case *domain.ColdPlate:
		row.Status = nullString(string(v.Status))
		row.Identification = nullString(v.IdentificationNumber)
		row.Size = nullString(v.Size)
		row.CoolingSpec = nullString(v.CoolingSpec)
	case *domain.Tricycle:
		row.Status = nullString(string(v.Status))
		row.PlateNumber = nullString(v.PlateNumber)
		row.Capacity = nullString(v.Capacity)
		row.Category = nullString(v.Category)
	}
	return row
}

func (r *assetRepository) Create(ctx context.Context, a domain.Asset) error {
	row := fromDomain(a)
	query := `INSERT INTO assets (` + assetColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	res, err := r.db.ExecContext(ctx, query, row.ID, row.SiteID, row.Type, row.Status, row.Name, row.TotalKg, row.UsedKg,
		row.TempMin, row.TempMax, row.PowerType, row.Identification, row.Size, row.CoolingSpec,
		row.PlateNumber, row.Capacity, row.Category, row.CreatedAt, row.UpdatedAt)
	logExec("assets.create", query, res, err)
	if err != nil {
		return mapError(err, "asset")
	}
	return nil
}

func (r *assetRepository) get(ctx context.Context, id uuid.UUID, lock bool) (domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var row assetRow
	if err := r.db.QueryRowContext(ctx, query, id).Scan(row.dest()...); err != nil {
		return nil, notFound(err, "asset", id)
	}
	return row.toDomain()
}

func (r *assetRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Asset, error) {
	return r.get(ctx, id, false)
}

func (r *assetRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Asset, error) {
	return r.get(ctx, id, true)
}

func (r *assetRepository) Update(ctx context.Context, a domain.Asset) error {
	row := fromDomain(a)
	query := `UPDATE assets SET site_id=$1, status=$2, name=$3, total_capacity_kg=$4, temperature_min=$5, temperature_max=$6,
	          power_type=$7, identification_number=$8, size=$9, cooling_spec=$10, plate_number=$11, capacity=$12, category=$13,
	          updated_at=$14 WHERE id=$15`
	res, err := r.db.ExecContext(ctx, query, row.SiteID, row.Status, row.Name, row.TotalKg, row.TempMin, row.TempMax,
		row.PowerType, row.Identification, row.Size, row.CoolingSpec, row.PlateNumber, row.Capacity, row.Category,
		row.UpdatedAt, row.ID)
	logExec("assets.update", query, res, err)
	if err != nil {
		return mapError(err, "asset")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError("asset", row.ID)
	}
	return nil
}

func (r *assetRepository) List(ctx context.Context, filter domain.AssetFilter, after uuid.UUID, limit int) ([]domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id > $1`
	args := []any{after}
	if filter.SiteID != nil {
		args = append(args, *filter.SiteID)
		query += fmt.Sprintf(" AND site_id = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND asset_type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var row assetRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// ReserveCapacity never reads before writing: the guard lives in the WHERE
// clause so concurrent reservations cannot both pass it.
func (r *assetRepository) ReserveCapacity(ctx context.Context, coldRoomID uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error) {
	query := `UPDATE assets SET used_capacity_kg = used_capacity_kg + $1, updated_at = $3
	          WHERE id = $2 AND asset_type = 'COLD_ROOM' AND used_capacity_kg + $1 <= total_capacity_kg
	          RETURNING ` + assetColumns
	room, err := r.adjust(ctx, query, kg, coldRoomID, now)
	if !errors.Is(err, sql.ErrNoRows) {
		return room, err
	}
	current, err := r.coldRoom(ctx, coldRoomID)
	if err != nil {
		return nil, err
	}
	return nil, &domain.CapacityExceededError{
		ColdRoomID:  coldRoomID.String(),
		RequestedKg: kg,
		AvailableKg: current.TotalCapacityKg.Sub(current.UsedCapacityKg),
	}
}

func (r *assetRepository) ReleaseCapacity(ctx context.Context, coldRoomID uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error) {
	query := `UPDATE assets SET used_capacity_kg = used_capacity_kg - $1, updated_at = $3
	          WHERE id = $2 AND asset_type = 'COLD_ROOM' AND used_capacity_kg >= $1
	          RETURNING ` + assetColumns
	room, err := r.adjust(ctx, query, kg, coldRoomID, now)
	if !errors.Is(err, sql.ErrNoRows) {
		return room, err
	}
	current, err := r.coldRoom(ctx, coldRoomID)
	if err != nil {
		return nil, err
	}
	return nil, domain.ValidationError("cannot release %s kg from cold room %s holding %s kg",
		kg.String(), coldRoomID, current.UsedCapacityKg.String())
}

func (r *assetRepository) adjust(ctx context.Context, query string, kg decimal.Decimal, id uuid.UUID, now time.Time) (*domain.ColdRoom, error) {
	var row assetRow
	if err := r.db.QueryRowContext(ctx, query, kg, id, now).Scan(row.dest()...); err != nil {
		return nil, err
	}
	a, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return a.(*domain.ColdRoom), nil
}

// coldRoom re-reads the row after a conditional update matched nothing, to
// tell a missing room from a failed guard.
func (r *assetRepository) coldRoom(ctx context.Context, id uuid.UUID) (*domain.ColdRoom, error) {
	a, err := r.get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	room, ok := a.(*domain.ColdRoom)
	if !ok {
		return nil, domain.NotFoundError("cold room", id)
	}
	return room, nil
}
