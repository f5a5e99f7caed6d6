package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"
	"coldchain-rental-core/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assetCols = []string{"id", "site_id", "asset_type", "status", "name", "total_capacity_kg", "used_capacity_kg",
	"temperature_min", "temperature_max", "power_type", "identification_number", "size", "cooling_spec",
	"plate_number", "capacity", "category", "created_at", "updated_at"}

func coldRoomRow(rows *sqlmock.Rows, id, site uuid.UUID, total, used string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id.String(), site.String(), "COLD_ROOM", nil, "Room A", total, used,
		2.0, 8.0, "SOLAR", nil, nil, nil, nil, nil, nil, now, now)
}

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return postgres.NewStore(db), mock
}

func TestAssetRepository_Create(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Assets
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		box := domain.NewColdBox(uuid.New(), "CB-001", "50L", "-5C")
		box.ID = uuid.New()
		box.Status = domain.AssetStatusAvailable

		mock.ExpectExec("INSERT INTO assets").
			WithArgs(box.ID, box.SiteID, domain.AssetTypeColdBox, "AVAILABLE", nil, nil, nil,
				nil, nil, nil, "CB-001", "50L", "-5C", nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, box)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateIsConflict", func(t *testing.T) {
		trike := &domain.Tricycle{AssetBase: domain.AssetBase{ID: uuid.New(), SiteID: uuid.New()}, PlateNumber: "T-1", Capacity: "200kg"}
		mock.ExpectExec("INSERT INTO assets").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "assets_pkey"})

		err := repo.Create(ctx, trike)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})
}

func TestAssetRepository_GetByID(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Assets
	ctx := context.Background()

	t.Run("ColdRoom", func(t *testing.T) {
		id, site := uuid.New(), uuid.New()
		mock.ExpectQuery("SELECT (.+) FROM assets WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(coldRoomRow(sqlmock.NewRows(assetCols), id, site, "1000", "250.5"))

		a, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		room, ok := a.(*domain.ColdRoom)
		require.True(t, ok)
		assert.Equal(t, "Room A", room.Name)
		assert.True(t, room.UsedCapacityKg.Equal(decimal.RequireFromString("250.5")))
		assert.Equal(t, 8.0, *room.TemperatureMax)
	})

	t.Run("NotFound", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery("SELECT (.+) FROM assets WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(assetCols))

		_, err := repo.GetByID(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("ForUpdateLocksRow", func(t *testing.T) {
		id, site := uuid.New(), uuid.New()
		mock.ExpectQuery("SELECT (.+) FROM assets WHERE id = \\$1 FOR UPDATE").
			WithArgs(id).
			WillReturnRows(coldRoomRow(sqlmock.NewRows(assetCols), id, site, "10", "0"))

		_, err := repo.GetForUpdate(ctx, id)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAssetRepository_ReserveCapacity(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Assets
	ctx := context.Background()
	reserveSQL := regexp.QuoteMeta("UPDATE assets SET used_capacity_kg = used_capacity_kg + $1, updated_at = $3")
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		id, site := uuid.New(), uuid.New()
		kg := decimal.NewFromInt(300)
		mock.ExpectQuery(reserveSQL).
			WithArgs(kg, id, now).
			WillReturnRows(coldRoomRow(sqlmock.NewRows(assetCols), id, site, "1000", "300"))

		room, err := repo.ReserveCapacity(ctx, id, kg, now)
		require.NoError(t, err)
		assert.True(t, room.UsedCapacityKg.Equal(kg))
	})

	t.Run("Exceeded", func(t *testing.T) {
		id, site := uuid.New(), uuid.New()
		kg := decimal.NewFromInt(500)
		mock.ExpectQuery(reserveSQL).
			WithArgs(kg, id, now).
			WillReturnRows(sqlmock.NewRows(assetCols))
		mock.ExpectQuery("SELECT (.+) FROM assets WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(coldRoomRow(sqlmock.NewRows(assetCols), id, site, "1000", "700"))

		_, err := repo.ReserveCapacity(ctx, id, kg, now)
		var exceeded *domain.CapacityExceededError
		require.ErrorAs(t, err, &exceeded)
		assert.True(t, exceeded.AvailableKg.Equal(decimal.NewFromInt(300)))
		assert.Equal(t, domain.ErrorKindCapacityExceeded, domain.KindOf(err))
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(reserveSQL).WillReturnRows(sqlmock.NewRows(assetCols))
		mock.ExpectQuery("SELECT (.+) FROM assets WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(assetCols))

		_, err := repo.ReserveCapacity(ctx, id, decimal.NewFromInt(1), now)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestAssetRepository_ReleaseCapacity(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Assets
	ctx := context.Background()

	id, site := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE assets SET used_capacity_kg = used_capacity_kg - $1")).
		WillReturnRows(sqlmock.NewRows(assetCols))
	mock.ExpectQuery("SELECT (.+) FROM assets WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(coldRoomRow(sqlmock.NewRows(assetCols), id, site, "1000", "100"))

	_, err := repo.ReleaseCapacity(ctx, id, decimal.NewFromInt(150), time.Now())
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestAssetRepository_ListFilters(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Assets

	site := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id > $1 AND site_id = $2 AND asset_type = $3 ORDER BY id LIMIT $4")).
		WithArgs(uuid.Nil, site, domain.AssetTypeColdRoom, 50).
		WillReturnRows(coldRoomRow(sqlmock.NewRows(assetCols), uuid.New(), site, "10", "1"))

	assets, err := repo.List(context.Background(), domain.AssetFilter{SiteID: &site, Type: domain.AssetTypeColdRoom}, uuid.Nil, 50)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestStore_WithinTx(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('invoice_number_seq')")).
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))
		mock.ExpectCommit()

		var n int64
		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			var err error
			n, err = repos.Invoices.NextNumber(ctx)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		sentinel := domain.ValidationError("nope")
		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			return sentinel
		})
		assert.Equal(t, sentinel, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
