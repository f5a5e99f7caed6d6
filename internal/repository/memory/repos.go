package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"coldchain-rental-core/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type assetRepository struct{ access }

func (r *assetRepository) Create(_ context.Context, a domain.Asset) error {
	return r.with(func(st *state) error {
		id := a.Base().ID
		if _, ok := st.assets[id]; ok {
			return domain.ConflictError("asset %s already exists", id)
		}
		st.assets[id] = cloneAsset(a)
		return nil
	})
}

func (r *assetRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Asset, error) {
	var out domain.Asset
	err := r.with(func(st *state) error {
		a, ok := st.assets[id]
		if !ok {
			return domain.NotFoundError("asset", id)
		}
		out = cloneAsset(a)
		return nil
	})
	return out, err
}

func (r *assetRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Asset, error) {
	return r.GetByID(ctx, id)
}

func (r *assetRepository) Update(_ context.Context, a domain.Asset) error {
	return r.with(func(st *state) error {
		id := a.Base().ID
		existing, ok := st.assets[id]
		if !ok {
			return domain.NotFoundError("asset", id)
		}
		next := cloneAsset(a)
		if room, ok := next.(*domain.ColdRoom); ok {
			room.UsedCapacityKg = existing.(*domain.ColdRoom).UsedCapacityKg
		}
		st.assets[id] = next
		return nil
	})
}

func (r *assetRepository) List(_ context.Context, filter domain.AssetFilter, after uuid.UUID, limit int) ([]domain.Asset, error) {
	var out []domain.Asset
	err := r.with(func(st *state) error {
		for _, a := range st.assets {
			if compareIDs(a.Base().ID, after) > 0 && filter.Matches(a) {
				out = append(out, cloneAsset(a))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Asset) int { return compareIDs(a.Base().ID, b.Base().ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func coldRoom(st *state, id uuid.UUID) (*domain.ColdRoom, error) {
	room, ok := st.assets[id].(*domain.ColdRoom)
	if !ok {
		return nil, domain.NotFoundError("cold room", id)
	}
	return room, nil
}

func (r *assetRepository) ReserveCapacity(_ context.Context, id uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error) {
	var out *domain.ColdRoom
	err := r.with(func(st *state) error {
		room, err := coldRoom(st, id)
		if err != nil {
			return err
		}
		available := room.TotalCapacityKg.Sub(room.UsedCapacityKg)
		if kg.GreaterThan(available) {
			return &domain.CapacityExceededError{ColdRoomID: id.String(), RequestedKg: kg, AvailableKg: available}
		}
		room.UsedCapacityKg = room.UsedCapacityKg.Add(kg)
		room.UpdatedAt = now
		out = cloneAsset(room).(*domain.ColdRoom)
		return nil
	})
	return out, err
}

func (r *assetRepository) ReleaseCapacity(_ context.Context, id uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error) {
	var out *domain.ColdRoom
	err := r.with(func(st *state) error {
		room, err := coldRoom(st, id)
		if err != nil {
			return err
		}
		if kg.GreaterThan(room.UsedCapacityKg) {
			return domain.ValidationError("cannot release %s kg from cold room %s holding %s kg",
				kg.String(), id, room.UsedCapacityKg.String())
		}
		room.UsedCapacityKg = room.UsedCapacityKg.Sub(kg)
		room.UpdatedAt = now
		out = cloneAsset(room).(*domain.ColdRoom)
		return nil
	})
	return out, err
}

type rentalRepository struct{ access }

func (r *rentalRepository) Create(_ context.Context, rt *domain.Rental) error {
	return r.with(func(st *state) error {
		if _, ok := st.rentals[rt.ID]; ok {
			return domain.ConflictError("rental %s already exists", rt.ID)
		}
		st.rentals[rt.ID] = *rt
		return nil
	})
}

func (r *rentalRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Rental, error) {
	var out domain.Rental
	err := r.with(func(st *state) error {
		rt, ok := st.rentals[id]
		if !ok {
			return domain.NotFoundError("rental", id)
		}
		out = rt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *rentalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return r.GetByID(ctx, id)
}

func (r *rentalRepository) Update(_ context.Context, rt *domain.Rental) error {
	return r.with(func(st *state) error {
		existing, ok := st.rentals[rt.ID]
		if !ok {
			return domain.NotFoundError("rental", rt.ID)
		}
		existing.Status = rt.Status
		existing.InvoiceID = rt.InvoiceID
		existing.UpdatedAt = rt.UpdatedAt
		st.rentals[rt.ID] = existing
		return nil
	})
}

func (r *rentalRepository) collect(match func(domain.Rental) bool) []domain.Rental {
	var out []domain.Rental
	_ = r.with(func(st *state) error {
		for _, rt := range st.rentals {
			if match(rt) {
				out = append(out, rt)
			}
		}
		return nil
	})
	return out
}

func (r *rentalRepository) ListClaims(_ context.Context, assetID uuid.UUID) ([]domain.Rental, error) {
	out := r.collect(func(rt domain.Rental) bool {
		return rt.AssetID == assetID && rt.Status.HoldsClaim()
	})
	slices.SortFunc(out, func(a, b domain.Rental) int { return a.RentalStartDate.Compare(b.RentalStartDate) })
	return out, nil
}

func (r *rentalRepository) List(_ context.Context, filter domain.RentalFilter) ([]domain.Rental, int32, error) {
	filter.Normalize()
	out := r.collect(func(rt domain.Rental) bool {
		if filter.ClientID != nil && rt.ClientID != *filter.ClientID {
			return false
		}
		return filter.Status == "" || rt.Status == filter.Status
	})
	slices.SortFunc(out, func(a, b domain.Rental) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, filter.Page, filter.Limit), int32(len(out)), nil
}

func (r *rentalRepository) ListExpired(_ context.Context, cutoff time.Time, limit int) ([]domain.Rental, error) {
	out := r.collect(func(rt domain.Rental) bool {
		pending := rt.Status == domain.RentalStatusRequested || rt.Status == domain.RentalStatusApproved
		return pending && rt.RentalEndDate.Before(cutoff)
	})
	slices.SortFunc(out, func(a, b domain.Rental) int { return a.RentalEndDate.Compare(b.RentalEndDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type productRepository struct{ access }

func (r *productRepository) Create(_ context.Context, p *domain.Product) error {
	return r.with(func(st *state) error {
		if _, ok := st.products[p.ID]; ok {
			return domain.ConflictError("product %s already exists", p.ID)
		}
		st.products[p.ID] = *p
		return nil
	})
}

func (r *productRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	var out domain.Product
	err := r.with(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NotFoundError("product", id)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *productRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *productRepository) UpdateQuantity(_ context.Context, p *domain.Product) error {
	return r.with(func(st *state) error {
		existing, ok := st.products[p.ID]
		if !ok {
			return domain.NotFoundError("product", p.ID)
		}
		existing.QuantityKg = p.QuantityKg
		existing.UpdatedAt = p.UpdatedAt
		st.products[p.ID] = existing
		return nil
	})
}

func (r *productRepository) AppendMovement(_ context.Context, m *domain.StockMovement) error {
	return r.with(func(st *state) error {
		if _, ok := st.products[m.ProductID]; !ok {
			return domain.NotFoundError("product", m.ProductID)
		}
		st.movements[m.ProductID] = append(st.movements[m.ProductID], *m)
		return nil
	})
}

func (r *productRepository) ListMovements(_ context.Context, productID uuid.UUID) ([]domain.StockMovement, error) {
	var out []domain.StockMovement
	err := r.with(func(st *state) error {
		out = slices.Clone(st.movements[productID])
		return nil
	})
	return out, err
}

type orderRepository struct{ access }

func (r *orderRepository) Create(_ context.Context, o *domain.Order) error {
	return r.with(func(st *state) error {
		if _, ok := st.orders[o.ID]; ok {
			return domain.ConflictError("order %s already exists", o.ID)
		}
		stored := *o
		stored.Items = slices.Clone(o.Items)
		st.orders[o.ID] = stored
		return nil
	})
}

func (r *orderRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	var out domain.Order
	err := r.with(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.NotFoundError("order", id)
		}
		out = o
		out.Items = slices.Clone(o.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepository) Update(_ context.Context, o *domain.Order) error {
	return r.with(func(st *state) error {
		existing, ok := st.orders[o.ID]
		if !ok {
			return domain.NotFoundError("order", o.ID)
		}
		existing.Status = o.Status
		existing.TotalAmount = o.TotalAmount
		existing.InvoiceID = o.InvoiceID
		existing.UpdatedAt = o.UpdatedAt
		st.orders[o.ID] = existing
		return nil
	})
}

type invoiceRepository struct{ access }

func (r *invoiceRepository) NextNumber(_ context.Context) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		st.invoiceSeq++
		n = st.invoiceSeq
		return nil
	})
	return n, err
}

func (r *invoiceRepository) Create(_ context.Context, inv *domain.Invoice) error {
	return r.with(func(st *state) error {
		if _, ok := st.invoices[inv.ID]; ok {
			return domain.ConflictError("invoice %s already exists", inv.ID)
		}
		for _, other := range st.invoices {
			if other.InvoiceNumber == inv.InvoiceNumber {
				return domain.ConflictError("invoice number %s already exists", inv.InvoiceNumber)
			}
		}
		stored := *inv
		stored.Items = slices.Clone(inv.Items)
		st.invoices[inv.ID] = stored
		return nil
	})
}

func (r *invoiceRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Invoice, error) {
	var out domain.Invoice
	err := r.with(func(st *state) error {
		inv, ok := st.invoices[id]
		if !ok {
			return domain.NotFoundError("invoice", id)
		}
		out = inv
		out.Items = slices.Clone(inv.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *invoiceRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *invoiceRepository) Update(_ context.Context, inv *domain.Invoice) error {
	return r.with(func(st *state) error {
		existing, ok := st.invoices[inv.ID]
		if !ok {
			return domain.NotFoundError("invoice", inv.ID)
		}
		existing.PaidAmount = inv.PaidAmount
		existing.Status = inv.Status
		existing.UpdatedAt = inv.UpdatedAt
		st.invoices[inv.ID] = existing
		return nil
	})
}

func (r *invoiceRepository) List(_ context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, int32, error) {
	var out []domain.Invoice
	_ = r.with(func(st *state) error {
		for _, inv := range st.invoices {
			if filter.ClientID != nil && inv.ClientID != *filter.ClientID {
				continue
			}
			if filter.Status != "" && inv.Status != filter.Status {
				continue
			}
			inv.Items = nil
			out = append(out, inv)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Invoice) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.InvoiceNumber, a.InvoiceNumber)
	})
	return page(out, filter.Page, filter.Limit), int32(len(out)), nil
}

type paymentRepository struct{ access }

func (r *paymentRepository) Create(_ context.Context, p *domain.Payment) error {
	return r.with(func(st *state) error {
		if _, ok := st.payments[p.ID]; ok {
			return domain.ConflictError("payment %s already exists", p.ID)
		}
		for _, other := range st.payments {
			if other.ProviderReference == p.ProviderReference {
				return domain.ConflictError("provider reference %s already used", p.ProviderReference)
			}
		}
		st.payments[p.ID] = *p
		return nil
	})
}

func (r *paymentRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	var out domain.Payment
	err := r.with(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.NotFoundError("payment", id)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *paymentRepository) GetByReferenceForUpdate(_ context.Context, ref string) (*domain.Payment, error) {
	var out *domain.Payment
	err := r.with(func(st *state) error {
		for _, p := range st.payments {
			if p.ProviderReference == ref {
				out = &p
				return nil
			}
		}
		return domain.NotFoundError("payment with reference", ref)
	})
	return out, err
}

func (r *paymentRepository) Update(_ context.Context, p *domain.Payment) error {
	return r.with(func(st *state) error {
		existing, ok := st.payments[p.ID]
		if !ok {
			return domain.NotFoundError("payment", p.ID)
		}
		existing.Status = p.Status
		existing.FailureReason = p.FailureReason
		existing.UpdatedAt = p.UpdatedAt
		st.payments[p.ID] = existing
		return nil
	})
}

func (r *paymentRepository) SumPending(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.with(func(st *state) error {
		for _, p := range st.payments {
			if p.InvoiceID == invoiceID && p.Status == domain.PaymentStatusPending {
				sum = sum.Add(p.Amount)
			}
		}
		return nil
	})
	return sum, err
}

func (r *paymentRepository) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	_ = r.with(func(st *state) error {
		for _, p := range st.payments {
			if p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
