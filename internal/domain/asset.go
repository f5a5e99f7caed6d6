package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AssetType string

const (
	AssetTypeColdRoom  AssetType = "COLD_ROOM"
	AssetTypeColdBox   AssetType = "COLD_BOX"
	AssetTypeColdPlate AssetType = "COLD_PLATE"
	AssetTypeTricycle  AssetType = "TRICYCLE"
)

func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeColdRoom, AssetTypeColdBox, AssetTypeColdPlate, AssetTypeTricycle:
		return true
	}
	return false
}

// Exclusive reports whether an asset of this type is held by at most one
// rental at a time. Cold rooms are shared and metered in kilograms instead.
func (t AssetType) Exclusive() bool {
	return t.Valid() && t != AssetTypeColdRoom
}

type AssetStatus string

const (
	AssetStatusAvailable   AssetStatus = "AVAILABLE"
	AssetStatusRented      AssetStatus = "RENTED"
	AssetStatusMaintenance AssetStatus = "MAINTENANCE"
	AssetStatusRetired     AssetStatus = "RETIRED"
)

func (s AssetStatus) Valid() bool {
	switch s {
	case AssetStatusAvailable, AssetStatusRented, AssetStatusMaintenance, AssetStatusRetired:
		return true
	}
	return false
}

type PowerType string

const (
	PowerTypeGrid   PowerType = "GRID"
	PowerTypeSolar  PowerType = "SOLAR"
	PowerTypeHybrid PowerType = "HYBRID"
)

func (p PowerType) Valid() bool {
	switch p {
	case PowerTypeGrid, PowerTypeSolar, PowerTypeHybrid:
		return true
	}
	return false
}

// Asset is the closed set of rentable things: *ColdRoom, *ColdBox, *ColdPlate
// and *Tricycle. Callers switch on the concrete type or on Type().
type Asset interface {
	Base() *AssetBase
	Type() AssetType
	Validate() error
	sealed()
}

// ExclusiveAsset is implemented by the variants that carry a binary status.
type ExclusiveAsset interface {
	Asset
	CurrentStatus() AssetStatus
	SetStatus(AssetStatus)
}

type AssetBase struct {
	ID        uuid.UUID `json:"id"`
	SiteID    uuid.UUID `json:"site_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *AssetBase) Base() *AssetBase { return b }

func (b *AssetBase) validate() error {
	if b.SiteID == uuid.Nil {
		return ValidationError("site_id is required")
	}
	return nil
}

type ColdRoom struct {
	AssetBase
	Name            string          `json:"name"`
	TotalCapacityKg decimal.Decimal `json:"total_capacity_kg"`
	UsedCapacityKg  decimal.Decimal `json:"used_capacity_kg"`
	TemperatureMin  *float64        `json:"temperature_min"`
	TemperatureMax  *float64        `json:"temperature_max"`
	PowerType       PowerType       `json:"power_type"`
}

func (*ColdRoom) Type() AssetType { return AssetTypeColdRoom }
func (*ColdRoom) sealed() {}

func (c *ColdRoom) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return ValidationError("cold room name is required")
	}
	if !c.TotalCapacityKg.IsPositive() {
		return ValidationError("total_capacity_kg must be positive")
	}
	if c.UsedCapacityKg.IsNegative() {
		return ValidationError("used_capacity_kg cannot be negative")
	}
	if err := CheckKg("total_capacity_kg", c.TotalCapacityKg); err != nil {
		return err
	}
	if c.TemperatureMin == nil {
		return ValidationError("temperature_min is required for a cold room")
	}
	if c.TemperatureMax == nil {
		return ValidationError("temperature_max is required for a cold room")
	}
	if *c.TemperatureMin > *c.TemperatureMax {
		return ValidationError("temperature_min (%.1f) exceeds temperature_max (%.1f)", *c.TemperatureMin, *c.TemperatureMax)
	}
	if !c.PowerType.Valid() {
		return ValidationError("power_type must be one of GRID, SOLAR, HYBRID")
	}
	return nil
}

// Occupancy projects the room's capacity counters. It is recomputed on every
// call and never stored.
func (c *ColdRoom) Occupancy() Occupancy {
	available := c.TotalCapacityKg.Sub(c.UsedCapacityKg)
	pct := decimal.Zero
	if c.TotalCapacityKg.IsPositive() {
		pct = c.UsedCapacityKg.Div(c.TotalCapacityKg).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return Occupancy{
		ColdRoomID:          c.ID,
		TotalKg:             c.TotalCapacityKg,
		UsedKg:              c.UsedCapacityKg,
		AvailableKg:         available,
		OccupancyPercentage: pct,
		CanAcceptMore:       available.IsPositive(),
	}
}

type Occupancy struct {
	ColdRoomID          uuid.UUID       `json:"cold_room_id"`
	TotalKg             decimal.Decimal `json:"total_kg"`
	UsedKg              decimal.Decimal `json:"used_kg"`
	AvailableKg         decimal.Decimal `json:"available_kg"`
	OccupancyPercentage decimal.Decimal `json:"occupancy_percentage"`
	CanAcceptMore       bool            `json:"can_accept_more"`
}

// unit is the shape shared by cold boxes and cold plates.
type unit struct {
	IdentificationNumber string      `json:"identification_number"`
	Size                 string      `json:"size"`
	CoolingSpec          string      `json:"cooling_spec"`
	Status               AssetStatus `json:"status"`
}

func (u *unit) checkUnit(kind string) error {
	if strings.TrimSpace(u.IdentificationNumber) == "" {
		return ValidationError("%s identification_number is required", kind)
	}
	if strings.TrimSpace(u.Size) == "" {
		return ValidationError("%s size is required", kind)
	}
	if u.Status != "" && !u.Status.Valid() {
		return ValidationError("unknown asset status %q", u.Status)
	}
	return nil
}

type ColdBox struct {
	AssetBase
	unit
}

func (*ColdBox) Type() AssetType { return AssetTypeColdBox }
func (*ColdBox) sealed() {}
func (b *ColdBox) CurrentStatus() AssetStatus { return b.Status }
func (b *ColdBox) SetStatus(s AssetStatus) { b.Status = s }
func (b *ColdBox) Validate() error {
	if err := b.AssetBase.validate(); err != nil {
		return err
	}
	return b.checkUnit("cold box")
}

type ColdPlate struct {
	AssetBase
	unit
}

func (*ColdPlate) Type() AssetType { return AssetTypeColdPlate }
func (*ColdPlate) sealed() {}
func (p *ColdPlate) CurrentStatus() AssetStatus { return p.Status }
func (p *ColdPlate) SetStatus(s AssetStatus) { p.Status = s }
func (p *ColdPlate) Validate() error {
	if err := p.AssetBase.validate(); err != nil {
		return err
	}
	return p.checkUnit("cold plate")
}

type Tricycle struct {
	AssetBase
	PlateNumber string      `json:"plate_number"`
	Capacity    string      `json:"capacity"`
	Category    string      `json:"category"`
	Status      AssetStatus `json:"status"`
}

func (*Tricycle) Type() AssetType { return AssetTypeTricycle }
func (*Tricycle) sealed() {}
func (t *Tricycle) CurrentStatus() AssetStatus { return t.Status }
func (t *Tricycle) SetStatus(s AssetStatus) { t.Status = s }
func (t *Tricycle) Validate() error {
	if err := t.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.PlateNumber) == "" {
		return ValidationError("tricycle plate_number is required")
	}
	if strings.TrimSpace(t.Capacity) == "" {
		return ValidationError("tricycle capacity is required")
	}
	if t.Status != "" && !t.Status.Valid() {
		return ValidationError("unknown asset status %q", t.Status)
	}
	return nil
}

// NewColdBox and NewColdPlate exist because the shared unit fields are unexported.
func NewColdBox(siteID uuid.UUID, identificationNumber, size, coolingSpec string) *ColdBox {
	return &ColdBox{
		AssetBase: AssetBase{SiteID: siteID},
		unit:      unit{IdentificationNumber: identificationNumber, Size: size, CoolingSpec: coolingSpec},
	}
}

func NewColdPlate(siteID uuid.UUID, identificationNumber, size, coolingSpec string) *ColdPlate {
	return &ColdPlate{
		AssetBase: AssetBase{SiteID: siteID},
		unit:      unit{IdentificationNumber: identificationNumber, Size: size, CoolingSpec: coolingSpec},
	}
}

// AssetFilter selects assets for discovery. Zero-valued fields match everything.
type AssetFilter struct {
	SiteID *uuid.UUID
	Type   AssetType
	Status AssetStatus
}

// Matches applies the filter in memory. Status only narrows exclusive assets;
// cold rooms have no status and never match a status filter.
func (f AssetFilter) Matches(a Asset) bool {
	if f.SiteID != nil && a.Base().SiteID != *f.SiteID {
		return false
	}
	if f.Type != "" && a.Type() != f.Type {
		return false
	}
	if f.Status != "" {
		ex, ok := a.(ExclusiveAsset)
		if !ok || ex.CurrentStatus() != f.Status {
			return false
		}
	}
	return true
}
