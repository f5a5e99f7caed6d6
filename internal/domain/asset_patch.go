package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetPatch is a partial update. Nil fields are left untouched; a non-nil
// field that does not belong to the target variant is rejected.
type AssetPatch struct {
	SiteID *uuid.UUID `json:"site_id,omitempty"`

	Name            *string          `json:"name,omitempty"`
	TotalCapacityKg *decimal.Decimal `json:"total_capacity_kg,omitempty"`
	TemperatureMin  *float64         `json:"temperature_min,omitempty"`
	TemperatureMax  *float64         `json:"temperature_max,omitempty"`
	PowerType       *PowerType       `json:"power_type,omitempty"`

	IdentificationNumber *string `json:"identification_number,omitempty"`
	Size                 *string `json:"size,omitempty"`
	CoolingSpec          *string `json:"cooling_spec,omitempty"`

	PlateNumber *string `json:"plate_number,omitempty"`
	Capacity    *string `json:"capacity,omitempty"`
	Category    *string `json:"category,omitempty"`

	Status *AssetStatus `json:"status,omitempty"`
}

func (p AssetPatch) hasColdRoomFields() bool {
	return p.Name != nil || p.TotalCapacityKg != nil || p.TemperatureMin != nil || p.TemperatureMax != nil || p.PowerType != nil
}

func (p AssetPatch) hasUnitFields() bool {
	return p.IdentificationNumber != nil || p.Size != nil || p.CoolingSpec != nil
}

func (p AssetPatch) hasTricycleFields() bool {
	return p.PlateNumber != nil || p.Capacity != nil || p.Category != nil
}

// ApplyTo mutates a in place and re-validates it. Status may only move
// between AVAILABLE and MAINTENANCE here: RENTED belongs to the rental
// lifecycle and RETIRED to retirement.
func (p AssetPatch) ApplyTo(a Asset) error {
	if p.SiteID != nil {
		a.Base().SiteID = *p.SiteID
	}

	switch v := a.(type) {
	case *ColdRoom:
		if p.hasUnitFields() || p.hasTricycleFields() || p.Status != nil {
			return ValidationError("patch contains fields that do not apply to a cold room")
		}
		if p.Name != nil {
			v.Name = *p.Name
		}
		if p.TotalCapacityKg != nil {
			v.TotalCapacityKg = *p.TotalCapacityKg
		}
		if p.TemperatureMin != nil {
			t := *p.TemperatureMin
			v.TemperatureMin = &t
		}
		if p.TemperatureMax != nil {
			t := *p.TemperatureMax
			v.TemperatureMax = &t
		}
		if p.PowerType != nil {
			v.PowerType = *p.PowerType
		}
	case *ColdBox, *ColdPlate:
		if p.hasColdRoomFields() || p.hasTricycleFields() {
			return ValidationError("patch contains fields that do not apply to a %s", a.Type())
		}
		var u *unit
		if box, ok := v.(*ColdBox); ok {
			u = &box.unit
		} else {
			u = &v.(*ColdPlate).unit
		}
		if p.IdentificationNumber != nil {
			u.IdentificationNumber = *p.IdentificationNumber
		}
		if p.Size != nil {
			u.Size = *p.Size
		}
		if p.CoolingSpec != nil {
			u.CoolingSpec = *p.CoolingSpec
		}
	case *Tricycle:
		if p.hasColdRoomFields() || p.hasUnitFields() {
			return ValidationError("patch contains fields that do not apply to a tricycle")
		}
		if p.PlateNumber != nil {
			v.PlateNumber = *p.PlateNumber
		}
		if p.Capacity != nil {
			v.Capacity = *p.Capacity
		}
		if p.Category != nil {
			v.Category = *p.Category
		}
	}

	if p.Status != nil {
		ex := a.(ExclusiveAsset)
		if err := checkManualStatusChange(ex.CurrentStatus(), *p.Status); err != nil {
			return err
		}
		ex.SetStatus(*p.Status)
	}

	return a.Validate()
}

func checkManualStatusChange(from, to AssetStatus) error {
	if from == to {
		return nil
	}
	switch {
	case from == AssetStatusAvailable && to == AssetStatusMaintenance,
		from == AssetStatusMaintenance && to == AssetStatusAvailable:
		return nil
	case to == AssetStatusRented || to == AssetStatusRetired:
		return ValidationError("status %s cannot be set by an update", to)
	default:
		return InvalidStateError("asset status cannot change from %s to %s", from, to)
	}
}
