package domain

import "github.com/shopspring/decimal"

// Precision of stored weights and money. Values finer than this are rejected
// rather than rounded by the database.
const (
	KgPlaces    int32 = 3
	MoneyPlaces int32 = 2
)

func checkPlaces(field string, v decimal.Decimal, places int32) error {
	if !v.Equal(v.Truncate(places)) {
		return ValidationError("%s must have at most %d decimal places", field, places)
	}
	return nil
}

// CheckKg rejects weights finer than a gram.
func CheckKg(field string, v decimal.Decimal) error {
	return checkPlaces(field, v, KgPlaces)
}

// CheckMoney rejects amounts finer than the currency's minor unit.
func CheckMoney(field string, v decimal.Decimal) error {
	return checkPlaces(field, v, MoneyPlaces)
}

// LineAmount prices quantity at unitPrice, rounded half away from zero to the
// minor unit.
func LineAmount(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(MoneyPlaces)
}
