package model

import "github.com/shopspring/decimal"

// CurrencyRecord is one quoted currency inside a Snapshot. RateValue is the
// price of UnitCount units, so callers wanting a per-unit price use UnitRate.
type CurrencyRecord struct {
	ID                string  `json:"ID"`
	NumericCode       string  `json:"NumCode"`
	Code              string  `json:"CharCode"`
	UnitCount         int     `json:"Nominal"`
	Name              string  `json:"Name"`
	RateValue         float64 `json:"Value"`
	PreviousRateValue float64 `json:"Previous"`
}

// UnitRate returns the price of a single unit of the currency.
func (r CurrencyRecord) UnitRate() float64 {
	if r.UnitCount <= 0 {
		return 0
	}
	unit := decimal.NewFromFloat(r.RateValue).Div(decimal.NewFromInt(int64(r.UnitCount)))
	return unit.InexactFloat64()
}

// Change returns the movement against the previous quote.
func (r CurrencyRecord) Change() float64 {
	return decimal.NewFromFloat(r.RateValue).Sub(decimal.NewFromFloat(r.PreviousRateValue)).InexactFloat64()
}

func (r CurrencyRecord) String() string {
	return r.Code
}
