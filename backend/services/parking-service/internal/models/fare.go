package models

import "github.com/shopspring/decimal"

// FareSchedule is the hourly rate and minimum fare of one vehicle class.
type FareSchedule struct {
	ID          int64           `json:"id"`
	Class       VehicleClass    `json:"vehicle_class"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	MinimumFare decimal.Decimal `json:"minimum_fare"`
	Active      bool            `json:"active"`
}
