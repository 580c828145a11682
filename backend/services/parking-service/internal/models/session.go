package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParkingSession records one visit from entry to exit.
type ParkingSession struct {
	ID            int64            `json:"id"`
	AccountID     int64            `json:"account_id"`
	VehicleID     int64            `json:"vehicle_id"`
	SpaceID       *int64           `json:"space_id,omitempty"`
	EntryAt       time.Time        `json:"entry_at"`
	ExitAt        *time.Time       `json:"exit_at,omitempty"`
	State         SessionState     `json:"state"`
	AmountCharged *decimal.Decimal `json:"amount_charged,omitempty"`
	DurationLabel *string          `json:"duration_label,omitempty"`
	// HourlyRate and MinimumFare are the fare terms the session was charged under.
	HourlyRate  *decimal.Decimal `json:"hourly_rate,omitempty"`
	MinimumFare *decimal.Decimal `json:"minimum_fare,omitempty"`
}

// SessionFinalization carries the values written when a session closes.
type SessionFinalization struct {
	ExitAt        time.Time
	AmountCharged decimal.Decimal
	DurationLabel string
	HourlyRate    decimal.Decimal
	MinimumFare   decimal.Decimal
}
