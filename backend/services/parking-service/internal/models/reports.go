package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Occupant describes who holds a session-backed space.
type Occupant struct {
	SessionID int64     `json:"session_id"`
	FullName  string    `json:"full_name"`
	Plate     string    `json:"plate"`
	EntryAt   time.Time `json:"entry_at"`
}

// SpaceStatus is a space together with its current occupant, if any.
type SpaceStatus struct {
	ParkingSpace
	Occupant *Occupant `json:"occupant,omitempty"`
}

// SessionRecord is a session joined with account and vehicle details for history listings.
type SessionRecord struct {
	ParkingSession
	FullName   string       `json:"full_name"`
	Plate      string       `json:"plate"`
	Class      VehicleClass `json:"vehicle_class"`
	SpaceLabel *string      `json:"space_label,omitempty"`
}

// RechargeRecord is a confirmed recharge joined with the account holder.
type RechargeRecord struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	FullName    string          `json:"full_name"`
	Amount      decimal.Decimal `json:"amount"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// DailyCounts are the raw per-day aggregates read from the store.
type DailyCounts struct {
	Entries         int64
	Exits           int64
	Revenue         decimal.Decimal
	Recharges       int64
	RechargedAmount decimal.Decimal
	NewAccounts     int64
}

// SystemCounts are facility-wide totals.
type SystemCounts struct {
	Accounts        int64 `json:"accounts"`
	Vehicles        int64 `json:"vehicles"`
	ActiveSessions  int64 `json:"active_sessions"`
	OccupiedSpaces  int64 `json:"occupied_spaces"`
	AvailableSpaces int64 `json:"available_spaces"`
	TotalSpaces     int64 `json:"total_spaces"`
}
