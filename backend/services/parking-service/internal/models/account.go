package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a registered customer with a prepaid balance and one credential.
type Account struct {
	ID           int64           `json:"id"`
	FullName     string          `json:"full_name"`
	NationalID   string          `json:"national_id"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Balance      decimal.Decimal `json:"balance"`
	RFID         string          `json:"rfid"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Vehicle belongs to exactly one account.
type Vehicle struct {
	ID        int64        `json:"id"`
	AccountID int64        `json:"account_id"`
	Plate     string       `json:"plate"`
	Class     VehicleClass `json:"vehicle_class"`
	Color     string       `json:"color"`
	Brand     string       `json:"brand"`
}
