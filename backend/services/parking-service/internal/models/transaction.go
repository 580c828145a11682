package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProvisionalTransaction is a pending registration or recharge addressed by a one-time token.
// Only the token digest is persisted.
type ProvisionalTransaction struct {
	ID          int64            `json:"id"`
	AccountID   *int64           `json:"account_id,omitempty"`
	Kind        TransactionKind  `json:"kind"`
	Amount      decimal.Decimal  `json:"amount"`
	State       TransactionState `json:"state"`
	TokenHash   string           `json:"-"`
	RFID        *string          `json:"rfid,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ConfirmedAt *time.Time       `json:"confirmed_at,omitempty"`
}
