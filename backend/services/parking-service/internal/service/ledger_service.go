package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/store"
)

// LedgerService is the only writer of account balances.
type LedgerService struct{}

// NewLedgerService returns service.
func NewLedgerService() *LedgerService {
	return &LedgerService{}
}

// Charge debits amount if the balance covers it, otherwise returns store.ErrInsufficientBalance
// and leaves the balance untouched. A zero charge reports the current balance.
func (s *LedgerService) Charge(ctx context.Context, tx store.AccountStore, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: charge %s", ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		account, err := tx.AccountByID(ctx, accountID)
		if err != nil {
			return decimal.Zero, err
		}
		return account.Balance, nil
	}
	return tx.DebitBalance(ctx, accountID, amount)
}

// Credit adds a positive amount unconditionally.
func (s *LedgerService) Credit(ctx context.Context, tx store.AccountStore, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: credit %s", ErrInvalidAmount, amount)
	}
	return tx.CreditBalance(ctx, accountID, amount)
}
