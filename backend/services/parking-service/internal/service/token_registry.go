package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

const maxIssueAttempts = 3

// TokenPolicy bounds how long a pending token stays redeemable. Zero disables expiry.
type TokenPolicy struct {
	RegistrationTTL time.Duration
	RechargeTTL     time.Duration
}

func (p TokenPolicy) ttl(kind models.TransactionKind) time.Duration {
	if kind == models.TransactionRegistration {
		return p.RegistrationTTL
	}
	return p.RechargeTTL
}

// IssueRequest describes a provisional transaction to open.
type IssueRequest struct {
	Kind      models.TransactionKind
	AccountID *int64
	RFID      *string
	Amount    decimal.Decimal
}

// IssuedToken pairs the raw token, shown once, with its stored transaction.
type IssuedToken struct {
	Token       string
	Transaction models.ProvisionalTransaction
}

// TokenRegistry issues and redeems single-use tokens. Only token digests are stored.
type TokenRegistry struct {
	clock    Clock
	policy   TokenPolicy
	generate func() string
}

// NewTokenRegistry returns registry.
func NewTokenRegistry(clock Clock, policy TokenPolicy) *TokenRegistry {
	return &TokenRegistry{clock: clock, policy: policy, generate: newToken}
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HashToken returns the hex BLAKE2b-256 digest stored in place of the token.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue opens a PENDING transaction under a fresh token. A REGISTRATION for a credential
// replaces any still-pending registration of that credential.
func (r *TokenRegistry) Issue(ctx context.Context, tx store.TransactionStore, req IssueRequest) (IssuedToken, error) {
	if req.Kind == models.TransactionRegistration && req.RFID != nil {
		if _, err := tx.DeletePendingRegistrations(ctx, *req.RFID); err != nil {
			return IssuedToken{}, fmt.Errorf("tokens: supersede registrations: %w", err)
		}
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token := r.generate()
		txn := models.ProvisionalTransaction{
			AccountID: req.AccountID,
			Kind:      req.Kind,
			Amount:    req.Amount,
			State:     models.TransactionPending,
			TokenHash: HashToken(token),
			RFID:      req.RFID,
			CreatedAt: r.clock.Now(),
		}
		err := tx.CreateTransaction(ctx, &txn)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return IssuedToken{}, fmt.Errorf("tokens: create: %w", err)
		}
		return IssuedToken{Token: token, Transaction: txn}, nil
	}
	return IssuedToken{}, fmt.Errorf("tokens: no unique token after %d attempts", maxIssueAttempts)
}

func (r *TokenRegistry) notBefore(kind models.TransactionKind, now time.Time) time.Time {
	ttl := r.policy.ttl(kind)
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(-ttl)
}

// Consume flips the matching PENDING transaction to CONFIRMED. Unknown, expired, wrong-kind
// and already-used tokens all yield ErrInvalidToken.
func (r *TokenRegistry) Consume(ctx context.Context, tx store.TransactionStore, token string, kind models.TransactionKind) (*models.ProvisionalTransaction, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	now := r.clock.Now()
	txn, err := tx.ConfirmTransaction(ctx, HashToken(token), kind, r.notBefore(kind, now), now)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("tokens: confirm: %w", err)
	}
	return txn, nil
}

// Peek reports whether the token could be consumed right now, without consuming it.
func (r *TokenRegistry) Peek(ctx context.Context, tx store.TransactionStore, token string, kind models.TransactionKind) (*models.ProvisionalTransaction, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	txn, err := tx.TransactionByHash(ctx, HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("tokens: lookup: %w", err)
	}
	if txn.Kind != kind || txn.State != models.TransactionPending {
		return nil, ErrInvalidToken
	}
	if cutoff := r.notBefore(kind, r.clock.Now()); !cutoff.IsZero() && txn.CreatedAt.Before(cutoff) {
		return nil, ErrInvalidToken
	}
	return txn, nil
}
