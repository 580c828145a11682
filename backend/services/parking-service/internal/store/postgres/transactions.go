package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

const txnColumns = `id, account_id, kind, amount, state, token_hash, rfid, created_at, confirmed_at`

func scanTxn(row rowScanner) (*models.ProvisionalTransaction, error) {
	var (
		pt          models.ProvisionalTransaction
		accountID   sql.NullInt64
		rfid        sql.NullString
		confirmedAt sql.NullTime
	)
	if err := row.Scan(
		&pt.ID,
		&accountID,
		&pt.Kind,
		&pt.Amount,
		&pt.State,
		&pt.TokenHash,
		&rfid,
		&pt.CreatedAt,
		&confirmedAt,
	); err != nil {
		return nil, mapError(err)
	}
	if accountID.Valid {
		pt.AccountID = &accountID.Int64
	}
	if rfid.Valid {
		pt.RFID = &rfid.String
	}
	if confirmedAt.Valid {
		pt.ConfirmedAt = &confirmedAt.Time
	}
	return &pt, nil
}

// CreateTransaction uses ON CONFLICT so a hash collision does not abort the surrounding transaction.
func (t *pgTx) CreateTransaction(ctx context.Context, txn *models.ProvisionalTransaction) error {
	const query = `
		INSERT INTO provisional_transactions (account_id, kind, amount, state, token_hash, rfid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token_hash) DO NOTHING
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, query,
		txn.AccountID,
		txn.Kind,
		txn.Amount,
		txn.State,
		txn.TokenHash,
		txn.RFID,
		txn.CreatedAt,
	).Scan(&txn.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrDuplicate
	}
	return mapError(err)
}

// LockCredential takes a transaction-scoped advisory lock keyed by the credential, since an
// unregistered card has no row to lock.
func (t *pgTx) LockCredential(ctx context.Context, rfid string) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('rfid:' || $1))`, rfid)
	return err
}

func (t *pgTx) DeletePendingRegistrations(ctx context.Context, rfid string) (int64, error) {
	const query = `
		DELETE FROM provisional_transactions
		WHERE rfid = $1 AND kind = 'REGISTRATION' AND state = 'PENDING'
	`
	res, err := t.tx.ExecContext(ctx, query, rfid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *pgTx) ConfirmTransaction(ctx context.Context, tokenHash string, kind models.TransactionKind, notBefore, confirmedAt time.Time) (*models.ProvisionalTransaction, error) {
	const query = `
		UPDATE provisional_transactions
		SET state = 'CONFIRMED', confirmed_at = $4
		WHERE token_hash = $1 AND kind = $2 AND state = 'PENDING'
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		RETURNING ` + txnColumns
	var cutoff *time.Time
	if !notBefore.IsZero() {
		cutoff = &notBefore
	}
	return scanTxn(t.tx.QueryRowContext(ctx, query, tokenHash, kind, cutoff, confirmedAt))
}

func (t *pgTx) TransactionByHash(ctx context.Context, tokenHash string) (*models.ProvisionalTransaction, error) {
	return scanTxn(t.tx.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM provisional_transactions WHERE token_hash = $1`, tokenHash))
}

func (t *pgTx) BindTransactionAccount(ctx context.Context, id, accountID int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE provisional_transactions SET account_id = $2 WHERE id = $1`, id, accountID)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *pgTx) SetTransactionAmount(ctx context.Context, id int64, amount decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE provisional_transactions SET amount = $2 WHERE id = $1`, id, amount)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *pgTx) ListRecharges(ctx context.Context, q store.RechargeQuery) ([]models.RechargeRecord, error) {
	const query = `
		SELECT p.id, p.account_id, a.full_name, p.amount, p.confirmed_at
		FROM provisional_transactions p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.kind = 'RECHARGE' AND p.state = 'CONFIRMED'
		  AND ($1::bigint IS NULL OR p.account_id = $1)
		ORDER BY p.confirmed_at DESC, p.id DESC
		LIMIT $2
	`
	rows, err := t.tx.QueryContext(ctx, query, q.AccountID, limitOrDefault(q.Limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.RechargeRecord, 0)
	for rows.Next() {
		var r models.RechargeRecord
		if err := rows.Scan(&r.ID, &r.AccountID, &r.FullName, &r.Amount, &r.ConfirmedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
