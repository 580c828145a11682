package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

const accountColumns = `id, full_name, national_id, email, phone, balance, rfid, registered_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(
		&a.ID,
		&a.FullName,
		&a.NationalID,
		&a.Email,
		&a.Phone,
		&a.Balance,
		&a.RFID,
		&a.RegisteredAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

const vehicleColumns = `id, account_id, plate, vehicle_class, color, brand`

func scanVehicle(row *sql.Row) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := row.Scan(&v.ID, &v.AccountID, &v.Plate, &v.Class, &v.Color, &v.Brand); err != nil {
		return nil, mapError(err)
	}
	return &v, nil
}

func (t *pgTx) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (t *pgTx) AccountByRFID(ctx context.Context, rfid string) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE rfid = $1`, rfid))
}

func (t *pgTx) LockAccountByRFID(ctx context.Context, rfid string) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE rfid = $1 FOR UPDATE`, rfid))
}

func (t *pgTx) LockAccount(ctx context.Context, id int64) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) AccountByPlate(ctx context.Context, plate string) (*models.Account, *models.Vehicle, error) {
	v, err := scanVehicle(t.tx.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE UPPER(plate) = UPPER($1)`, plate))
	if err != nil {
		return nil, nil, err
	}
	a, err := t.AccountByID(ctx, v.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return a, v, nil
}

func (t *pgTx) FindIdentityConflict(ctx context.Context, claim store.IdentityClaim) (store.IdentityField, error) {
	const query = `
		SELECT field FROM (
			SELECT 1 AS ord, 'national_id' AS field FROM accounts WHERE $1 <> '' AND national_id = $1
			UNION ALL
			SELECT 2, 'email' FROM accounts WHERE $2 <> '' AND LOWER(email) = LOWER($2)
			UNION ALL
			SELECT 3, 'plate' FROM vehicles WHERE $3 <> '' AND UPPER(plate) = UPPER($3)
			UNION ALL
			SELECT 4, 'rfid' FROM accounts WHERE $4 <> '' AND rfid = $4
		) conflicts
		ORDER BY ord
		LIMIT 1
	`
	var field string
	err := t.tx.QueryRowContext(ctx, query, claim.NationalID, claim.Email, claim.Plate, claim.RFID).Scan(&field)
	if errors.Is(err, sql.ErrNoRows) {
		return store.IdentityNone, nil
	}
	if err != nil {
		return store.IdentityNone, err
	}
	return store.IdentityField(field), nil
}

func (t *pgTx) CreateAccount(ctx context.Context, account *models.Account) error {
	const query = `
		INSERT INTO accounts (full_name, national_id, email, phone, balance, rfid, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, query,
		account.FullName,
		account.NationalID,
		account.Email,
		account.Phone,
		account.Balance,
		account.RFID,
		account.RegisteredAt,
	).Scan(&account.ID)
	return mapError(err)
}

func (t *pgTx) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	const query = `
		INSERT INTO vehicles (account_id, plate, vehicle_class, color, brand)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, query,
		vehicle.AccountID,
		vehicle.Plate,
		vehicle.Class,
		vehicle.Color,
		vehicle.Brand,
	).Scan(&vehicle.ID)
	return mapError(err)
}

func (t *pgTx) VehicleForAccount(ctx context.Context, accountID int64) (*models.Vehicle, error) {
	return scanVehicle(t.tx.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE account_id = $1 ORDER BY id LIMIT 1`, accountID))
}

func (t *pgTx) VehicleByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	return scanVehicle(t.tx.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
}

// DebitBalance subtracts only when the balance covers the amount, in one statement.
func (t *pgTx) DebitBalance(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE accounts
		SET balance = balance - $2
		WHERE id = $1 AND balance >= $2
		RETURNING balance
	`
	var balance decimal.Decimal
	err := t.tx.QueryRowContext(ctx, query, accountID, amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := t.AccountByID(ctx, accountID); lookupErr != nil {
			return decimal.Zero, lookupErr
		}
		return decimal.Zero, store.ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	return balance, nil
}

func (t *pgTx) CreditBalance(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	const query = `UPDATE accounts SET balance = balance + $2 WHERE id = $1 RETURNING balance`
	var balance decimal.Decimal
	if err := t.tx.QueryRowContext(ctx, query, accountID, amount).Scan(&balance); err != nil {
		return decimal.Zero, mapError(err)
	}
	return balance, nil
}
