package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

const sessionColumns = `s.id, s.account_id, s.vehicle_id, s.space_id, s.entry_at, s.exit_at, s.state,
	s.amount_charged, s.duration_label, s.hourly_rate, s.minimum_fare`

type sessionScan struct {
	ps      models.ParkingSession
	spaceID sql.NullInt64
	exitAt  sql.NullTime
	amount  decimal.NullDecimal
	label   sql.NullString
	rate    decimal.NullDecimal
	minimum decimal.NullDecimal
}

func (s *sessionScan) dest() []any {
	return []any{
		&s.ps.ID,
		&s.ps.AccountID,
		&s.ps.VehicleID,
		&s.spaceID,
		&s.ps.EntryAt,
		&s.exitAt,
		&s.ps.State,
		&s.amount,
		&s.label,
		&s.rate,
		&s.minimum,
	}
}

func (s *sessionScan) session() models.ParkingSession {
	ps := s.ps
	if s.spaceID.Valid {
		id := s.spaceID.Int64
		ps.SpaceID = &id
	}
	if s.exitAt.Valid {
		at := s.exitAt.Time
		ps.ExitAt = &at
	}
	if s.amount.Valid {
		amount := s.amount.Decimal
		ps.AmountCharged = &amount
	}
	if s.label.Valid {
		label := s.label.String
		ps.DurationLabel = &label
	}
	if s.rate.Valid {
		rate := s.rate.Decimal
		ps.HourlyRate = &rate
	}
	if s.minimum.Valid {
		minimum := s.minimum.Decimal
		ps.MinimumFare = &minimum
	}
	return ps
}

func scanSession(row rowScanner) (*models.ParkingSession, error) {
	var s sessionScan
	if err := row.Scan(s.dest()...); err != nil {
		return nil, mapError(err)
	}
	ps := s.session()
	return &ps, nil
}

func (t *pgTx) CreateSession(ctx context.Context, session *models.ParkingSession) error {
	const query = `
		INSERT INTO parking_sessions (account_id, vehicle_id, space_id, entry_at, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, query,
		session.AccountID,
		session.VehicleID,
		session.SpaceID,
		session.EntryAt,
		session.State,
	).Scan(&session.ID)
	return mapError(err)
}

func (t *pgTx) SetSessionSpace(ctx context.Context, sessionID, spaceID int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE parking_sessions SET space_id = $2 WHERE id = $1`, sessionID, spaceID)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *pgTx) SessionByID(ctx context.Context, id int64) (*models.ParkingSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM parking_sessions s WHERE s.id = $1`, id))
}

func (t *pgTx) ActiveSessionForAccount(ctx context.Context, accountID int64) (*models.ParkingSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM parking_sessions s WHERE s.account_id = $1 AND s.state = 'ACTIVE'`, accountID))
}

func (t *pgTx) ActiveSessionForSpace(ctx context.Context, spaceID int64) (*models.ParkingSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM parking_sessions s WHERE s.space_id = $1 AND s.state = 'ACTIVE'`, spaceID))
}

func (t *pgTx) FinalizeSession(ctx context.Context, sessionID int64, fin models.SessionFinalization) error {
	const query = `
		UPDATE parking_sessions
		SET state = 'FINALIZED', exit_at = $2, amount_charged = $3, duration_label = $4,
			hourly_rate = $5, minimum_fare = $6
		WHERE id = $1 AND state = 'ACTIVE'
	`
	res, err := t.tx.ExecContext(ctx, query, sessionID,
		fin.ExitAt,
		fin.AmountCharged,
		fin.DurationLabel,
		fin.HourlyRate,
		fin.MinimumFare,
	)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *pgTx) LatestFinalizedSessionByPlate(ctx context.Context, plate string) (*models.ParkingSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM parking_sessions s
		JOIN vehicles v ON v.id = s.vehicle_id
		WHERE UPPER(v.plate) = UPPER($1) AND s.state = 'FINALIZED'
		ORDER BY s.exit_at DESC, s.id DESC
		LIMIT 1
	`
	return scanSession(t.tx.QueryRowContext(ctx, query, plate))
}

func (t *pgTx) ListSessions(ctx context.Context, q store.SessionQuery) ([]models.SessionRecord, error) {
	const query = `
		SELECT ` + sessionColumns + `, a.full_name, v.plate, v.vehicle_class, sp.label
		FROM parking_sessions s
		JOIN accounts a ON a.id = s.account_id
		JOIN vehicles v ON v.id = s.vehicle_id
		LEFT JOIN parking_spaces sp ON sp.id = s.space_id
		WHERE ($1 = '' OR UPPER(v.plate) = UPPER($1))
		ORDER BY s.entry_at DESC, s.id DESC
		LIMIT $2
	`
	rows, err := t.tx.QueryContext(ctx, query, q.Plate, limitOrDefault(q.Limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.SessionRecord, 0)
	for rows.Next() {
		var (
			s     sessionScan
			rec   models.SessionRecord
			label sql.NullString
		)
		dest := append(s.dest(), &rec.FullName, &rec.Plate, &rec.Class, &label)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec.ParkingSession = s.session()
		if label.Valid {
			rec.SpaceLabel = &label.String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (t *pgTx) OccupantsBySpace(ctx context.Context) (map[int64]models.Occupant, error) {
	const query = `
		SELECT s.space_id, s.id, a.full_name, v.plate, s.entry_at
		FROM parking_sessions s
		JOIN accounts a ON a.id = s.account_id
		JOIN vehicles v ON v.id = s.vehicle_id
		WHERE s.state = 'ACTIVE' AND s.space_id IS NOT NULL
	`
	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]models.Occupant)
	for rows.Next() {
		var (
			spaceID int64
			occ     models.Occupant
		)
		if err := rows.Scan(&spaceID, &occ.SessionID, &occ.FullName, &occ.Plate, &occ.EntryAt); err != nil {
			return nil, err
		}
		out[spaceID] = occ
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
