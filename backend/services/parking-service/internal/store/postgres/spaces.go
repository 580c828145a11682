package postgres

import (
	"context"
	"database/sql"
	"errors"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

const spaceColumns = `id, label, vehicle_class, state, session_id, sensor_channel, last_sensor_at, sensor_occupied`

// labelOrder mirrors models.LabelLess: letter prefix, then the number after it, then the label.
const labelOrder = `substring(label from '^[^0-9]*') COLLATE "C",
	COALESCE(substring(label from '^[^0-9]*([0-9]+)'), '0')::numeric,
	label COLLATE "C", id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpace(row rowScanner) (*models.ParkingSpace, error) {
	var (
		sp         models.ParkingSpace
		sessionID  sql.NullInt64
		lastSensor sql.NullTime
		occupied   sql.NullBool
	)
	if err := row.Scan(
		&sp.ID,
		&sp.Label,
		&sp.Class,
		&sp.State,
		&sessionID,
		&sp.SensorChannel,
		&lastSensor,
		&occupied,
	); err != nil {
		return nil, mapError(err)
	}
	if sessionID.Valid {
		sp.SessionID = &sessionID.Int64
	}
	if lastSensor.Valid {
		sp.LastSensorAt = &lastSensor.Time
	}
	if occupied.Valid {
		sp.SensorOccupied = &occupied.Bool
	}
	return &sp, nil
}

// AllocateSpace skips rows other transactions are holding, so racing entries get distinct spaces.
func (t *pgTx) AllocateSpace(ctx context.Context, class models.VehicleClass, sessionID int64) (*models.ParkingSpace, error) {
	const query = `
		UPDATE parking_spaces
		SET state = 'OCCUPIED', session_id = $2
		WHERE id = (
			SELECT id FROM parking_spaces
			WHERE vehicle_class = $1 AND state = 'AVAILABLE' AND session_id IS NULL
			ORDER BY ` + labelOrder + `
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + spaceColumns
	sp, err := scanSpace(t.tx.QueryRowContext(ctx, query, class, sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNoSpaceAvailable
	}
	return sp, err
}

func (t *pgTx) CountAssignable(ctx context.Context, class models.VehicleClass) (int64, error) {
	const query = `
		SELECT COUNT(*) FROM parking_spaces
		WHERE vehicle_class = $1 AND state = 'AVAILABLE' AND session_id IS NULL
	`
	var n int64
	if err := t.tx.QueryRowContext(ctx, query, class).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *pgTx) SpaceByID(ctx context.Context, id int64) (*models.ParkingSpace, error) {
	return scanSpace(t.tx.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM parking_spaces WHERE id = $1`, id))
}

func (t *pgTx) LockSpace(ctx context.Context, id int64) (*models.ParkingSpace, error) {
	return scanSpace(t.tx.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM parking_spaces WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) LockSpaceByChannel(ctx context.Context, channel int) (*models.ParkingSpace, error) {
	return scanSpace(t.tx.QueryRowContext(ctx,
		`SELECT `+spaceColumns+` FROM parking_spaces WHERE sensor_channel = $1 FOR UPDATE`, channel))
}

func (t *pgTx) UpdateSpace(ctx context.Context, space *models.ParkingSpace) error {
	const query = `
		UPDATE parking_spaces
		SET state = $2, session_id = $3, last_sensor_at = $4, sensor_occupied = $5
		WHERE id = $1
	`
	res, err := t.tx.ExecContext(ctx, query,
		space.ID,
		space.State,
		space.SessionID,
		space.LastSensorAt,
		space.SensorOccupied,
	)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *pgTx) ListSpaces(ctx context.Context) ([]models.ParkingSpace, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+spaceColumns+` FROM parking_spaces ORDER BY `+labelOrder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spaces []models.ParkingSpace
	for rows.Next() {
		sp, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, *sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return spaces, nil
}

func (t *pgTx) EnsureSpace(ctx context.Context, space *models.ParkingSpace) (bool, error) {
	const insert = `
		INSERT INTO parking_spaces (label, vehicle_class, state, sensor_channel)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (label) DO NOTHING
		RETURNING ` + spaceColumns
	state := space.State
	if state == "" {
		state = models.SpaceAvailable
	}
	sp, err := scanSpace(t.tx.QueryRowContext(ctx, insert, space.Label, space.Class, state, space.SensorChannel))
	if err == nil {
		*space = *sp
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	existing, err := scanSpace(t.tx.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM parking_spaces WHERE label = $1`, space.Label))
	if err != nil {
		return false, err
	}
	*space = *existing
	return false, nil
}
