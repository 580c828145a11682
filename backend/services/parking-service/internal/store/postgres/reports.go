package postgres

import (
	"context"
	"time"

	"smartparking/backend/services/parking-service/internal/models"
)

func (t *pgTx) ActiveFare(ctx context.Context, class models.VehicleClass) (*models.FareSchedule, error) {
	const query = `
		SELECT id, vehicle_class, hourly_rate, minimum_fare, active
		FROM fare_schedules
		WHERE vehicle_class = $1 AND active
	`
	var f models.FareSchedule
	if err := t.tx.QueryRowContext(ctx, query, class).Scan(
		&f.ID,
		&f.Class,
		&f.HourlyRate,
		&f.MinimumFare,
		&f.Active,
	); err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (t *pgTx) EnsureFare(ctx context.Context, fare *models.FareSchedule) (bool, error) {
	const insert = `
		INSERT INTO fare_schedules (vehicle_class, hourly_rate, minimum_fare, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (vehicle_class) WHERE active DO NOTHING
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, insert, fare.Class, fare.HourlyRate, fare.MinimumFare).Scan(&fare.ID)
	if err == nil {
		fare.Active = true
		return true, nil
	}
	existing, lookupErr := t.ActiveFare(ctx, fare.Class)
	if lookupErr != nil {
		return false, mapError(err)
	}
	*fare = *existing
	return false, nil
}

func (t *pgTx) DailyCounts(ctx context.Context, from, to time.Time) (models.DailyCounts, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM parking_sessions WHERE entry_at >= $1 AND entry_at < $2),
			(SELECT COUNT(*) FROM parking_sessions WHERE state = 'FINALIZED' AND exit_at >= $1 AND exit_at < $2),
			(SELECT COALESCE(SUM(amount_charged), 0) FROM parking_sessions WHERE state = 'FINALIZED' AND exit_at >= $1 AND exit_at < $2),
			(SELECT COUNT(*) FROM provisional_transactions WHERE kind = 'RECHARGE' AND state = 'CONFIRMED' AND confirmed_at >= $1 AND confirmed_at < $2),
			(SELECT COALESCE(SUM(amount), 0) FROM provisional_transactions WHERE kind = 'RECHARGE' AND state = 'CONFIRMED' AND confirmed_at >= $1 AND confirmed_at < $2),
			(SELECT COUNT(*) FROM accounts WHERE registered_at >= $1 AND registered_at < $2)
	`
	var c models.DailyCounts
	err := t.tx.QueryRowContext(ctx, query, from, to).Scan(
		&c.Entries,
		&c.Exits,
		&c.Revenue,
		&c.Recharges,
		&c.RechargedAmount,
		&c.NewAccounts,
	)
	return c, err
}

func (t *pgTx) SystemCounts(ctx context.Context) (models.SystemCounts, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM vehicles),
			(SELECT COUNT(*) FROM parking_sessions WHERE state = 'ACTIVE'),
			(SELECT COUNT(*) FROM parking_spaces WHERE state = 'OCCUPIED'),
			(SELECT COUNT(*) FROM parking_spaces WHERE state = 'AVAILABLE'),
			(SELECT COUNT(*) FROM parking_spaces)
	`
	var c models.SystemCounts
	err := t.tx.QueryRowContext(ctx, query).Scan(
		&c.Accounts,
		&c.Vehicles,
		&c.ActiveSessions,
		&c.OccupiedSpaces,
		&c.AvailableSpaces,
		&c.TotalSpaces,
	)
	return c, err
}
