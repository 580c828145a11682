package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"smartparking/backend/libs/money"
	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryFilter narrows session history.
type HistoryFilter struct {
	Plate string
	Limit int
}

// RechargeFilter narrows recharge history.
type RechargeFilter struct {
	AccountID *int64
	Limit     int
}

// AccountSummary is an account with its vehicle and current session, if any.
type AccountSummary struct {
	Account       models.Account         `json:"account"`
	Vehicle       models.Vehicle         `json:"vehicle"`
	ActiveSession *models.ParkingSession `json:"active_session,omitempty"`
	SpaceLabel    string                 `json:"space_label,omitempty"`
}

// DailyStats are the counters of one calendar day in the facility time zone.
type DailyStats struct {
	Date             string          `json:"date"`
	Entries          int64           `json:"entries"`
	Exits            int64           `json:"exits"`
	Revenue          decimal.Decimal `json:"revenue"`
	Recharges        int64           `json:"recharges"`
	RechargedAmount  decimal.Decimal `json:"recharged_amount"`
	NewAccounts      int64           `json:"new_accounts"`
	OccupiedSpaces   int64           `json:"occupied_spaces"`
	AvailableSpaces  int64           `json:"available_spaces"`
	TotalSpaces      int64           `json:"total_spaces"`
	OccupancyPercent decimal.Decimal `json:"occupancy_percent"`
}

// Receipt is the printable summary of a finalized session.
type Receipt struct {
	SessionID     int64               `json:"session_id"`
	FullName      string              `json:"full_name"`
	NationalID    string              `json:"national_id"`
	Plate         string              `json:"plate"`
	Class         models.VehicleClass `json:"vehicle_class"`
	Brand         string              `json:"brand"`
	Color         string              `json:"color"`
	SpaceLabel    string              `json:"space_label,omitempty"`
	EntryAt       time.Time           `json:"entry_at"`
	ExitAt        time.Time           `json:"exit_at"`
	DurationLabel string              `json:"duration_label"`
	BilledHours   decimal.Decimal     `json:"billed_hours"`
	HourlyRate    decimal.Decimal     `json:"hourly_rate"`
	MinimumFare   decimal.Decimal     `json:"minimum_fare"`
	AmountCharged decimal.Decimal     `json:"amount_charged"`
}

// ReportService answers read-only queries.
type ReportService struct {
	store    store.Store
	clock    Clock
	fares    *FareService
	location *time.Location
}

// NewReportService returns service. Days are cut in location, UTC when nil.
func NewReportService(st store.Store, clock Clock, fares *FareService, location *time.Location) *ReportService {
	if clock == nil {
		clock = SystemClock{}
	}
	if location == nil {
		location = time.UTC
	}
	return &ReportService{store: st, clock: clock, fares: fares, location: location}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// SpaceStatus lists every space with its occupant.
func (s *ReportService) SpaceStatus(ctx context.Context) ([]models.SpaceStatus, error) {
	var out []models.SpaceStatus
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		spaces, err := tx.ListSpaces(ctx)
		if err != nil {
			return err
		}
		occupants, err := tx.OccupantsBySpace(ctx)
		if err != nil {
			return err
		}
		out = make([]models.SpaceStatus, 0, len(spaces))
		for _, sp := range spaces {
			status := models.SpaceStatus{ParkingSpace: sp}
			if occ, ok := occupants[sp.ID]; ok {
				occ := occ
				status.Occupant = &occ
			}
			out = append(out, status)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reports: space status: %w", err)
	}
	return out, nil
}

// AvailableSpaces lists spaces that can be assigned right now.
func (s *ReportService) AvailableSpaces(ctx context.Context) ([]models.ParkingSpace, error) {
	var out []models.ParkingSpace
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		spaces, err := tx.ListSpaces(ctx)
		if err != nil {
			return err
		}
		out = make([]models.ParkingSpace, 0, len(spaces))
		for _, sp := range spaces {
			if sp.Assignable() {
				out = append(out, sp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reports: available spaces: %w", err)
	}
	return out, nil
}

// SessionHistory lists sessions newest first.
func (s *ReportService) SessionHistory(ctx context.Context, filter HistoryFilter) ([]models.SessionRecord, error) {
	var out []models.SessionRecord
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListSessions(ctx, store.SessionQuery{Plate: filter.Plate, Limit: clampLimit(filter.Limit)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reports: session history: %w", err)
	}
	return out, nil
}

// RechargeHistory lists confirmed recharges newest first.
func (s *ReportService) RechargeHistory(ctx context.Context, filter RechargeFilter) ([]models.RechargeRecord, error) {
	var out []models.RechargeRecord
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListRecharges(ctx, store.RechargeQuery{AccountID: filter.AccountID, Limit: clampLimit(filter.Limit)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reports: recharge history: %w", err)
	}
	return out, nil
}

// AccountByPlate returns store.ErrNotFound for unknown plates.
func (s *ReportService) AccountByPlate(ctx context.Context, plate string) (*AccountSummary, error) {
	var out *AccountSummary
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		account, vehicle, err := tx.AccountByPlate(ctx, plate)
		if err != nil {
			return err
		}
		summary := &AccountSummary{Account: *account, Vehicle: *vehicle}
		session, err := tx.ActiveSessionForAccount(ctx, account.ID)
		switch {
		case err == nil:
			summary.ActiveSession = session
			if session.SpaceID != nil {
				space, err := tx.SpaceByID(ctx, *session.SpaceID)
				if err != nil {
					return err
				}
				summary.SpaceLabel = space.Label
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		out = summary
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reports: account by plate: %w", err)
	}
	return out, nil
}

// DailyStats aggregates the calendar day containing day. A zero day means today.
func (s *ReportService) DailyStats(ctx context.Context, day time.Time) (DailyStats, error) {
	if day.IsZero() {
		day = s.clock.Now()
	}
	local := day.In(s.location)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	to := from.AddDate(0, 0, 1)

	var stats DailyStats
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		counts, err := tx.DailyCounts(ctx, from.UTC(), to.UTC())
		if err != nil {
			return err
		}
		system, err := tx.SystemCounts(ctx)
		if err != nil {
			return err
		}
		stats = DailyStats{
			Date:             from.Format(time.DateOnly),
			Entries:          counts.Entries,
			Exits:            counts.Exits,
			Revenue:          counts.Revenue,
			Recharges:        counts.Recharges,
			RechargedAmount:  counts.RechargedAmount,
			NewAccounts:      counts.NewAccounts,
			OccupiedSpaces:   system.OccupiedSpaces,
			AvailableSpaces:  system.AvailableSpaces,
			TotalSpaces:      system.TotalSpaces,
			OccupancyPercent: money.Percent(system.OccupiedSpaces, system.TotalSpaces),
		}
		return nil
	})
	if err != nil {
		return DailyStats{}, fmt.Errorf("reports: daily stats: %w", err)
	}
	return stats, nil
}

// SystemStatus returns facility-wide totals.
func (s *ReportService) SystemStatus(ctx context.Context) (models.SystemCounts, error) {
	var out models.SystemCounts
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.SystemCounts(ctx)
		return err
	})
	if err != nil {
		return models.SystemCounts{}, fmt.Errorf("reports: system status: %w", err)
	}
	return out, nil
}

// Receipt renders a finalized session. Open sessions yield ErrSessionNotFinalized.
func (s *ReportService) Receipt(ctx context.Context, sessionID int64) (*Receipt, error) {
	var out *Receipt
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		session, err := tx.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		out, err = s.buildReceipt(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reports: receipt %d: %w", sessionID, err)
	}
	return out, nil
}

// LatestReceiptForPlate renders the most recent finalized session of plate.
func (s *ReportService) LatestReceiptForPlate(ctx context.Context, plate string) (*Receipt, error) {
	var out *Receipt
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		session, err := tx.LatestFinalizedSessionByPlate(ctx, plate)
		if err != nil {
			return err
		}
		out, err = s.buildReceipt(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reports: latest receipt: %w", err)
	}
	return out, nil
}

// chargedTerms returns the fare terms recorded at exit. Sessions closed before the terms were
// recorded fall back to the class's current schedule.
func (s *ReportService) chargedTerms(ctx context.Context, tx store.Tx, session *models.ParkingSession, class models.VehicleClass) (models.FareSchedule, error) {
	if session.HourlyRate != nil && session.MinimumFare != nil {
		return models.FareSchedule{
			Class:       class,
			HourlyRate:  *session.HourlyRate,
			MinimumFare: *session.MinimumFare,
		}, nil
	}
	return s.fares.RateFor(ctx, tx, class)
}

func (s *ReportService) buildReceipt(ctx context.Context, tx store.Tx, session *models.ParkingSession) (*Receipt, error) {
	if session.State != models.SessionFinalized || session.ExitAt == nil || session.AmountCharged == nil {
		return nil, ErrSessionNotFinalized
	}
	account, err := tx.AccountByID(ctx, session.AccountID)
	if err != nil {
		return nil, err
	}
	vehicle, err := tx.VehicleByID(ctx, session.VehicleID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.chargedTerms(ctx, tx, session, vehicle.Class)
	if err != nil {
		return nil, err
	}
	fare := ComputeFare(schedule, session.EntryAt, *session.ExitAt)

	receipt := &Receipt{
		SessionID:     session.ID,
		FullName:      account.FullName,
		NationalID:    account.NationalID,
		Plate:         vehicle.Plate,
		Class:         vehicle.Class,
		Brand:         vehicle.Brand,
		Color:         vehicle.Color,
		EntryAt:       session.EntryAt,
		ExitAt:        *session.ExitAt,
		DurationLabel: fare.DurationLabel,
		BilledHours:   fare.BilledHours,
		HourlyRate:    schedule.HourlyRate,
		MinimumFare:   schedule.MinimumFare,
		AmountCharged: *session.AmountCharged,
	}
	if session.DurationLabel != nil {
		receipt.DurationLabel = *session.DurationLabel
	}
	if session.SpaceID != nil {
		if space, err := tx.SpaceByID(ctx, *session.SpaceID); err == nil {
			receipt.SpaceLabel = space.Label
		}
	}
	return receipt, nil
}
