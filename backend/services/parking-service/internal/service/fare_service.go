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

var (
	oneHour     = decimal.NewFromInt(1)
	nanosInHour = decimal.NewFromInt(int64(time.Hour))
)

// FareService provides fare schedule lookups with a configured fallback.
type FareService struct {
	fallback models.FareSchedule
}

// NewFareService returns service instance. The fallback applies to classes with no active schedule.
func NewFareService(defaultHourlyRate, defaultMinimumFare decimal.Decimal) *FareService {
	return &FareService{
		fallback: models.FareSchedule{
			HourlyRate:  defaultHourlyRate,
			MinimumFare: defaultMinimumFare,
			Active:      true,
		},
	}
}

// RateFor returns the active schedule of the class or the fallback.
func (s *FareService) RateFor(ctx context.Context, tx store.FareStore, class models.VehicleClass) (models.FareSchedule, error) {
	if !class.Valid() {
		return models.FareSchedule{}, fmt.Errorf("%w: %q", ErrUnknownVehicleClass, class)
	}
	fare, err := tx.ActiveFare(ctx, class)
	if errors.Is(err, store.ErrNotFound) {
		fallback := s.fallback
		fallback.Class = class
		return fallback, nil
	}
	if err != nil {
		return models.FareSchedule{}, fmt.Errorf("fare: active schedule: %w", err)
	}
	return *fare, nil
}

// MinimumFareFor returns the balance an account needs before it may enter.
func (s *FareService) MinimumFareFor(ctx context.Context, tx store.FareStore, class models.VehicleClass) (decimal.Decimal, error) {
	schedule, err := s.RateFor(ctx, tx, class)
	if err != nil {
		return decimal.Zero, err
	}
	return schedule.MinimumFare, nil
}

// Fare is the result of pricing one stay.
type Fare struct {
	Amount        decimal.Decimal
	BilledHours   decimal.Decimal
	Elapsed       time.Duration
	DurationLabel string
}

// ComputeFare prices a stay: max(rate * max(1, hours), minimum), rounded to cents.
// Hours are exact fractions of the elapsed time.
func ComputeFare(schedule models.FareSchedule, entry, exit time.Time) Fare {
	elapsed := exit.Sub(entry)
	if elapsed < 0 {
		elapsed = 0
	}
	hours := decimal.NewFromInt(int64(elapsed)).Div(nanosInHour)
	billed := money.Max(hours, oneHour)
	amount := money.Round(money.Max(schedule.HourlyRate.Mul(billed), schedule.MinimumFare))
	return Fare{
		Amount:        amount,
		BilledHours:   billed.Round(2),
		Elapsed:       elapsed,
		DurationLabel: FormatDuration(elapsed),
	}
}

// FormatDuration renders H:MM:SS with fractional seconds dropped. Hours do not wrap into days.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
