package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
	"smartparking/backend/services/parking-service/internal/store/memory"
)

func carSchedule() models.FareSchedule {
	return models.FareSchedule{
		Class:       models.VehicleClassCar,
		HourlyRate:  decimal.NewFromInt(5000),
		MinimumFare: decimal.NewFromInt(5000),
	}
}

func TestComputeFare(t *testing.T) {
	cases := []struct {
		name   string
		stay   time.Duration
		amount string
		hours  string
	}{
		{"zero", 0, "5000", "1"},
		{"twenty minutes", 20 * time.Minute, "5000", "1"},
		{"one hour", time.Hour, "5000", "1"},
		{"ninety minutes", 90 * time.Minute, "7500", "1.5"},
		{"ten minutes past two hours", 2*time.Hour + 10*time.Minute, "10833.33", "2.17"},
		{"one day", 24 * time.Hour, "120000", "24"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fare := ComputeFare(carSchedule(), baseTime, baseTime.Add(tc.stay))
			assertAmount(t, tc.amount, fare.Amount)
			assertAmount(t, tc.hours, fare.BilledHours)
			assert.Equal(t, tc.stay, fare.Elapsed)
		})
	}
}

func TestComputeFareMinimumAboveHourlyRate(t *testing.T) {
	schedule := models.FareSchedule{HourlyRate: decimal.NewFromInt(1000), MinimumFare: decimal.NewFromInt(4000)}

	assertAmount(t, "4000", ComputeFare(schedule, baseTime, baseTime.Add(3*time.Hour)).Amount)
	assertAmount(t, "5000", ComputeFare(schedule, baseTime, baseTime.Add(5*time.Hour)).Amount)
}

func TestComputeFareClockSkew(t *testing.T) {
	fare := ComputeFare(carSchedule(), baseTime, baseTime.Add(-time.Minute))
	assertAmount(t, "5000", fare.Amount)
	assert.Equal(t, time.Duration(0), fare.Elapsed)
	assert.Equal(t, "0:00:00", fare.DurationLabel)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00:59", FormatDuration(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "1:30:00", FormatDuration(90*time.Minute))
	assert.Equal(t, "26:03:04", FormatDuration(26*time.Hour+3*time.Minute+4*time.Second))
}

func TestRateForFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	fares := NewFareService(decimal.NewFromInt(4000), decimal.NewFromInt(2000))

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.EnsureFare(ctx, &models.FareSchedule{
			Class:       models.VehicleClassCar,
			HourlyRate:  decimal.NewFromInt(5000),
			MinimumFare: decimal.NewFromInt(5000),
		})
		return err
	}))

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		car, err := fares.RateFor(ctx, tx, models.VehicleClassCar)
		require.NoError(t, err)
		assertAmount(t, "5000", car.HourlyRate)

		moto, err := fares.RateFor(ctx, tx, models.VehicleClassMotorcycle)
		require.NoError(t, err)
		assert.Equal(t, models.VehicleClassMotorcycle, moto.Class)
		assertAmount(t, "4000", moto.HourlyRate)
		assertAmount(t, "2000", moto.MinimumFare)

		_, err = fares.RateFor(ctx, tx, models.VehicleClass("TRUCK"))
		assert.ErrorIs(t, err, ErrUnknownVehicleClass)
		return nil
	}))
}
