package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

func newReports(h *harness, loc *time.Location) *ReportService {
	return NewReportService(h.store, h.clock, h.fares, loc)
}

func TestSpaceStatusShowsOccupants(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1", "A2")
	h.seedAccount(t, "RFID-1", "ABC123", 20000)
	_, err := h.engine.ProcessEntry(ctx, "RFID-1")
	require.NoError(t, err)

	statuses, err := newReports(h, nil).SpaceStatus(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	require.NotNil(t, statuses[0].Occupant)
	assert.Equal(t, "ABC123", statuses[0].Occupant.Plate)
	assert.Nil(t, statuses[1].Occupant)

	available, err := newReports(h, nil).AvailableSpaces(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "A2", available[0].Label)
}

func TestSessionHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	h.seedAccount(t, "RFID-1", "ABC123", 50000)
	h.seedAccount(t, "RFID-2", "XYZ987", 50000)

	for _, rfid := range []string{"RFID-1", "RFID-2", "RFID-1"} {
		_, err := h.engine.ProcessEntry(ctx, rfid)
		require.NoError(t, err)
		h.clock.Advance(time.Hour)
		_, err = h.engine.ProcessExit(ctx, rfid)
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}

	reports := newReports(h, nil)
	all, err := reports.SessionHistory(ctx, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].EntryAt.After(all[1].EntryAt))
	assert.Equal(t, "ABC123", all[0].Plate)

	mine, err := reports.SessionHistory(ctx, HistoryFilter{Plate: "xyz987", Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].SpaceLabel)
	assert.Equal(t, "A1", *mine[0].SpaceLabel)

	limited, err := reports.SessionHistory(ctx, HistoryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit, clampLimit(0))
	assert.Equal(t, defaultHistoryLimit, clampLimit(-3))
	assert.Equal(t, 20, clampLimit(20))
	assert.Equal(t, maxHistoryLimit, clampLimit(10000))
}

func TestRechargeHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	acc := h.seedAccount(t, "RFID-1", "ABC123", 0)
	other := h.seedAccount(t, "RFID-2", "XYZ987", 0)

	for _, plate := range []string{"ABC123", "XYZ987"} {
		req, err := h.engine.RequestRecharge(ctx, plate)
		require.NoError(t, err)
		_, err = h.engine.CompleteRecharge(ctx, req.Token, amountOf(1000))
		require.NoError(t, err)
	}
	_, err := h.engine.RequestRecharge(ctx, "ABC123")
	require.NoError(t, err)

	reports := newReports(h, nil)
	all, err := reports.RechargeHistory(ctx, RechargeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "pending links are not history")

	mine, err := reports.RechargeHistory(ctx, RechargeFilter{AccountID: &acc.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, acc.FullName, mine[0].FullName)
	assertAmount(t, "1000", mine[0].Amount)

	theirs, err := reports.RechargeHistory(ctx, RechargeFilter{AccountID: &other.ID})
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestAccountByPlate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	acc := h.seedAccount(t, "RFID-1", "ABC123", 20000)
	reports := newReports(h, nil)

	summary, err := reports.AccountByPlate(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, summary.Account.ID)
	assert.Nil(t, summary.ActiveSession)

	_, err = h.engine.ProcessEntry(ctx, "RFID-1")
	require.NoError(t, err)
	summary, err = reports.AccountByPlate(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, summary.ActiveSession)
	assert.Equal(t, "A1", summary.SpaceLabel)

	_, err = reports.AccountByPlate(ctx, "NONE00")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDailyStatsUsesFacilityTimezone(t *testing.T) {
	ctx := context.Background()
	bogota := time.FixedZone("COT", -5*60*60)

	h := newHarness(t, "A1", "A2", "A3", "A4")
	h.seedAccount(t, "RFID-1", "ABC123", 50000)
	h.seedAccount(t, "RFID-2", "XYZ987", 50000)

	// 09:00 UTC is 04:00 in Bogota.
	_, err := h.engine.ProcessEntry(ctx, "RFID-1")
	require.NoError(t, err)
	h.clock.Advance(90 * time.Minute)
	_, err = h.engine.ProcessExit(ctx, "RFID-1")
	require.NoError(t, err)
	_, err = h.engine.ProcessEntry(ctx, "RFID-2")
	require.NoError(t, err)

	stats, err := newReports(h, bogota).DailyStats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", stats.Date)
	assert.EqualValues(t, 2, stats.Entries)
	assert.EqualValues(t, 1, stats.Exits)
	assertAmount(t, "7500", stats.Revenue)
	assert.EqualValues(t, 2, stats.NewAccounts)
	assert.EqualValues(t, 1, stats.OccupiedSpaces)
	assert.EqualValues(t, 4, stats.TotalSpaces)
	assertAmount(t, "25", stats.OccupancyPercent)

	previous, err := newReports(h, bogota).DailyStats(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-13", previous.Date)
	assert.Zero(t, previous.Entries)
}

func TestReceipt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	acc := h.seedAccount(t, "RFID-1", "ABC123", 20000)
	reports := newReports(h, nil)

	entry, err := h.engine.ProcessEntry(ctx, "RFID-1")
	require.NoError(t, err)

	_, err = reports.Receipt(ctx, entry.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFinalized)
	_, err = reports.LatestReceiptForPlate(ctx, "ABC123")
	assert.ErrorIs(t, err, store.ErrNotFound)

	h.clock.Advance(90 * time.Minute)
	_, err = h.engine.ProcessExit(ctx, "RFID-1")
	require.NoError(t, err)

	receipt, err := reports.LatestReceiptForPlate(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, entry.Session.ID, receipt.SessionID)
	assert.Equal(t, acc.FullName, receipt.FullName)
	assert.Equal(t, "A1", receipt.SpaceLabel)
	assert.Equal(t, "1:30:00", receipt.DurationLabel)
	assertAmount(t, "1.5", receipt.BilledHours)
	assertAmount(t, "7500", receipt.AmountCharged)
	assertAmount(t, "5000", receipt.HourlyRate)

	_, err = reports.Receipt(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReceiptKeepsFareTermsChargedAtExit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	acc := h.seedAccount(t, "RFID-1", "ABC123", 20000)

	exitAt := baseTime.Add(2 * time.Hour)
	var sessionID int64
	require.NoError(t, h.store.WithTx(ctx, func(tx store.Tx) error {
		vehicle, err := tx.VehicleForAccount(ctx, acc.ID)
		if err != nil {
			return err
		}
		session := &models.ParkingSession{AccountID: acc.ID, VehicleID: vehicle.ID, EntryAt: baseTime, State: models.SessionActive}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		sessionID = session.ID
		return tx.FinalizeSession(ctx, session.ID, models.SessionFinalization{
			ExitAt:        exitAt,
			AmountCharged: decimal.NewFromInt(8000),
			DurationLabel: "2:00:00",
			HourlyRate:    decimal.NewFromInt(4000),
			MinimumFare:   decimal.NewFromInt(3000),
		})
	}))

	receipt, err := newReports(h, nil).Receipt(ctx, sessionID)
	require.NoError(t, err)
	assertAmount(t, "4000", receipt.HourlyRate)
	assertAmount(t, "3000", receipt.MinimumFare)
	assertAmount(t, "8000", receipt.AmountCharged)
	assertAmount(t, "2", receipt.BilledHours)
}

func TestExitRecordsFareTerms(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	h.seedAccount(t, "RFID-1", "ABC123", 20000)

	_, err := h.engine.ProcessEntry(ctx, "RFID-1")
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	out, err := h.engine.ProcessExit(ctx, "RFID-1")
	require.NoError(t, err)
	require.Equal(t, ExitAdmitted, out.Result)

	var stored *models.ParkingSession
	require.NoError(t, h.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		stored, err = tx.SessionByID(ctx, out.Session.ID)
		return err
	}))
	require.NotNil(t, stored.HourlyRate)
	require.NotNil(t, stored.MinimumFare)
	assertAmount(t, "5000", *stored.HourlyRate)
	assertAmount(t, "5000", *stored.MinimumFare)
}

func TestProvisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1", "A2")

	seed := defaultSeed
	seed.Spaces = []SpaceSeed{
		{Label: "A1", Class: models.VehicleClassCar, SensorChannel: 1},
		{Label: "A2", Class: models.VehicleClassCar, SensorChannel: 2},
		{Label: "M1", Class: models.VehicleClassMotorcycle, SensorChannel: 3},
	}
	require.NoError(t, Provision(ctx, h.store, seed, zap.NewNop()))

	var spaces []models.ParkingSpace
	require.NoError(t, h.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		spaces, err = tx.ListSpaces(ctx)
		return err
	}))
	assert.Len(t, spaces, 3)

	bad := FacilitySeed{Spaces: []SpaceSeed{{Label: "T1", Class: "TRUCK", SensorChannel: 9}}}
	assert.ErrorIs(t, Provision(ctx, h.store, bad, zap.NewNop()), ErrUnknownVehicleClass)
}
