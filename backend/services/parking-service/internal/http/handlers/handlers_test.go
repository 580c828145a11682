package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/service"
	"smartparking/backend/services/parking-service/internal/store"
	"smartparking/backend/services/parking-service/internal/store/memory"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type fakeGate struct {
	online   map[string]bool
	commands []service.GateCommand
}

func (g *fakeGate) OpenBarrier(_ context.Context, cmd service.GateCommand) error {
	if !g.online[cmd.DeviceID] {
		return service.ErrGateOffline
	}
	g.commands = append(g.commands, cmd)
	return nil
}

type fixture struct {
	store   *memory.Store
	clock   *stepClock
	engine  *service.SessionEngine
	barrier *fakeGate
	gate    *GateHandler
	reg     *RegistrationHandler
	charge  *RechargeHandler
	sensors *SensorHandler
	query   *QueryHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	clock := &stepClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()

	require.NoError(t, service.Provision(ctx, st, service.FacilitySeed{
		Spaces: []service.SpaceSeed{
			{Label: "A1", Class: models.VehicleClassCar, SensorChannel: 1},
			{Label: "A2", Class: models.VehicleClassCar, SensorChannel: 2},
		},
		Fares: []service.FareSeed{
			{Class: models.VehicleClassCar, HourlyRate: decimal.NewFromInt(5000), MinimumFare: decimal.NewFromInt(5000)},
		},
	}, logger))

	fares := service.NewFareService(decimal.NewFromInt(5000), decimal.NewFromInt(5000))
	barrier := &fakeGate{online: map[string]bool{"": true, "gate-entry": true}}
	engine := service.NewSessionEngine(service.EngineDeps{
		Store:     st,
		Clock:     clock,
		Fares:     fares,
		Directory: service.NewDirectoryService(),
		Ledger:    service.NewLedgerService(),
		Pool:      service.NewOccupancyPool(),
		Tokens:    service.NewTokenRegistry(clock, service.TokenPolicy{RegistrationTTL: 30 * time.Minute}),
		Gate:      barrier,
		Logger:    logger,
	}, service.EngineConfig{})
	reports := service.NewReportService(st, clock, fares, time.UTC)

	return &fixture{
		store:   st,
		clock:   clock,
		engine:  engine,
		barrier: barrier,
		gate:    NewGateHandler(engine, logger),
		reg:     NewRegistrationHandler(engine, logger),
		charge:  NewRechargeHandler(engine, logger),
		sensors: NewSensorHandler(service.NewSensorReconciler(st, clock, nil, logger), clock, logger),
		query:   NewQueryHandler(reports, time.UTC, logger),
	}
}

func (f *fixture) seedAccount(t *testing.T, rfid, plate string, balance int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		acc := &models.Account{
			FullName:   "Carlos Perez",
			NationalID: "10203040",
			Email:      "carlos@example.com",
			Balance:    decimal.NewFromInt(balance),
			RFID:       rfid,
		}
		if err := tx.CreateAccount(ctx, acc); err != nil {
			return err
		}
		return tx.CreateVehicle(ctx, &models.Vehicle{AccountID: acc.ID, Plate: plate, Class: models.VehicleClassCar})
	}))
}

func do(t *testing.T, handler http.HandlerFunc, method, target string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(method, target, &buf))

	decoded := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestEntryAndExitRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "RFID-1", "ABC123", 20000)

	rec, body := do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": " RFID-1 "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(service.EntryAdmitted), body["result"])
	assert.Equal(t, CommandOpenBarrier, body["command"])
	assert.Equal(t, "A1", body["space"])
	assert.Equal(t, "20000", body["balance"])

	f.clock.now = f.clock.now.Add(90 * time.Minute)
	rec, body = do(t, f.gate.HandleExit, http.MethodPost, "/api/exit", map[string]string{"rfid": "RFID-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(service.ExitAdmitted), body["result"])
	assert.Equal(t, "7500", body["amount_charged"])
	assert.Equal(t, "12500", body["new_balance"])
	assert.Equal(t, "1:30:00", body["duration"])
}

func TestEntryRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	rec, body := do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid json", body["error"])

	rec, body = do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rfid is required", body["error"])
}

func TestEntryInsufficientBalanceShowsAlert(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "RFID-1", "ABC123", 4000)

	_, body := do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": "RFID-1"})
	assert.Equal(t, string(service.EntryInsufficientBalance), body["result"])
	assert.Equal(t, CommandShowAlert, body["command"])
	assert.Equal(t, "5000", body["required"])
	assert.Equal(t, "4000", body["current"])
}

func registrationBody(token string) map[string]string {
	return map[string]string{
		"token":         token,
		"full_name":     "  laura   Gomez ",
		"national_id":   "1020304050",
		"phone":         "300 123 4567",
		"email":         "Laura@Example.com",
		"plate":         "jkl 45d",
		"vehicle_class": "car",
		"brand":         "Renault",
		"color":         "Blue",
	}
}

func TestRegistrationRoundTrip(t *testing.T) {
	f := newFixture(t)

	_, entry := do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": "AAAA1111"})
	require.Equal(t, string(service.EntryNewAccountRequired), entry["result"])
	token := entry["token"].(string)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/registrations/{token}", f.reg.HandleCheck)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/registrations/"+token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)
	assert.Contains(t, rec.Body.String(), `"rfid":"AAAA1111"`)

	rec, body := do(t, f.reg.HandleComplete, http.MethodPost, "/api/registrations/complete", registrationBody(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(service.RegistrationRegistered), body["result"])
	assert.Equal(t, "A1", body["space"])
	assert.Equal(t, "10000", body["suggested_amount"])
	rechargeToken := body["recharge_token"].(string)

	summary, err := service.NewReportService(f.store, f.clock, service.NewFareService(decimal.Zero, decimal.Zero), nil).AccountByPlate(context.Background(), "JKL45D")
	require.NoError(t, err)
	assert.Equal(t, "Laura Gomez", summary.Account.FullName)
	assert.Equal(t, "laura@example.com", summary.Account.Email)
	assert.Equal(t, "3001234567", summary.Account.Phone)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/registrations/"+token, nil))
	assert.Contains(t, rec.Body.String(), `"valid":false`)

	_, body = do(t, f.charge.HandleComplete, http.MethodPost, "/api/recharges/complete", map[string]string{"token": rechargeToken})
	assert.Equal(t, string(service.RechargeRecharged), body["result"])
	assert.Equal(t, "10000", body["new_balance"])
	assert.Equal(t, false, body["auto_admitted"])
}

func TestRegisteredCardMatchesInAnyCase(t *testing.T) {
	f := newFixture(t)

	_, entry := do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": "AAAA1111"})
	require.Equal(t, string(service.EntryNewAccountRequired), entry["result"])
	_, body := do(t, f.reg.HandleComplete, http.MethodPost, "/api/registrations/complete", registrationBody(entry["token"].(string)))
	require.Equal(t, string(service.RegistrationRegistered), body["result"])

	_, body = do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": "aaaa1111"})
	assert.Equal(t, string(service.EntryDuplicateActiveSession), body["result"])
	assert.Empty(t, body["token"])

	_, body = do(t, f.gate.HandleAutoOpen, http.MethodPost, "/api/gate/auto-open", map[string]string{"rfid": "aaaa1111"})
	assert.Equal(t, true, body["open"])
}

func TestRechargeRejectsAmountRoundingToZero(t *testing.T) {
	f := newFixture(t)

	_, entry := do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": "AAAA1111"})
	_, body := do(t, f.reg.HandleComplete, http.MethodPost, "/api/registrations/complete", registrationBody(entry["token"].(string)))
	require.Equal(t, string(service.RegistrationRegistered), body["result"])
	rechargeToken := body["recharge_token"].(string)

	for _, amount := range []string{"0.001", "0", "0.00"} {
		rec, body := do(t, f.charge.HandleComplete, http.MethodPost, "/api/recharges/complete", map[string]string{"token": rechargeToken, "amount": amount})
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
		assert.Equal(t, "amount must be a positive number", body["error"], amount)
	}

	summary, err := service.NewReportService(f.store, f.clock, service.NewFareService(decimal.Zero, decimal.Zero), nil).AccountByPlate(context.Background(), "JKL45D")
	require.NoError(t, err)
	assert.True(t, summary.Account.Balance.IsZero())

	_, body = do(t, f.charge.HandleComplete, http.MethodPost, "/api/recharges/complete", map[string]string{"token": rechargeToken})
	assert.Equal(t, string(service.RechargeRecharged), body["result"])
	assert.Equal(t, "10000", body["amount"])
}

func TestManualGateOpen(t *testing.T) {
	f := newFixture(t)

	rec, body := do(t, f.gate.HandleOpen, http.MethodPost, "/api/gate/open", map[string]string{"device_id": " gate-entry ", "reason": "visitor"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CommandOpenBarrier, body["command"])
	assert.Equal(t, "gate-entry", body["device_id"])

	rec, _ = do(t, f.gate.HandleOpen, http.MethodPost, "/api/gate/open", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.barrier.commands, 2)
	assert.Equal(t, service.GateCommand{DeviceID: "gate-entry", Reason: "visitor"}, f.barrier.commands[0])
	assert.Equal(t, service.GateCommand{Reason: service.GateReasonManual}, f.barrier.commands[1])

	rec, body = do(t, f.gate.HandleOpen, http.MethodPost, "/api/gate/open", map[string]string{"device_id": "gate-exit"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "gate controller not connected", body["error"])

	rec, _ = do(t, f.gate.HandleOpen, http.MethodPost, "/api/gate/open", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrationValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]struct {
		field, value, message string
	}{
		"short name":    {"full_name", "Laura", "full_name needs first and last name, letters only"},
		"phone prefix":  {"phone", "4001234567", "phone must start with 3"},
		"bad plate":     {"plate", "AB1234", "plate must look like ABC123 or ABC12D"},
		"bad email":     {"email", "laura.example.com", "email must be a valid email address"},
		"letters in id": {"national_id", "10A0304", "national_id must contain digits only"},
		"unknown class": {"vehicle_class", "truck", "vehicle_class must be one of: CAR MOTORCYCLE"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := registrationBody("tok")
			req[tc.field] = tc.value
			rec, body := do(t, f.reg.HandleComplete, http.MethodPost, "/api/registrations/complete", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.message, body["error"])
		})
	}
}

func TestRechargeRequestAndAutoAdmit(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "RFID-1", "ABC123", 0)

	_, body := do(t, f.charge.HandleRequest, http.MethodPost, "/api/recharges/request", map[string]string{"plate": "abc123"})
	require.Equal(t, string(service.RechargeRequestIssued), body["result"])
	token := body["token"].(string)

	rec, body := do(t, f.charge.HandleComplete, http.MethodPost, "/api/recharges/complete", map[string]string{"token": token})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "link carries no amount")

	rec, body = do(t, f.charge.HandleComplete, http.MethodPost, "/api/recharges/complete", map[string]string{"token": token, "amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, body = do(t, f.charge.HandleComplete, http.MethodPost, "/api/recharges/complete", map[string]string{"token": token, "amount": "10000"})
	assert.Equal(t, string(service.RechargeRecharged), body["result"])
	assert.Equal(t, true, body["auto_admitted"])
	assert.Equal(t, "A1", body["space"])

	_, body = do(t, f.charge.HandleRequest, http.MethodPost, "/api/recharges/request", map[string]string{"plate": "ZZZ999"})
	assert.Equal(t, string(service.RechargeRequestAccountNotFound), body["result"])
}

func TestSensorReport(t *testing.T) {
	f := newFixture(t)

	rec, body := do(t, f.sensors.HandleReport, http.MethodPost, "/api/sensors", map[string]bool{"sensor_1": true, "sensor_9": false})
	require.Equal(t, http.StatusOK, rec.Code)
	readings := body["readings"].([]interface{})
	require.Len(t, readings, 2)
	assert.Equal(t, string(service.ReconcileMarkedOccupied), readings[0].(map[string]interface{})["result"])
	assert.Equal(t, string(service.ReconcileUnknownChannel), readings[1].(map[string]interface{})["result"])

	rec, body = do(t, f.sensors.HandleReport, http.MethodPost, "/api/sensors", map[string]bool{"sensor_2": true, "led_ok": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["readings"], 1)
	assert.Equal(t, []interface{}{"led_ok"}, body["ignored"])

	rec, _ = do(t, f.sensors.HandleReport, http.MethodPost, "/api/sensors", map[string]bool{"sensor_x": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "RFID-1", "ABC123", 20000)
	_, _ = do(t, f.gate.HandleEntry, http.MethodPost, "/api/entry", map[string]string{"rfid": "RFID-1"})

	rec, body := do(t, f.query.HandleAvailableSpaces, http.MethodGet, "/api/spaces/available", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, _ = do(t, f.query.HandleAccountByPlate, http.MethodGet, "/api/accounts/by-plate?plate=zzz999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, f.query.HandleAccountByPlate, http.MethodGet, "/api/accounts/by-plate?plate=abc123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A1", body["space_label"])

	rec, _ = do(t, f.query.HandleReceipt, http.MethodGet, "/api/receipts?plate=ABC123", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, f.query.HandleReceipt, http.MethodGet, "/api/receipts?session_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, f.query.HandleDailyStats, http.MethodGet, "/api/stats/daily?date=2025-03-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["entries"])
	assert.Equal(t, "50", body["occupancy_percent"])

	rec, _ = do(t, f.query.HandleDailyStats, http.MethodGet, "/api/stats/daily?date=14-03-2025", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, f.query.HandleSessionHistory, http.MethodGet, "/api/sessions/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, f.query.HandleSystemStatus, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["active_sessions"])
}

func TestHealth(t *testing.T) {
	rec, body := do(t, NewHealthHandler(nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = do(t, NewHealthHandler(func(context.Context) error { return context.DeadlineExceeded }), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
