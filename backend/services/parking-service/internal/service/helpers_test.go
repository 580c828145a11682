package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
	"smartparking/backend/services/parking-service/internal/store/memory"
)

var baseTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]Admission
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]Admission)}
}

func (c *mapCache) Save(_ context.Context, a Admission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[a.RFID] = a
	return nil
}

func (c *mapCache) Get(_ context.Context, rfid string) (*Admission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[rfid]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (c *mapCache) Delete(_ context.Context, rfid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, rfid)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingGate struct {
	mu       sync.Mutex
	commands []GateCommand
	err      error
}

func (g *recordingGate) OpenBarrier(_ context.Context, cmd GateCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.commands = append(g.commands, cmd)
	return nil
}

func (g *recordingGate) sent() []GateCommand {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GateCommand(nil), g.commands...)
}

type harness struct {
	store  *memory.Store
	clock  *fakeClock
	tokens *TokenRegistry
	fares  *FareService
	cache  *mapCache
	events *recordingPublisher
	gate   *recordingGate
	engine *SessionEngine
}

var defaultSeed = FacilitySeed{
	Fares: []FareSeed{
		{Class: models.VehicleClassCar, HourlyRate: decimal.NewFromInt(5000), MinimumFare: decimal.NewFromInt(5000)},
		{Class: models.VehicleClassMotorcycle, HourlyRate: decimal.NewFromInt(3000), MinimumFare: decimal.NewFromInt(3000)},
	},
}

func newHarness(t *testing.T, spaces ...string) *harness {
	t.Helper()

	seed := defaultSeed
	seed.Spaces = nil
	for i, label := range spaces {
		seed.Spaces = append(seed.Spaces, SpaceSeed{Label: label, Class: models.VehicleClassCar, SensorChannel: i + 1})
	}

	st := memory.New()
	require.NoError(t, Provision(context.Background(), st, seed, zap.NewNop()))

	clock := newFakeClock(baseTime)
	h := &harness{
		store:  st,
		clock:  clock,
		tokens: NewTokenRegistry(clock, TokenPolicy{RegistrationTTL: 30 * time.Minute, RechargeTTL: 24 * time.Hour}),
		fares:  NewFareService(decimal.NewFromInt(5000), decimal.NewFromInt(5000)),
		cache:  newMapCache(),
		events: &recordingPublisher{},
		gate:   &recordingGate{},
	}
	h.engine = NewSessionEngine(EngineDeps{
		Store:     st,
		Clock:     clock,
		Fares:     h.fares,
		Directory: NewDirectoryService(),
		Ledger:    NewLedgerService(),
		Pool:      NewOccupancyPool(),
		Tokens:    h.tokens,
		Cache:     h.cache,
		Events:    h.events,
		Gate:      h.gate,
	}, EngineConfig{})
	return h
}

// seedAccount creates an account holding one car.
func (h *harness) seedAccount(t *testing.T, rfid, plate string, balance int64) *models.Account {
	t.Helper()
	var acc *models.Account
	require.NoError(t, h.store.WithTx(context.Background(), func(tx store.Tx) error {
		acc = &models.Account{
			FullName:     "Holder " + rfid,
			NationalID:   "ID-" + rfid,
			Email:        rfid + "@example.com",
			Balance:      decimal.NewFromInt(balance),
			RFID:         rfid,
			RegisteredAt: h.clock.Now(),
		}
		if err := tx.CreateAccount(context.Background(), acc); err != nil {
			return err
		}
		return tx.CreateVehicle(context.Background(), &models.Vehicle{
			AccountID: acc.ID,
			Plate:     plate,
			Class:     models.VehicleClassCar,
			Color:     "Red",
			Brand:     "Mazda",
		})
	}))
	return acc
}

func (h *harness) account(t *testing.T, id int64) *models.Account {
	t.Helper()
	var acc *models.Account
	require.NoError(t, h.store.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		acc, err = tx.AccountByID(context.Background(), id)
		return err
	}))
	return acc
}

func (h *harness) spaceByLabel(t *testing.T, label string) models.ParkingSpace {
	t.Helper()
	var found *models.ParkingSpace
	require.NoError(t, h.store.WithTx(context.Background(), func(tx store.Tx) error {
		spaces, err := tx.ListSpaces(context.Background())
		for i := range spaces {
			if spaces[i].Label == label {
				found = &spaces[i]
			}
		}
		return err
	}))
	require.NotNil(t, found, "space %s", label)
	return *found
}

func (h *harness) activeSession(t *testing.T, accountID int64) *models.ParkingSession {
	t.Helper()
	var session *models.ParkingSession
	require.NoError(t, h.store.WithTx(context.Background(), func(tx store.Tx) error {
		s, err := tx.ActiveSessionForAccount(context.Background(), accountID)
		if err == nil {
			session = s
		}
		return nil
	}))
	return session
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func amountOf(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
