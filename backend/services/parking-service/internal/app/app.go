package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"smartparking/backend/libs/money"
	libredis "smartparking/backend/libs/redis"
	"smartparking/backend/services/parking-service/internal/config"
	"smartparking/backend/services/parking-service/internal/db"
	"smartparking/backend/services/parking-service/internal/devices"
	"smartparking/backend/services/parking-service/internal/events"
	httpserver "smartparking/backend/services/parking-service/internal/http"
	"smartparking/backend/services/parking-service/internal/http/handlers"
	"smartparking/backend/services/parking-service/internal/metrics"
	"smartparking/backend/services/parking-service/internal/models"
	redisstore "smartparking/backend/services/parking-service/internal/redis"
	"smartparking/backend/services/parking-service/internal/service"
	"smartparking/backend/services/parking-service/internal/store"
	"smartparking/backend/services/parking-service/internal/store/memory"
	"smartparking/backend/services/parking-service/internal/store/postgres"
	"smartparking/backend/services/parking-service/internal/ws"
)

// App wires parking-service dependencies.
type App struct {
	server      *httpserver.Server
	manager     *ws.Manager
	db          *sql.DB
	redisClient *redis.Client
	publisher   *events.Publisher
	logger      *zap.Logger
}

// New constructs the application graph. Device connections live as long as ctx.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	seed, err := FacilitySeed(cfg)
	if err != nil {
		return nil, err
	}
	if err := service.Provision(ctx, st, seed, logger); err != nil {
		return nil, fmt.Errorf("provision facility: %w", err)
	}

	var cache service.ActiveCache
	if cfg.RedisEnabled() {
		a.redisClient, err = libredis.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cache = redisstore.NewStore(a.redisClient, cfg.ActiveAdmissionTTL())
	}

	var publisher service.Publisher
	if cfg.AMQPEnabled() {
		a.publisher, err = events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return nil, err
		}
		publisher = a.publisher
	}

	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	rate, minimum, err := cfg.DefaultFare()
	if err != nil {
		return nil, err
	}

	clock := service.SystemClock{}
	recorder := metrics.New()
	fares := service.NewFareService(rate, minimum)
	a.manager = ws.NewManager()

	engine := service.NewSessionEngine(service.EngineDeps{
		Store:     st,
		Clock:     clock,
		Fares:     fares,
		Directory: service.NewDirectoryService(),
		Ledger:    service.NewLedgerService(),
		Pool:      service.NewOccupancyPool(),
		Tokens: service.NewTokenRegistry(clock, service.TokenPolicy{
			RegistrationTTL: cfg.Tokens.RegistrationTTL,
			RechargeTTL:     cfg.Tokens.RechargeTTL,
		}),
		Cache:   cache,
		Events:  publisher,
		Gate:    devices.NewBarrierNotifier(a.manager, cfg.Gate.EntryDeviceID, logger),
		Metrics: recorder,
		Logger:  logger,
	}, service.EngineConfig{
		RegistrationClass:           models.VehicleClass(cfg.Facility.RegistrationClass),
		SuggestedRechargeMultiplier: cfg.Tokens.SuggestedRechargeMultiplier,
		AutoOpenWindow:              cfg.Gate.AutoOpenWindow,
	})
	reconciler := service.NewSensorReconciler(st, clock, recorder, logger)
	reports := service.NewReportService(st, clock, fares, location)

	processor := devices.NewProcessor(devices.NewParkingRouter(devices.RouterDeps{
		Engine:     engine,
		Reconciler: reconciler,
		Clock:      clock,
		Logger:     logger,
	}), recorder, logger)
	wsServer := ws.NewServer(ctx, a.manager, processor, cfg.PingInterval(), cfg.WriteTimeout(), logger)

	gate := handlers.NewGateHandler(engine, logger)
	registration := handlers.NewRegistrationHandler(engine, logger)
	recharge := handlers.NewRechargeHandler(engine, logger)
	sensors := handlers.NewSensorHandler(reconciler, clock, logger)
	queries := handlers.NewQueryHandler(reports, location, logger)

	routes := httpserver.Routes{
		Entry:                gate.HandleEntry,
		Exit:                 gate.HandleExit,
		AutoOpen:             gate.HandleAutoOpen,
		GateOpen:             gate.HandleOpen,
		RegistrationComplete: registration.HandleComplete,
		RegistrationCheck:    registration.HandleCheck,
		RechargeComplete:     recharge.HandleComplete,
		RechargeRequest:      recharge.HandleRequest,
		Sensors:              sensors.HandleReport,
		Spaces:               queries.HandleSpaces,
		AvailableSpaces:      queries.HandleAvailableSpaces,
		SessionHistory:       queries.HandleSessionHistory,
		RechargeHistory:      queries.HandleRechargeHistory,
		AccountByPlate:       queries.HandleAccountByPlate,
		DailyStats:           queries.HandleDailyStats,
		SystemStatus:         queries.HandleSystemStatus,
		Receipts:             queries.HandleReceipt,
		Health:               handlers.NewHealthHandler(a.healthCheck),
		Metrics:              recorder.Handler(),
		Devices:              wsServer,
	}

	router := httpserver.NewRouter(routes)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, cfg.HTTP.ShutdownTimeout, logger)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	sqlDB, err := db.NewPostgres(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.db = sqlDB
	pg := postgres.NewStore(sqlDB)
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return pg, nil
}

func (a *App) healthCheck(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.db.PingContext(pingCtx)
}

// FacilitySeed converts the configured spaces and fare rows into a provisioning seed.
func FacilitySeed(cfg *config.Config) (service.FacilitySeed, error) {
	var seed service.FacilitySeed
	for _, sp := range cfg.Facility.Spaces {
		seed.Spaces = append(seed.Spaces, service.SpaceSeed{
			Label:         sp.Label,
			Class:         models.VehicleClass(sp.Class),
			SensorChannel: sp.SensorChannel,
		})
	}
	for _, f := range cfg.Fares.Schedules {
		rate, err := money.Parse(f.HourlyRate)
		if err != nil {
			return service.FacilitySeed{}, fmt.Errorf("fare %s: hourly rate: %w", f.Class, err)
		}
		minimum, err := money.Parse(f.MinimumFare)
		if err != nil {
			return service.FacilitySeed{}, fmt.Errorf("fare %s: minimum fare: %w", f.Class, err)
		}
		seed.Fares = append(seed.Fares, service.FareSeed{
			Class:       models.VehicleClass(f.Class),
			HourlyRate:  rate,
			MinimumFare: minimum,
		})
	}
	return seed, nil
}

// Run starts the device manager and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	go a.manager.Start(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close amqp publisher", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
