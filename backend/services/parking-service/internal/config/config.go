package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "smartparking/backend/libs/config"
	"smartparking/backend/libs/money"
	"smartparking/backend/services/parking-service/internal/models"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// SpaceConfig declares one physical space to provision.
type SpaceConfig struct {
	Label         string `yaml:"label"`
	Class         string `yaml:"class"`
	SensorChannel int    `yaml:"sensorChannel"`
}

// FareConfig declares the initial schedule of a vehicle class.
type FareConfig struct {
	Class       string `yaml:"class"`
	HourlyRate  string `yaml:"hourlyRate"`
	MinimumFare string `yaml:"minimumFare"`
}

// Config defines parking service configuration.
type Config struct {
	HTTP struct {
		Port            string        `yaml:"port" env:"PARKING_HTTP_PORT"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"PARKING_HTTP_SHUTDOWN_TIMEOUT"`
	} `yaml:"http"`
	Storage struct {
		Driver string `yaml:"driver" env:"PARKING_STORAGE_DRIVER"`
	} `yaml:"storage"`
	Database struct {
		DSN          string        `yaml:"dsn" env:"PARKING_POSTGRES_DSN"`
		MaxOpenConns int           `yaml:"maxOpenConns" env:"PARKING_POSTGRES_MAX_OPEN_CONNS"`
		MaxIdleConns int           `yaml:"maxIdleConns" env:"PARKING_POSTGRES_MAX_IDLE_CONNS"`
		ConnLifetime time.Duration `yaml:"connLifetime" env:"PARKING_POSTGRES_CONN_LIFETIME"`
		Migrate      bool          `yaml:"migrate" env:"PARKING_POSTGRES_MIGRATE"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr" env:"PARKING_REDIS_ADDR"`
		Password string        `yaml:"password" env:"PARKING_REDIS_PASSWORD"`
		DB       int           `yaml:"db" env:"PARKING_REDIS_DB"`
		TTL      time.Duration `yaml:"ttl" env:"PARKING_REDIS_TTL"`
	} `yaml:"redis"`
	AMQP struct {
		URL      string `yaml:"url" env:"PARKING_AMQP_URL"`
		Exchange string `yaml:"exchange" env:"PARKING_AMQP_EXCHANGE"`
	} `yaml:"amqp"`
	Facility struct {
		Timezone          string        `yaml:"timezone" env:"PARKING_TIMEZONE"`
		RegistrationClass string        `yaml:"registrationClass" env:"PARKING_REGISTRATION_CLASS"`
		Spaces            []SpaceConfig `yaml:"spaces" env:"-"`
	} `yaml:"facility"`
	Fares struct {
		DefaultHourlyRate  string       `yaml:"defaultHourlyRate" env:"PARKING_DEFAULT_HOURLY_RATE"`
		DefaultMinimumFare string       `yaml:"defaultMinimumFare" env:"PARKING_DEFAULT_MINIMUM_FARE"`
		Schedules          []FareConfig `yaml:"schedules" env:"-"`
	} `yaml:"fares"`
	Tokens struct {
		RegistrationTTL             time.Duration `yaml:"registrationTtl" env:"PARKING_REGISTRATION_TOKEN_TTL"`
		RechargeTTL                 time.Duration `yaml:"rechargeTtl" env:"PARKING_RECHARGE_TOKEN_TTL"`
		SuggestedRechargeMultiplier int64         `yaml:"suggestedRechargeMultiplier" env:"PARKING_SUGGESTED_RECHARGE_MULTIPLIER"`
	} `yaml:"tokens"`
	Gate struct {
		AutoOpenWindow time.Duration `yaml:"autoOpenWindow" env:"PARKING_AUTO_OPEN_WINDOW"`
		EntryDeviceID  string        `yaml:"entryDeviceId" env:"PARKING_GATE_ENTRY_DEVICE_ID"`
	} `yaml:"gate"`
	WebSocket struct {
		PingInterval time.Duration `yaml:"pingInterval" env:"PARKING_WS_PING_INTERVAL"`
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"PARKING_WS_WRITE_TIMEOUT"`
	} `yaml:"websocket"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.HTTP.ShutdownTimeout = 5 * time.Second
	cfg.Storage.Driver = DriverPostgres
	cfg.Database.MaxOpenConns = 20
	cfg.Database.MaxIdleConns = 10
	cfg.Database.ConnLifetime = time.Hour
	cfg.Database.Migrate = true
	cfg.Redis.TTL = 24 * time.Hour
	cfg.AMQP.Exchange = "parking.events"
	cfg.Facility.Timezone = "UTC"
	cfg.Facility.RegistrationClass = string(models.VehicleClassCar)
	cfg.Facility.Spaces = []SpaceConfig{
		{Label: "A1", Class: string(models.VehicleClassCar), SensorChannel: 1},
		{Label: "A2", Class: string(models.VehicleClassCar), SensorChannel: 2},
		{Label: "A3", Class: string(models.VehicleClassCar), SensorChannel: 3},
	}
	cfg.Fares.DefaultHourlyRate = "5000"
	cfg.Fares.DefaultMinimumFare = "5000"
	cfg.Fares.Schedules = []FareConfig{
		{Class: string(models.VehicleClassCar), HourlyRate: "5000", MinimumFare: "5000"},
		{Class: string(models.VehicleClassMotorcycle), HourlyRate: "3000", MinimumFare: "3000"},
	}
	cfg.Tokens.RegistrationTTL = 30 * time.Minute
	cfg.Tokens.RechargeTTL = 24 * time.Hour
	cfg.Tokens.SuggestedRechargeMultiplier = 2
	cfg.Gate.AutoOpenWindow = 30 * time.Second
	cfg.WebSocket.PingInterval = 30 * time.Second
	cfg.WebSocket.WriteTimeout = 15 * time.Second
	return cfg
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := defaults()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database dsn required for postgres storage")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if !models.VehicleClass(c.Facility.RegistrationClass).Valid() {
		return fmt.Errorf("config: unknown registration class %q", c.Facility.RegistrationClass)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.DefaultFare(); err != nil {
		return err
	}
	channels := make(map[int]string, len(c.Facility.Spaces))
	for _, sp := range c.Facility.Spaces {
		if strings.TrimSpace(sp.Label) == "" {
			return errors.New("config: space label required")
		}
		if !models.VehicleClass(sp.Class).Valid() {
			return fmt.Errorf("config: space %s: unknown class %q", sp.Label, sp.Class)
		}
		if other, dup := channels[sp.SensorChannel]; dup {
			return fmt.Errorf("config: spaces %s and %s share sensor channel %d", other, sp.Label, sp.SensorChannel)
		}
		channels[sp.SensorChannel] = sp.Label
	}
	for _, f := range c.Fares.Schedules {
		if !models.VehicleClass(f.Class).Valid() {
			return fmt.Errorf("config: fare: unknown class %q", f.Class)
		}
		if _, err := money.Parse(f.HourlyRate); err != nil {
			return fmt.Errorf("config: fare %s hourly rate: %w", f.Class, err)
		}
		if _, err := money.Parse(f.MinimumFare); err != nil {
			return fmt.Errorf("config: fare %s minimum: %w", f.Class, err)
		}
	}
	if c.Tokens.RegistrationTTL < 0 || c.Tokens.RechargeTTL < 0 {
		return errors.New("config: token ttl must not be negative")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// Location returns the facility time zone used to cut calendar days.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Facility.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", name, err)
	}
	return loc, nil
}

// DefaultFare returns the schedule applied to classes without an active row.
func (c *Config) DefaultFare() (decimal.Decimal, decimal.Decimal, error) {
	rate, err := money.Parse(c.Fares.DefaultHourlyRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: default hourly rate: %w", err)
	}
	minimum, err := money.Parse(c.Fares.DefaultMinimumFare)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: default minimum fare: %w", err)
	}
	return rate, minimum, nil
}

// RedisEnabled reports whether the admission cache is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// AMQPEnabled reports whether events are published.
func (c *Config) AMQPEnabled() bool {
	return strings.TrimSpace(c.AMQP.URL) != ""
}

// ActiveAdmissionTTL returns ttl for cached admissions.
func (c *Config) ActiveAdmissionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return c.Redis.TTL
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	if c.WebSocket.PingInterval <= 0 {
		return 30 * time.Second
	}
	return c.WebSocket.PingInterval
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeout <= 0 {
		return 15 * time.Second
	}
	return c.WebSocket.WriteTimeout
}
