package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Database struct {
	Driver      string
	URL         string
	SQLitePath  string
	AutoMigrate bool
}

type Auth struct {
	Disabled       bool
	ClerkSecretKey string
	DevOwnerID     string
}

type Engine struct {
	HealthRecovery  float64
	HealthDecay     float64
	HeatmapDays     int
	DefaultTimezone *time.Location
}

type Server struct {
	Port           string
	RateLimitRPS   float64
	RateLimitBurst int
	MetricsUser    string
	MetricsPass    string
	PprofSecret    string
}

type Logging struct {
	Level string
	File  string
}

type Config struct {
	Database Database
	Auth     Auth
	Engine   Engine
	Server   Server
	Logging  Logging
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3333")
	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "habitpulse.db")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("AUTH_DISABLED", false)
	v.SetDefault("DEV_OWNER_ID", "dev-owner")
	v.SetDefault("DEFAULT_TIMEZONE", "UTC")
	v.SetDefault("HEALTH_RECOVERY", 10)
	v.SetDefault("HEALTH_DECAY", 15)
	v.SetDefault("HEATMAP_DAYS", 90)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("LOG_LEVEL", "info")
}

// LoadDotEnv reads .env into the process environment. A missing file is
// reported but not fatal.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Database: Database{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_DRIVER"))),
			URL:         v.GetString("DATABASE_URL"),
			SQLitePath:  v.GetString("SQLITE_PATH"),
			AutoMigrate: v.GetBool("AUTO_MIGRATE"),
		},
		Auth: Auth{
			Disabled:       v.GetBool("AUTH_DISABLED"),
			ClerkSecretKey: v.GetString("CLERK_SECRET_KEY"),
			DevOwnerID:     v.GetString("DEV_OWNER_ID"),
		},
		Engine: Engine{
			HealthRecovery: v.GetFloat64("HEALTH_RECOVERY"),
			HealthDecay:    v.GetFloat64("HEALTH_DECAY"),
			HeatmapDays:    v.GetInt("HEATMAP_DAYS"),
		},
		Server: Server{
			Port:           v.GetString("PORT"),
			RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
			MetricsUser:    v.GetString("METRICS_USER"),
			MetricsPass:    v.GetString("METRICS_PASS"),
			PprofSecret:    v.GetString("PPROF_SECRET"),
		},
		Logging: Logging{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
	}

	loc, err := time.LoadLocation(v.GetString("DEFAULT_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	cfg.Engine.DefaultTimezone = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL environment variable is not set"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported", c.Database.Driver))
	}

	if !c.Auth.Disabled && c.Auth.ClerkSecretKey == "" {
		errs = append(errs, errors.New("CLERK_SECRET_KEY environment variable is not set"))
	}
	if c.Auth.Disabled && c.Auth.DevOwnerID == "" {
		errs = append(errs, errors.New("DEV_OWNER_ID is required when AUTH_DISABLED is set"))
	}
	if c.Engine.HealthRecovery <= 0 || c.Engine.HealthDecay <= 0 {
		errs = append(errs, errors.New("HEALTH_RECOVERY and HEALTH_DECAY must be positive"))
	}
	if c.Engine.HeatmapDays < 1 || c.Engine.HeatmapDays > 366 {
		errs = append(errs, fmt.Errorf("HEATMAP_DAYS must be between 1 and 366, got %d", c.Engine.HeatmapDays))
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}
