package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quantlab/backgrid/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Data    DataConfig    `mapstructure:"data"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Grid    GridConfig    `mapstructure:"grid"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// DataConfig points at the local pick/bar/VIX data files.
type DataConfig struct {
	PicksFile string `mapstructure:"picks_file"`
	BarsFile  string `mapstructure:"bars_file"`
	VIXFile   string `mapstructure:"vix_file"`
}

// EngineConfig holds single-backtest defaults. Callers may override any of
// these per request.
type EngineConfig struct {
	InitialCapital  float64 `mapstructure:"initial_capital"`
	EmbargoDays     int     `mapstructure:"embargo_days"`
	SlippagePct     float64 `mapstructure:"slippage_pct"`
	PositionSizePct float64 `mapstructure:"position_size_pct"`
	CommissionModel string  `mapstructure:"commission_model"`
}

// GridConfig shapes the parameter space and batch execution.
type GridConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	BatchBudget      time.Duration `mapstructure:"batch_budget"`
	Workers          int           `mapstructure:"workers"`
	TakeProfits      []float64     `mapstructure:"take_profits"`
	StopLosses       []float64     `mapstructure:"stop_losses"`
	HoldDays         []int         `mapstructure:"hold_days"`
	CommissionModels []string      `mapstructure:"commission_models"`
}

type StorageConfig struct {
	GridDSN string        `mapstructure:"grid_dsn"` // sqlite file path; empty = in-memory store
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig selects the cold-export backend for completed grid runs.
type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // for localfs
	S3      S3Config `mapstructure:"s3"`   // for s3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Engine: EngineConfig{
			InitialCapital:  10000,
			EmbargoDays:     2,
			SlippagePct:     0.1,
			PositionSizePct: 10,
			CommissionModel: "questrade",
		},
		Grid: GridConfig{
			BatchSize:        250,
			BatchBudget:      25 * time.Second,
			Workers:          4,
			TakeProfits:      []float64{5, 10, 15, 20, 25, core.DisabledThreshold},
			StopLosses:       []float64{3, 5, 8, 10, core.DisabledThreshold},
			HoldDays:         []int{5, 10, 20, 40, 60},
			CommissionModels: []string{"questrade", "zero"},
		},
		Storage: StorageConfig{
			Archive: ArchiveConfig{
				Type: "localfs",
				Path: "archive",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Engine.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %f", c.Engine.InitialCapital))
	}
	if c.Engine.PositionSizePct <= 0 || c.Engine.PositionSizePct > 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("position_size_pct must be in (0, 100], got %f", c.Engine.PositionSizePct))
	}
	if c.Engine.EmbargoDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("embargo_days cannot be negative, got %d", c.Engine.EmbargoDays))
	}

	if c.Grid.BatchSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("batch_size must be at least 1, got %d", c.Grid.BatchSize))
	}
	if c.Grid.Workers < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("workers must be at least 1, got %d", c.Grid.Workers))
	}
	if len(c.Grid.TakeProfits) == 0 || len(c.Grid.StopLosses) == 0 ||
		len(c.Grid.HoldDays) == 0 || len(c.Grid.CommissionModels) == 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("grid take_profits, stop_losses, hold_days and commission_models must be non-empty"))
	}

	if c.Storage.Archive.Enabled && c.Storage.Archive.Type == "s3" && c.Storage.Archive.S3.Bucket == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("s3 bucket required when archive type is s3"))
	}

	return nil
}
