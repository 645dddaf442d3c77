// Package config loads service configuration from the environment (ZR_
// prefix) and an optional .env file, with validated defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	DataRoot     string `mapstructure:"data_root" validate:"required"`
	CustomerFile string `mapstructure:"customer_file" validate:"required"`
	DepotFile    string `mapstructure:"depot_file" validate:"required"`

	Port      int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogPretty bool   `mapstructure:"log_pretty"`

	// Matrix provider. An empty base URL selects fallback-only mode.
	MatrixBaseURL       string  `mapstructure:"matrix_base_url" validate:"omitempty,url"`
	MatrixProfile       string  `mapstructure:"matrix_profile" validate:"required"`
	MatrixMaxRetries    int     `mapstructure:"matrix_max_retries" validate:"gte=1"`
	MatrixBackoffSecs   float64 `mapstructure:"matrix_backoff_seconds" validate:"gt=0"`
	MatrixChunkSize     int     `mapstructure:"matrix_chunk_size" validate:"gte=2"`
	MatrixConcurrency   int     `mapstructure:"matrix_concurrency" validate:"gte=1"`
	CacheDatabaseURL    string  `mapstructure:"cache_database_url"`
	CacheSqlitePath     string  `mapstructure:"cache_sqlite_path"`

	WorkingDays          []string `mapstructure:"working_days" validate:"min=1,max=7"`
	SolverTimeLimitSecs  float64  `mapstructure:"solver_time_limit_seconds" validate:"gt=0"`
	BalanceToleranceDflt float64  `mapstructure:"balance_tolerance_default" validate:"gt=0,lt=1"`
}

// MatrixBackoff returns the retry backoff as a duration.
func (c Config) MatrixBackoff() time.Duration {
	return time.Duration(c.MatrixBackoffSecs * float64(time.Second))
}

// SolverTimeLimit returns the default solver budget as a duration.
func (c Config) SolverTimeLimit() time.Duration {
	return time.Duration(c.SolverTimeLimitSecs * float64(time.Second))
}

// Load reads .env (when present), environment variables, and defaults.
func Load() (Config, error) {
	// .env feeds the process environment; real env vars win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ZR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// AutomaticEnv resolves keys on access; BindEnv makes Unmarshal see them.
	for _, key := range []string{
		"data_root", "customer_file", "depot_file",
		"port", "log_level", "log_pretty",
		"matrix_base_url", "matrix_profile", "matrix_max_retries",
		"matrix_backoff_seconds", "matrix_chunk_size", "matrix_concurrency",
		"cache_database_url", "cache_sqlite_path",
		"working_days", "solver_time_limit_seconds", "balance_tolerance_default",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Allow comma-separated day lists from the environment.
	if len(cfg.WorkingDays) == 1 && strings.Contains(cfg.WorkingDays[0], ",") {
		cfg.WorkingDays = splitDays(cfg.WorkingDays[0])
	}
	for i, d := range cfg.WorkingDays {
		cfg.WorkingDays[i] = strings.ToUpper(strings.TrimSpace(d))
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_root", "data")
	v.SetDefault("customer_file", "customers.csv")
	v.SetDefault("depot_file", "depots.csv")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("matrix_base_url", "")
	v.SetDefault("matrix_profile", "driving")
	v.SetDefault("matrix_max_retries", 4)
	v.SetDefault("matrix_backoff_seconds", 1.0)
	v.SetDefault("matrix_chunk_size", 100)
	v.SetDefault("matrix_concurrency", 4)
	v.SetDefault("cache_database_url", "")
	v.SetDefault("cache_sqlite_path", "")
	v.SetDefault("working_days", []string{"SUN", "MON", "TUE", "WED", "THU", "FRI"})
	v.SetDefault("solver_time_limit_seconds", 30.0)
	v.SetDefault("balance_tolerance_default", 0.20)
}

func splitDays(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
