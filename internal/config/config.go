// Package config loads runtime settings from flags, OBRAS_* environment
// variables, an optional obras.yaml and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. OBRAS_ADDR.
const EnvPrefix = "OBRAS"

// Keys understood by Load.
const (
	KeyAddr                    = "addr"
	KeyDBPath                  = "db_path"
	KeyStaticDir               = "static_dir"
	KeyLogLevel                = "log_level"
	KeyLogFormat               = "log_format"
	KeyTimezone                = "timezone"
	KeyCORSOrigins             = "cors_origins"
	KeyNeedsDataRequireStarted = "needs_data_require_started"
	KeyShutdownTimeout         = "shutdown_timeout"
)

// Config is the resolved application configuration.
type Config struct {
	Addr                    string
	DBPath                  string
	StaticDir               string
	LogLevel                slog.Level
	LogFormat               string
	Timezone                string
	CORSOrigins             []string
	NeedsDataRequireStarted bool
	ShutdownTimeout         time.Duration

	loc *time.Location
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyDBPath, "data/obras.db")
	v.SetDefault(KeyStaticDir, "web/dist")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyTimezone, "")
	v.SetDefault(KeyCORSOrigins, "*")
	v.SetDefault(KeyNeedsDataRequireStarted, true)
	v.SetDefault(KeyShutdownTimeout, 5*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv reads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration. When configFile is empty an obras.yaml in
// the working directory is used if present; an explicit file must exist.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("obras")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Addr:                    strings.TrimSpace(v.GetString(KeyAddr)),
		DBPath:                  strings.TrimSpace(v.GetString(KeyDBPath)),
		StaticDir:               strings.TrimSpace(v.GetString(KeyStaticDir)),
		LogFormat:               strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		Timezone:                strings.TrimSpace(v.GetString(KeyTimezone)),
		CORSOrigins:             splitList(v.GetStringSlice(KeyCORSOrigins)),
		NeedsDataRequireStarted: v.GetBool(KeyNeedsDataRequireStarted),
		ShutdownTimeout:         v.GetDuration(KeyShutdownTimeout),
	}

	if cfg.Addr == "" {
		return Config{}, fmt.Errorf("%s must not be empty", KeyAddr)
	}
	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("%s must not be empty", KeyDBPath)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, cfg.LogFormat)
	}
	for _, origin := range cfg.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return Config{}, fmt.Errorf("%s: origin %q must be * or start with http:// or https://", KeyCORSOrigins, origin)
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", KeyShutdownTimeout)
	}

	cfg.loc = time.Local
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", KeyTimezone, err)
		}
		cfg.loc = loc
	}
	return cfg, nil
}

// Location is the zone used for "today" and for date-only inputs.
func (c Config) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
