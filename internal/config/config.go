package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile    = "COLLAB_CONFIG_FILE"
	EnvHTTPAddr      = "COLLAB_GATEWAY_HTTP_ADDR"
	EnvDBDriver      = "COLLAB_GATEWAY_DB_DRIVER"
	EnvDBDSN         = "COLLAB_GATEWAY_DB_DSN"
	EnvAuthSecret    = "COLLAB_GATEWAY_AUTH_SECRET"
	EnvPresenceGrace = "COLLAB_GATEWAY_PRESENCE_GRACE"
	EnvSweepInterval = "COLLAB_GATEWAY_SWEEP_INTERVAL"
	EnvWSRateRPS     = "COLLAB_GATEWAY_WS_RATE_RPS"
	EnvWSRateBurst   = "COLLAB_GATEWAY_WS_RATE_BURST"
)

const (
	DefaultHTTPAddr      = ":8080"
	DefaultDBDriver      = "sqlite"
	DefaultDBDSN         = "collab.db"
	DefaultPresenceGrace = 60 * time.Second
	DefaultSweepInterval = 30 * time.Second
	DefaultWSRateRPS     = 5.0
	DefaultWSRateBurst   = 10
)

type Config struct {
	HTTPAddr   string
	DBDriver   string
	DBDSN      string
	AuthSecret string

	// PresenceGrace is how long a user stays online after their last
	// heartbeat once all connections are gone.
	PresenceGrace time.Duration
	SweepInterval time.Duration

	WSRateRPS   float64
	WSRateBurst int
}

type fileConfig struct {
	HTTPAddr      string  `yaml:"http_addr"`
	DBDriver      string  `yaml:"db_driver"`
	DBDSN         string  `yaml:"db_dsn"`
	AuthSecret    string  `yaml:"auth_secret"`
	PresenceGrace string  `yaml:"presence_grace"`
	SweepInterval string  `yaml:"sweep_interval"`
	WSRateRPS     float64 `yaml:"ws_rate_rps"`
	WSRateBurst   int     `yaml:"ws_rate_burst"`
}

func Default() Config {
	return Config{
		HTTPAddr:      DefaultHTTPAddr,
		DBDriver:      DefaultDBDriver,
		DBDSN:         DefaultDBDSN,
		PresenceGrace: DefaultPresenceGrace,
		SweepInterval: DefaultSweepInterval,
		WSRateRPS:     DefaultWSRateRPS,
		WSRateBurst:   DefaultWSRateBurst,
	}
}

// Load resolves configuration from an optional YAML file, then applies env
// overrides on top. A missing file is not an error unless it was named
// explicitly via COLLAB_CONFIG_FILE.
func Load() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv(EnvConfigFile))
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}
	if err := applyFile(&cfg, path, explicit); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.DBDriver, fc.DBDriver)
	setString(&cfg.DBDSN, fc.DBDSN)
	setString(&cfg.AuthSecret, fc.AuthSecret)
	if err := setDuration(&cfg.PresenceGrace, fc.PresenceGrace, "presence_grace"); err != nil {
		return err
	}
	if err := setDuration(&cfg.SweepInterval, fc.SweepInterval, "sweep_interval"); err != nil {
		return err
	}
	if fc.WSRateRPS > 0 {
		cfg.WSRateRPS = fc.WSRateRPS
	}
	if fc.WSRateBurst > 0 {
		cfg.WSRateBurst = fc.WSRateBurst
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, os.Getenv(EnvHTTPAddr))
	setString(&cfg.DBDriver, os.Getenv(EnvDBDriver))
	setString(&cfg.DBDSN, os.Getenv(EnvDBDSN))
	setString(&cfg.AuthSecret, os.Getenv(EnvAuthSecret))

	if raw := strings.TrimSpace(os.Getenv(EnvPresenceGrace)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.PresenceGrace = d
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvSweepInterval)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvWSRateRPS)); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			cfg.WSRateRPS = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvWSRateBurst)); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.WSRateBurst = v
		}
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%s must not be empty", EnvHTTPAddr)
	}
	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%s must be sqlite or postgres", EnvDBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("%s must not be empty", EnvDBDSN)
	}
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("%s must not be empty", EnvAuthSecret)
	}
	if c.PresenceGrace <= 0 {
		return fmt.Errorf("%s must be > 0", EnvPresenceGrace)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%s must be > 0", EnvSweepInterval)
	}
	if c.WSRateRPS <= 0 || c.WSRateBurst <= 0 {
		return fmt.Errorf("websocket rate limit must be > 0")
	}
	return nil
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw, field string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	if d > 0 {
		*dst = d
	}
	return nil
}
