package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Endpoints          []string      `yaml:"endpoints" validate:"min=1,dive,required"`
	Token              string        `yaml:"token"`
	Role               string        `yaml:"role" validate:"oneof=driver rider"`
	BackendURL         string        `yaml:"backend_url" validate:"omitempty,url"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" validate:"gt=0"`
	Heartbeat          time.Duration `yaml:"heartbeat" validate:"gt=0"`
	SimTick            time.Duration `yaml:"sim_tick" validate:"gt=0"`
	SimSpeedMps        float64       `yaml:"sim_speed_mps" validate:"gt=0"`
	ArrivalThresholdM  float64       `yaml:"arrival_threshold_m" validate:"gt=0"`
	AssumedSpeedKph    float64       `yaml:"assumed_speed_kph" validate:"gt=0"`
	SaveInterval       time.Duration `yaml:"save_interval" validate:"gt=0"`
	RecordTTL          time.Duration `yaml:"record_ttl" validate:"gt=0"`
	StoreBackend       string        `yaml:"store_backend" validate:"oneof=redis postgres"`
	StoreKey           string        `yaml:"store_key" validate:"required"`
	RedisAddr          string        `yaml:"redis_addr" validate:"required_if=StoreBackend redis"`
	RedisPassword      string        `yaml:"redis_password"`
	DatabaseURL        string        `yaml:"database_url" validate:"required_if=StoreBackend postgres"`
	HTTPAddr           string        `yaml:"http_addr"`
	MetricsAddr        string        `yaml:"metrics_addr"`
	LogTransportFrames bool          `yaml:"log_transport_frames"`
	// SimulateTrip is a JSON ride payload to simulate when nothing is resumed.
	SimulateTrip string `yaml:"simulate_trip"`
}

func defaults() *Config {
	return &Config{
		Endpoints:         []string{"ws://127.0.0.1:8080/realtime"},
		Role:              "driver",
		ConnectTimeout:    15 * time.Second,
		Heartbeat:         10 * time.Second,
		SimTick:           time.Second,
		SimSpeedMps:       13.9,
		ArrivalThresholdM: 30,
		AssumedSpeedKph:   30,
		SaveInterval:      5 * time.Second,
		RecordTTL:         24 * time.Hour,
		StoreBackend:      "redis",
		StoreKey:          "active_trip",
		RedisAddr:         "127.0.0.1:6379",
		HTTPAddr:          ":8090",
	}
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := defaults()

	// Optional YAML file; environment variables override it
	if path := os.Getenv("TRACKER_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("TRACKER_ENDPOINTS"); v != "" {
		cfg.Endpoints = splitList(v)
	}
	cfg.Token = getenvDefault("TRACKER_TOKEN", cfg.Token)
	cfg.Role = strings.ToLower(getenvDefault("TRACKER_ROLE", cfg.Role))
	cfg.BackendURL = getenvDefault("BACKEND_URL", cfg.BackendURL)

	var err error
	if cfg.ConnectTimeout, err = envMillis("CONNECT_TIMEOUT_MS", cfg.ConnectTimeout); err != nil {
		return nil, err
	}
	if cfg.Heartbeat, err = envMillis("HEARTBEAT_INTERVAL_MS", cfg.Heartbeat); err != nil {
		return nil, err
	}
	if cfg.SimTick, err = envMillis("SIM_TICK_MS", cfg.SimTick); err != nil {
		return nil, err
	}
	if cfg.SaveInterval, err = envMillis("SAVE_INTERVAL_MS", cfg.SaveInterval); err != nil {
		return nil, err
	}
	if cfg.SimSpeedMps, err = envFloat("SIM_SPEED_MPS", cfg.SimSpeedMps); err != nil {
		return nil, err
	}
	if cfg.ArrivalThresholdM, err = envFloat("ARRIVAL_THRESHOLD_M", cfg.ArrivalThresholdM); err != nil {
		return nil, err
	}
	if cfg.AssumedSpeedKph, err = envFloat("ASSUMED_SPEED_KPH", cfg.AssumedSpeedKph); err != nil {
		return nil, err
	}

	// Record TTL (hours)
	if v := os.Getenv("RECORD_TTL_HOURS"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return nil, fmt.Errorf("invalid RECORD_TTL_HOURS: %q", v)
		}
		cfg.RecordTTL = time.Duration(h) * time.Hour
	}

	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", cfg.StoreBackend))
	cfg.StoreKey = getenvDefault("STORE_KEY", cfg.StoreKey)
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenvDefault("REDIS_PASSWORD", cfg.RedisPassword)

	// Postgres DSN: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"), cfg.DatabaseURL)
	if cfg.DatabaseURL == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, os.Getenv("PGDATABASE"), sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, os.Getenv("PGDATABASE"), sslmode)
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	if v := os.Getenv("LOG_TRANSPORT_FRAMES"); v != "" {
		cfg.LogTransportFrames = parseBool(v)
	}
	cfg.SimulateTrip = getenvDefault("SIMULATE_TRIP", cfg.SimulateTrip)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and reports every failing field.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return err
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func envMillis(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func envFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
