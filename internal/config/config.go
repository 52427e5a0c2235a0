// Package config loads the controller configuration from an optional YAML
// file and LASERGATE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Off disables a listener when used as its address.
const Off = "off"

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

type DBConfig struct {
	Path string `yaml:"path"` // e.g. "./data/lasergate.db"
}

type HTTPConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client
	Burst     int     `yaml:"burst"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// TimingConfig holds the loop cadences and countdowns.
type TimingConfig struct {
	IdlePoll       time.Duration `yaml:"idle_poll"`
	OnPoll         time.Duration `yaml:"on_poll"`
	EnrollPoll     time.Duration `yaml:"enroll_poll"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	AddUserTimeout time.Duration `yaml:"add_user_timeout"`
	ConfirmWindow  time.Duration `yaml:"confirm_window"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

// PolicyConfig holds entitlement rules.
type PolicyConfig struct {
	ValidityDays       int  `yaml:"validity_days"`
	PurgeIntervalHours int  `yaml:"purge_interval_hours"` // 0 = never purge
	PurgeIncludeAdmins bool `yaml:"purge_include_admins"`
}

// EnrollmentConfig selects which fields the on-device enrollment asks for.
type EnrollmentConfig struct {
	CollectSecondaryID bool `yaml:"collect_secondary_id"`
	SecondaryIDDigits  int  `yaml:"secondary_id_digits"`
}

type HardwareConfig struct {
	Backend      string `yaml:"backend"`  // "sim"
	Keyboard     string `yaml:"keyboard"` // "none" | "terminal"
	DisplayWidth int    `yaml:"display_width"`
}

type Config struct {
	Env string `yaml:"env"` // "dev" | "prod"

	Log        LogConfig        `yaml:"log"`
	DB         DBConfig         `yaml:"db"`
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Timing     TimingConfig     `yaml:"timing"`
	Policy     PolicyConfig     `yaml:"policy"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Hardware   HardwareConfig   `yaml:"hardware"`

	// DevAdminCards are seeded as admin records when Env is "dev".
	DevAdminCards []string `yaml:"dev_admin_cards"`
}

// Validity is the entitlement window granted on enrollment.
func (c Config) Validity() time.Duration {
	return time.Duration(c.Policy.ValidityDays) * 24 * time.Hour
}

// Load reads path (when non-empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (Config, error) {
	var c Config

	if path = strings.TrimSpace(path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&c)
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func applyEnv(c *Config) {
	c.Env = getenvDefault("LASERGATE_ENV", c.Env)
	c.Log.Level = getenvDefault("LASERGATE_LOG_LEVEL", c.Log.Level)
	c.Log.File = getenvDefault("LASERGATE_LOG_FILE", c.Log.File)
	c.DB.Path = getenvDefault("LASERGATE_DB_PATH", c.DB.Path)
	c.HTTP.Addr = getenvDefault("LASERGATE_HTTP_ADDR", c.HTTP.Addr)
	c.GRPC.Addr = getenvDefault("LASERGATE_GRPC_ADDR", c.GRPC.Addr)
	c.Hardware.Keyboard = getenvDefault("LASERGATE_KEYBOARD", c.Hardware.Keyboard)

	c.Policy.ValidityDays = getenvInt("LASERGATE_VALIDITY_DAYS", c.Policy.ValidityDays)
	c.Policy.PurgeIntervalHours = getenvInt("LASERGATE_PURGE_INTERVAL_HOURS", c.Policy.PurgeIntervalHours)
	c.Timing.GracePeriod = getenvDuration("LASERGATE_GRACE_PERIOD", c.Timing.GracePeriod)

	if cards := splitCSV(os.Getenv("LASERGATE_DEV_ADMIN_CARDS")); cards != nil {
		c.DevAdminCards = cards
	}
}

func applyDefaults(c *Config) {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DB.Path == "" {
		c.DB.Path = "./data/lasergate.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 20
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = 40
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = "127.0.0.1:9090"
	}

	t := &c.Timing
	if t.IdlePoll == 0 {
		t.IdlePoll = 500 * time.Millisecond
	}
	if t.OnPoll == 0 {
		t.OnPoll = time.Second
	}
	if t.EnrollPoll == 0 {
		t.EnrollPoll = time.Second
	}
	if t.GracePeriod == 0 {
		t.GracePeriod = 20 * time.Second
	}
	if t.AddUserTimeout == 0 {
		t.AddUserTimeout = 30 * time.Second
	}
	if t.ConfirmWindow == 0 {
		t.ConfirmWindow = 7 * time.Second
	}
	if t.CaptureTimeout == 0 {
		t.CaptureTimeout = 2 * time.Minute
	}

	if c.Policy.ValidityDays == 0 {
		c.Policy.ValidityDays = 180
	}
	if c.Enrollment.SecondaryIDDigits == 0 {
		c.Enrollment.SecondaryIDDigits = 9
	}
	if c.Hardware.Backend == "" {
		c.Hardware.Backend = "sim"
	}
	if c.Hardware.Keyboard == "" {
		c.Hardware.Keyboard = "none"
	}
	if c.Hardware.DisplayWidth == 0 {
		c.Hardware.DisplayWidth = 20
	}
}

func validate(c *Config) error {
	if _, err := parseLevelName(c.Log.Level); err != nil {
		return err
	}
	t := c.Timing
	for name, d := range map[string]time.Duration{
		"timing.idle_poll":        t.IdlePoll,
		"timing.on_poll":          t.OnPoll,
		"timing.enroll_poll":      t.EnrollPoll,
		"timing.grace_period":     t.GracePeriod,
		"timing.add_user_timeout": t.AddUserTimeout,
		"timing.confirm_window":   t.ConfirmWindow,
		"timing.capture_timeout":  t.CaptureTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if t.GracePeriod < t.OnPoll {
		return errors.New("timing.grace_period must be at least timing.on_poll")
	}
	if c.Policy.ValidityDays < 0 {
		return errors.New("policy.validity_days must not be negative")
	}
	if c.Enrollment.SecondaryIDDigits < 0 {
		return errors.New("enrollment.secondary_id_digits must not be negative")
	}
	if c.Hardware.Backend != "sim" {
		return fmt.Errorf("hardware.backend %q is not supported", c.Hardware.Backend)
	}
	switch c.Hardware.Keyboard {
	case "none", "terminal":
	default:
		return fmt.Errorf("hardware.keyboard %q is not supported", c.Hardware.Keyboard)
	}
	if c.Hardware.DisplayWidth < 8 {
		return errors.New("hardware.display_width must be at least 8")
	}
	return nil
}

// parseLevelName keeps this package free of the logging import; the set
// mirrors logging.ParseLevel.
func parseLevelName(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "warning", "error", "err":
		return s, nil
	}
	return "", fmt.Errorf("log.level %q is invalid", s)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
