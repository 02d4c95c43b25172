package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jluzny/hag/internal/models"
)

// Config is the full configuration supplied once at construction.
// Thresholds, entities and defrost parameters are immutable afterwards.
type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	HomeAssistant struct {
		URL   string `mapstructure:"url"`
		Token string `mapstructure:"token"`
	} `mapstructure:"home_assistant"`

	Sensors struct {
		Indoor  string `mapstructure:"indoor"`
		Outdoor string `mapstructure:"outdoor"`
	} `mapstructure:"sensors"`

	SystemMode        models.SystemMode    `mapstructure:"system_mode"`
	EvaluationCacheMs int                  `mapstructure:"evaluation_cache_ms"`
	ActiveHours       models.ActiveHours   `mapstructure:"active_hours"`
	Heating           models.ThresholdBand `mapstructure:"heating"`
	Cooling           models.ThresholdBand `mapstructure:"cooling"`
	Defrost           *models.DefrostConfig `mapstructure:"defrost"`
	Entities          []models.HvacEntity  `mapstructure:"entities"`

	Alerts Alerts `mapstructure:"alerts"`

	Auth struct {
		SigningKey string `mapstructure:"signing_key"`
	} `mapstructure:"auth"`
}

// Alerts configures optional e-mail notification on repeated unit
// command failures. Disabled by default.
type Alerts struct {
	Enabled          bool     `mapstructure:"enabled"`
	FailureThreshold int      `mapstructure:"failure_threshold"`
	MailgunDomain    string   `mapstructure:"mailgun_domain"`
	MailgunAPIKey    string   `mapstructure:"mailgun_api_key"`
	Sender           string   `mapstructure:"sender"`
	Recipients       []string `mapstructure:"recipients"`
}

// CacheTTL returns the evaluation memoization TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.EvaluationCacheMs) * time.Millisecond
}

// Load reads configs/config.yml and unmarshals it into a validated Config.
func Load() (*Config, error) {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DB.Path == "" {
		c.DB.Path = "hag.db"
	}
	if c.SystemMode == "" {
		c.SystemMode = models.SystemAuto
	}
	if c.EvaluationCacheMs == 0 {
		c.EvaluationCacheMs = 500
	}
	if c.Alerts.FailureThreshold == 0 {
		c.Alerts.FailureThreshold = 3
	}
	if c.Auth.SigningKey == "" {
		c.Auth.SigningKey = "change-me"
	}
}

// Validate fails fast on configuration that could defeat anti-cycling
// or leave the controller without controllable units.
func (c *Config) Validate() error {
	if err := validateBand("heating", c.Heating); err != nil {
		return err
	}
	if err := validateBand("cooling", c.Cooling); err != nil {
		return err
	}
	if err := validateActiveHours(c.ActiveHours); err != nil {
		return err
	}
	switch c.SystemMode {
	case models.SystemAuto, models.SystemHeatOnly, models.SystemCoolOnly, models.SystemOff:
	default:
		return fmt.Errorf("invalid system_mode %q", c.SystemMode)
	}
	if len(c.Entities) == 0 {
		return errors.New("at least one hvac entity must be configured")
	}
	for i, e := range c.Entities {
		if e.EntityID == "" {
			return fmt.Errorf("entity %d: entity_id is required", i)
		}
	}
	if c.Defrost != nil {
		if c.Defrost.PeriodSeconds <= 0 {
			return errors.New("defrost.period_seconds must be > 0")
		}
		if c.Defrost.DurationSeconds <= 0 {
			return errors.New("defrost.duration_seconds must be > 0")
		}
	}
	if c.EvaluationCacheMs < 0 {
		return errors.New("evaluation_cache_ms must be >= 0")
	}
	if c.Sensors.Indoor == "" || c.Sensors.Outdoor == "" {
		return errors.New("sensors.indoor and sensors.outdoor are required")
	}
	return nil
}

// validateBand enforces the hysteresis invariant: the band width must
// be strictly positive or anti-cycling cannot be guaranteed.
func validateBand(name string, b models.ThresholdBand) error {
	if b.IndoorMin >= b.IndoorMax {
		return fmt.Errorf("%s: indoor_min (%.1f) must be < indoor_max (%.1f)", name, b.IndoorMin, b.IndoorMax)
	}
	if b.OutdoorMin >= b.OutdoorMax {
		return fmt.Errorf("%s: outdoor_min (%.1f) must be < outdoor_max (%.1f)", name, b.OutdoorMin, b.OutdoorMax)
	}
	return nil
}

func validateActiveHours(a models.ActiveHours) error {
	for _, h := range []int{a.Start, a.StartWeekday, a.End} {
		if h < 0 || h > 24 {
			return fmt.Errorf("active_hours values must be within 0..24, got %d", h)
		}
	}
	if a.Start >= a.End || a.StartWeekday >= a.End {
		return errors.New("active_hours start must be before end")
	}
	return nil
}
