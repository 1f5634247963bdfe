// Package conf loads and validates application settings from YAML config
// files and VULNWATCH_* environment variables via Viper.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider kinds for the email delivery slots.
const (
	EmailProviderAPI      = "api"
	EmailProviderSMTP     = "smtp"
	EmailProviderDisabled = "disabled"
)

// Settings is the root configuration object.
type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Database DatabaseSettings `mapstructure:"database"`
	Email    EmailSettings    `mapstructure:"email"`
	Alerting AlertingSettings `mapstructure:"alerting"`
	Push     PushSettings     `mapstructure:"push"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Host          string  `mapstructure:"host"`
	Port          int     `mapstructure:"port"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

// DatabaseSettings configures the datastore.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "mysql"
	DSN    string `mapstructure:"dsn"`
}

// EmailSettings configures the email delivery engine.
type EmailSettings struct {
	PrimaryProvider   string   `mapstructure:"primary_provider"`   // api|smtp|disabled
	SecondaryProvider string   `mapstructure:"secondary_provider"` // api|smtp|disabled
	FallbackEnabled   bool     `mapstructure:"fallback_enabled"`
	FromAddress       string   `mapstructure:"from_address"`
	FromName          string   `mapstructure:"from_name"`
	APIKey            string   `mapstructure:"api_key"`
	APIBaseURL        string   `mapstructure:"api_base_url"`
	SMTPHost          string   `mapstructure:"smtp_host"`
	SMTPPort          int      `mapstructure:"smtp_port"`
	SMTPUsername      string   `mapstructure:"smtp_username"`
	SMTPPassword      string   `mapstructure:"smtp_password"`
	MaxRetries        int      `mapstructure:"max_retries"`
	RetryDelay        Duration `mapstructure:"retry_delay"`
	RateLimitPerSec   int      `mapstructure:"rate_limit_per_second"`
	BatchSize         int      `mapstructure:"batch_size"`
	BatchDelay        Duration `mapstructure:"batch_delay"`
	QueueSweepEvery   Duration `mapstructure:"queue_sweep_interval"`
	SendTimeout       Duration `mapstructure:"send_timeout"`
}

// AlertingSettings configures the trigger coordinator.
type AlertingSettings struct {
	MaxRulesPerEvent     int      `mapstructure:"max_rules_per_event"`
	TriggerRetentionDays int      `mapstructure:"trigger_retention_days"`
	DedupTTL             Duration `mapstructure:"dedup_ttl"`
	RemoteBaseURL        string   `mapstructure:"remote_base_url"` // non-empty selects the HTTP rule store
	RemoteTimeout        Duration `mapstructure:"remote_timeout"`

	// Recipients maps rule owner IDs to email addresses; DefaultRecipient
	// catches owners without an entry.
	Recipients       map[string]string `mapstructure:"recipients"`
	DefaultRecipient string            `mapstructure:"default_recipient"`
}

// PushSettings configures the push notification channel.
type PushSettings struct {
	URLs    []string `mapstructure:"urls"` // shoutrrr service URLs
	Timeout Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.rate_per_second", 50.0)
	v.SetDefault("server.rate_burst", 100)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vulnwatch.db")

	v.SetDefault("email.primary_provider", EmailProviderDisabled)
	v.SetDefault("email.secondary_provider", EmailProviderDisabled)
	v.SetDefault("email.fallback_enabled", true)
	v.SetDefault("email.from_address", "alerts@vulnwatch.local")
	v.SetDefault("email.from_name", "VulnWatch Alerts")
	v.SetDefault("email.api_base_url", "https://api.resend.com")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.max_retries", 3)
	v.SetDefault("email.retry_delay", "1m")
	v.SetDefault("email.rate_limit_per_second", 10)
	v.SetDefault("email.batch_size", 50)
	v.SetDefault("email.batch_delay", "1s")
	v.SetDefault("email.queue_sweep_interval", "10s")
	v.SetDefault("email.send_timeout", "30s")

	v.SetDefault("alerting.max_rules_per_event", 10)
	v.SetDefault("alerting.trigger_retention_days", 90)
	v.SetDefault("alerting.dedup_ttl", "10m")
	v.SetDefault("alerting.remote_timeout", "30s")

	v.SetDefault("push.timeout", "30s")
}

// Load reads settings from the given config file (optional, "" means
// defaults + environment only) and the VULNWATCH_* environment.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("vulnwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks cross-field constraints that Viper cannot express.
func (s *Settings) Validate() error {
	for slot, p := range map[string]string{
		"primary":   s.Email.PrimaryProvider,
		"secondary": s.Email.SecondaryProvider,
	} {
		switch p {
		case EmailProviderAPI, EmailProviderSMTP, EmailProviderDisabled:
		default:
			return fmt.Errorf("invalid %s email provider %q (valid: api, smtp, disabled)", slot, p)
		}
	}
	if s.Email.MaxRetries < 0 {
		return fmt.Errorf("email.max_retries must be >= 0, got %d", s.Email.MaxRetries)
	}
	if s.Email.RateLimitPerSec <= 0 {
		return fmt.Errorf("email.rate_limit_per_second must be > 0, got %d", s.Email.RateLimitPerSec)
	}
	if s.Email.QueueSweepEvery.Std() < time.Second {
		return fmt.Errorf("email.queue_sweep_interval must be >= 1s, got %s", s.Email.QueueSweepEvery.Std())
	}
	if s.Alerting.MaxRulesPerEvent <= 0 {
		return fmt.Errorf("alerting.max_rules_per_event must be > 0, got %d", s.Alerting.MaxRulesPerEvent)
	}
	return nil
}
