package digithab

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/DIGIT-HABs/back/gateway"
)

// DatabaseConfig selects the storage backend. Dialect is "sqlite" or
// "postgres"; DSN is the file path for SQLite and a connection string for
// PostgreSQL.
type DatabaseConfig struct {
	Dialect string `mapstructure:"dialect"`
	DSN     string `mapstructure:"dsn"`
}

// HTTPConfig is the API listener configuration.
type HTTPConfig struct {
	Address string   `mapstructure:"address"`
	Port    string   `mapstructure:"port"`
	Origins []string `mapstructure:"origins"` // CORS allowed origins
}

// GoogleConfig holds the OAuth client for Google sign-in. Empty values leave
// the flow disabled.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// SMTPConfig holds the outgoing mail account. An empty host leaves the email
// channel disabled.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TwilioConfig holds the SMS account. An empty account SID leaves the SMS
// channel disabled.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

// StripeConfig holds the payment keys. An empty secret key leaves payments
// disabled.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// GatewayConfig is the tenant gateway listener, its routing rules, and the
// provisioned TLS pairs.
type GatewayConfig struct {
	Address      string                    `mapstructure:"address"`
	Port         string                    `mapstructure:"port"`
	Rules        []gateway.Rule            `mapstructure:"rules"`
	Certificates []gateway.CertificatePair `mapstructure:"certificates"`
}

// Config is the deployment configuration, read from config.yaml in the config
// directory. Defaults are written out on first run.
type Config struct {
	viper *viper.Viper

	ConfigDir   string `mapstructure:"config_dir"`  // Current config dir
	Environment string `mapstructure:"environment"` // "development" or "production"

	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`

	RedisAddr string `mapstructure:"redis_addr"` // Empty disables background jobs and cross-instance chat
	JWTSecret string `mapstructure:"jwt_secret"` // Generated on first run when absent

	Google GoogleConfig `mapstructure:"google"`
	SMTP   SMTPConfig   `mapstructure:"smtp"`
	Twilio TwilioConfig `mapstructure:"twilio"`
	Stripe StripeConfig `mapstructure:"stripe"`

	GeocoderURL string `mapstructure:"geocoder_url"`
	FeedBaseURL string `mapstructure:"feed_base_url"`
	ScriptHub   string `mapstructure:"script_hub"`

	UploadsDir string `mapstructure:"uploads_dir"`
	ScriptsDir string `mapstructure:"scripts_dir"`

	// WorkingHours seeds the agency working hours on first start, keyed by
	// lowercase English weekday name. The database copy is authoritative
	// afterwards.
	WorkingHours map[string]string `mapstructure:"working_hours"`

	Gateway GatewayConfig `mapstructure:"gateway"`
}

// weekdayNumbers maps config weekday names to time.Weekday values
// (0 = Sunday), the keying the scheduler uses.
var weekdayNumbers = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// WorkingHoursByWeekday converts the configured hours into the weekday-number
// form the scheduler stores. Unknown day names are rejected.
func (cfg *Config) WorkingHoursByWeekday() (map[int]string, error) {
	hours := make(map[int]string, len(cfg.WorkingHours))
	for day, window := range cfg.WorkingHours {
		number, ok := weekdayNumbers[strings.ToLower(day)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q in working hours", day)
		}
		hours[number] = window
	}
	return hours, nil
}

// AddGatewayRule adds or replaces the routing rule for a host and saves the
// configuration.
func (cfg *Config) AddGatewayRule(host, upstream string) error {
	if host == "" || upstream == "" {
		return errors.New("host and upstream are both required")
	}
	replaced := false
	for index := range cfg.Gateway.Rules {
		if cfg.Gateway.Rules[index].Host == host {
			cfg.Gateway.Rules[index].Upstream = upstream
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.Gateway.Rules = append(cfg.Gateway.Rules, gateway.Rule{Host: host, Upstream: upstream})
	}
	return cfg.save("gateway.rules", cfg.Gateway.Rules)
}

// DeleteGatewayRule removes the routing rule for a host and saves the
// configuration. Unknown hosts are rejected.
func (cfg *Config) DeleteGatewayRule(host string) error {
	kept := make([]gateway.Rule, 0, len(cfg.Gateway.Rules))
	for _, rule := range cfg.Gateway.Rules {
		if rule.Host == host {
			continue
		}
		kept = append(kept, rule)
	}
	if len(kept) == len(cfg.Gateway.Rules) {
		return fmt.Errorf("no gateway rule for host %q", host)
	}
	cfg.Gateway.Rules = kept
	return cfg.save("gateway.rules", cfg.Gateway.Rules)
}

// save writes one key back through viper and reloads the struct so the
// in-memory copy always mirrors the file.
func (cfg *Config) save(key string, value any) error {
	if cfg.viper == nil {
		return errors.New("configuration was not loaded from a config dir")
	}
	cfg.viper.Set(key, value)
	if err := cfg.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	if err := cfg.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return nil
}
