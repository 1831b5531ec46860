// Package config loads server configuration from YAML and the environment.
//
// Precedence, lowest first: defaults, YAML file (with ${VAR} expansion),
// TUTORLEDGER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TUTORLEDGER_"

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Billing   BillingConfig   `yaml:"billing"`
	Payroll   PayrollConfig   `yaml:"payroll"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // SQLite path, ":memory:" for a throwaway database
}

// BillingConfig feeds invoice.Policy. Rates are percentages written as
// strings ("20", "5.5") so they keep their exact decimal value.
type BillingConfig struct {
	Currency               string `yaml:"currency"`
	PaymentTermDays        int    `yaml:"payment_term_days"`
	GracePeriodDays        int    `yaml:"grace_period_days"`
	ReminderOffsets        []int  `yaml:"reminder_offsets"`
	DefaultTaxRate         string `yaml:"default_tax_rate"`
	AcademicYearStartMonth int    `yaml:"academic_year_start_month"`
}

// PayrollConfig feeds payout.Policy.
type PayrollConfig struct {
	TaxRate    string `yaml:"tax_rate"`
	SocialRate string `yaml:"social_rate"`
	RulesFile  string `yaml:"rules_file"` // JSON, see factory.RuleFactory
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads a YAML file, applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv builds a configuration from defaults and the environment only.
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path when it exists, the environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = parseBool(v)
		}
	}

	str("SERVER_HOST", &cfg.Server.Host)
	if err := num("SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := dur("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout); err != nil {
		return err
	}
	if err := dur("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	str("DATABASE_DSN", &cfg.Database.DSN)

	str("BILLING_CURRENCY", &cfg.Billing.Currency)
	if err := num("BILLING_PAYMENT_TERM_DAYS", &cfg.Billing.PaymentTermDays); err != nil {
		return err
	}
	if err := num("BILLING_GRACE_PERIOD_DAYS", &cfg.Billing.GracePeriodDays); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "BILLING_REMINDER_OFFSETS"); v != "" {
		offsets, err := parseInts(v)
		if err != nil {
			return fmt.Errorf("%sBILLING_REMINDER_OFFSETS: %w", EnvPrefix, err)
		}
		cfg.Billing.ReminderOffsets = offsets
	}
	str("BILLING_DEFAULT_TAX_RATE", &cfg.Billing.DefaultTaxRate)
	if err := num("BILLING_ACADEMIC_YEAR_START_MONTH", &cfg.Billing.AcademicYearStartMonth); err != nil {
		return err
	}

	str("PAYROLL_TAX_RATE", &cfg.Payroll.TaxRate)
	str("PAYROLL_SOCIAL_RATE", &cfg.Payroll.SocialRate)
	str("PAYROLL_RULES_FILE", &cfg.Payroll.RulesFile)

	flag("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	if err := dur("SCHEDULER_INTERVAL", &cfg.Scheduler.Interval); err != nil {
		return err
	}

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	flag("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_PATH", &cfg.Metrics.Path)
	return nil
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "tutorledger.db"
	}

	defaults := invoice.DefaultPolicy()
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = defaults.Currency
	}
	if cfg.Billing.PaymentTermDays == 0 {
		cfg.Billing.PaymentTermDays = defaults.PaymentTermDays
	}
	if len(cfg.Billing.ReminderOffsets) == 0 {
		cfg.Billing.ReminderOffsets = append([]int(nil), defaults.ReminderOffsets...)
	}
	if cfg.Billing.DefaultTaxRate == "" {
		cfg.Billing.DefaultTaxRate = "0"
	}
	if cfg.Billing.AcademicYearStartMonth == 0 {
		cfg.Billing.AcademicYearStartMonth = int(defaults.AcademicYearStartMonth)
	}

	payroll := payout.DefaultPolicy()
	if cfg.Payroll.TaxRate == "" {
		cfg.Payroll.TaxRate = payroll.TaxRate.String()
	}
	if cfg.Payroll.SocialRate == "" {
		cfg.Payroll.SocialRate = payroll.SocialRate.String()
	}

	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = time.Hour
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}

	if len(cfg.Billing.Currency) != 3 {
		return fmt.Errorf("billing.currency must be an ISO 4217 code, got %q", cfg.Billing.Currency)
	}
	if cfg.Billing.PaymentTermDays < 0 {
		return fmt.Errorf("billing.payment_term_days must not be negative")
	}
	if cfg.Billing.GracePeriodDays < 0 {
		return fmt.Errorf("billing.grace_period_days must not be negative")
	}
	for i, off := range cfg.Billing.ReminderOffsets {
		if off <= 0 {
			return fmt.Errorf("billing.reminder_offsets[%d] must be positive, got %d", i, off)
		}
	}
	if m := cfg.Billing.AcademicYearStartMonth; m < 1 || m > 12 {
		return fmt.Errorf("billing.academic_year_start_month must be 1-12, got %d", m)
	}

	rates := map[string]string{
		"billing.default_tax_rate": cfg.Billing.DefaultTaxRate,
		"payroll.tax_rate":         cfg.Payroll.TaxRate,
		"payroll.social_rate":      cfg.Payroll.SocialRate,
	}
	for field, raw := range rates {
		if _, err := parseRate(field, raw); err != nil {
			return err
		}
	}

	if cfg.Scheduler.Enabled && cfg.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler.interval must be at least 1s, got %s", cfg.Scheduler.Interval)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}
	return nil
}

// =============================================================================
// ENGINE POLICIES
// =============================================================================

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// InvoicePolicy converts the billing section. Call only on a validated Config.
func (c *Config) InvoicePolicy() invoice.Policy {
	return invoice.Policy{
		Currency:               c.Billing.Currency,
		PaymentTermDays:        c.Billing.PaymentTermDays,
		GracePeriodDays:        c.Billing.GracePeriodDays,
		ReminderOffsets:        append([]int(nil), c.Billing.ReminderOffsets...),
		AcademicYearStartMonth: time.Month(c.Billing.AcademicYearStartMonth),
	}
}

// DefaultTaxRate is the invoice tax rate used when a request omits one.
func (c *Config) DefaultTaxRate() decimal.Decimal {
	rate, _ := parseRate("billing.default_tax_rate", c.Billing.DefaultTaxRate)
	return rate
}

// PayoutPolicy converts the payroll section; rules come from RulesFile.
func (c *Config) PayoutPolicy() payout.Policy {
	tax, _ := parseRate("payroll.tax_rate", c.Payroll.TaxRate)
	social, _ := parseRate("payroll.social_rate", c.Payroll.SocialRate)
	return payout.Policy{
		Currency:               c.Billing.Currency,
		TaxRate:                tax,
		SocialRate:             social,
		AcademicYearStartMonth: time.Month(c.Billing.AcademicYearStartMonth),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRate(field, raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid rate %q", field, raw)
	}
	if err := ledger.ValidateRate(field, rate); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
