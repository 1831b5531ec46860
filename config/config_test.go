package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tutoring-ledger/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tutorledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("LEDGER_DB", "/var/lib/ledger.db")
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
  cors_origins: ["https://admin.example.com"]
database:
  dsn: ${LEDGER_DB}
billing:
  currency: XOF
  payment_term_days: 30
  grace_period_days: 2
  reminder_offsets: [5, 10]
  default_tax_rate: "18"
payroll:
  tax_rate: "12.5"
  social_rate: "3"
scheduler:
  enabled: true
  interval: 30m
logging:
  level: debug
  format: console
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/var/lib/ledger.db", cfg.Database.DSN)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "console", cfg.Logging.Format)

	policy := cfg.InvoicePolicy()
	assert.Equal(t, "XOF", policy.Currency)
	assert.Equal(t, 30, policy.PaymentTermDays)
	assert.Equal(t, 2, policy.GracePeriodDays)
	assert.Equal(t, []int{5, 10}, policy.ReminderOffsets)
	assert.Equal(t, time.September, policy.AcademicYearStartMonth)
	assert.Equal(t, "18", cfg.DefaultTaxRate().String())

	payroll := cfg.PayoutPolicy()
	assert.Equal(t, "12.5", payroll.TaxRate.String())
	assert.Equal(t, "3", payroll.SocialRate.String())
	assert.Equal(t, "XOF", payroll.Currency)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "tutorledger.db", cfg.Database.DSN)
	assert.Equal(t, "EUR", cfg.Billing.Currency)
	assert.Equal(t, 15, cfg.Billing.PaymentTermDays)
	assert.Equal(t, []int{3, 7, 14}, cfg.Billing.ReminderOffsets)
	assert.True(t, cfg.DefaultTaxRate().IsZero())
	assert.Equal(t, "10", cfg.PayoutPolicy().TaxRate.String())
	assert.Equal(t, "5", cfg.PayoutPolicy().SocialRate.String())
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nbilling:\n  currency: XOF\n")
	t.Setenv("TUTORLEDGER_SERVER_PORT", "7070")
	t.Setenv("TUTORLEDGER_BILLING_REMINDER_OFFSETS", "1, 2,4")
	t.Setenv("TUTORLEDGER_SCHEDULER_ENABLED", "yes")
	t.Setenv("TUTORLEDGER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "XOF", cfg.Billing.Currency)
	assert.Equal(t, []int{1, 2, 4}, cfg.Billing.ReminderOffsets)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadWithFallback_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("TUTORLEDGER_BILLING_CURRENCY", "MAD")

	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "MAD", cfg.Billing.Currency)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad port":         "server:\n  port: 70000\n",
		"bad currency":     "billing:\n  currency: EURO\n",
		"negative offset":  "billing:\n  reminder_offsets: [3, -1]\n",
		"rate over 100":    "payroll:\n  tax_rate: \"101\"\n",
		"rate not decimal": "billing:\n  default_tax_rate: twenty\n",
		"bad month":        "billing:\n  academic_year_start_month: 13\n",
		"bad level":        "logging:\n  level: loud\n",
		"bad format":       "logging:\n  format: xml\n",
		"metrics path":     "metrics:\n  path: metrics\n",
		"short interval":   "scheduler:\n  enabled: true\n  interval: 10ms\n",
		"not yaml":         "server: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadEnvironmentValue(t *testing.T) {
	t.Setenv("TUTORLEDGER_SERVER_PORT", "eighty")

	_, err := config.LoadFromEnv()

	assert.ErrorContains(t, err, "TUTORLEDGER_SERVER_PORT")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.ErrorContains(t, err, "read config")
}
