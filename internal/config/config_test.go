package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 9090
database:
  driver: postgres
  host: localhost
  user: coldchain
  database: coldchain
jwt:
  secret: 0123456789abcdef0123456789abcdef
mobile_money:
  base_url: https://momo.example.test
  callback_secret: whsec
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "TZS", cfg.MobileMoney.Currency)
	assert.Equal(t, uint(5), cfg.MobileMoney.MaxTries)
	assert.Equal(t, 30*time.Minute, cfg.PendingPaymentTTL())
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, "0 */5 * * * *", cfg.Scheduler.ExpireStalePayments)
	assert.Equal(t, "postgres://coldchain:@localhost:5432/coldchain?sslmode=disable", cfg.GetDatabaseConnectionString())
	assert.Equal(t, ":9090", cfg.GetServerAddress())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("MOMO_CALLBACK_SECRET", "from-env")
	t.Setenv("PAYMENT_PENDING_TTL_MINUTES", "45")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_AUTO_MIGRATE", "true")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "from-env", cfg.MobileMoney.CallbackSecret)
	assert.Equal(t, 45*time.Minute, cfg.PendingPaymentTTL())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPS_EMAIL=ops@example.test\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("OPS_EMAIL") })

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.test", cfg.Notifications.OpsEmail)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database:    DatabaseConfig{Driver: DriverMemory},
			JWT:         JWTConfig{Secret: "0123456789abcdef0123456789abcdef"},
			MobileMoney: MobileMoneyConfig{Mock: true, CallbackSecret: "whsec"},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short jwt secret", func(c *Config) { c.JWT.Secret = "short" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }},
		{"postgres without host", func(c *Config) { c.Database.Driver = DriverPostgres }},
		{"real provider without url", func(c *Config) { c.MobileMoney.Mock = false }},
		{"missing callback secret", func(c *Config) { c.MobileMoney.CallbackSecret = "" }},
		{"sendgrid without recipients", func(c *Config) { c.Notifications.SendGridAPIKey = "SG.x" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
