package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("CHITRAGUPT_BOT_TOKEN", "123:abc")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "https://api.telegram.org", cfg.Bot.APIBaseURL)
		assert.Equal(t, 30*time.Second, cfg.Bot.PollTimeout)
		assert.Equal(t, 8, cfg.Bot.Workers)
		assert.False(t, cfg.Bot.ReplyUnknownCommand)
		assert.Zero(t, cfg.Bot.ApprovalTTL)
		assert.Equal(t, "data", cfg.Store.DataDir)
		assert.Equal(t, "rules.json", cfg.Store.RulesFile)
		assert.True(t, cfg.Store.WatchRules)
		assert.Equal(t, "9090", cfg.Server.HealthPort)
		assert.True(t, cfg.Server.MetricsEnabled)
		assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
		assert.False(t, cfg.Observability.OTelEnabled)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("CHITRAGUPT_BOT_TOKEN", "123:abc")
		t.Setenv("CHITRAGUPT_WORKERS", "4")
		t.Setenv("CHITRAGUPT_SUPER_ADMINS", "10, 20,notanid,30")
		t.Setenv("CHITRAGUPT_APPROVAL_TTL", "2h")
		t.Setenv("CHITRAGUPT_LOG_LEVEL", "debug")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, 4, cfg.Bot.Workers)
		assert.Equal(t, []int64{10, 20, 30}, cfg.Bot.SuperAdmins)
		assert.Equal(t, 2*time.Hour, cfg.Bot.ApprovalTTL)
		assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	})

	t.Run("missing token fails validation", func(t *testing.T) {
		t.Setenv("CHITRAGUPT_BOT_TOKEN", "")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token")
	})

	t.Run("config file overrides env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
bot:
  workers: 2
  reply_unknown_command: true
store:
  data_dir: /var/lib/chitragupt
`), 0o644))

		t.Setenv("CHITRAGUPT_BOT_TOKEN", "123:abc")
		t.Setenv("CHITRAGUPT_WORKERS", "16")
		t.Setenv("CHITRAGUPT_CONFIG_FILE", path)

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, 2, cfg.Bot.Workers, "file value wins over env")
		assert.True(t, cfg.Bot.ReplyUnknownCommand)
		assert.Equal(t, "/var/lib/chitragupt", cfg.Store.DataDir)
		assert.Equal(t, "123:abc", cfg.Bot.Token, "keys absent from the file keep env values")
	})

	t.Run("unreadable config file fails", func(t *testing.T) {
		t.Setenv("CHITRAGUPT_BOT_TOKEN", "123:abc")
		t.Setenv("CHITRAGUPT_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Bot:    BotConfig{Token: "t", APIBaseURL: "https://api.telegram.org", PollTimeout: time.Second, Workers: 1},
			Store:  StoreConfig{DataDir: "data", RulesFile: "r.json", UsersFile: "u.json", RequestsFile: "q.json"},
			Server: ServerConfig{HealthPort: "9090"},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("otel endpoint required when enabled", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelServiceName = "chitragupt"
		cfg.Observability.OTelEndpoint = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("worker count must be positive", func(t *testing.T) {
		cfg := valid()
		cfg.Bot.Workers = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestParseIDList(t *testing.T) {
	assert.Nil(t, ParseIDList(""))
	assert.Equal(t, []int64{1}, ParseIDList("1"))
	assert.Equal(t, []int64{1, -100, 3}, ParseIDList(" 1, -100 ,3 "))
	assert.Nil(t, ParseIDList("x,y"))
}
