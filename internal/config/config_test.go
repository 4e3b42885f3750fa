package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Server.Production)
	assert.Equal(t, 5*time.Second, cfg.Helius.BackupGrace)
	assert.Equal(t, 1000, cfg.Watcher.CacheSize)
	assert.Equal(t, 60*time.Second, cfg.Watcher.DedupTTL)
	assert.Equal(t, 10*time.Second, cfg.Watcher.SilenceThreshold)
	assert.Equal(t, 5*time.Second, cfg.Watcher.BaseBackoff)
	assert.Equal(t, 60*time.Second, cfg.Watcher.MaxBackoff)
	assert.Equal(t, 10, cfg.Watcher.MaxReconnects)
	assert.Equal(t, 300, cfg.Watcher.RestoreLimit)
	assert.Equal(t, 2, cfg.Executor.Retries)
	assert.Equal(t, time.Second, cfg.Bots.StatusInterval)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
server:
  addr: ":9000"
  production: true
helius:
  primary_url: "wss://file.example/?api-key=a"
  watched_addresses: ["Addr1", "Addr2"]
watcher:
  cache_size: 50
executor:
  base_url: "http://executor:3000"
`)
	t.Setenv("COPYBOT_SERVER_ADDR", ":9100")
	t.Setenv("HELIUS_BACKUP_WS_URL", "wss://backup.example/?api-key=b")
	t.Setenv("EXECUTOR_API_KEY", "secret")
	t.Setenv("COPYBOT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr, "env overrides file")
	assert.True(t, cfg.Server.Production)
	assert.Equal(t, "wss://file.example/?api-key=a", cfg.Helius.PrimaryURL)
	assert.Equal(t, "wss://backup.example/?api-key=b", cfg.Helius.BackupURL)
	assert.Equal(t, []string{"Addr1", "Addr2"}, cfg.Helius.WatchedAddresses)
	assert.Equal(t, 50, cfg.Watcher.CacheSize)
	assert.Equal(t, "secret", cfg.Executor.APIKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	require.NoError(t, cfg.ValidateServer())
	require.NoError(t, cfg.ValidateWorker())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COPYBOT_RPC_URL=http://rpc.local\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("COPYBOT_RPC_URL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://rpc.local", cfg.RPC.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad log level", "log:\n  level: loud\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"negative retries", "executor:\n  retries: -1\n"},
		{"backoff inverted", "watcher:\n  base_backoff: 90s\n  max_backoff: 10s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := &Config{Bots: BotsConfig{WorkerPath: "./botworker"}}
	assert.Error(t, cfg.ValidateServer(), "primary url required")

	cfg.Helius.PrimaryURL = "wss://x"
	assert.NoError(t, cfg.ValidateServer())

	cfg.Kafka.Brokers = []string{"k1:9092"}
	assert.Error(t, cfg.ValidateServer(), "topics required with brokers")
}

func TestValidateWorker(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateWorker())
	cfg.Executor.BaseURL = "http://executor"
	assert.NoError(t, cfg.ValidateWorker())
}
