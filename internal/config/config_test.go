package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"auto mode", WorkerSetting{Mode: WorkersAuto}, "auto"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ws.String()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JEFFERSON_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefaultRejectsEmptyRegistry(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err, "registry.rules is required and has no default")
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  workers: "2"
  max_batch_size: 25

registry:
  rules:
    - urn_prefix: "dpayd.database_api"
      url: "ws://upstream.test"
      transport: "websocket"
      ttl: "3"
      timeout_seconds: 2
      retries: 2
  numeric_apis:
    "0": "database_api"

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, WorkersFixed, cfg.Server.Workers.Mode)
	assert.Equal(t, 2, cfg.Server.Workers.Value)
	assert.Equal(t, 25, cfg.Server.MaxBatchSize)
	require.Len(t, cfg.Registry.Rules, 1)
	assert.Equal(t, "dpayd.database_api", cfg.Registry.Rules[0].URNPrefix)
	assert.Equal(t, "database_api", cfg.Registry.NumericAPIs[0])
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func validRegistryYAML() string {
	return `
registry:
  rules:
    - urn_prefix: "dpayd.database_api"
      url: "ws://upstream.test"
`
}

func TestNormalizeInvalidPort(t *testing.T) {
	content := validRegistryYAML() + "\nserver:\n  port: 0\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidWorkers(t *testing.T) {
	content := validRegistryYAML() + "\nserver:\n  workers: \"invalid\"\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// With Viper, invalid workers gracefully defaults to "auto".
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, WorkersAuto, cfg.Server.Workers.Mode)
}

func TestNormalizeRejectsEmptyRules(t *testing.T) {
	content := "registry:\n  rules: []\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeRejectsRuleWithoutURLOrEnvVar(t *testing.T) {
	content := "registry:\n  rules:\n    - urn_prefix: \"dpayd.database_api\"\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	content := validRegistryYAML()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("JEFFERSON_SERVER_HOST", "192.168.1.1")
	t.Setenv("JEFFERSON_SERVER_PORT", "8053")
	t.Setenv("JEFFERSON_SERVER_WORKERS", "8")
	t.Setenv("JEFFERSON_LOGGING_LEVEL", "debug")
	t.Setenv("JEFFERSON_CACHE_PRIMARY_ADDRESS", "redis.internal:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 8053, cfg.Server.Port)
	assert.Equal(t, WorkersFixed, cfg.Server.Workers.Mode)
	assert.Equal(t, 8, cfg.Server.Workers.Value)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "redis.internal:6379", cfg.Cache.PrimaryAddress)
}

func TestDefaultNumericAPIsTable(t *testing.T) {
	content := validRegistryYAML()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "database_api", cfg.Registry.NumericAPIs[0])
	assert.Equal(t, "login_api", cfg.Registry.NumericAPIs[1])
	assert.Equal(t, "network_broadcast_api", cfg.Registry.NumericAPIs[2])
	assert.Equal(t, "follow_api", cfg.Registry.NumericAPIs[3])
	assert.Equal(t, "tags_api", cfg.Registry.NumericAPIs[4])
	assert.Equal(t, "market_history_api", cfg.Registry.NumericAPIs[5])
}
