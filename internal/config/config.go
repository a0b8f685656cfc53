// Package config provides configuration loading and validation for
// jefferson.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/jefferson/main.go)
//  2. Environment variables (JEFFERSON_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from JEFFERSON_CATEGORY_SETTING format,
// e.g., JEFFERSON_SERVER_HOST maps to server.host in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding.
	// Uses JEFFERSON_ prefix: JEFFERSON_SERVER_HOST -> server.host
	v.SetEnvPrefix("JEFFERSON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.workers", "auto")
	v.SetDefault("server.max_batch_size", 50)

	// Registry defaults: the full restored numeric-api alias table.
	v.SetDefault("registry.rules", []RuleConfig{})
	v.SetDefault("registry.numeric_apis", map[string]string{
		"0": "database_api",
		"1": "login_api",
		"2": "network_broadcast_api",
		"3": "follow_api",
		"4": "tags_api",
		"5": "market_history_api",
	})

	// Cache defaults
	v.SetDefault("cache.memory_size", 10000)
	v.SetDefault("cache.read_timeout_ms", 200)
	v.SetDefault("cache.test_before_add", false)
	v.SetDefault("cache.primary_address", "")
	v.SetDefault("cache.primary_db", 0)
	v.SetDefault("cache.primary_password", "")
	v.SetDefault("cache.replica_addresses", []string{})

	// Limits defaults
	v.SetDefault("limits.max_custom_json_op_length", 8192)
	v.SetDefault("limits.account_allow", []string{})
	v.SetDefault("limits.account_deny", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Admin API defaults.
	// Default to disabled and bound to localhost for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8091)
	v.SetDefault("api.api_key", "")

	// Irreversible tracker defaults
	v.SetDefault("irreversible.refresh_interval", "3s")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	if err := loadRegistryConfig(v, cfg); err != nil {
		return nil, err
	}
	loadCacheConfig(v, cfg)
	loadLimitsConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)
	loadIrreversibleConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.MaxBatchSize = v.GetInt("server.max_batch_size")
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
}

func loadRegistryConfig(v *viper.Viper, cfg *Config) error {
	if err := v.UnmarshalKey("registry.rules", &cfg.Registry.Rules); err != nil {
		return fmt.Errorf("failed to parse registry.rules: %w", err)
	}

	raw := v.GetStringMapString("registry.numeric_apis")
	cfg.Registry.NumericAPIs = make(map[int]string, len(raw))
	for k, name := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("registry.numeric_apis key %q is not numeric: %w", k, err)
		}
		cfg.Registry.NumericAPIs[n] = name
	}
	return nil
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.MemorySize = v.GetInt("cache.memory_size")
	cfg.Cache.ReadTimeoutMS = v.GetInt("cache.read_timeout_ms")
	cfg.Cache.TestBeforeAdd = v.GetBool("cache.test_before_add")
	cfg.Cache.PrimaryAddress = v.GetString("cache.primary_address")
	cfg.Cache.PrimaryDB = v.GetInt("cache.primary_db")
	cfg.Cache.PrimaryPassword = v.GetString("cache.primary_password")
	cfg.Cache.ReplicaAddresses = getStringSliceOrSplit(v, "cache.replica_addresses")
}

func loadLimitsConfig(v *viper.Viper, cfg *Config) {
	cfg.Limits.MaxCustomJSONOpLength = v.GetInt("limits.max_custom_json_op_length")
	cfg.Limits.AccountAllow = getStringSliceOrSplit(v, "limits.account_allow")
	cfg.Limits.AccountDeny = getStringSliceOrSplit(v, "limits.account_deny")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

func loadIrreversibleConfig(v *viper.Viper, cfg *Config) {
	cfg.Irreversible.RefreshInterval = v.GetString("irreversible.refresh_interval")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			for _, p := range strings.Split(s, ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}
	if cfg.Server.MaxBatchSize <= 0 {
		cfg.Server.MaxBatchSize = 50
	}

	if len(cfg.Registry.Rules) == 0 {
		return errors.New("registry.rules must not be empty")
	}
	for i, r := range cfg.Registry.Rules {
		if r.URNPrefix == "" {
			return fmt.Errorf("registry.rules[%d].urn_prefix must not be empty", i)
		}
		if r.URL == "" && r.URLEnvVar == "" {
			return fmt.Errorf("registry.rules[%d] must set url or url_env_var", i)
		}
	}

	if cfg.Cache.MemorySize <= 0 {
		cfg.Cache.MemorySize = 10000
	}
	if cfg.Cache.ReadTimeoutMS <= 0 {
		cfg.Cache.ReadTimeoutMS = 200
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	if cfg.Irreversible.RefreshInterval == "" {
		cfg.Irreversible.RefreshInterval = "3s"
	}

	return nil
}
