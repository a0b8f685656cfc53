// Package config provides configuration loading for jefferson using Viper.
// Configuration is loaded from YAML files with automatic environment variable
// binding.
//
// Environment variables use the JEFFERSON_ prefix and underscore-separated
// keys:
//   - JEFFERSON_SERVER_HOST -> server.host
//   - JEFFERSON_SERVER_PORT -> server.port
//   - JEFFERSON_CACHE_PRIMARY_ADDRESS -> cache.primary_address
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how GOMAXPROCS is determined.
type WorkersMode int

const (
	// WorkersAuto leaves GOMAXPROCS at its runtime default.
	WorkersAuto WorkersMode = iota
	// WorkersFixed clamps GOMAXPROCS to a specific value.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains the HTTP entry-point server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"            mapstructure:"host"`
	Port         int           `yaml:"port"            mapstructure:"port"`
	Workers      WorkerSetting `yaml:"-"               mapstructure:"-"`
	WorkersRaw   string        `yaml:"workers"         mapstructure:"workers"`
	MaxBatchSize int           `yaml:"max_batch_size"  mapstructure:"max_batch_size"`
}

// RuleConfig mirrors registry.RuleConfig's shape for YAML decoding.
type RuleConfig struct {
	URNPrefix          string  `yaml:"urn_prefix"           mapstructure:"urn_prefix"`
	URL                string  `yaml:"url"                  mapstructure:"url"`
	URLEnvVar          string  `yaml:"url_env_var"          mapstructure:"url_env_var"`
	Transport          string  `yaml:"transport"            mapstructure:"transport"`
	TTL                string  `yaml:"ttl"                  mapstructure:"ttl"`
	TimeoutSeconds     float64 `yaml:"timeout_seconds"      mapstructure:"timeout_seconds"`
	Retries            int     `yaml:"retries"              mapstructure:"retries"`
	TranslateToAppbase bool    `yaml:"translate_to_appbase" mapstructure:"translate_to_appbase"`
}

// RegistryConfig contains the upstream binding table (C1/C2) and the
// numeric-api alias table.
type RegistryConfig struct {
	Rules       []RuleConfig   `yaml:"rules"        mapstructure:"rules"`
	NumericAPIs map[int]string `yaml:"numeric_apis" mapstructure:"numeric_apis"`
}

// CacheConfig contains the two-tier cache group settings (C5).
type CacheConfig struct {
	MemorySize       int      `yaml:"memory_size"       mapstructure:"memory_size"`
	ReadTimeoutMS    int      `yaml:"read_timeout_ms"   mapstructure:"read_timeout_ms"`
	TestBeforeAdd    bool     `yaml:"test_before_add"   mapstructure:"test_before_add"`
	PrimaryAddress   string   `yaml:"primary_address"   mapstructure:"primary_address"`
	PrimaryDB        int      `yaml:"primary_db"        mapstructure:"primary_db"`
	PrimaryPassword  string   `yaml:"primary_password"  mapstructure:"primary_password"`
	ReplicaAddresses []string `yaml:"replica_addresses" mapstructure:"replica_addresses"`
}

// LimitsConfig mirrors jsonrpc.Limits's shape for YAML decoding.
type LimitsConfig struct {
	MaxCustomJSONOpLength int      `yaml:"max_custom_json_op_length" mapstructure:"max_custom_json_op_length"`
	AccountAllow          []string `yaml:"account_allow"             mapstructure:"account_allow"`
	AccountDeny           []string `yaml:"account_deny"              mapstructure:"account_deny"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// APIConfig contains the admin API surface settings (GET /api/v1/*).
//
// Note: APIKey is intentionally treated as a secret and should not be
// returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// IrreversibleConfig controls the last-irreversible-block tracker.
type IrreversibleConfig struct {
	RefreshInterval string `yaml:"refresh_interval" mapstructure:"refresh_interval"`
}

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `yaml:"server"       mapstructure:"server"`
	Registry     RegistryConfig     `yaml:"registry"     mapstructure:"registry"`
	Cache        CacheConfig        `yaml:"cache"        mapstructure:"cache"`
	Limits       LimitsConfig       `yaml:"limits"       mapstructure:"limits"`
	Logging      LoggingConfig      `yaml:"logging"      mapstructure:"logging"`
	API          APIConfig          `yaml:"api"          mapstructure:"api"`
	Irreversible IrreversibleConfig `yaml:"irreversible" mapstructure:"irreversible"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("JEFFERSON_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (JEFFERSON_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
