package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/agentpay/internal/domain/identity"
	"github.com/kailas-cloud/agentpay/internal/retry"
)

// Roles a process can run.
const (
	RoleAll          = "all"
	RoleAuthority    = "authority"
	RoleGateway      = "gateway"
	RoleOrchestrator = "orchestrator"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds the agentpay service configuration.
type Config struct {
	Role         string             `yaml:"role"` // all, authority, gateway, orchestrator (default: all)
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Authority    AuthorityConfig    `yaml:"authority"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Report       ReportConfig       `yaml:"report"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
	// PublicPaths are served without an API key in addition to /health and /metrics.
	PublicPaths []string `yaml:"public_paths"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds ledger storage connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, postgres (default: memory)
	Addrs            []string `yaml:"addrs"`  // redis
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	DSN              string   `yaml:"dsn"` // postgres
	MaxConns         int32    `yaml:"max_conns"`
	Migrate          bool     `yaml:"migrate"` // apply postgres migrations on start
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// LedgerConfig holds token storage settings.
type LedgerConfig struct {
	// RetentionHours keeps expired tokens readable for reports (redis only).
	RetentionHours int `yaml:"retention_hours"`
}

// RetryConfig configures retries of collaborator calls.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialIntervalMs int `yaml:"initial_interval_ms"`
	MaxIntervalMs     int `yaml:"max_interval_ms"`
	CallTimeoutMs     int `yaml:"call_timeout_ms"`
}

// Policy converts the config into a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: time.Duration(r.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(r.MaxIntervalMs) * time.Millisecond,
		CallTimeout:     time.Duration(r.CallTimeoutMs) * time.Millisecond,
	}
}

func (r *RetryConfig) applyDefaults() {
	def := retry.DefaultPolicy()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.MaxAttempts
	}
	if r.InitialIntervalMs <= 0 {
		r.InitialIntervalMs = int(def.InitialInterval / time.Millisecond)
	}
	if r.MaxIntervalMs <= 0 {
		r.MaxIntervalMs = int(def.MaxInterval / time.Millisecond)
	}
	if r.CallTimeoutMs <= 0 {
		r.CallTimeoutMs = int(def.CallTimeout / time.Millisecond)
	}
}

// LimitsConfig holds an owner's spending limits. Zero means unlimited.
type LimitsConfig struct {
	Daily       int64 `yaml:"daily"`
	Transaction int64 `yaml:"transaction"`
	Monthly     int64 `yaml:"monthly"`
}

// Limits converts the config into domain limits.
func (l LimitsConfig) Limits() identity.Limits {
	return identity.Limits{Daily: l.Daily, Transaction: l.Transaction, Monthly: l.Monthly}
}

// IdentityConfig selects the owner verifier: the identity service when URL
// is set, the static owner table otherwise.
type IdentityConfig struct {
	URL     string                  `yaml:"url"`
	Owners  map[string]LimitsConfig `yaml:"owners"`
	Default *LimitsConfig           `yaml:"default"` // verifies every owner when set
}

// IssuerConfig holds the external token issuer settings. Disabled when URL is empty.
type IssuerConfig struct {
	URL       string `yaml:"url"`
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
}

// AuthorityConfig holds token authority settings.
type AuthorityConfig struct {
	TokenTTLSec int            `yaml:"token_ttl_sec"`
	Identity    IdentityConfig `yaml:"identity"`
	Issuer      IssuerConfig   `yaml:"issuer"`
	Retry       RetryConfig    `yaml:"retry"`
}

// CompanyConfig is one catalog entry.
type CompanyConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
}

// GatewayConfig holds data gateway settings.
type GatewayConfig struct {
	QuoteTTLSec int             `yaml:"quote_ttl_sec"`
	Catalog     []CompanyConfig `yaml:"catalog"`
}

// OrchestratorConfig holds task orchestrator settings. Empty URLs use the
// in-process authority and gateway (role all).
type OrchestratorConfig struct {
	AuthorityURL string      `yaml:"authority_url"`
	GatewayURL   string      `yaml:"gateway_url"`
	APIKey       string      `yaml:"api_key"`
	Workers      int         `yaml:"workers"`
	QueueSize    int         `yaml:"queue_size"`
	MaxResources int         `yaml:"max_resources"`
	Retry        RetryConfig `yaml:"retry"`
}

// ReportConfig holds report writer settings. Reports are plain markdown
// when Model is empty.
type ReportConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// DefaultCatalog is served when no catalog is configured.
func DefaultCatalog() []CompanyConfig {
	return []CompanyConfig{{
		ID:          "acme",
		Name:        "ACME Corp",
		Description: "ACME Corp premium profile: revenue, ownership and recent filings.",
		Price:       10,
	}}
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML with ${VAR} expansion, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// Hosts reports whether this process runs the given role.
func (c *Config) Hosts(role string) bool {
	return c.Role == RoleAll || c.Role == role
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Role == "" {
		c.Role = RoleAll
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMemory
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Ledger.RetentionHours <= 0 {
		c.Ledger.RetentionHours = 24
	}
	if c.Authority.TokenTTLSec <= 0 {
		c.Authority.TokenTTLSec = 3600
	}
	c.Authority.Retry.applyDefaults()
	if c.Gateway.QuoteTTLSec <= 0 {
		c.Gateway.QuoteTTLSec = 300
	}
	if len(c.Gateway.Catalog) == 0 {
		c.Gateway.Catalog = DefaultCatalog()
	}
	if c.Orchestrator.Workers <= 0 {
		c.Orchestrator.Workers = 4
	}
	if c.Orchestrator.QueueSize <= 0 {
		c.Orchestrator.QueueSize = 64
	}
	if c.Orchestrator.MaxResources <= 0 {
		c.Orchestrator.MaxResources = 3
	}
	c.Orchestrator.Retry.applyDefaults()
	if c.Report.MaxTokens <= 0 {
		c.Report.MaxTokens = 1024
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Role {
	case RoleAll, RoleAuthority, RoleGateway, RoleOrchestrator:
	default:
		return fmt.Errorf("role must be one of all, authority, gateway, orchestrator, got %q", c.Role)
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver redis")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("database.driver must be memory, redis or postgres, got %q", c.Database.Driver)
	}

	if c.Role == RoleOrchestrator {
		if c.Orchestrator.AuthorityURL == "" || c.Orchestrator.GatewayURL == "" {
			return fmt.Errorf("orchestrator.authority_url and orchestrator.gateway_url are required for role orchestrator")
		}
	}

	if c.Hosts(RoleAuthority) && c.Authority.Identity.URL == "" &&
		len(c.Authority.Identity.Owners) == 0 && c.Authority.Identity.Default == nil {
		return fmt.Errorf("authority.identity needs a url, owners or a default")
	}

	if iss := c.Authority.Issuer; iss.URL != "" && (iss.AppID == "" || iss.AppSecret == "") {
		return fmt.Errorf("authority.issuer.app_id and app_secret are required with a url")
	}

	seen := make(map[string]struct{}, len(c.Gateway.Catalog))
	for i, item := range c.Gateway.Catalog {
		if item.ID == "" || item.Name == "" {
			return fmt.Errorf("gateway.catalog[%d]: id and name are required", i)
		}
		if item.Price < 0 {
			return fmt.Errorf("gateway.catalog[%d]: price must not be negative, got %d", i, item.Price)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("gateway.catalog[%d]: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	if c.Report.Model != "" && c.Report.BaseURL == "" && c.Report.APIKey == "" {
		return fmt.Errorf("report.api_key or report.base_url is required with a model")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
