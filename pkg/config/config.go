package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// SecurityConfig controls encryption-specific parameters.
type SecurityConfig struct {
	SecretEncryptionKey string `json:"secret_encryption_key" env:"SECRET_ENCRYPTION_KEY"`
}

// AuthConfig controls Hub HTTP API authentication. Mode selects which of the
// remaining fields are consulted: "none" disables auth entirely, "api-key"
// checks incoming requests against APIKeys, "oidc" validates a bearer JWT
// against OIDCIssuer/OIDCAudience.
type AuthConfig struct {
	Mode         string   `json:"mode" env:"AUTH_MODE"`
	APIKeys      []string `json:"api_keys" env:"AUTH_API_KEYS"`
	OIDCIssuer   string   `json:"oidc_issuer" env:"AUTH_OIDC_ISSUER"`
	OIDCAudience string   `json:"oidc_audience" env:"AUTH_OIDC_AUDIENCE"`
}

// SchedulerConfig controls the Hub's plan-scheduling loop.
type SchedulerConfig struct {
	Enabled      bool `json:"enabled" env:"SCHEDULER_ENABLED"`
	TickInterval int  `json:"tick_interval_seconds" env:"SCHEDULER_TICK_INTERVAL_SECONDS"`
}

// AgentRegistryConfig controls Hub-side agent staleness tracking.
type AgentRegistryConfig struct {
	MonitoringIntervalSeconds int `json:"monitoring_interval_seconds" env:"AGENT_MONITORING_INTERVAL_SECONDS"`
	HeartbeatTimeoutSeconds   int `json:"heartbeat_timeout_seconds" env:"AGENT_HEARTBEAT_TIMEOUT_SECONDS"`
}

// WorkerConfig controls an agent-side worker's queue polling loop.
type WorkerConfig struct {
	EmptyDelayMillis    int `json:"empty_delay_millis" env:"WORKER_EMPTY_DELAY_MILLIS"`
	MaxEmptyDelayMillis int `json:"max_empty_delay_millis" env:"WORKER_MAX_EMPTY_DELAY_MILLIS"`
	PlanExecutionTimeoutSeconds int `json:"plan_execution_timeout_seconds" env:"PLAN_EXECUTION_TIMEOUT_SECONDS"`
}

// AgentConfig controls the agent process identity and transport to the hub.
type AgentConfig struct {
	Location               string `json:"location" env:"AGENT_LOCATION"`
	HubURL                 string `json:"hub_url" env:"HUB_URL"`
	QueueBackend           string `json:"queue_backend" env:"QUEUE_BACKEND"`
	QueuePollIntervalMillis    int  `json:"queue_poll_interval_millis" env:"QUEUE_POLL_INTERVAL_MILLIS"`
	QueueMaxPollIntervalMillis int  `json:"queue_max_poll_interval_millis" env:"QUEUE_MAX_POLL_INTERVAL_MILLIS"`
	HeartbeatEnabled           bool `json:"heartbeat_enabled" env:"HEARTBEAT_ENABLED"`
	HeartbeatIntervalSeconds   int  `json:"heartbeat_interval_seconds" env:"HEARTBEAT_INTERVAL_SECONDS"`
}

// SecretsConfig controls which secret providers are enabled for a process.
type SecretsConfig struct {
	// Providers is a comma-separated list such as "env,cloud-secret-store,vault-kv",
	// parsed by the secret provider registry at startup.
	Providers string `json:"providers" env:"SECRET_PROVIDERS"`
}

// RepositoryConfig controls which storage backend holds plans/runs/agents/targets.
type RepositoryConfig struct {
	Backend string `json:"backend" env:"REPOSITORY_BACKEND"`
}

// JobQueueConfig controls which durable job queue backend a Hub process uses.
type JobQueueConfig struct {
	Backend   string `json:"backend" env:"JOBQUEUE_BACKEND"`
	SQSQueues string `json:"sqs_queues" env:"JOBQUEUE_SQS_QUEUES"`
}

// RuntimeConfig groups the monitoring-domain runtime settings shared by the
// Hub and the Agent.
type RuntimeConfig struct {
	Scheduler     SchedulerConfig     `json:"scheduler"`
	AgentRegistry AgentRegistryConfig `json:"agent_registry"`
	Worker        WorkerConfig        `json:"worker"`
	Agent         AgentConfig         `json:"agent"`
	Secrets       SecretsConfig       `json:"secrets"`
	Repository    RepositoryConfig    `json:"repository"`
	JobQueue      JobQueueConfig      `json:"job_queue"`
}

// TracingConfig configures OTLP/Tracing exporters.
type TracingConfig struct {
	Endpoint           string            `json:"endpoint" env:"TRACING_OTLP_ENDPOINT"`
	Insecure           bool              `json:"insecure" env:"TRACING_OTLP_INSECURE"`
	ServiceName        string            `json:"service_name" env:"TRACING_SERVICE_NAME"`
	ResourceAttributes map[string]string `json:"resource_attributes" mapstructure:"resource_attributes"`
	AttributesEnv      string            `json:"-" yaml:"-" env:"TRACING_OTLP_ATTRIBUTES"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Security SecurityConfig `json:"security"`
	Auth     AuthConfig     `json:"auth"`
	Tracing  TracingConfig  `json:"tracing"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "hub",
		},
		Runtime: RuntimeConfig{
			Scheduler: SchedulerConfig{
				Enabled:      true,
				TickInterval: 15,
			},
			AgentRegistry: AgentRegistryConfig{
				MonitoringIntervalSeconds: 30,
				HeartbeatTimeoutSeconds:   60,
			},
			Worker: WorkerConfig{
				EmptyDelayMillis:            500,
				MaxEmptyDelayMillis:         60000,
				PlanExecutionTimeoutSeconds: 300,
			},
			Agent: AgentConfig{
				QueueBackend:               "http",
				QueuePollIntervalMillis:    500,
				QueueMaxPollIntervalMillis: 60000,
				HeartbeatEnabled:           true,
				HeartbeatIntervalSeconds:   30,
			},
			Secrets: SecretsConfig{
				Providers: "env",
			},
			Repository: RepositoryConfig{
				Backend: "postgres",
			},
			JobQueue: JobQueueConfig{
				Backend: "postgres",
			},
		},
		Security: SecurityConfig{},
		Auth: AuthConfig{
			Mode: "none",
		},
		Tracing: TracingConfig{},
	}
}

// ConnectionString builds a PostgreSQL connection string using host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	cfg.normalize()

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

// applyDatabaseURLOverride lets a single DATABASE_URL env var override any
// file-based DSN, matching how most hosting platforms inject connection strings.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

func (t *TracingConfig) normalize() {
	if t == nil {
		return
	}
	t.MergeAttributes(t.AttributesEnv)
}

// MergeAttributes merges comma-separated key=value pairs into ResourceAttributes.
func (t *TracingConfig) MergeAttributes(raw string) {
	if t == nil {
		return
	}
	pairs := parseAttributePairs(raw)
	if len(pairs) == 0 {
		return
	}
	if t.ResourceAttributes == nil {
		t.ResourceAttributes = make(map[string]string, len(pairs))
	}
	for k, v := range pairs {
		if k == "" {
			continue
		}
		t.ResourceAttributes[k] = v
	}
}

func parseAttributePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		val := ""
		if len(kv) > 1 {
			val = strings.TrimSpace(kv[1])
		}
		result[key] = val
	}
	return result
}

func (c *Config) normalize() {
	if c == nil {
		return
	}
	c.Tracing.normalize()
}
