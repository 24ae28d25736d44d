package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/appender"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/connsource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/crypto"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for poolsource.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	Logging  LoggingConfig  `yaml:"logging"`
	Source   SourceConfig   `yaml:"source"`
	Appender AppenderConfig `yaml:"appender"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// CredentialsKey decrypts POOLSOURCE_PASSWORD_ENCRYPTED.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"POOLSOURCE_CREDENTIALS_KEY"` // Secret - not in YAML
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// SourceConfig describes the pooled connection source.
type SourceConfig struct {
	ConnectionString  string                `yaml:"connection_string" env:"POOLSOURCE_CONNECTION_STRING"`
	User              string                `yaml:"user" env:"POOLSOURCE_USER"`
	Password          string                `yaml:"-" env:"POOLSOURCE_PASSWORD"`           // Secret - not in YAML
	PasswordEncrypted string                `yaml:"-" env:"POOLSOURCE_PASSWORD_ENCRYPTED"` // Secret - not in YAML
	PoolName          string                `yaml:"pool_name" env:"POOLSOURCE_POOL_NAME"`
	Properties        []connsource.Property `yaml:"properties"`
	Factory           FactoryConfig         `yaml:"factory"`
}

// FactoryConfig mirrors connsource.FactoryConfig in file form.
type FactoryConfig struct {
	MaxConnLifetimeMillis  int64         `yaml:"max_conn_lifetime_millis" env:"POOLSOURCE_MAX_CONN_LIFETIME_MILLIS" env-default:"0"`
	MaxConnIdleTime        time.Duration `yaml:"max_conn_idle_time" env:"POOLSOURCE_MAX_CONN_IDLE_TIME" env-default:"0s"`
	MaxOpenConns           int           `yaml:"max_open_conns" env:"POOLSOURCE_MAX_OPEN_CONNS" env-default:"8"`
	MaxIdleConns           int           `yaml:"max_idle_conns" env:"POOLSOURCE_MAX_IDLE_CONNS" env-default:"8"`
	ValidationQuery        string        `yaml:"validation_query" env:"POOLSOURCE_VALIDATION_QUERY"`
	ValidationQueryTimeout time.Duration `yaml:"validation_query_timeout" env:"POOLSOURCE_VALIDATION_QUERY_TIMEOUT" env-default:"5s"`
	ConnectionInitSQLs     []string      `yaml:"connection_init_sqls" env:"POOLSOURCE_CONNECTION_INIT_SQLS" env-separator:";"`
}

// AppenderConfig configures the database log appender.
type AppenderConfig struct {
	Table        string        `yaml:"table" env:"APPENDER_TABLE" env-default:"log_events"`
	Level        string        `yaml:"level" env:"APPENDER_LEVEL" env-default:"info"`
	BufferSize   int           `yaml:"buffer_size" env:"APPENDER_BUFFER_SIZE" env-default:"1"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"APPENDER_WRITE_TIMEOUT" env-default:"5s"`
	// SkipCreateTable leaves table creation to the operator.
	SkipCreateTable bool `yaml:"skip_create_table" env:"APPENDER_SKIP_CREATE_TABLE"`
}

// MetricsConfig controls Prometheus pool statistics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED" env-default:"false"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error; configuration then comes from the
// environment alone. The version parameter is injected at build time.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Source.ConnectionString = ResolveConnectionStringForDocker(cfg.Source.ConnectionString)
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Source.ConnectionString == "" {
		return errors.New("source.connection_string (POOLSOURCE_CONNECTION_STRING) is required")
	}
	if c.Source.Password != "" && c.Source.PasswordEncrypted != "" {
		return errors.New("set only one of POOLSOURCE_PASSWORD and POOLSOURCE_PASSWORD_ENCRYPTED")
	}
	if c.Source.PasswordEncrypted != "" && c.CredentialsKey == "" {
		return errors.New("POOLSOURCE_CREDENTIALS_KEY is required to decrypt POOLSOURCE_PASSWORD_ENCRYPTED")
	}
	if _, err := zapcore.ParseLevel(c.Appender.Level); err != nil {
		return fmt.Errorf("appender.level: %w", err)
	}
	return nil
}

// password returns the source password, decrypting it if needed.
// A nil Secret means no password was configured.
func (c *Config) password() (crypto.Secret, error) {
	if c.Source.PasswordEncrypted != "" {
		enc, err := crypto.NewCredentialEncryptor(c.CredentialsKey)
		if err != nil {
			return nil, err
		}
		secret, err := enc.Decrypt(c.Source.PasswordEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt source password: %w", err)
		}
		return secret, nil
	}
	if c.Source.Password != "" {
		return crypto.SecretFromString(c.Source.Password), nil
	}
	return nil, nil
}

// ConnectionSourceConfig converts the file form into a connsource.Config.
// The returned credential buffers are wiped by connsource.New.
func (c *Config) ConnectionSourceConfig() (connsource.Config, error) {
	password, err := c.password()
	if err != nil {
		return connsource.Config{}, err
	}

	var user crypto.Secret
	if c.Source.User != "" {
		user = crypto.SecretFromString(c.Source.User)
	}

	f := c.Source.Factory
	factory := connsource.NewFactoryConfigBuilder().
		SetMaxConnLifetimeMillis(f.MaxConnLifetimeMillis).
		SetMaxConnIdleTime(f.MaxConnIdleTime).
		SetMaxOpenConns(f.MaxOpenConns).
		SetMaxIdleConns(f.MaxIdleConns).
		SetValidationQuery(f.ValidationQuery, f.ValidationQueryTimeout).
		SetConnectionInitSQLs(f.ConnectionInitSQLs...).
		Build()

	return connsource.Config{
		ConnectionString: c.Source.ConnectionString,
		UserName:         user,
		Password:         password,
		Properties:       append([]connsource.Property(nil), c.Source.Properties...),
		PoolName:         c.Source.PoolName,
		Factory:          factory,
	}, nil
}

// AppenderConfig converts the appender section into an appender.Config.
func (c *Config) AppenderConfig() (appender.Config, error) {
	level, err := zapcore.ParseLevel(c.Appender.Level)
	if err != nil {
		return appender.Config{}, err
	}
	return appender.Config{
		Table:        c.Appender.Table,
		Level:        level,
		BufferSize:   c.Appender.BufferSize,
		WriteTimeout: c.Appender.WriteTimeout,
	}, nil
}

// RedactedYAML renders the effective configuration with credentials removed.
func (c *Config) RedactedYAML() ([]byte, error) {
	view := *c
	view.Source.ConnectionString = logging.SanitizeConnectionString(c.Source.ConnectionString)
	view.Source.Properties = make([]connsource.Property, len(c.Source.Properties))
	for i, p := range c.Source.Properties {
		if logging.IsSensitiveProperty(p.Name) {
			p.Value = logging.RedactedText
		}
		view.Source.Properties[i] = p
	}

	out, err := yaml.Marshal(&view)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}
