package connsource

import (
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/crypto"
)

// DefaultPoolNamePrefix prefixes generated pool names.
const DefaultPoolNamePrefix = "pool-"

// Property is a named driver property, e.g. {"sslmode", "disable"}.
// The names "user", "username" and "password" are treated as credentials.
type Property struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// NewProperty returns a Property.
func NewProperty(name, value string) Property {
	return Property{Name: name, Value: value}
}

// FactoryConfig tunes how pooled connections are created, validated and retired.
type FactoryConfig struct {
	// MaxConnLifetime retires a connection this long after it was opened.
	// Zero keeps connections forever.
	MaxConnLifetime time.Duration
	// MaxConnIdleTime retires a connection idle for this long. Zero disables.
	MaxConnIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int

	// ValidationQuery runs on every GetConnection. When empty the connection
	// is pinged instead.
	ValidationQuery        string
	ValidationQueryTimeout time.Duration

	// ConnectionInitSQLs run once on each new physical connection.
	ConnectionInitSQLs []string
}

// FactoryConfigBuilder assembles a FactoryConfig fluently.
type FactoryConfigBuilder struct {
	cfg FactoryConfig
}

// NewFactoryConfigBuilder returns a builder for an empty FactoryConfig.
func NewFactoryConfigBuilder() *FactoryConfigBuilder {
	return &FactoryConfigBuilder{}
}

// SetMaxConnLifetimeMillis sets MaxConnLifetime from milliseconds.
// Non-positive values clear the limit.
func (b *FactoryConfigBuilder) SetMaxConnLifetimeMillis(ms int64) *FactoryConfigBuilder {
	if ms <= 0 {
		b.cfg.MaxConnLifetime = 0
		return b
	}
	b.cfg.MaxConnLifetime = time.Duration(ms) * time.Millisecond
	return b
}

// SetMaxConnIdleTime retires connections idle for longer than d.
func (b *FactoryConfigBuilder) SetMaxConnIdleTime(d time.Duration) *FactoryConfigBuilder {
	b.cfg.MaxConnIdleTime = d
	return b
}

// SetMaxOpenConns caps open connections. Non-positive uses the default.
func (b *FactoryConfigBuilder) SetMaxOpenConns(n int) *FactoryConfigBuilder {
	b.cfg.MaxOpenConns = n
	return b
}

// SetMaxIdleConns caps idle connections kept in the pool.
func (b *FactoryConfigBuilder) SetMaxIdleConns(n int) *FactoryConfigBuilder {
	b.cfg.MaxIdleConns = n
	return b
}

// SetValidationQuery sets the query run on every GetConnection and its timeout.
func (b *FactoryConfigBuilder) SetValidationQuery(query string, timeout time.Duration) *FactoryConfigBuilder {
	b.cfg.ValidationQuery = query
	b.cfg.ValidationQueryTimeout = timeout
	return b
}

// SetConnectionInitSQLs sets statements run once on each new connection.
func (b *FactoryConfigBuilder) SetConnectionInitSQLs(statements ...string) *FactoryConfigBuilder {
	b.cfg.ConnectionInitSQLs = append([]string(nil), statements...)
	return b
}

// Build returns a copy of the assembled FactoryConfig.
func (b *FactoryConfigBuilder) Build() FactoryConfig {
	cfg := b.cfg
	cfg.ConnectionInitSQLs = append([]string(nil), b.cfg.ConnectionInitSQLs...)
	return cfg
}

func (c FactoryConfig) poolConfig() datasource.PoolConfig {
	return datasource.PoolConfig{
		MaxOpenConns:       c.MaxOpenConns,
		MaxIdleConns:       c.MaxIdleConns,
		MaxConnLifetime:    c.MaxConnLifetime,
		MaxConnIdleTime:    c.MaxConnIdleTime,
		ConnectionInitSQLs: c.ConnectionInitSQLs,
	}
}

// Config holds everything needed to build a PoolingDriverSource.
//
// UserName and Password are wiped once the source has been built (or has
// failed to build). Credentials may instead be given as "user"/"username" and
// "password" properties; when both forms are present the explicit fields win.
type Config struct {
	ConnectionString string
	UserName         crypto.Secret
	Password         crypto.Secret
	Properties       []Property
	// PoolName defaults to DefaultPoolNamePrefix followed by a random UUID.
	PoolName string
	Factory  FactoryConfig
}

// validate checks required fields and returns the properties as a map.
func (c *Config) validate() (map[string]string, error) {
	if strings.TrimSpace(c.ConnectionString) == "" {
		return nil, fmt.Errorf("%w: connection string is required", apperrors.ErrConfiguration)
	}

	props := make(map[string]string, len(c.Properties))
	roles := make(map[string]string, 2) // credential role -> property name
	for _, p := range c.Properties {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: property name must not be empty", apperrors.ErrConfiguration)
		}
		if _, dup := props[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate property %q", apperrors.ErrConfiguration, p.Name)
		}
		if role := credentialRole(p.Name); role != "" {
			if prev, dup := roles[role]; dup {
				return nil, fmt.Errorf("%w: properties %q and %q both set the %s", apperrors.ErrConfiguration, prev, p.Name, role)
			}
			roles[role] = p.Name
		}
		props[p.Name] = p.Value
	}
	return props, nil
}

// credentialRole returns "user" or "password" for credential property names
// (matched case-insensitively) and "" otherwise.
func credentialRole(name string) string {
	switch strings.ToLower(name) {
	case "user", "username":
		return "user"
	case "password":
		return "password"
	}
	return ""
}

// credentials resolves the credentials handed to the driver adapter and
// removes credential properties from props.
func (c *Config) credentials(props map[string]string) datasource.Credentials {
	var creds datasource.Credentials

	for name, value := range props {
		switch credentialRole(name) {
		case "user":
			creds.User = value
			delete(props, name)
		case "password":
			creds.Password = value
			creds.HasPassword = true
			delete(props, name)
		}
	}

	if len(c.UserName) > 0 {
		creds.User = c.UserName.Reveal()
	}
	if c.Password.IsSet() {
		creds.Password = c.Password.Reveal()
		creds.HasPassword = true
	}
	return creds
}

// wipe zeroes the credential buffers.
func (c *Config) wipe() {
	crypto.ZeroAll(c.UserName, c.Password)
}
