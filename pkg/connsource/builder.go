package connsource

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/crypto"
)

// Builder assembles a PoolingDriverSource.
//
//	src, err := connsource.NewBuilder().
//		SetConnectionString("postgres://db:5432/logs").
//		SetUserName(user).
//		SetPassword(pass).
//		SetFactoryConfig(connsource.NewFactoryConfigBuilder().SetMaxConnLifetimeMillis(30000).Build()).
//		Build(ctx)
type Builder struct {
	cfg  Config
	opts []Option
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetConnectionString sets the scheme-prefixed connection string, e.g.
// "postgres://db:5432/logs" or "sqlite:file:logs.db". It is required.
func (b *Builder) SetConnectionString(s string) *Builder {
	b.cfg.ConnectionString = s
	return b
}

// SetUserName keeps a reference to user; Build zeroes it.
func (b *Builder) SetUserName(user []byte) *Builder {
	b.cfg.UserName = crypto.Secret(user)
	return b
}

// SetPassword keeps a reference to password; Build zeroes it. A non-nil empty
// slice sets an empty password.
func (b *Builder) SetPassword(password []byte) *Builder {
	b.cfg.Password = crypto.Secret(password)
	return b
}

// SetProperties replaces the driver properties. Names must be unique.
func (b *Builder) SetProperties(props ...Property) *Builder {
	b.cfg.Properties = append(b.cfg.Properties[:0:0], props...)
	return b
}

// SetPoolName sets the name the pool is registered under.
func (b *Builder) SetPoolName(name string) *Builder {
	b.cfg.PoolName = name
	return b
}

// SetFactoryConfig sets pool sizing, lifetime, validation and init SQL.
func (b *Builder) SetFactoryConfig(fc FactoryConfig) *Builder {
	b.cfg.Factory = fc
	return b
}

// SetPoolingDriver registers the pool with d instead of the default driver.
func (b *Builder) SetPoolingDriver(d *datasource.PoolingDriver) *Builder {
	b.opts = append(b.opts, WithPoolingDriver(d))
	return b
}

// SetLogger sets the logger used by the source.
func (b *Builder) SetLogger(l *zap.Logger) *Builder {
	b.opts = append(b.opts, WithLogger(l))
	return b
}

// Build validates the configuration and registers the pool. The buffers
// passed to SetUserName and SetPassword are zeroed either way.
func (b *Builder) Build(ctx context.Context) (*PoolingDriverSource, error) {
	cfg := b.cfg
	b.cfg.UserName = nil
	b.cfg.Password = nil
	return New(ctx, cfg, b.opts...)
}
