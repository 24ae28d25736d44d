package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/appender"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/config"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/connsource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/crypto"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"

	// Register driver adapters
	_ "github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource/sqlite"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configPath string
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "poolsource",
		Short:         "Pooled database connection source for log appenders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config.yaml")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the command")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "poolsource %s\n", Version)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "drivers [type]",
		Short: "List registered driver adapters, or check that one is compiled in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && !datasource.IsRegistered(args[0]) {
				return fmt.Errorf("driver adapter %q is not registered", args[0])
			}
			for _, info := range datasource.RegisteredAdapters() {
				if len(args) == 1 && info.Type != args[0] {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-22s schemes=%v\n", info.Type, info.DisplayName, info.Schemes)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "encrypt-password",
		Short: "Encrypt a password read from stdin for POOLSOURCE_PASSWORD_ENCRYPTED",
		Long: `Reads one password from stdin and prints it encrypted with
POOLSOURCE_CREDENTIALS_KEY, ready to be set as POOLSOURCE_PASSWORD_ENCRYPTED.

Example:
  printf '%s' "$DB_PASSWORD" | poolsource encrypt-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ciphertext, err := encryptPassword(cmd.InOrStdin(), os.Getenv("POOLSOURCE_CREDENTIALS_KEY"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ciphertext)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, Version)
			if err != nil {
				return err
			}
			out, err := cfg.RedactedYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Borrow a connection, ping it and print pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), timeout)
			defer cancel()
			return runCheck(ctx, cmd, configPath)
		},
	})

	var level string
	emitCmd := &cobra.Command{
		Use:   "emit <message>",
		Short: "Write one log entry through the database appender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), timeout)
			defer cancel()
			return runEmit(ctx, cmd, configPath, level, args[0])
		},
	}
	emitCmd.Flags().StringVar(&level, "level", "info", "Level of the emitted entry")
	root.AddCommand(emitCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", logging.SanitizeConnectionString(err.Error()))
		os.Exit(1)
	}
}

func commandContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// setup loads configuration and builds the logger, pooling driver and source.
func setup(ctx context.Context, configPath string) (*config.Config, *zap.Logger, *prometheus.Registry, *connsource.PoolingDriverSource, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.Logging.Level)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var registry *prometheus.Registry
	driverCfg := datasource.PoolingDriverConfig{}
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		driverCfg.Registerer = registry
	}
	driver := datasource.NewPoolingDriver(driverCfg, logger)

	sourceCfg, err := cfg.ConnectionSourceConfig()
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, nil, err
	}
	src, err := connsource.New(ctx, sourceCfg, connsource.WithPoolingDriver(driver), connsource.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, nil, err
	}

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("pool", src.PoolName()),
		zap.String("type", src.Type()),
	)
	return cfg, logger, registry, src, nil
}

func runCheck(ctx context.Context, cmd *cobra.Command, configPath string) error {
	_, logger, registry, src, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer src.Stop()

	conn, err := src.GetConnection(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	pingErr := conn.PingContext(ctx)
	_ = conn.Close()
	if pingErr != nil {
		return fmt.Errorf("ping: %w", pingErr)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: ok (%s)\n", src, time.Since(start).Round(time.Microsecond))

	if stats, ok := src.Stats(); ok {
		data, err := yaml.Marshal(stats)
		if err != nil {
			return err
		}
		_, _ = out.Write(data)
	}

	if registry != nil {
		families, err := registry.Gather()
		if err != nil {
			return fmt.Errorf("gather metrics: %w", err)
		}
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				fmt.Fprintf(out, "%s%s %g\n", mf.GetName(), labels(m), value(m))
			}
		}
	}
	return nil
}

func runEmit(ctx context.Context, cmd *cobra.Command, configPath, levelName, message string) error {
	lvl, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return err
	}
	if lvl > zapcore.ErrorLevel {
		return fmt.Errorf("level %s would terminate the process; use error or below", lvl)
	}

	cfg, logger, _, src, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	appenderCfg, err := cfg.AppenderConfig()
	if err != nil {
		_ = src.Stop()
		return err
	}
	appenderCfg.StopSourceOnClose = true

	core, err := appender.New(src, appenderCfg, logger)
	if err != nil {
		_ = src.Stop()
		return err
	}
	defer core.Close()

	if !cfg.Appender.SkipCreateTable {
		if err := core.EnsureTable(ctx); err != nil {
			return err
		}
	}

	if !core.Enabled(lvl) {
		fmt.Fprintf(cmd.ErrOrStderr(), "level %s is below appender level %s; nothing written\n", lvl, cfg.Appender.Level)
		return nil
	}
	entry := zapcore.Entry{Level: lvl, Time: time.Now(), LoggerName: "poolsource", Message: message}
	if err := core.Write(entry, []zapcore.Field{zap.String("version", Version)}); err != nil {
		return err
	}
	if err := core.Sync(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s entry to %s\n", lvl, cfg.Appender.Table)
	return nil
}

// maxPasswordInput bounds how much of stdin encrypt-password reads.
const maxPasswordInput = 4096

// encryptPassword reads a password from r, dropping one trailing newline,
// and encrypts it with key. Every plaintext buffer is wiped before returning.
func encryptPassword(r io.Reader, key string) (string, error) {
	if key == "" {
		return "", errors.New("POOLSOURCE_CREDENTIALS_KEY is required")
	}
	enc, err := crypto.NewCredentialEncryptor(key)
	if err != nil {
		return "", err
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxPasswordInput))
	defer crypto.ZeroAll(raw)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	password := crypto.NewSecret(bytes.TrimSuffix(bytes.TrimSuffix(raw, []byte("\n")), []byte("\r")))
	defer password.Zero()
	if len(password) == 0 {
		return "", errors.New("password on stdin is empty")
	}
	return enc.Encrypt(password)
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	s := "{"
	for i, l := range m.GetLabel() {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return s + "}"
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	default:
		return 0
	}
}
