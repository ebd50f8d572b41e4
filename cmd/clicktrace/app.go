// Shared command state: configuration, logging, trace sources and filter stores
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/andrewh/clicktrace/pkg/filter"
	"github.com/andrewh/clicktrace/pkg/source"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Persistent flag names, also used as config file keys. Environment
// variables use the CLICKTRACE_ prefix with dashes as underscores.
const (
	flagEndpoint     = "endpoint"
	flagFile         = "file"
	flagFormat       = "format"
	flagStore        = "store"
	flagSession      = "session"
	flagLogLevel     = "log-level"
	flagOtelExporter = "otel-exporter"
	flagConfig       = "config"
	flagCacheTTL     = "cache-ttl"
	flagUTC          = "utc"
)

const noSourceHint = "no trace source configured\n\n" +
	"Point at a query API or an export file:\n" +
	"  clicktrace --endpoint http://localhost:8080 traces\n" +
	"  clicktrace --file traces.json traces"

type app struct {
	v              *viper.Viper
	logger         *zap.Logger
	tracerProvider oteltrace.TracerProvider
	meterProvider  metric.MeterProvider
	now            func() time.Time
	cleanups       []func()
}

func newApp() *app {
	return &app{
		v:              viper.New(),
		logger:         zap.NewNop(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		now:            time.Now,
	}
}

func (a *app) bindFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.String(flagEndpoint, "", "trace query API base URL (e.g. http://localhost:8080)")
	pf.String(flagFile, "", "read traces from an export file instead of an API (- for stdin)")
	pf.String(flagFormat, string(source.FormatAuto), "export file format: auto, backend, stdouttrace or otlp")
	pf.String(flagStore, "", "filter state file; a .db or .sqlite extension selects SQLite (default: user config dir)")
	pf.String(flagSession, filter.DefaultSession, "filter session name")
	pf.String(flagLogLevel, "warn", "log level: debug, info, warn or error")
	pf.String(flagOtelExporter, "none", "self-telemetry exporter: none, stdout, otlp-http or otlp-grpc")
	pf.String(flagConfig, "", "YAML config file with defaults for these flags")
	pf.Duration(flagCacheTTL, source.DefaultCacheTTL, "how long API service, operation and trace lookups are cached")
	pf.Bool(flagUTC, false, "show timestamps in UTC instead of local time")

	_ = a.v.BindPFlags(pf)
	a.v.SetEnvPrefix("CLICKTRACE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
}

// setup reads the config file and installs logging and self-telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	if path := a.v.GetString(flagConfig); path != "" {
		a.v.SetConfigFile(path)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	logger, err := newLogger(a.v.GetString(flagLogLevel), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger
	a.onClose(func() { _ = logger.Sync() })

	tel, err := setupTelemetry(cmd.Context(), a.v.GetString(flagOtelExporter), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.tracerProvider = tel.tracerProvider
	a.meterProvider = tel.meterProvider
	a.onClose(tel.shutdown)
	return nil
}

// run wraps a command body so resources opened for it are released
// whether or not it succeeds.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()
		return fn(cmd, args)
	}
}

func (a *app) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

func (a *app) teardown() {
	for _, fn := range slices.Backward(a.cleanups) {
		fn()
	}
	a.cleanups = nil
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q, supported: debug, info, warn, error", level)
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// openSource returns the configured trace source. API sources are wrapped
// in a lookup cache.
func (a *app) openSource(cmd *cobra.Command) (source.Source, error) {
	file := a.v.GetString(flagFile)
	endpoint := a.v.GetString(flagEndpoint)

	switch {
	case file != "" && endpoint != "":
		return nil, errors.New("--file and --endpoint cannot be used together")
	case file != "":
		src, err := source.OpenFile(file, source.Format(a.v.GetString(flagFormat)), cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		a.logger.Debug("loaded trace file", zap.String("path", file), zap.Int("traces", src.Len()))
		return src, nil
	case endpoint != "":
		api, err := source.NewHTTPSource(endpoint,
			source.WithLogger(a.logger),
			source.WithTracerProvider(a.tracerProvider),
			source.WithMeterProvider(a.meterProvider))
		if err != nil {
			return nil, err
		}
		cached, err := source.NewCachedSource(api, a.v.GetDuration(flagCacheTTL), a.logger,
			source.WithCacheMeterProvider(a.meterProvider))
		if err != nil {
			return nil, err
		}
		a.onClose(cached.Close)
		return cached, nil
	default:
		return nil, errors.New(noSourceHint)
	}
}

// openStore returns the filter store for the configured session.
func (a *app) openStore(ctx context.Context) (filter.Store, error) {
	path := a.v.GetString(flagStore)
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locating config directory (set --store): %w", err)
		}
		path = filepath.Join(dir, "clicktrace", "filters.yaml")
	}
	session := a.v.GetString(flagSession)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		store, err := filter.OpenSQLiteStore(ctx, path, session)
		if err != nil {
			return nil, err
		}
		a.onClose(func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("closing filter store", zap.Error(err))
			}
		})
		return store, nil
	default:
		return filter.NewFileStore(path, session), nil
	}
}

func (a *app) location() *time.Location {
	if a.v.GetBool(flagUTC) {
		return time.UTC
	}
	return time.Local
}
