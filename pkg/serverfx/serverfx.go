package serverfx

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/joeydtaylor/steeze-lua/pkg/core"
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"github.com/joeydtaylor/steeze-lua/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-lua/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-lua/pkg/middleware/metrics"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// ---------- Options ----------

type Config struct {
	Service         string // for logs only
	ManifestEnv     string // STEEZE_MANIFEST
	DefaultManifest string // e.g., "steeze.toml"
	ScriptEnv       string // STEEZE_SCRIPT
	ListenPortEnv   string // SERVER_LISTEN_PORT
}

type Option func(*Config)

func WithService(s string) Option            { return func(c *Config) { c.Service = s } }
func WithManifestEnv(k string) Option        { return func(c *Config) { c.ManifestEnv = k } }
func WithDefaultManifest(path string) Option { return func(c *Config) { c.DefaultManifest = path } }
func WithScriptEnv(k string) Option          { return func(c *Config) { c.ScriptEnv = k } }
func WithListenPortEnv(k string) Option      { return func(c *Config) { c.ListenPortEnv = k } }

func defaultConfig() Config {
	return Config{
		Service:         "steeze-lua",
		ManifestEnv:     "STEEZE_MANIFEST",
		DefaultManifest: "steeze.toml",
		ScriptEnv:       "STEEZE_SCRIPT",
		ListenPortEnv:   "SERVER_LISTEN_PORT",
	}
}

// Module returns a complete Fx option set: manifest, loggers, auth,
// metrics, the script server and its lifecycle.
func Module(opts ...Option) fx.Option {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return fx.Options(
		// Config into DI
		fx.Supply(cfg),
		fx.Provide(provideManifest),
		// Core middleware
		auth.Module,
		logger.Module,
		fx.Provide(fx.Annotate(metrics.ProvideMetrics, fx.ResultTags(`name:"metrics"`))),
		// Script server
		fx.Provide(provideServer),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		// Lifecycle
		fx.Invoke(registerHooks),
	)
}

// ---------- Providers ----------

// provideManifest loads the manifest named by the environment and applies
// the script path and port overrides.
func provideManifest(c Config) (manifest.Config, error) {
	path := envOr(c.ManifestEnv, c.DefaultManifest)
	cfg, err := manifest.Load(path)
	if err != nil {
		return manifest.Config{}, fmt.Errorf("manifest load: %w", err)
	}
	if s := os.Getenv(c.ScriptEnv); s != "" {
		cfg.Script.Path = s
	}
	if p := os.Getenv(c.ListenPortEnv); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return manifest.Config{}, fmt.Errorf("%s: %w", c.ListenPortEnv, err)
		}
		cfg.Server.Port = port
	}
	return cfg, cfg.Validate()
}

type serverParams struct {
	fx.In

	Cfg     manifest.Config
	Log     *zap.Logger
	AuthMW  *auth.Middleware
	LogMW   *logger.Middleware
	Metrics http.Handler `name:"metrics"`
}

func provideServer(p serverParams) *core.Server {
	return core.NewServer(p.Cfg, core.Deps{
		Auth:    p.AuthMW,
		LogMW:   p.LogMW,
		Metrics: p.Metrics,
	}, p.Log)
}

// ---------- Lifecycle ----------

type hookParams struct {
	fx.In

	Opts     Config
	Cfg      manifest.Config
	Log      *zap.Logger
	Server   *core.Server
	Shutdown fx.Shutdowner
}

// registerHooks runs the script on its own goroutine once the graph is up.
// The script owns the event loop through run(); when it returns, the
// process shuts down.
func registerHooks(lc fx.Lifecycle, p hookParams) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Log.Info("script starting",
				zap.String("service", p.Opts.Service),
				zap.String("script", p.Cfg.Script.Path),
				zap.String("module", p.Cfg.Script.Module),
			)
			go func() {
				code := 0
				if err := p.Server.RunFile(p.Cfg.Script.Path); err != nil {
					p.Log.Error("script failed", zap.Error(err))
					code = 1
				} else {
					p.Log.Info("script finished")
				}
				_ = p.Shutdown.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Log.Info("server stopping", zap.String("service", p.Opts.Service))
			return p.Server.Shutdown(ctx)
		},
	})
}

// ---------- helpers ----------

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
