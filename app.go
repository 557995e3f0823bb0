package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"pdf-workbench/internal/config"
	"pdf-workbench/internal/logger"
	"pdf-workbench/internal/observer"
	"pdf-workbench/internal/pdf"
	"pdf-workbench/internal/server"
	"pdf-workbench/internal/types"
)

// App is the service controller.
// It wires the configuration, telemetry, the document Service and the HTTP
// transport, and owns their lifecycle.
type App struct {
	config *config.ConfigManager
	svc    *pdf.Service
	server *server.Server
	http   *http.Server

	telemetryShutdown func(context.Context) error

	mu      sync.Mutex
	started bool
}

// NewApp creates an App with the default configuration path.
func NewApp() *App {
	app, err := NewAppWithConfig("")
	if err != nil {
		logger.Error("failed to create config manager, using defaults", err)
		return &App{}
	}
	return app
}

// NewAppWithConfig creates an App and loads the configuration at configPath.
func NewAppWithConfig(configPath string) (*App, error) {
	cfgMgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfgMgr.Load(); err != nil {
		return nil, err
	}
	return &App{config: cfgMgr}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *types.Config {
	if a.config == nil {
		return config.Default()
	}
	return a.config.GetConfig()
}

// startup 初始化遥测、文档服务和 HTTP 服务
func (a *App) startup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	cfg := a.Config()

	ins, err := a.initTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return types.NewAppError(types.ErrStartup, "failed to initialise telemetry", err)
	}

	opts := pdf.OptionsFromConfig(cfg)
	opts.Logger = logger.GetLogger()
	opts.Instruments = ins
	a.svc = pdf.NewService(opts)
	a.server = server.New(a.svc, cfg.Server, logger.GetLogger())

	a.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.server.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
	a.started = true

	eff := a.svc.Options()
	logger.Info("application started",
		logger.String("addr", cfg.Server.Addr),
		logger.Int64("maxUploadBytes", eff.MaxUploadBytes),
		logger.Int64("maxRenderPixels", eff.MaxRenderPixels),
		logger.Int("sensitivePatterns", len(eff.SensitivePatterns)),
		logger.Bool("telemetry", cfg.Telemetry.Enabled))
	return nil
}

func (a *App) initTelemetry(ctx context.Context, cfg types.TelemetryConfig) (*observer.Instruments, error) {
	if !cfg.Enabled {
		return observer.NewFromGlobal()
	}
	ins, shutdown, err := observer.Init(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	a.telemetryShutdown = shutdown
	logger.Info("telemetry enabled", logger.String("service", cfg.ServiceName))
	return ins, nil
}

// Handler returns the HTTP handler. startup must have been called.
func (a *App) Handler() http.Handler {
	if a.server == nil {
		return http.NotFoundHandler()
	}
	return a.server.Handler()
}

// Serve runs the HTTP server on l until ctx is cancelled, then shuts down.
func (a *App) Serve(ctx context.Context, l net.Listener) error {
	if err := a.startup(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logger.String("addr", l.Addr().String()))
		errCh <- a.http.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return types.NewAppError(types.ErrStartup, "http server failed", err)
	case <-ctx.Done():
	}

	timeout := time.Duration(a.Config().Server.ShutdownTimeoutSec) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.shutdown(shutdownCtx)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	addr := a.Config().Server.Addr
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrStartup, "failed to listen", addr, err)
	}
	return a.Serve(ctx, l)
}

// shutdown 停止 HTTP 服务并刷新遥测数据
func (a *App) shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if a.telemetryShutdown != nil {
		if err := a.telemetryShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
		a.telemetryShutdown = nil
	}
	a.started = false

	if err := errors.Join(errs...); err != nil {
		logger.Error("shutdown incomplete", err)
		return types.NewAppError(types.ErrShutdown, "shutdown incomplete", err)
	}
	logger.Info("application stopped")
	return nil
}
