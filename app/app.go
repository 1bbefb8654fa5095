// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/soothill/haptic-bridge/api"
	"github.com/soothill/haptic-bridge/bridge"
	"github.com/soothill/haptic-bridge/config"
	"github.com/soothill/haptic-bridge/discovery"
	"github.com/soothill/haptic-bridge/pkg/logger"
	"github.com/soothill/haptic-bridge/pkg/notifications"
)

const (
	signalChannelSize   = 1
	alertContextTimeout = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
	reconnectInterval   = 30 * time.Second
)

// App represents the main application
type App struct {
	cfg           *config.Config
	manager       *bridge.Manager
	server        *api.Server
	notifier      *notifications.SlackNotifier
	configWatcher *config.Watcher
	configChan    chan *config.Config
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// New creates a new application instance
func New(cfg *config.Config, configPath string) (*App, error) {
	app := &App{
		cfg:        cfg,
		configChan: make(chan *config.Config),
	}

	app.notifier = notifications.NewSlackNotifier(cfg.Notifications.SlackWebhookURL)
	if app.notifier.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}

	app.manager = bridge.New(cfg)
	app.server = api.NewServer(cfg, app.manager)
	app.configWatcher = config.NewWatcher(configPath, app.configChan)

	return app, nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()

	a.setupSignalHandler()
	a.startConfigReloader()
	a.resolveServerURL(ctx)
	a.startHTTPServer()
	a.performStartupInitialize(ctx)

	<-ctx.Done()
	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	logger.Info().Msg("All goroutines finished, exiting")
}

// resolveServerURL discovers the Intiface server via mDNS when no websocket
// URL is configured or discovery is enabled. A failed discovery keeps the
// configured URL.
func (a *App) resolveServerURL(ctx context.Context) {
	if !a.cfg.Intiface.Discover && a.cfg.Intiface.URL != "" {
		return
	}

	logger.Info().Msg("Discovering Intiface server via mDNS")
	scanner := discovery.NewScanner(discovery.DefaultServiceType, discovery.DefaultDomain)
	url, err := scanner.DiscoverURL(ctx, a.cfg.Intiface.DiscoverTimeout)
	if err != nil {
		logger.Warn().Err(err).Str("fallback_url", a.cfg.Intiface.URL).
			Msg("Intiface discovery failed, using configured URL")
		return
	}

	logger.Info().Str("url", url).Msg("Using discovered Intiface server")
	a.manager.SetServerURL(url)
}

// performStartupInitialize tries the initial connect and scan. Startup
// never fails on an unreachable device server; the lazy-initialize
// middleware and the reconnect loop retry later.
func (a *App) performStartupInitialize(ctx context.Context) {
	err := a.manager.Initialize(ctx)
	if err == nil {
		logger.Info().Int("devices", a.manager.DeviceCount()).Msg("Bridge initialized")
		return
	}

	logger.Error().Err(err).Msg("Error during startup initialization")
	a.sendConnectionFailureAlert(err)
	a.startReconnectLoop()
}

// startReconnectLoop retries initialization in the background until it
// succeeds, then sends a recovery notification.
func (a *App) startReconnectLoop() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(reconnectInterval)
		defer ticker.Stop()

		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				if err := a.manager.Initialize(a.ctx); err != nil {
					logger.Debug().Err(err).Msg("Reconnect attempt failed")
					continue
				}
				logger.Info().Msg("Reconnected to Intiface")
				if a.notifier.IsEnabled() {
					alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
					if notifyErr := a.notifier.SendConnectionRecovery(alertCtx, a.manager.ServerURL()); notifyErr != nil {
						logger.Error().Err(notifyErr).Msg("Failed to send recovery alert")
					}
					alertCancel()
				}
				return
			}
		}
	}()
}

func (a *App) sendConnectionFailureAlert(err error) {
	if !a.notifier.IsEnabled() {
		return
	}
	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	defer alertCancel()
	if notifyErr := a.notifier.SendConnectionFailure(alertCtx, a.manager.ServerURL(), err); notifyErr != nil {
		logger.Error().Err(notifyErr).Msg("Failed to send connection failure alert")
	}
}

// startHTTPServer starts the HTTP server for the REST API
func (a *App) startHTTPServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
			a.cancel()
		}
	}()
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// performGracefulShutdown handles graceful shutdown of all components
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	a.manager.Shutdown(shutdownCtx)
	a.cancel()
}

// startConfigReloader applies configuration reloads delivered by the
// watcher. Only dynamic values take effect without a restart.
func (a *App) startConfigReloader() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config reloader goroutine shutting down")
				return
			case cfg := <-a.configChan:
				a.cfg = cfg
				logger.SetLevel(cfg.Logging.Level)
				logger.Info().Str("log_level", cfg.Logging.Level).Msg("Application configuration updated")
			}
		}
	}()
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	logger.Info().
		Bool("initialized", a.manager.Initialized()).
		Bool("connected", a.manager.IsConnected()).
		Str("client_state", a.manager.ClientState()).
		Str("websocket_url", a.manager.ServerURL()).
		Int("device_count", a.manager.DeviceCount()).
		Int("active_index", a.manager.ActiveIndex()).
		Msg("Bridge state")

	for _, device := range a.manager.GetAllDevices() {
		logger.Info().
			Int("id", device.ID).
			Str("device_name", device.Name).
			Int("index", device.Index).
			Int("actuator_count", device.ActuatorCount).
			Strs("actuator_types", device.ActuatorTypes).
			Msg("Known device")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}
