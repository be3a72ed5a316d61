package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/abilityd/internal/config"
	"github.com/harun/abilityd/internal/logger"
	"github.com/harun/abilityd/internal/metrics"
	"github.com/harun/abilityd/internal/tracing"
)

// Daemon runs the ability runtime behind an HTTP listener
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	runtime *Runtime

	httpServer *http.Server
	listener   net.Listener
	pidFile    *PIDFile

	serveErr chan error
	wg       sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracer *tracing.Provider
}

// Status is a point-in-time view of the daemon
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
	Tools     []string
}

// New creates a daemon and initializes the runtime. Registration and bind
// failures are returned here, before anything listens.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	d := &Daemon{
		config:   cfg,
		logger:   log,
		metrics:  metrics.NewMetrics(),
		serveErr: make(chan error, 1),
	}

	if cfg.Tracing.Enabled {
		tracer, err := tracing.Init(cfg.Tracing, cfg.Server.Version, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracer = tracer
			log.Info().
				Str("exporter", cfg.Tracing.Exporter).
				Float64("sample_ratio", cfg.Tracing.SampleRatio).
				Msg("Tracing initialized")
		}
	}

	rt, err := NewRuntime(context.Background(), cfg, log.Logger, d.metrics)
	if err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}
	d.runtime = rt
	d.pidFile = NewPIDFile(cfg.DataDir)

	return d, nil
}

// Start begins serving. It returns once the listener is bound.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	traceID := tracing.NewTraceID()
	logger := d.logger.Logger.With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting abilityd")

	tools, err := d.runtime.Server.Handler()
	if err != nil {
		return fmt.Errorf("failed to start tool server: %w", err)
	}

	listener, err := net.Listen("tcp", d.config.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.config.HTTP.Listen, err)
	}

	if err := d.pidFile.Acquire(); err != nil {
		listener.Close()
		return err
	}
	logger.Info().Str("pid_file", d.pidFile.Path()).Int("pid", os.Getpid()).Msg("PID file written")

	d.listener = listener
	d.httpServer = &http.Server{
		Handler:           NewRouter(d.runtime.Server, tools, d.metrics, d.config.RequestTimeout(), d.logger.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
			d.serveErr <- err
		}
	}()

	d.running = true
	d.startTime = time.Now()

	addr := listener.Addr().String()
	logger.Info().
		Str("addr", addr).
		Str("base_path", d.runtime.Server.BasePath()).
		Strs("tools", d.runtime.Server.BoundIDs()).
		Msg("Daemon started successfully")

	go d.triggerReadyHooks(addr)

	return nil
}

// Stop shuts the listener down gracefully and releases the runtime
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.Logger.With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping abilityd")

	timeout := d.config.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := d.httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}
	d.wg.Wait()

	// Flush observability records still in flight
	d.runtime.Server.Drain()

	if err := d.runtime.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close runtime")
	}

	if err := d.pidFile.Release(); err != nil {
		logger.Error().Err(err).Msg("Failed to release PID file")
	}

	d.shutdownTracing()

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

func (d *Daemon) shutdownTracing() {
	if d.tracer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.tracer.Shutdown(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracer = nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Tools:   d.runtime.Server.BoundIDs(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.listener.Addr().String()
	}

	return status
}

// Addr returns the bound listen address, empty when not running
func (d *Daemon) Addr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Run starts the daemon and blocks until ctx is done or the listener fails
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		d.logger.Info().Msg("Context cancelled")
	case serveErr = <-d.serveErr:
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
	return serveErr
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetRuntime returns the ability runtime
func (d *Daemon) GetRuntime() *Runtime {
	return d.runtime
}

// GetMetrics returns the metrics registry
func (d *Daemon) GetMetrics() *metrics.Metrics {
	return d.metrics
}
