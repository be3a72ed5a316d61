package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/harun/abilityd/internal/config"
	"github.com/harun/abilityd/internal/metrics"
	"github.com/harun/abilityd/internal/observability"
	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/category"
	"github.com/harun/abilityd/pkg/engine"
	"github.com/harun/abilityd/pkg/hooks"
	"github.com/harun/abilityd/pkg/posts"
	"github.com/harun/abilityd/pkg/toolserver"
)

// Runtime is the wired ability stack: category store, ability registry,
// engine, hook manager and the bound tool server.
type Runtime struct {
	Categories *category.Store
	Registry   *ability.Registry
	Engine     *engine.Engine
	Hooks      *hooks.Manager
	Server     *toolserver.Server

	invoker   toolserver.Invoker
	audit     *observability.AuditLogger
	postStore *posts.SQLiteStore
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewRuntime builds the stores, registers providers and runs the init
// phases. Any registration or bind failure aborts startup.
func NewRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*Runtime, error) {
	categories := category.NewStore()
	registry := ability.NewRegistry(categories)

	hookManager, err := newHookManager(cfg.Hooks, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook manager: %w", err)
	}

	rt := &Runtime{
		Categories: categories,
		Registry:   registry,
		Engine: engine.New(registry, engine.Options{
			Timeout:     cfg.EngineTimeout(),
			StrictInput: cfg.Engine.StrictInput,
		}),
		Hooks:   hookManager,
		metrics: m,
		logger:  logger,
	}
	rt.invoker = rt.Engine

	if cfg.Audit.Enabled {
		audit, err := observability.OpenAuditLog(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		rt.audit = audit
		rt.invoker = &auditedInvoker{next: rt.Engine, audit: audit}
		logger.Info().Str("path", cfg.Audit.Path).Msg("Audit trail enabled")
	}

	if cfg.Posts.Enabled {
		if err := rt.registerPosts(cfg.Posts); err != nil {
			rt.Close()
			return nil, err
		}
	}

	if err := hookManager.On(hooks.EventServerInit, hooks.DefaultPriority, func(context.Context) error {
		return rt.initToolServer(cfg.Server)
	}); err != nil {
		rt.Close()
		return nil, err
	}

	if err := hookManager.Init(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	logger.Info().
		Int("categories", len(categories.List())).
		Int("abilities", registry.Count()).
		Strs("tools", rt.Server.BoundIDs()).
		Msg("Runtime initialized")

	return rt, nil
}

func (rt *Runtime) registerPosts(cfg config.PostsConfig) error {
	if cfg.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
			return fmt.Errorf("failed to create post database directory: %w", err)
		}
	}

	store, err := posts.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open post store: %w", err)
	}
	rt.postStore = store

	if err := posts.Register(rt.Hooks, rt.Categories, rt.Registry, posts.Options{
		Store:             store,
		BaseURL:           cfg.BaseURL,
		RequireCapability: cfg.RequireCapability,
	}); err != nil {
		return fmt.Errorf("failed to register post abilities: %w", err)
	}

	rt.logger.Info().Str("database", cfg.DatabasePath).Msg("Post provider registered")
	return nil
}

func (rt *Runtime) initToolServer(cfg config.ServerConfig) error {
	serverLogger := rt.logger

	errorHandler, err := toolserver.ErrorHandlerByName(cfg.ErrorHandler, serverLogger)
	if err != nil {
		return err
	}

	var recorder toolserver.InvocationRecorder
	if rt.metrics != nil {
		recorder = rt.metrics
	}
	observer, err := toolserver.ObservabilityHandlerByName(cfg.Observability, serverLogger, recorder)
	if err != nil {
		return err
	}

	transports := make([]toolserver.TransportKind, 0, len(cfg.Transports))
	for _, t := range cfg.Transports {
		transports = append(transports, toolserver.TransportKind(t))
	}

	srv, err := toolserver.New(toolserver.Config{
		ID:            cfg.ID,
		Namespace:     cfg.Namespace,
		RoutePrefix:   cfg.RoutePrefix,
		Name:          cfg.Name,
		Description:   cfg.Description,
		Version:       cfg.Version,
		Transports:    transports,
		ErrorHandler:  errorHandler,
		Observability: observer,
		Abilities:     cfg.Abilities,
		Policy:        toolserver.BindPolicy(cfg.BindPolicy),
		Logger:        serverLogger,
	}, rt.Registry, rt.invoker)
	if err != nil {
		return err
	}

	if err := srv.Bind(); err != nil {
		return fmt.Errorf("failed to bind tool server %s: %w", cfg.ID, err)
	}

	if rt.metrics != nil {
		rt.metrics.SetBoundTools(srv.ID(), len(srv.BoundIDs()))
	}

	rt.Server = srv
	return nil
}

// Invoke runs an ability outside any transport, through the same invoker
// the tool server uses
func (rt *Runtime) Invoke(ctx context.Context, id string, input interface{}, ictx ability.Context) (map[string]interface{}, error) {
	return rt.invoker.Invoke(ctx, id, input, ictx)
}

// Close releases the post store and the audit log
func (rt *Runtime) Close() error {
	var errs []error
	if rt.postStore != nil {
		errs = append(errs, rt.postStore.Close())
		rt.postStore = nil
	}
	if rt.audit != nil {
		errs = append(errs, rt.audit.Close())
		rt.audit = nil
	}
	return errors.Join(errs...)
}
