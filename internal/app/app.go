// Package app builds the generator and its collaborators from
// configuration. Both the long-running server and the function entrypoint
// start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Lllllllleong/casedocflow/internal/config"
	"github.com/Lllllllleong/casedocflow/internal/gcp"
	"github.com/Lllllllleong/casedocflow/internal/mapping"
	"github.com/Lllllllleong/casedocflow/internal/notify"
	"github.com/Lllllllleong/casedocflow/internal/observability"
	"github.com/Lllllllleong/casedocflow/internal/pdf"
	"github.com/Lllllllleong/casedocflow/internal/services"
	"github.com/Lllllllleong/casedocflow/internal/status"
	"github.com/Lllllllleong/casedocflow/internal/templates"
	"github.com/Lllllllleong/casedocflow/internal/upload"
	"github.com/Lllllllleong/casedocflow/internal/web"
)

// App holds everything a process needs to serve jobs.
type App struct {
	Config    *config.Config
	Clients   *gcp.Clients
	Tracker   *status.Tracker
	Generator *services.Generator
	Server    *web.Server

	redis       *redis.Client
	stopSweeper context.CancelFunc
	shutdowns   []func(context.Context) error
}

// New wires the application. On error, everything created so far is
// released.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Clients: gcp.NewClients(cfg.GCP.ProjectID),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.CollectorAddr)
	if err != nil {
		return nil, err
	}
	a.shutdowns = append(a.shutdowns, shutdownTracing)

	var metricsHandler http.Handler
	if cfg.Telemetry.MetricsEnabled {
		handler, shutdownMetrics, err := observability.InitMetrics()
		if err != nil {
			return nil, err
		}
		metricsHandler = handler
		a.shutdowns = append(a.shutdowns, shutdownMetrics)
	}

	registry, err := a.loadMappings(ctx)
	if err != nil {
		return nil, err
	}

	engine := pdf.NewPDFCPUEngine()
	store, err := a.templateStore(ctx, engine)
	if err != nil {
		return nil, err
	}
	for _, name := range registry.Templates() {
		store.Register(name)
	}

	statusStore, err := a.statusStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Tracker = status.NewTracker(statusStore, status.Options{
		TTL:           cfg.Status.TTL,
		SweepInterval: cfg.Status.SweepInterval,
	})
	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopSweeper = cancel
	go a.Tracker.Run(sweepCtx)

	uploader, err := a.uploader(ctx)
	if err != nil {
		return nil, err
	}

	notifier, err := a.notifier(ctx)
	if err != nil {
		return nil, err
	}

	a.Generator, err = services.NewGenerator(services.GeneratorConfig{
		Templates:   store,
		Mappings:    registry,
		Filler:      pdf.NewFiller(engine),
		Uploader:    uploader,
		Tracker:     a.Tracker,
		Notifier:    notifier,
		ArtifactDir: cfg.Artifacts.Dir,
	})
	if err != nil {
		return nil, err
	}

	a.Server = web.NewServer(a.Generator, a.Tracker, web.Options{
		Heartbeat:      cfg.Status.HeartbeatInterval,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MetricsHandler: metricsHandler,
	})
	return a, nil
}

func (a *App) loadMappings(ctx context.Context) (*mapping.Registry, error) {
	var (
		registry *mapping.Registry
		err      error
	)
	if a.Config.Mapping.Collection != "" {
		client, cerr := a.Clients.Firestore(ctx)
		if cerr != nil {
			return nil, cerr
		}
		registry, err = mapping.NewFirestoreLoader(client, a.Config.Mapping.Collection).Load(ctx)
	} else {
		registry, err = mapping.LoadFile(a.Config.Mapping.File)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load field mappings: %w", err)
	}
	slog.Info("Field mappings loaded.", "version", registry.Version(), "documentTypes", registry.DocumentTypes())
	return registry, nil
}

func (a *App) templateStore(ctx context.Context, inspector templates.Inspector) (*templates.Store, error) {
	cfg := a.Config.Templates
	var source templates.Source
	if cfg.Bucket != "" {
		client, err := a.Clients.Storage(ctx)
		if err != nil {
			return nil, err
		}
		source = templates.NewGCSSource(client, cfg.Bucket, cfg.Prefix)
	} else {
		source = templates.NewDirSource(cfg.Dir)
	}
	return templates.NewStore(templates.StoreConfig{
		Source:       source,
		Inspector:    inspector,
		SoftMaxBytes: cfg.SoftMaxBytes,
	}), nil
}

func (a *App) statusStore(ctx context.Context) (status.Store, error) {
	cfg := a.Config.Status
	if strings.ToLower(cfg.Backend) != "redis" {
		return status.NewMemoryStore(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("Using Redis status store.", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	return status.NewRedisStore(a.redis, cfg.RedisPrefix), nil
}

func (a *App) uploader(ctx context.Context) (*upload.Coordinator, error) {
	cfg := a.Config.Upload
	var store upload.ObjectStore
	if cfg.Enabled {
		client, err := a.Clients.Storage(ctx)
		if err != nil {
			return nil, err
		}
		store = upload.NewGCSStore(client, cfg.Bucket, cfg.SignerEmail)
	}
	return upload.NewCoordinator(store, upload.Config{
		Enabled:    cfg.Enabled,
		Prefix:     cfg.Prefix,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
		TeamLinks:  cfg.TeamLinks,
		LinkExpiry: cfg.LinkExpiry,
	}), nil
}

func (a *App) notifier(ctx context.Context) (notify.Notifier, error) {
	cfg := a.Config.Notify
	var multi notify.Multi
	if cfg.SinkURL != "" {
		n, err := notify.NewCloudEventsNotifier(cfg.SinkURL, cfg.Source)
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if cfg.WorkflowID != "" {
		client, err := a.Clients.Executions(ctx)
		if err != nil {
			return nil, err
		}
		multi = append(multi, notify.NewWorkflowNotifier(client, a.Config.GCP.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID))
	}
	if len(multi) == 0 {
		return nil, nil
	}
	return multi, nil
}

// Close stops the sweeper, flushes telemetry and closes every client.
func (a *App) Close(ctx context.Context) error {
	if a.stopSweeper != nil {
		a.stopSweeper()
	}
	var errs []error
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, a.shutdowns[i](ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.Clients.Close())
	return errors.Join(errs...)
}
