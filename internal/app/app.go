package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/brief"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/config"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/dedup"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/delivery"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/ops"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/registry"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/scheduler"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/sources"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/store"
)

// App owns the wiring and lifecycle of the whole scheduler service.
type App struct {
	cfg config.Config
	log *zap.Logger

	registry  registry.Registry
	transport scheduler.Transport
	exec      *scheduler.Executor
	sync      *scheduler.Synchronizer
}

func New(cfg config.Config, log *zap.Logger) *App {
	return &App{cfg: cfg, log: log}
}

// Run wires all components and blocks until ctx is canceled or a
// shutdown signal arrives, then stops everything in dependency order.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			a.log.Error("store close failed", zap.Error(err))
		}
	}()

	a.registry = registry.NewHTTPRegistry(a.cfg.RegistryURL, a.cfg.SourceTimeout)

	switch a.cfg.DeliveryMode {
	case "telegram":
		tg, err := delivery.NewTelegram(a.cfg.BotToken, a.log)
		if err != nil {
			return fmt.Errorf("telegram transport: %w", err)
		}
		a.transport = tg
	default:
		a.transport = delivery.NewWebhook(a.cfg.DeliveryURL, a.cfg.DeliveryTimeout, a.log)
	}

	pipeline := brief.NewPipeline(
		sources.NewClient(a.cfg.SourcesURL, a.cfg.SourceTimeout),
		brief.NewOpenAIClient(a.cfg.OpenAIKey, a.cfg.OpenAIBaseURL),
		brief.PipelineConfig{
			Model:          a.cfg.OpenAIModel,
			MaxTokens:      a.cfg.MaxBriefTokens,
			RetryAttempts:  a.cfg.RetryAttempts,
			RetryBaseDelay: a.cfg.RetryBaseDelay,
			InterCallDelay: a.cfg.InterCallDelay,
		},
		a.log,
	)
	coordinator := brief.NewCoordinator(pipeline, a.cfg.CacheTTL, a.log)
	guard := dedup.New(repo, a.cfg.CooldownWindow, a.log)
	a.exec = scheduler.NewExecutor(guard, coordinator, a.transport, a.cfg.FiringTimeout, a.log)

	triggers := scheduler.NewTriggerSet(a.log)
	a.sync = scheduler.NewSynchronizer(a.registry, triggers, func(e domain.Entry, source string) {
		// cron callbacks outlive any request; the executor applies its
		// own per-firing timeout
		_ = a.exec.Execute(context.Background(), e, source)
	}, a.cfg.SyncInterval, a.log)

	var changes <-chan struct{}
	if w, ok := a.registry.(registry.Watcher); ok {
		changes = w.Changes()
	}
	triggers.Start()
	go a.sync.Run(ctx, changes)

	if a.cfg.QueueEnabled {
		worker := scheduler.NewQueueWorker(repo, a.registry, a.exec,
			a.cfg.QueueBatch, a.cfg.QueuePollInterval, a.log)
		go worker.RunEnqueue(ctx)
		go worker.RunPoll(ctx)
	}

	srv := ops.NewServer(a.cfg.HTTPAddr, a, a.log)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()

	a.log.Info("scheduler running",
		zap.String("delivery_mode", a.cfg.DeliveryMode),
		zap.Bool("queue", a.cfg.QueueEnabled))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-srvErr:
		if err != nil {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	}

	// both exit paths stop the trigger set before the deferred store
	// close; a cron callback must never outlive the repo
	a.log.Info("shutting down")
	<-triggers.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("ops server shutdown failed", zap.Error(err))
	}
	return runErr
}

// SyncNow triggers one reconcile cycle.
func (a *App) SyncNow(ctx context.Context) error { return a.sync.SyncNow(ctx) }

// Status reports the live trigger set and last sync outcome.
func (a *App) Status() scheduler.Status { return a.sync.Status() }

// TriggerOnce fires one user's brief immediately. The dedup guard
// still applies.
func (a *App) TriggerOnce(ctx context.Context, userID string) error {
	entries, err := a.registry.ActiveEntries(ctx)
	if err != nil {
		return fmt.Errorf("registry snapshot: %w", err)
	}
	for _, e := range entries {
		if e.UserID != userID {
			continue
		}
		if err := e.Validate(); err != nil {
			return err
		}
		return a.exec.Execute(ctx, e, "manual")
	}
	return fmt.Errorf("user %q not found in registry", userID)
}

// TestDelivery pushes content through the configured transport.
func (a *App) TestDelivery(ctx context.Context, recipientID, content string) error {
	return a.transport.Deliver(ctx, recipientID, content)
}
