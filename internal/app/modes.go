package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pumpfight/internal/server"
	"github.com/alanyoungcy/pumpfight/internal/server/ws"
	"github.com/alanyoungcy/pumpfight/internal/service"
)

// dedupSweepInterval is how often expired idempotency keys are dropped.
const dedupSweepInterval = time.Minute

// buildService assembles the launchpad service over the wired dependencies.
func (a *App) buildService(deps *Dependencies) (*service.LaunchpadService, error) {
	svc, err := service.NewLaunchpadService(
		deps.Params,
		deps.CommandStore,
		deps.TokenStore,
		deps.EventStore,
		deps.PayoutStore,
		deps.AuditStore,
		a.logger,
	)
	if err != nil {
		return nil, err
	}

	svc.WithBus(deps.SignalBus).
		WithNotifier(deps.Notifier).
		WithMetrics(deps.Metrics).
		WithIdempotencyTTL(a.cfg.Launchpad.IdempotencyTTL.Duration)
	if deps.StateCache != nil {
		svc.WithStateCache(deps.StateCache)
	}
	if deps.LockManager != nil {
		svc.WithLock(deps.LockManager, a.cfg.Launchpad.LockTTL.Duration)
	}
	if deps.Signer != nil {
		svc.WithSigner(deps.Signer)
	}
	return svc, nil
}

// ServeMode replays the command log and then serves the HTTP and WebSocket
// API until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svc, err := a.buildService(deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	n, err := svc.Replay(ctx)
	if err != nil {
		return fmt.Errorf("serve mode: replay: %w", err)
	}
	a.logger.InfoContext(ctx, "command log replayed",
		slog.Int("commands", n),
		slog.Int64("last_seq", svc.LastSeq()),
	)
	if a.cfg.Launchpad.ResyncOnStart {
		if err := svc.Resync(ctx); err != nil {
			return fmt.Errorf("serve mode: resync: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	// Idempotency keys expire on their own schedule.
	g.Go(func() error {
		ticker := time.NewTicker(dedupSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				if dropped := svc.Dedup().Cleanup(now); dropped > 0 {
					a.logger.DebugContext(ctx, "idempotency keys expired", slog.Int("count", dropped))
				}
			}
		}
	})

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false; serve mode will only keep the engine warm")
		return g.Wait()
	}
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// startHTTPServer adds the HTTP server, its WebSocket hub and a shutdown
// watcher to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.LaunchpadService) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(
		server.Config{
			Port:               a.cfg.Server.Port,
			CORSOrigins:        a.cfg.Server.CORSOrigins,
			OperatorAPIKey:     a.cfg.Server.OperatorAPIKey,
			RequireSignatures:  a.cfg.Server.RequireSignatures,
			RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
		},
		server.NewHandlers(svc, a.logger),
		hub,
		deps.RateLimiter,
		deps.Metrics,
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ReplayMode rebuilds the engine from the command log and rewrites the token
// registry and cached curve state from it, then exits.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	svc, err := a.buildService(deps)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	start := time.Now()
	n, err := svc.Replay(ctx)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	if err := svc.Resync(ctx); err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	a.logger.InfoContext(ctx, "replay complete",
		slog.Int("commands", n),
		slog.Int64("last_seq", svc.LastSeq()),
		slog.Int("tokens", len(svc.Tokens(nil))),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// ArchiveMode moves events older than the retention window to object storage,
// once immediately and then on every archive interval.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not wired")
	}

	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	runOnce := func() error {
		cutoff := time.Now().UTC().Add(-retention)
		n, err := deps.Archiver.ArchiveEvents(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive mode: %w", err)
		}
		a.logger.InfoContext(ctx, "events archived",
			slog.Int64("count", n),
			slog.Time("cutoff", cutoff),
		)
		return nil
	}

	if err := runOnce(); err != nil {
		return err
	}
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := runOnce(); err != nil {
					a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
				}
			}
		}
	})
	return g.Wait()
}
