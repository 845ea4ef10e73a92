package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"campusevents/internal/actionlog"
	"campusevents/internal/attendance"
	"campusevents/internal/clock"
	"campusevents/internal/config"
	"campusevents/internal/domain"
	"campusevents/internal/httpapi"
	"campusevents/internal/httpmiddleware"
	"campusevents/internal/logx"
	"campusevents/internal/metrics"
	"campusevents/internal/queue"
	"campusevents/internal/scheduler"
	"campusevents/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logx.New(os.Stderr, cfg.LogLevel, cfg.LogFormat).With(logx.String("service", "api"))
	for _, w := range cfg.Warnings {
		log.Warn("config", logx.String("detail", w))
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api stopped", logx.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, log logx.Logger) error {
	health := map[string]httpapi.HealthCheck{}

	events, records, db, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		health["db"] = db.Healthy
	}

	var q queue.Queue
	var inMemory *queue.InMemory
	switch cfg.QueueBackend {
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		health["redis"] = rdb.Healthy
		q = queue.NewRedisQueue(rdb.Client, cfg.QueueKey)
	default:
		inMemory = queue.NewInMemory(1024)
		q = inMemory
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	actions := actionlog.Multi{actionlog.NewLog(log)}
	if inMemory == nil || db != nil {
		actions = append(actions, actionlog.NewPublisher(q, time.Second, log))
	}

	clk := clock.Real{}
	att, err := attendance.NewService(events, records, clk, attendance.Config{
		Thresholds: cfg.Thresholds,
		Sessions: attendance.SessionConfig{
			Grace:              cfg.MarkGrace,
			CheckpointInterval: cfg.CheckpointInterval,
			CheckpointWindow:   cfg.CheckpointWindow,
			Location:           cfg.Location(),
		},
	}, attendance.WithLogger(log), attendance.WithActionLogger(actions), attendance.WithMetrics(m))
	if err != nil {
		return err
	}

	sched := scheduler.New(events, clk, scheduler.Config{
		TriggerTimeout:    cfg.TriggerTimeout,
		CertificateWindow: cfg.CertificateWindow,
	},
		scheduler.WithLogger(log),
		scheduler.WithActionLogger(actions),
		scheduler.WithMetrics(m),
		scheduler.WithCompletionHook(att.FinalizeEvent),
	)

	var history httpapi.ActionHistory
	if db != nil {
		history = actionlog.NewStore(db, log)
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: httpapi.New(httpapi.Config{
			JWTIssuer:       cfg.JWTIssuer,
			JWTSigningKey:   cfg.JWTSigningKey,
			AccessTTL:       cfg.AccessTTL,
			RateLimitPerMin: cfg.RateLimitPerMin,
			DevTokens:       cfg.Env == "dev",
		}, httpapi.Deps{
			Events:     events,
			Scheduler:  sched,
			Attendance: att,
			Actions:    history,
			Clock:      clk,
			Log:        log,
			Gatherer:   reg,
			Health:     health,
			Limiter:    limiter,
		}).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.SchedulerEnabled {
		tick, err := scheduler.ParseTick(cfg.SchedulerTick)
		if err != nil {
			return err
		}
		loop := scheduler.NewLoop(sched, tick)
		g.Go(func() error { return loop.Run(ctx) })
	} else {
		log.Warn("scheduler disabled; lifecycle triggers will not fire in this process")
	}

	if inMemory != nil && db != nil {
		// Without a separate worker the API drains its own queue.
		sink := actionlog.NewStore(db, log)
		g.Go(func() error {
			if err := sink.Drain(ctx, inMemory); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				limiter.Sweep()
			}
		}
	})

	g.Go(func() error {
		log.Info("http listening", logx.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStores returns SQL-backed repositories, or in-memory ones when
// DATABASE_DRIVER is memory (db is nil then).
func openStores(ctx context.Context, cfg config.App) (domain.EventRepository, domain.AttendanceRepository, *store.DB, error) {
	if cfg.DatabaseDriver == "memory" {
		return store.NewMemoryEvents(), store.NewMemoryAttendance(), nil, nil
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := store.Open(openCtx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(openCtx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return store.NewEventRepository(db), attendance.NewRepository(db), db, nil
}
