package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/analytics"
	"github.com/officina-hr/jobengine/internal/api"
	"github.com/officina-hr/jobengine/internal/circuitbreaker"
	"github.com/officina-hr/jobengine/internal/config"
	"github.com/officina-hr/jobengine/internal/cron"
	"github.com/officina-hr/jobengine/internal/dispatch"
	"github.com/officina-hr/jobengine/internal/hr"
	"github.com/officina-hr/jobengine/internal/leaderelection"
	"github.com/officina-hr/jobengine/internal/mail"
	"github.com/officina-hr/jobengine/internal/metrics"
	"github.com/officina-hr/jobengine/internal/orchestrator"
	"github.com/officina-hr/jobengine/internal/scheduler"
	"github.com/officina-hr/jobengine/internal/store/postgres"
	"github.com/officina-hr/jobengine/internal/sweep"
	"github.com/officina-hr/jobengine/internal/timeutil"
	"github.com/officina-hr/jobengine/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`jobengine - HR background job orchestration and recovery engine

Usage:
  jobengine <command>

Commands:
  serve      Start the scheduler, recovery sweep, and admin API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for run analytics (optional)
  HTTP_ADDR                 Admin API address (default: ":8080")
  BUSINESS_TIMEZONE         Calendar for schedule arithmetic (default: "Europe/Rome")

  TICK_INTERVAL             Scheduler tick interval (default: "30s")
  SWEEP_INTERVAL            Overdue recovery sweep interval (default: "1h")
  JOB_TIMEOUT               Per-job execution deadline (default: "10m")
  NOTIFICATION_HOUR         Business-local hour for deadline reminders (default: "9")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  EVENTBUS_BUFFER_SIZE      Run event bus capacity (default: "100")
  ANALYTICS_RETENTION       Redis analytics counter TTL (default: "720h")

  SMTP_ADDR                 SMTP host:port; unset logs mail instead of sending
  SMTP_FROM                 Sender address for deadline reminders
  SMTP_USERNAME             SMTP auth username (optional)
  SMTP_PASSWORD             SMTP auth password (optional)
  BREAKER_THRESHOLD         Mail failures per domain before tripping (default: "5", 0 disables)
  BREAKER_COOLDOWN          Open-circuit cooldown per mail domain (default: "5m")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  LEADER_ENABLED            Gate scheduling behind advisory-lock election (default: "false")
  LEADER_LOCK_KEY           Postgres advisory lock key (default: "581247")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection ping interval (default: "10s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitRuntimeError
	}
	defer logger.Sync()

	logConfigWarnings(cfg, logger)

	cal, err := timeutil.NewCalendar(cfg.BusinessTimezone)
	if err != nil {
		logger.Error("invalid business timezone", zap.String("timezone", cfg.BusinessTimezone), zap.Error(err))
		return exitInvalidConfig
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", zap.Error(err))
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	logger.Info("db pool configured",
		zap.Int("max_open", cfg.DBMaxOpenConns),
		zap.Int("max_idle", cfg.DBMaxIdleConns),
		zap.Duration("max_lifetime", cfg.DBConnMaxLifetime),
		zap.Duration("max_idle_time", cfg.DBConnMaxIdleTime))

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureSeeded(seedCtx, time.Now().UTC())
	seedCancel()
	if err != nil {
		logger.Error("failed to seed job trackers", zap.Error(err))
		return exitRuntimeError
	}

	// Metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, logger)
		logger.Info("metrics enabled",
			zap.String("port", cfg.MetricsPort),
			zap.String("path", cfg.MetricsPath))

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("METRICS_ENABLED not set; metrics disabled")
	}

	// Run event bus with optional drop accounting
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewRunEventBus(cfg.EventBusBufferSize, busOpts...)

	orchOpts := []orchestrator.Option{
		orchestrator.WithRunStore(store),
		orchestrator.WithEventEmitter(bus),
	}
	if metricsSink != nil {
		orchOpts = append(orchOpts, orchestrator.WithMetrics(metricsSink))
	}
	orch := orchestrator.New(store, cfg.JobTimeout, logger, orchOpts...)

	hrStore := hr.New(db, cfg.DBOpTimeout)

	var sender mail.Sender
	if cfg.SMTPAddr != "" {
		sender = mail.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword, logger)
		logger.Info("smtp sender configured", zap.String("addr", cfg.SMTPAddr), zap.String("from", cfg.SMTPFrom))
	} else {
		sender = mail.NewLogSender(logger)
		logger.Info("SMTP_ADDR not set; outbound mail will be logged only")
	}

	dispOpts := []dispatch.Option{
		dispatch.WithBreaker(circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown)),
	}
	if metricsSink != nil {
		dispOpts = append(dispOpts, dispatch.WithMetrics(metricsSink))
	}
	disp := dispatch.New(orch, hrStore, hrStore, hrStore, hrStore, sender, cal, cfg.NotificationHour, logger, dispOpts...)

	var sweepOpts []sweep.Option
	if metricsSink != nil {
		sweepOpts = append(sweepOpts, sweep.WithMetrics(metricsSink))
	}
	sweeper := sweep.New(store, disp, cfg.SweepInterval, logger, sweepOpts...)

	// Triggers are evaluated in the business calendar, not UTC.
	parser := cron.NewParser(cal.Location())
	sched, err := scheduler.New(scheduler.DefaultTriggers(), parser, disp, cfg.TickInterval, logger)
	if err != nil {
		logger.Error("failed to build scheduler", zap.Error(err))
		return exitRuntimeError
	}

	// Run analytics if Redis is configured
	var analyticsWg sync.WaitGroup
	var cancelAnalytics context.CancelFunc
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient, cfg.AnalyticsRetention, logger)

		var analyticsCtx context.Context
		analyticsCtx, cancelAnalytics = context.WithCancel(context.Background())
		analyticsWg.Add(1)
		go func() {
			defer analyticsWg.Done()
			sink.Consume(analyticsCtx, bus.Channel())
		}()
		logger.Info("analytics enabled", zap.String("redis", cfg.RedisAddr))
	} else {
		logger.Info("REDIS_ADDR not set; analytics disabled")
	}

	apiHandler := api.NewHandler(store, disp, logger).WithHealthChecker(db)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	// duties covers the scheduler and the recovery sweep: the components
	// that must run on exactly one instance.
	duties := &leaderDuties{sched: sched, sweeper: sweeper}

	dutiesCtx, cancelDuties := context.WithCancel(context.Background())
	var electorWg sync.WaitGroup

	if cfg.LeaderEnabled {
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			duties.Start,
			duties.Stop,
			logger,
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(dutiesCtx)
		}()
		logger.Info("leader election enabled",
			zap.Int64("lock_key", cfg.LeaderLockKey),
			zap.Duration("retry", cfg.LeaderRetryInterval),
			zap.Duration("heartbeat", cfg.LeaderHeartbeatInterval))
	} else {
		duties.Start(dutiesCtx)
		logger.Info("LEADER_ENABLED not set; running scheduler and sweep unconditionally")
	}

	logger.Info("jobengine started",
		zap.Duration("tick", cfg.TickInterval),
		zap.Duration("sweep", cfg.SweepInterval),
		zap.String("http", cfg.HTTPAddr),
		zap.String("timezone", cfg.BusinessTimezone))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	logger.Info("received signal, shutting down", zap.String("signal", received.String()))

	// Phase 1: stop scheduler and sweep so no new executions dispatch
	logger.Info("stopping scheduler and recovery sweep")
	cancelDuties()
	electorWg.Wait()
	duties.Stop()
	logger.Info("scheduler and recovery sweep stopped")

	// Phase 2: stop the admin API (no more manual triggers)
	logger.Info("stopping http server")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("http server stopped")

	// Phase 3: stop the analytics consumer
	if cancelAnalytics != nil {
		logger.Info("stopping analytics consumer")
		cancelAnalytics()
		analyticsWg.Wait()
		logger.Info("analytics consumer stopped")
	}

	// Phase 4: stop metrics server if running
	if metricsServer != nil {
		logger.Info("stopping metrics server")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
		logger.Info("metrics server stopped")
	}

	logger.Info("jobengine stopped")
	return exitSuccess
}

// leaderDuties starts and stops the components only the leader may run.
// Stop is idempotent and blocks until both loops have returned, as the
// elector requires.
type leaderDuties struct {
	sched   *scheduler.Scheduler
	sweeper *sweep.Sweep

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (d *leaderDuties) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dutyCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.sched.Run(dutyCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.sweeper.Run(dutyCtx)
	}()
}

func (d *leaderDuties) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("jobengine version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
