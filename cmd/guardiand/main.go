package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/guardianbot/guardian/internal/agent"
	apiPkg "github.com/guardianbot/guardian/internal/api"
	"github.com/guardianbot/guardian/internal/config"
	"github.com/guardianbot/guardian/internal/events"
	"github.com/guardianbot/guardian/internal/logbuf"
	"github.com/guardianbot/guardian/internal/memory"
	"github.com/guardianbot/guardian/internal/metrics"
	"github.com/guardianbot/guardian/internal/prompt"
	"github.com/guardianbot/guardian/internal/provider"
	"github.com/guardianbot/guardian/internal/scheduler"
	"github.com/guardianbot/guardian/internal/ticket"
	"github.com/guardianbot/guardian/internal/tool"
)

func main() {
	configPath := flag.String("config", os.Getenv("GUARDIAN_CONFIG"), "Path to config file (.json, .yaml)")
	envDir := flag.String("env-dir", ".", "Directory holding an optional .env file")
	verbose := flag.Bool("v", false, "Verbose logging (overrides log.level)")
	flag.Parse()

	boot := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := config.LoadDotEnv(*envDir); err != nil {
		boot.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logBuf, closeLog := setupLogging(cfg.Log, *verbose)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, logBuf); err != nil {
		logger.Error("guardiand exited", "error", err)
		os.Exit(1)
	}
	logger.Info("guardiand stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, logBuf *logbuf.Buffer) error {
	logger.Info("guardiand starting",
		"provider", cfg.Provider.Type,
		"model", cfg.Provider.Model,
		"store", cfg.Store.Type)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 1. Ticket store
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	opts := []ticket.Option{
		ticket.WithLogger(logger.With("component", "ticket")),
		ticket.WithMetrics(m),
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.Topic, logger.With("component", "events"))
		defer pub.Close()
		opts = append(opts, ticket.WithPublisher(pub))
		logger.Info("ticket events enabled", "brokers", cfg.Events.KafkaBrokers, "topic", cfg.Events.Topic)
	}
	tickets := ticket.NewService(backend, opts...)
	defer tickets.Close()
	logger.Info("ticket store opened", "backend", backend.Name())

	// 2. Model client and instructions
	prov, err := provider.New(cfg.Provider.Type, cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Model)
	if err != nil {
		return err
	}
	instructions, err := prompt.Load(cfg.Agent.PromptFile)
	if err != nil {
		return err
	}

	// 3. Agent loop
	dispatcher := tool.NewDispatcher(tickets, logger.With("component", "tool"), m)
	ag := agent.New(prov, dispatcher, instructions)
	ag.Model = cfg.Provider.Model
	ag.Logger = logger.With("component", "agent")
	ag.Metrics = m
	ag.MaxIterations = cfg.Agent.MaxIterations
	ag.CallTimeout = cfg.CallTimeout()
	if cfg.Agent.CompactThreshold > 0 {
		ag.Compactor = &memory.Compactor{
			Provider:  prov,
			Model:     cfg.Provider.Model,
			Threshold: cfg.Agent.CompactThreshold,
		}
	}

	sessions := memory.NewSessions(memory.WithTTL(cfg.SessionTTL()))

	// 4. HTTP API
	srv := apiPkg.NewServer(
		apiPkg.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		apiPkg.Deps{
			Assistant: ag,
			Sessions:  sessions,
			Tickets:   tickets,
			Logs:      logBuf,
			Gatherer:  reg,
		},
		logger,
	)

	// 5. Background session sweep
	var sched *scheduler.Scheduler
	if cfg.Memory.SweepSchedule != "" {
		sched = scheduler.New(logger)
		sweep := scheduler.SweepJob("sessions", sessions, logger.With("component", "memory"))
		if err := sched.AddJob("session-sweep", cfg.Memory.SweepSchedule, sweep); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if sched != nil {
		g.Go(func() error { return sched.Start(gctx) })
	}
	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config) (ticket.Backend, error) {
	switch cfg.Store.Type {
	case config.StoreBolt:
		return ticket.NewBoltStore(cfg.StorePath())
	case config.StoreLog:
		return ticket.NewLogStore(cfg.StorePath()), nil
	case config.StorePostgres:
		return ticket.NewPostgresStore(ctx, cfg.Store.DSN)
	case config.StoreSQLite:
		return ticket.NewSQLiteStore(cfg.StorePath())
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// setupLogging builds the daemon logger: JSON to stdout, teed to a rotating
// file when configured, with every record also kept in an in-memory buffer
// for GET /api/logs.
func setupLogging(cfg config.LogConfig, verbose bool) (*slog.Logger, *logbuf.Buffer, func()) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { rotator.Close() }
	}

	buf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(logbuf.NewHandler(jsonHandler, buf, slog.LevelDebug)), buf, closeFn
}
