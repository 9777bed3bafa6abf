package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"smart-mail-assistant-go/internal/actions"
	"smart-mail-assistant-go/internal/config"
	"smart-mail-assistant-go/internal/credential"
	"smart-mail-assistant-go/internal/db"
	"smart-mail-assistant-go/internal/events"
	"smart-mail-assistant-go/internal/fetcher"
	"smart-mail-assistant-go/internal/handler"
	"smart-mail-assistant-go/internal/ingest"
	"smart-mail-assistant-go/internal/intake"
	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/metrics"
	"smart-mail-assistant-go/internal/processor"
	"smart-mail-assistant-go/internal/queue"
	"smart-mail-assistant-go/internal/repository"
	"smart-mail-assistant-go/internal/router"
	"smart-mail-assistant-go/internal/scheduler"
	"smart-mail-assistant-go/internal/suggest"
	"smart-mail-assistant-go/internal/workspace"
)

const (
	guardMaxFailures = 5
	guardCooldown    = time.Minute
	intakeBuffer     = 64
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Smart Mail Assistant")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Unknown log level %q, keeping info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	if cfg.LLM.UseKeyring {
		store, err := credential.Open()
		if err != nil {
			logrus.Warnf("Keyring unavailable, LLM key must come from configuration: %v", err)
		} else if err := credential.ResolveLLMKey(&cfg.LLM, store); err != nil {
			return fmt.Errorf("failed to read LLM key from keyring: %w", err)
		}
	}

	backend, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	client := llm.WithGuard(backend, guardMaxFailures, guardCooldown)
	defaults := llm.DefaultOptions(cfg.LLM)

	resolver, err := meeting.NewResolver(cfg.Resolver.DefaultTimezone, meeting.WithLLM(client, defaults))
	if err != nil {
		return fmt.Errorf("failed to create meeting resolver: %w", err)
	}
	engine := suggest.NewEngine(client, defaults, repo, resolver, suggest.WithFlagStore(repo))

	ws, err := workspace.NewGoogleFromConfig(ctx, cfg.Gmail)
	if err != nil {
		return fmt.Errorf("failed to create workspace client: %w", err)
	}

	sinks, closeSinks := auditSinks(cfg.Events)
	defer closeSinks()

	svc := actions.NewService(repo, engine, resolver, ws, cfg.Links,
		actions.WithSinks(sinks...),
		actions.WithMetrics(m),
		actions.WithSender(cfg.Gmail.UserEmail),
		actions.WithTimezone(cfg.Resolver.DefaultTimezone),
	)

	q := queue.NewController(repo, cfg.Queue)
	proc := processor.New(q, repo, engine, cfg.Queue.InterMessageDelay, processor.WithMetrics(m))

	f, err := newFetcher(ctx, cfg.Gmail)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logrus.Errorf("Failed to close fetcher: %v", err)
		}
	}()
	ing := ingest.NewService(f, repo, cfg.Gmail.UserEmail, m)

	sched := scheduler.NewScheduler(cfg.Scheduler, ing.Run, func(ctx context.Context) error {
		_, err := proc.RunCycle(ctx)
		return err
	})

	commands := intake.New(svc, q, engine, intakeBuffer)
	intakeDone := make(chan struct{})
	go func() {
		defer close(intakeDone)
		commands.Run(ctx)
	}()

	h := handler.NewHandlers(ctx, repo, commands, q, sched, cfg.Queue.StatsWindow, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.AutoStart {
		if _, err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		sched.Stop()
		return fmt.Errorf("HTTP server error: %w", err)
	}

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}
	<-intakeDone

	logrus.Info("Server stopped gracefully")
	return nil
}

func newFetcher(ctx context.Context, cfg config.GmailConfig) (fetcher.EmailFetcher, error) {
	if cfg.UseIMAP {
		f, err := fetcher.NewIMAPFetcher(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create IMAP fetcher: %w", err)
		}
		logrus.Info("Using IMAP for email fetching")
		return f, nil
	}
	f, err := fetcher.NewGmailAPIFetcher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail API fetcher: %w", err)
	}
	logrus.Info("Using Gmail API for email fetching")
	return f, nil
}

// auditSinks builds the optional audit consumers. A sink that cannot connect is skipped.
func auditSinks(cfg config.EventsConfig) ([]actions.AuditSink, func()) {
	var (
		sinks   []actions.AuditSink
		closers []func() error
	)
	if cfg.AMQPURL != "" {
		sink, err := events.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logrus.Warnf("Audit events disabled: %v", err)
		} else {
			sinks = append(sinks, sink)
			closers = append(closers, sink.Close)
			logrus.Infof("Publishing audit events to exchange %s", cfg.AMQPExchange)
		}
	}
	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		sinks = append(sinks, events.NewSlackAlerter(slack.New(cfg.SlackToken), cfg.SlackChannel))
		logrus.Infof("Posting permission alerts to Slack channel %s", cfg.SlackChannel)
	}
	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logrus.Errorf("Failed to close audit sink: %v", err)
			}
		}
	}
}
