package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/backend/local"
	"hear/internal/adapters/backend/rest"
	"hear/internal/adapters/content"
	emailPkg "hear/internal/adapters/email"
	web "hear/internal/adapters/http"
	"hear/internal/adapters/http/middleware"
	"hear/internal/adapters/http/perf"
	"hear/internal/adapters/logging"
	"hear/internal/adapters/storage"
	"hear/internal/adapters/storage/clientstore"
	"hear/internal/adapters/tracing"
	"hear/internal/application/orchestrators"
	"hear/internal/application/visitor"
	"hear/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("hear: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.TraceExporter)
	if err != nil {
		return err
	}

	// WAL mode, foreign keys and a busy timeout for concurrent visitors
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := storage.MigrateDB(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector)

	factory := backendFactory(cfg, timedDB)
	factory = tracing.Instrument(factory, collector)

	site, err := content.Load()
	if err != nil {
		return fmt.Errorf("load site content: %w", err)
	}

	var sender emailPkg.Sender
	if cfg.Email.ResendKey != "" {
		if sender, err = emailPkg.NewResendSender(cfg.Email.ResendKey, cfg.Email.From); err != nil {
			return fmt.Errorf("configure resend: %w", err)
		}
		slog.Info("email_sender", "provider", "resend")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("email_sender", "provider", "noop", "warning", "HEAR_RESEND_KEY is not set, lead e-mails are disabled")
		} else {
			slog.Info("email_sender", "provider", "noop")
		}
	}

	registry := visitor.NewRegistry(visitor.Config{
		Backend: factory,
		Storage: clientstore.NewSQLiteStore(timedDB),
		Forms: orchestrators.FormFactories(orchestrators.FormsDeps{
			Sender:    sender,
			LeadInbox: cfg.Email.LeadInbox,
			Now:       time.Now,
		}),
		IdleTimeout: cfg.VisitorIdle,
	})
	defer registry.Close()

	healthClient := factory(clientstore.NewMemoryStorage())
	report := orchestrators.ExecuteHealthCheck(ctx, healthClient)
	if report.OK {
		slog.Info("backend_health", "mode", cfg.Backend.Mode, "consultations", report.Rows, "took_ms", report.Took.Milliseconds())
	} else {
		slog.Warn("backend_health", "mode", cfg.Backend.Mode, "category", report.Category, "detail", report.Detail)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	handler, err := web.NewMux(web.Deps{
		Registry:      registry,
		Content:       site,
		HealthClient:  healthClient,
		Collector:     collector,
		CSRFKey:       cfg.CSRFKey,
		SecureCookies: cfg.SecureCookies,
		Limiter:       limiter,
		SlowRequest:   cfg.SlowRequest,
		PerfEnabled:   cfg.PerfEnabled,
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	go registry.Run(ctx, cfg.SweepInterval)
	go limiter.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_start", "version", version, "addr", cfg.Addr, "env", cfg.Env, "backend", cfg.Backend.Mode, "schema", storage.LatestSchemaVersion())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("server_stop", "grace", cfg.ShutdownPeriod.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server_shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing_shutdown", "error", err)
	}
	return nil
}

// backendFactory returns the configured backend's client factory.
func backendFactory(cfg *config.Config, db storage.SQLDB) backend.Factory {
	if cfg.Backend.Mode == config.BackendREST {
		return rest.NewConnector(rest.Config{
			URL:         cfg.Backend.URL,
			AnonKey:     cfg.Backend.AnonKey,
			Timeout:     cfg.Backend.Timeout,
			MaxFailures: cfg.Backend.MaxFailures,
		}, nil).Factory()
	}
	return local.New(db).Factory()
}
