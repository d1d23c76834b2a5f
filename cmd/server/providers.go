package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"ms-health-assistant/internal/config"
	"ms-health-assistant/internal/consultation"
	"ms-health-assistant/internal/extract"
	"ms-health-assistant/internal/knowledge"
	"ms-health-assistant/internal/platform/telegram"
	"ms-health-assistant/internal/report"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/samber/do"
	"github.com/samber/oops"
)

// store owns the backing database of the session repository so the injector
// can close it on shutdown.
type store struct {
	repo  consultation.Repository
	close func() error
}

func (s *store) Shutdown() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func provideKnowledge(_ *do.Injector) (*knowledge.Base, error) {
	return knowledge.Default()
}

func provideStore(di *do.Injector) (*store, error) {
	cfg := do.MustInvoke[*config.Config](di)
	ctx := do.MustInvoke[context.Context](di)

	switch cfg.Store.Driver {
	case "postgres":
		db, err := connectPostgres(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := runMigrations(cfg.Store); err != nil {
			db.Close()
			return nil, err
		}
		return &store{repo: consultation.NewRepository(db), close: db.Close}, nil

	case "sqlite":
		repo, closeDB, err := consultation.NewSQLiteRepository(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		slog.Info("Using SQLite session store", slog.String("dsn", cfg.Store.DSN))
		return &store{repo: repo, close: closeDB}, nil

	default:
		slog.Warn("Using in-memory session store, sessions will not survive a restart")
		return &store{repo: consultation.NewMemoryRepository()}, nil
	}
}

// connectPostgres retries until the database answers a ping; in compose
// setups the server usually starts before postgres is ready.
func connectPostgres(ctx context.Context, cfg config.Store) (*sql.DB, error) {
	var err error
	for i := 1; i <= cfg.ConnectAttempts; i++ {
		var db *sql.DB
		db, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = db.PingContext(ctx)
		}
		if err == nil {
			slog.Info("Connected to database")
			return db, nil
		}
		if db != nil {
			db.Close()
		}

		slog.Warn("Waiting for database",
			slog.Int("attempt", i),
			slog.Int("attempts", cfg.ConnectAttempts),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ConnectInterval):
		}
	}

	return nil, oops.
		In("session-store").
		With("attempts", cfg.ConnectAttempts).
		Wrapf(err, "could not connect to database")
}

func runMigrations(cfg config.Store) error {
	m, err := migrate.New(cfg.Migrations, cfg.DSN)
	if err != nil {
		return oops.In("session-store").With("source", cfg.Migrations).Wrapf(err, "migration init failed")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.In("session-store").Wrapf(err, "migration up failed")
	}

	slog.Info("Migrations applied")
	return nil
}

func provideRepository(di *do.Injector) (consultation.Repository, error) {
	cfg := do.MustInvoke[*config.Config](di)
	st, err := do.Invoke[*store](di)
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enabled {
		return st.repo, nil
	}

	cached, err := consultation.NewCachedRepository(st.repo, cfg.Cache.Size)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func providePDFRenderer(di *do.Injector) (*report.PDFRenderer, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return report.NewPDFRenderer(cfg.Report.FontPaths), nil
}

func provideReportService(di *do.Injector) (*report.Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	renderer := do.MustInvoke[*report.PDFRenderer](di)

	var tg report.TelegramClient
	if cfg.Report.Telegram.Token != "" {
		tg = telegram.NewClient(cfg.Report.Telegram.Token)
	}

	svc := report.NewService(tg, renderer, cfg.Report.Telegram.ChatID)
	if !svc.Enabled() {
		slog.Warn("Doctor chat is not configured, finished consultations will not be forwarded")
	}
	return svc, nil
}

func provideService(di *do.Injector) (consultation.Service, error) {
	repo, err := do.Invoke[consultation.Repository](di)
	if err != nil {
		return nil, err
	}
	kb, err := do.Invoke[*knowledge.Base](di)
	if err != nil {
		return nil, err
	}
	reportSvc := do.MustInvoke[*report.Service](di)

	return consultation.NewService(repo, extract.New(kb), report.NewGenerator(kb), reportSvc, kb), nil
}

func provideHandler(di *do.Injector) (*consultation.Handler, error) {
	svc, err := do.Invoke[consultation.Service](di)
	if err != nil {
		return nil, err
	}
	return consultation.NewHandler(svc, do.MustInvoke[*report.PDFRenderer](di)), nil
}
