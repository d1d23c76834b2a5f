package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-health-assistant/internal/config"
	"ms-health-assistant/internal/consultation"
	"ms-health-assistant/internal/platform/mylog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	mylog.Preinit()

	if err := run(); err != nil {
		slog.Error("Server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return err
	}
	if err = mylog.Init(cfg); err != nil {
		return err
	}

	di := do.New()
	defer func() {
		slog.Info("Waiting for services to finish...")
		if err := di.Shutdown(); err != nil {
			slog.Warn("Service shutdown failed", slog.Any("error", err))
		}
	}()

	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)

	do.Provide(di, provideKnowledge)
	do.Provide(di, provideStore)
	do.Provide(di, provideRepository)
	do.Provide(di, providePDFRenderer)
	do.Provide(di, provideReportService)
	do.Provide(di, provideService)
	do.Provide(di, provideHandler)

	handler, err := do.Invoke[*consultation.Handler](di)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server starting", slog.String("port", cfg.Server.Port), slog.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(h *consultation.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, h)
	})

	return r
}

// cors opens the API to the browser frontend.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-User-ID")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
