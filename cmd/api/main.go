package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"padisave.org/internal/circle"
	"padisave.org/internal/httpapi"
	"padisave.org/internal/obs"
	"padisave.org/internal/storage"
	"padisave.org/internal/storage/memory"
	"padisave.org/internal/storage/pg"
	"padisave.org/internal/storage/sqlite"
	"padisave.org/internal/user"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.SetupLogging()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, probe, err := openStore()
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}

	users := user.NewService(store)
	circles := circle.NewService(store, circle.WithAccountLedger(users))
	api := httpapi.New(probe, version, users, circles)

	handler := httpapi.RequestID(
		httpapi.LoggingJSON(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), 20, 10),
						1<<20,
					),
				),
			),
		),
	)

	addr := os.Getenv("PADISAVE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("starting padisave-api", "version", version, "addr", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = store.Close()
	slog.Info("stopped")
}

// openStore picks the backend from the environment: PostgreSQL when
// PADISAVE_PG_DSN is set, SQLite when PADISAVE_SQLITE_PATH is set, and an
// in-memory store otherwise (demo mode, nothing survives a restart).
func openStore() (storage.Store, httpapi.ReadyProbe, error) {
	if dsn := os.Getenv("PADISAVE_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			return nil, httpapi.ReadyProbe{}, err
		}
		slog.Info("storage backend", "driver", "postgres")
		return store, httpapi.ReadyProbe{DB: store.DB()}, nil
	}
	if path := os.Getenv("PADISAVE_SQLITE_PATH"); path != "" {
		store, err := sqlite.New(path)
		if err != nil {
			return nil, httpapi.ReadyProbe{}, err
		}
		slog.Info("storage backend", "driver", "sqlite", "path", path)
		return store, httpapi.ReadyProbe{}, nil
	}
	slog.Warn("no database configured, using in-memory store")
	return memory.New(), httpapi.ReadyProbe{}, nil
}
