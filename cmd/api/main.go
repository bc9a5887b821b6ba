package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tallybook.org/internal/finance"
	"tallybook.org/internal/httpapi"
	"tallybook.org/internal/obs"
	"tallybook.org/internal/store/pg"
	"tallybook.org/internal/stream"
)

// Перекрываются через -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "0.3.0"
	commit  = "none"
)

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Хранилище: Postgres при заданном DSN, иначе in-memory книга.
	var (
		svc   finance.Service
		probe httpapi.ReadyProbe
		store *pg.Store
	)
	if dsn := os.Getenv("TALLYBOOK_DB_DSN"); dsn != "" {
		var err error
		store, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.Ping(ctx); err != nil {
			cancel()
			log.Fatalf("ping db: %v", err)
		}
		cancel()
		svc = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Println("TALLYBOOK_DB_DSN is not set, using the in-memory book")
		svc = finance.NewInMemory()
	}
	obs.SetReady(true)

	// HTTP API
	api := httpapi.New(probe, version, svc, stream.New())
	api.SetRateLimit(envInt("TALLYBOOK_RATE_BURST"), envInt("TALLYBOOK_RATE_PER_SEC"))

	addr := os.Getenv("TALLYBOOK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tallybook-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}

// envInt: 0 при пустом или нечитаемом значении.
func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, raw, err)
		return 0
	}
	return v
}
