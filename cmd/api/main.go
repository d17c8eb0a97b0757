package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"signflow.org/internal/auth"
	"signflow.org/internal/blob"
	"signflow.org/internal/document"
	"signflow.org/internal/httpapi"
	"signflow.org/internal/obs"
	"signflow.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	addr := os.Getenv("SIGNFLOW_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// Postgres when a DSN is configured, in-memory stores otherwise.
	var db *sql.DB
	var userStore auth.Store = auth.NewInMemory()
	var docStore document.Store = document.NewInMemory()
	if dsn := os.Getenv("SIGNFLOW_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		userStore = auth.NewPGStore(db)
		docStore = document.NewPGStore(db)
	}

	// Object storage: HTTP gateway when configured, in-memory otherwise.
	var blobs blob.Store = blob.NewInMemory()
	if base := os.Getenv("SIGNFLOW_BLOB_URL"); base != "" {
		client, err := blob.NewClient(base, blob.WithToken(os.Getenv("SIGNFLOW_BLOB_TOKEN")))
		if err != nil {
			log.Fatalf("blob gateway: %v", err)
		}
		blobs = client
	}

	authSvc := auth.NewService(userStore)
	docSvc := document.NewService(docStore, blobs, authSvc)

	api := httpapi.New(httpapi.Config{
		Ready:         httpapi.ReadyProbe{DB: db},
		Version:       version,
		Auth:          authSvc,
		Documents:     docSvc,
		Stream:        stream.New(),
		RateBurst:     50,
		RatePerSecond: 25,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting signflow-api %s on %s", version, srv.Addr)

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
