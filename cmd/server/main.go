package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "pollsync/docs"
	"pollsync/internal/config"
	"pollsync/internal/domain/room"
	api "pollsync/internal/http"
	"pollsync/internal/metrics"
	"pollsync/internal/platform/database"
	"pollsync/internal/platform/token"
	"pollsync/internal/repository/postgres"
	"pollsync/internal/worker"
	"pollsync/internal/ws"
)

// @title           Pollsync API
// @version         1.0
// @description     Real-time poll synchronization core: room creation and snapshots over REST, everything live over /ws
// @BasePath        /api/v1
func main() {
	cfg := config.Load()
	metrics.Register()

	var db *sql.DB
	var archiver worker.Archiver
	if cfg.ArchiveDSN != "" {
		var err error
		db, err = database.NewPostgres(cfg.ArchiveDSN)
		if err != nil {
			log.Fatalf("archive db connect error: %v", err)
		}
		defer db.Close()
		archiver = postgres.NewArchiveRepo(db)
	}

	archiveCh := make(chan room.ArchiveRecord, 100)
	archiveWorker := worker.NewArchiveWorker(archiveCh, archiver, nil)

	tokens := token.NewManager(cfg.TokenSecret, "")
	hub := ws.NewHub(nil)
	registry := room.NewRegistry(hub, cfg.GraceWindow, cfg.RoomIdleTTL, archiveCh, nil)
	wsHandler := ws.NewHandler(registry, hub, tokens, cfg.AckTimeout, nil)

	router := api.NewRouter(registry, wsHandler, tokens, db)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go registry.Run(ctx)
	go archiveWorker.Run(ctx)

	go func() {
		log.Printf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}
	hub.CloseAll()

	log.Println("server stopped")
}
