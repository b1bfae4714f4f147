// memkeepd is the memory service daemon: an HTTP API over the SQLite-backed
// memory store and its curator.
//
// External dependencies:
//   - SQLite (embedded, via go-sqlite3; sqlite-vec when available)
//   - Ollama (for embeddings)
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/curator"
	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/server"
	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	embedder := embedding.NewClient(cfg.OllamaURL, cfg.EmbedModel)
	st, err := store.Open(cfg.DatabasePath, embedder)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	cur := curator.New(st, cfg.ArchiveDir)
	srv := server.New(st, cur, cfg.Debug)

	// Optional advisory watcher over a summary drop directory. Events only
	// get logged; nothing downstream depends on them arriving.
	if cfg.WatchDir != "" {
		w, err := watch.New(cfg.WatchDir, 64)
		if err != nil {
			log.Printf("[memkeepd] watcher disabled: %v", err)
		} else {
			defer w.Close()
			go func() {
				for ev := range w.Events() {
					log.Printf("[memkeepd] summary file %s (%s)", ev.Path, ev.Op)
				}
			}()
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	log.Printf("memkeepd listening on %s (db: %s)", cfg.Addr(), cfg.DatabasePath)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
