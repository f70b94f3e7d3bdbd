package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrwolf/journal-server/internal/ai"
	"github.com/mrwolf/journal-server/internal/api"
	"github.com/mrwolf/journal-server/internal/catalog"
	"github.com/mrwolf/journal-server/internal/config"
	"github.com/mrwolf/journal-server/internal/db"
	"github.com/mrwolf/journal-server/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting journal-server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	// Load question catalog (built-in set when no path is configured)
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load question catalog: %v", err)
	}
	log.Printf("Catalog loaded: %d questions", cat.Len())

	// Create AI client
	aiClient := ai.NewClient(cfg.AIBaseURL, cfg.AIKey)

	// Validate backend connection at startup
	log.Println("Validating AI backend connection...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := aiClient.HealthCheck(ctx); err != nil {
		log.Printf("WARNING: AI backend health check failed: %v", err)
		log.Println("Server will start but conversation features may not work")
	} else {
		log.Printf("AI backend connected: %s (candidates: %v)", cfg.AIBaseURL, cfg.AIModels)
	}
	cancel()

	// Create router
	router := api.NewRouter(cfg, database, cat, aiClient)

	// Create and start the mood rollup scheduler
	sched, err := scheduler.New(database, scheduler.Config{
		Timezone: cfg.Timezone,
		Actors:   cfg.Actors(),
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start server
	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down gracefully...")

	// Give ongoing requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping scheduler...")
	if err := sched.Stop(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}

	log.Println("Closing database...")
	if err := database.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
}
