package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"neurogallery/server/internal/cache"
	"neurogallery/server/internal/config"
	"neurogallery/server/internal/enrich"
	"neurogallery/server/internal/importer"
	"neurogallery/server/internal/interfaces"
	"neurogallery/server/internal/recipes"
	"neurogallery/server/internal/state"
	"neurogallery/server/internal/storage"
	"neurogallery/server/internal/web"
)

func main() {
	// Load .env before config so env overrides see the values
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Printf("Warning: Failed to load config: %v, using defaults", err)
		cfg = config.Default()
	}

	// Open the persistent store
	store, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	log.Printf("Store opened (%s)", cfg.Database.Driver)

	// Cache layer: redis when configured and reachable, memory otherwise
	var cacheLayer cache.Cache
	if cfg.Cache.Backend == "redis" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.Redis)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v, falling back to memory cache", err)
			cacheLayer = cache.NewMemoryCache()
		} else {
			defer redisCache.Close()
			log.Println("Redis connected successfully")
			cacheLayer = redisCache
		}
	} else {
		cacheLayer = cache.NewMemoryCache()
	}

	// Enrichment is optional; without an API key the catalog still works
	var enricher interfaces.Enricher
	if cfg.Enrich.APIKey != "" {
		enricher = enrich.NewClient(cfg.Enrich)
		log.Println("Enrichment client initialized")
	} else {
		log.Println("Warning: No enrichment API key provided. Descriptions and thumbnails are disabled.")
	}
	registry := enrich.NewRegistry(cfg.Registry)

	// The HTTP surface carries no interactive prompt; clients confirm
	// destructive actions before calling, so the server-side gate always
	// passes.
	confirm := interfaces.ConfirmerFunc(func(string) bool { return true })

	controller := state.NewController(store, confirm)

	loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := controller.LoadInitial(loadCtx); err != nil {
		cancel()
		log.Fatalf("Failed to load library state: %v", err)
	}
	cancel()
	log.Printf("Library loaded: %d models, %d combinations",
		len(controller.Models()), len(controller.Combinations()))

	session := state.NewSession(cacheLayer, cfg.Cache.SessionTTL)
	builder := recipes.NewBuilder()
	imp := importer.NewImporter(controller, importer.InvokeAISource{}, enricher, registry, importer.SHA256Hasher{})

	// Event hub: every state change and persistence failure fans out to
	// connected clients
	hub := web.NewEventHub()
	go hub.Run()
	controller.OnEvent(hub.Broadcast)
	go func() {
		for perr := range controller.Errors() {
			log.Printf("Persist failure: %s %s: %v", perr.Op, perr.ID, perr.Err)
		}
	}()

	handlers := web.NewHandlers(cfg, hub, controller, builder, session, imp, enricher, cacheLayer)
	r := web.NewRouter(handlers)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Drain outstanding durable writes before closing the store
	controller.Flush()

	log.Println("Server stopped")
}
