/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rationing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env vars, optional .env)
  2. Parse command-line flags (flags override env)
  3. Initialize SQLite store or in-memory stores
  4. Warm the geo index from persisted locations and stock
  5. Create API handler with dependencies
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default from SERVER_PORT, 8080)
  -db      SQLite database path (default from DB_PATH, rationing.db)
           Use ":memory:" for an in-memory SQLite database,
           or "" to run entirely on in-process stores
  -seed    Load the demo dataset on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/warp/rationing-engine/api"
	"github.com/warp/rationing-engine/config"
	"github.com/warp/rationing-engine/geo"
	"github.com/warp/rationing-engine/pkg/logger"
	"github.com/warp/rationing-engine/rationing"
	memstore "github.com/warp/rationing-engine/rationing/store"
	"github.com/warp/rationing-engine/store/sqlite"
)

func main() {
	cfg := config.MustLoad()

	port := flag.String("port", cfg.HTTP.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path (empty for in-memory stores)")
	seed := flag.Bool("seed", cfg.Seed, "load demo data on startup")
	flag.Parse()
	cfg.HTTP.Port = *port

	log, err := logger.New(logger.Config{Level: cfg.Logger.Level, Encoding: cfg.Logger.Encoding})
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	var (
		purchases rationing.PurchaseStore
		catalog   rationing.Catalog
		identity  rationing.IdentityStore
		geoStore  geo.GeoStore
	)
	if *dbPath != "" {
		db, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatal("failed to initialize database", zap.Error(err))
		}
		defer db.Close()
		purchases, catalog, identity, geoStore = db, db, db, db
		log.Info("using sqlite store", zap.String("path", *dbPath))
	} else {
		purchases = memstore.NewMemory()
		catalog = memstore.NewMemoryCatalog()
		identity = memstore.NewMemoryIdentity()
		log.Info("using in-memory stores")
	}

	var index *geo.Index
	if geoStore != nil {
		index, err = geo.NewPersistentIndex(ctx, geoStore)
		if err != nil {
			log.Fatal("failed to warm geo index", zap.Error(err))
		}
	} else {
		index = geo.NewIndex()
	}

	ledger := &rationing.DefaultLedger{Store: purchases}
	evaluator := rationing.NewEvaluator(catalog, identity, ledger)
	purchaseSvc := rationing.NewPurchaseService(evaluator, purchases)
	catalogSvc := rationing.NewCatalogService(catalog)

	if *seed {
		if err := api.Seed(ctx, catalogSvc, identity, index); err != nil {
			log.Fatal("failed to seed demo data", zap.Error(err))
		}
		log.Info("demo data loaded")
	}

	handler := api.NewHandler(purchaseSvc, catalogSvc, identity, index, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
