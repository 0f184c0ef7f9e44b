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

	"github.com/safar/go-order-store/internal/config"
	"github.com/safar/go-order-store/internal/database"
	"github.com/safar/go-order-store/internal/store"
	"github.com/safar/go-order-store/internal/store/legacy"
	"github.com/safar/go-order-store/internal/store/mongo"
	"github.com/safar/go-order-store/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	provider, closeStore, err := openProvider(cfg)
	if err != nil {
		log.Fatalf("Open %s store: %v", cfg.Backend, err)
	}
	defer closeStore()

	log.Printf("Connected to %s store successfully", cfg.Backend)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(provider, cfg.Store.AllocationType),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

// openProvider selects the backend named in the config. The returned
// function releases its connections.
func openProvider(cfg *config.Config) (store.Provider, func(), error) {
	opts := store.Options{
		DeallocationType: cfg.Store.DeallocationType,
		Logger:           log.Default(),
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := database.NewConnection(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db, opts), func() { db.Close() }, nil

	case config.BackendMongo:
		client, err := database.NewMongoClient(&cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closeClient := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("Disconnect mongo: %v", err)
			}
		}
		return mongo.New(client.Database(cfg.Mongo.Database), opts), closeClient, nil

	case config.BackendLegacy:
		db, err := database.NewLegacyConnection(&cfg.Legacy)
		if err != nil {
			return nil, nil, err
		}
		return legacy.New(db, cfg.Legacy.IdentityQuery, opts), func() { db.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
