package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lyrixx/ClickHouse/internal/config"
	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
	"github.com/lyrixx/ClickHouse/internal/models"
	"github.com/lyrixx/ClickHouse/internal/queue"
	"github.com/lyrixx/ClickHouse/internal/registry"
	"github.com/lyrixx/ClickHouse/internal/router"
	"github.com/lyrixx/ClickHouse/internal/subscriber"
	"github.com/lyrixx/ClickHouse/internal/utils"
)

// Injected via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "set up logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("ingest service starting",
		"version", Version, "commit", GitCommit, "build_time", BuildTime)

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("data directory setup failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := openStores(cfg, logger)
	if len(stores) == 0 {
		logger.Warn("no tables configured, only health and 404 routes will respond")
	}

	var consumer *subscriber.InsertConsumer
	if cfg.Queue.PublishEvents || cfg.Queue.ConsumeInserts {
		queueClient, err := queue.NewQueue(cfg.Queue)
		if err != nil {
			logger.Fatal("queue connect failed", "type", cfg.Queue.Type, "error", err)
		}
		defer func() { _ = queueClient.Close() }()
		logger.Info("queue connected", "type", cfg.Queue.Type, "url", cfg.Queue.URL)

		if cfg.Queue.PublishEvents {
			publisher := queue.NewPartEventPublisher(queueClient)
			for _, store := range stores {
				store.SetPublisher(publisher)
			}
			logger.Info("part event publishing enabled")
		}

		if cfg.Queue.ConsumeInserts {
			consumer, err = subscriber.NewInsertConsumer(queueClient, stores, logger)
			if err != nil {
				logger.Fatal("insert consumer setup failed", "error", err)
			}
			if err := consumer.Start(); err != nil {
				logger.Fatal("insert consumer start failed", "error", err)
			}
			logger.Info("insert stream consumption enabled", "tables", len(stores))
		}
	}

	if cfg.Etcd.Enabled {
		if cfg.Storage.NodeID == "" {
			logger.Fatal("storage.node_id is required when etcd registration is enabled")
		}

		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Username:    cfg.Etcd.Username,
			Password:    cfg.Etcd.Password,
		})
		if err != nil {
			logger.Fatal("etcd connect failed", "error", err)
		}
		defer func() { _ = etcdClient.Close() }()
		logger.Info("etcd connected", "endpoints", cfg.Etcd.Endpoints)

		scanner := registry.NewPartScanner(cfg.Storage.DataDir, logger)
		nodeInfo := models.NodeInfo{
			ID:        cfg.Storage.NodeID,
			Address:   cfg.ServerAddress(),
			Status:    "active",
			Version:   Version,
			UpdatedAt: time.Now(),
		}

		registration := registry.NewNodeRegistration(etcdClient, nodeInfo, scanner, logger)
		if err := registration.Register(ctx); err != nil {
			logger.Fatal("node registration failed", "error", err)
		}
		defer func() {
			deregCtx, deregCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer deregCancel()
			if err := registration.Deregister(deregCtx); err != nil {
				logger.Error("node deregistration failed", "error", err)
			}
		}()
	}

	if cfg.Auth.Enabled {
		logger.Info("api key auth enabled", "keys", len(cfg.Auth.APIKeys))
	} else {
		logger.Warn("api key auth disabled, all requests accepted")
	}

	app := router.New(logger, stores, *cfg)

	go func() {
		addr := cfg.ServerAddress()
		logger.Info("http server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	if consumer != nil {
		consumer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), utils.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http server shutdown forced", "error", err)
	}

	logger.Info("ingest service stopped")
}

// openStores opens every configured table store under the shared data
// directory. Startup fails on the first broken table.
func openStores(cfg *config.Config, logger *logging.Logger) map[string]*mergetree.Store {
	d, err := disk.NewLocal(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("data directory unusable", "dir", cfg.Storage.DataDir, "error", err)
	}

	settings, err := mergetree.SettingsFromConfig(cfg.Storage.MergeTree)
	if err != nil {
		logger.Fatal("invalid merge tree settings", "error", err)
	}

	stores := make(map[string]*mergetree.Store, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		schema, err := mergetree.SchemaFromConfig(tc)
		if err != nil {
			logger.Fatal("invalid table definition", "table", tc.Name, "error", err)
		}

		store, err := mergetree.OpenStore(d, tc.Name, tc.Name, schema, settings)
		if err != nil {
			logger.Fatal("table store open failed", "table", tc.Name, "error", err)
		}
		stores[tc.Name] = store

		parts, rows, bytes := store.Stats()
		logger.Info("table store opened",
			"table", tc.Name,
			"parts", parts,
			"rows", rows,
			"bytes", bytes)
	}
	return stores
}
