package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-core/src/brokerage"
	"trading-core/src/compliance"
	"trading-core/src/config"
	datasource "trading-core/src/data_source"
	"trading-core/src/execution"
	"trading-core/src/interfaces"
	"trading-core/src/logger"
	"trading-core/src/server"
	"trading-core/src/storage"
	"trading-core/src/stream"
	"trading-core/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.LogLevel, config.Name)
	clock := utils.SystemClock{}

	// 1. Storage
	var store interfaces.IOrderStore

	switch config.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresDB(config.MConfig, appLogger.Named("PostgresDB"))
	default:
		// Default to SQLite
		store, err = storage.NewAsyncSQLiteDB(config.MConfig, appLogger.Named("SQLiteDB"))
	}

	if err != nil {
		appLogger.Critical("Failed to init store: %v", err)
	}
	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate store: %v", err)
	}
	defer store.Close()

	// 2. Fan-out hub
	hub := server.NewHub(config.FanOut, clock, appLogger.Named("Hub"))

	// 3. Stream client over the simulated feed adapter
	feed := datasource.NewSimFeed(config.Stream, clock, appLogger.Named("SimFeed"))
	streamClient := stream.NewClient(config.Stream, feed, hub, clock, appLogger.Named("StreamClient"))

	// 4. Compliance tracker
	calendar := utils.GetCalendar(config.Compliance.CalendarMIC)
	tracker := compliance.NewTracker(config.Compliance, calendar, clock, appLogger.Named("Compliance"))
	if err := tracker.Bootstrap(store); err != nil {
		appLogger.Warning("Compliance bootstrap failed: %v", err)
	}

	// 5. Execution engine over the paper broker
	kill := execution.NewKillSwitch(clock, appLogger.Named("KillSwitch"))
	broker := brokerage.NewPaperBroker(1_000_000, clock, appLogger.Named("PaperBroker"))
	engine := execution.NewEngine(config.Execution, broker, store, kill, tracker, clock, appLogger.Named("Engine"))

	// 6. Fill pump: brokerage fills -> store -> compliance -> hub
	pump := execution.NewFillPump(broker, store, tracker, hub, clock, 2*time.Second, appLogger.Named("FillPump"))

	// 7. Lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	go streamClient.Run(ctx)
	go pump.Run(ctx)

	// TTL eviction for resolved order results
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-clock.After(time.Hour):
				if _, err := store.PurgeExpired(clock.Now()); err != nil {
					appLogger.Warning("TTL purge failed: %v", err)
				}
			}
		}
	}()

	// 8. API server (blocks)
	srv := server.NewAPIServer(config.MConfig, hub, engine, tracker, streamClient, kill, appLogger.Named("APIServer"))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		appLogger.Info("Received signal %v, shutting down", sig)
		cancel()
		store.Close()
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		appLogger.Critical("Server failed: %v", err)
	}
}
