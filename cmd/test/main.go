package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"trading-core/src/brokerage"
	"trading-core/src/compliance"
	"trading-core/src/config"
	datasource "trading-core/src/data_source"
	"trading-core/src/execution"
	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/server"
	"trading-core/src/storage"
	"trading-core/src/stream"
	"trading-core/src/utils"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// End-to-end smoke harness: boots the full pipeline against the simulated
// feed and paper broker, submits a handful of orders (including a duplicate
// and a dry run) and prints what came back. No HTTP involved.
// -----------------------------------------------------------------------------

func main() {
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.NewLogger("DEBUG", conf.Name+"-smoke")
	clock := utils.SystemClock{}

	// In-memory sqlite so runs never leave artifacts behind.
	conf.Storage.DBType = "sqlite"
	conf.Storage.DBPath = ":memory:"

	store, err := storage.NewAsyncSQLiteDB(conf.MConfig, appLogger.Named("SQLiteDB"))
	if err != nil {
		appLogger.Critical("Failed to init store: %v", err)
	}
	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate store: %v", err)
	}
	defer store.Close()

	hub := server.NewHub(conf.FanOut, clock, appLogger.Named("Hub"))
	feed := datasource.NewSimFeed(conf.Stream, clock, appLogger.Named("SimFeed"))
	streamClient := stream.NewClient(conf.Stream, feed, hub, clock, appLogger.Named("StreamClient"))

	calendar := utils.GetCalendar(conf.Compliance.CalendarMIC)
	tracker := compliance.NewTracker(conf.Compliance, calendar, clock, appLogger.Named("Compliance"))

	kill := execution.NewKillSwitch(clock, appLogger.Named("KillSwitch"))
	broker := brokerage.NewPaperBroker(100_000, clock, appLogger.Named("PaperBroker"))
	engine := execution.NewEngine(conf.Execution, broker, store, kill, tracker, clock, appLogger.Named("Engine"))
	pump := execution.NewFillPump(broker, store, tracker, hub, clock, 200*time.Millisecond, appLogger.Named("FillPump"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	go streamClient.Run(ctx)
	go pump.Run(ctx)

	// Let the stream produce a few events.
	sub, err := hub.Subscribe(0, false)
	if err != nil {
		appLogger.Critical("Subscribe failed: %v", err)
	}
	go func() {
		for ev := range sub.Events {
			appLogger.Debug("Event %d %s %s", ev.Sequence, ev.Kind, ev.Symbol)
		}
	}()

	time.Sleep(2 * time.Second)

	// 1. Round trip a market order.
	key := uuid.NewString()
	req := models.MOrderRequest{
		IdempotencyKey: key,
		Legs: []models.MOrderLeg{
			{Symbol: "AAPL", Side: models.SideBuyToOpen, Quantity: 10, OrderType: models.OrderTypeMarket},
		},
	}
	result, err := engine.Submit(ctx, req)
	if err != nil {
		appLogger.Critical("Submit failed: %v", err)
	}
	appLogger.Info("Order 1: status=%s legs=%d", result.Status, len(result.Legs))

	// 2. Replay the same key: must return the stored result, no second fill.
	replay, err := engine.Submit(ctx, req)
	if err != nil {
		appLogger.Critical("Replay failed: %v", err)
	}
	if replay.CreatedAt != result.CreatedAt {
		appLogger.Critical("Replay returned a different result")
	}
	appLogger.Info("Order 1 replay: identical result returned")

	// 3. Dry run: no brokerage call.
	dry, err := engine.Submit(ctx, models.MOrderRequest{
		IdempotencyKey: uuid.NewString(),
		DryRun:         true,
		Legs: []models.MOrderLeg{
			{Symbol: "MSFT", Side: models.SideSellToOpen, Quantity: 5, OrderType: models.OrderTypeLimit, LimitPrice: 412.50},
		},
	})
	if err != nil {
		appLogger.Critical("Dry run failed: %v", err)
	}
	appLogger.Info("Dry run: status=%s", dry.Status)

	// 4. Kill switch blocks new submissions but not replays.
	kill.Set(true, "smoke-harness")
	blocked, _ := engine.Submit(ctx, models.MOrderRequest{
		IdempotencyKey: uuid.NewString(),
		Legs: []models.MOrderLeg{
			{Symbol: "AAPL", Side: models.SideBuyToOpen, Quantity: 1, OrderType: models.OrderTypeMarket},
		},
	})
	appLogger.Info("Kill switch: status=%s reason=%s", blocked.Status, blocked.ReasonCode)

	replayAgain, _ := engine.Submit(ctx, req)
	appLogger.Info("Replay under kill switch: status=%s", replayAgain.Status)
	kill.Set(false, "smoke-harness")

	// Let the fill pump drain, then report compliance.
	time.Sleep(time.Second)
	status := tracker.Status()
	appLogger.Info("Compliance: day_trades=%d total=%d flagged=%v window=%s..%s",
		status.DayTradeCount, status.TotalTrades, status.Flagged, status.WindowStart, status.WindowEnd)

	appLogger.Info("Smoke run complete (session state: %s)", streamClient.Session().State)
}
