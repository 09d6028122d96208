package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frostdev-ops/pma-solar-go/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-solar-go/internal/api"
	"github.com/frostdev-ops/pma-solar-go/internal/config"
	"github.com/frostdev-ops/pma-solar-go/internal/core/solar"
	"github.com/frostdev-ops/pma-solar-go/internal/database"
	"github.com/frostdev-ops/pma-solar-go/internal/websocket"
	"github.com/frostdev-ops/pma-solar-go/pkg/logger"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Create repositories
	repos := database.NewRepositories(db)

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Home Assistant REST client covers state reads and event firing
	haREST := homeassistant.NewRESTClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := haREST.CheckAPI(ctx); err != nil {
		log.WithError(err).Warn("Home Assistant API not reachable yet, continuing anyway")
	}
	cancel()

	// Assemble the accounting engine. Notification events go to the HA bus
	// and are mirrored to connected browsers.
	prices := solar.NewPriceResolver(cfg.Solar.Prices, haREST, log)
	notifier := websocket.NewNotificationForwarder(haREST, wsHub)
	gate := solar.NewNotificationGate(cfg.Solar.Instance, notifier, repos.EventLog, log)
	engine := solar.NewEngine(cfg.Solar, haREST, prices, gate, repos.Snapshot, log)

	// Push a fresh report to connected browsers on every accounting update
	unregister := engine.RegisterListener(func() {
		wsHub.BroadcastToAll(websocket.Message{
			Type: websocket.MessageTypeSolarState,
			Data: engine.Report(context.Background()),
		})
	})
	defer unregister()

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Start(startCtx); err != nil {
		log.WithError(err).Error("Engine started with degraded state")
	}
	startCancel()

	// Stream live state changes from Home Assistant
	reconnectDelay := 5 * time.Second
	if d, err := time.ParseDuration(cfg.HomeAssistant.ReconnectDelay); err == nil && d > 0 {
		reconnectDelay = d
	}
	haStream := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, reconnectDelay, log)
	haStream.SetMonitoredEntities(engine.MonitoredEntities())
	haStream.SetStateChangeHandler(engine.HandleStateChange)
	haStream.SetStatusHandler(func(connected bool) {
		wsHub.BroadcastToAll(websocket.Message{
			Type: websocket.MessageTypeStreamStatus,
			Data: map[string]interface{}{"connected": connected},
		})
	})
	haStream.Start(context.Background())

	// Structural config edits rebuild the entity subscription filter; the
	// engine's accounting settings take effect on the next restart.
	structuralKey := cfg.Solar.StructuralKey()
	config.Watch(func(next *config.Config) {
		if key := next.Solar.StructuralKey(); key != structuralKey {
			structuralKey = key
			haStream.SetMonitoredEntities(solar.MonitoredEntitiesFor(next.Solar))
			log.Info("Entity subscriptions rebuilt after configuration change")
		}
	})

	// Periodic snapshot flush in addition to the debounced saves
	scheduler := cron.New()
	interval := cfg.Solar.Persistence.SnapshotIntervalDuration()
	scheduler.Schedule(cron.Every(interval), cron.FuncJob(func() {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer saveCancel()
		if err := engine.SaveSnapshot(saveCtx); err != nil {
			log.WithError(err).Error("Scheduled snapshot save failed")
		}
	}))
	scheduler.Start()

	// Initialize router
	router := api.NewRouter(cfg, repos, log, wsHub, engine, haREST)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting PMA Solar on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	scheduler.Stop()
	haStream.Stop()
	engine.Stop(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}
