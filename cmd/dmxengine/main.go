// Command dmxengine runs the DMX lighting control engine: the serial
// transmitter, the fade engine, the fixture/preset stores, and the two
// protocol servers (live-client websocket, automation TCP).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lacylights/dmxengine/internal/automationserver"
	"github.com/lacylights/dmxengine/internal/config"
	"github.com/lacylights/dmxengine/internal/coordinator"
	"github.com/lacylights/dmxengine/internal/fade"
	"github.com/lacylights/dmxengine/internal/fixture"
	"github.com/lacylights/dmxengine/internal/liveserver"
	"github.com/lacylights/dmxengine/internal/preset"
	"github.com/lacylights/dmxengine/internal/profile"
	"github.com/lacylights/dmxengine/internal/store"
	"github.com/lacylights/dmxengine/internal/transmitter"
	"github.com/lacylights/dmxengine/internal/universe"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(cfg)

	st, err := store.Open(store.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() { _ = st.Close() }()

	loader, err := profile.Load()
	if err != nil {
		log.Fatalf("Failed to load fixture profiles: %v", err)
	}
	if cfg.ProfileDir != "" {
		if err := loader.LoadOverrides(cfg.ProfileDir); err != nil {
			log.Fatalf("Failed to load profile overrides from %s: %v", cfg.ProfileDir, err)
		}
	}

	u := universe.New()

	txCfg := transmitter.DefaultConfig()
	txCfg.VendorID = cfg.SerialVendorID
	txCfg.ProductID = cfg.SerialProductID
	txCfg.BaudRate = cfg.SerialBaudRate
	txCfg.RefreshRate = cfg.SerialRefreshRate
	txCfg.ReconnectMin = cfg.SerialReconnectMin
	txCfg.ReconnectMax = cfg.SerialReconnectMax
	tx := transmitter.New(txCfg, u)
	if cfg.SerialEnabled {
		tx.Initialize()
	} else {
		log.Println("Serial transmitter disabled (SERIAL_ENABLED=false)")
	}

	fadeEngine := fade.NewEngine(u, cfg.FadeTickInterval)
	fadeEngine.Start()

	fixtures := fixture.NewRegistry(st, loader)
	presets := preset.NewStore(st)

	coord := coordinator.New(u, tx, fadeEngine, loader, fixtures, presets)
	coord.Start()

	live := liveserver.New(liveserver.Config{
		Port:             cfg.LiveClientPort,
		CORSOrigin:       cfg.CORSOrigin,
		ThrottleInterval: cfg.ThrottleInterval,
	}, coord)

	automation := automationserver.New(automationserver.Config{
		Port: cfg.AutomationPort,
	}, coord)

	go func() {
		log.Printf("Live-client server listening on :%s\n", cfg.LiveClientPort)
		if err := live.Start(); err != nil {
			log.Fatalf("Live-client server error: %v", err)
		}
	}()

	go func() {
		log.Printf("Automation server listening on :%s\n", cfg.AutomationPort)
		if err := automation.Start(); err != nil {
			log.Fatalf("Automation server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	automation.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := live.Shutdown(ctx); err != nil {
		log.Printf("Live-client server shutdown error: %v", err)
	}

	tx.Shutdown()
	fadeEngine.Stop()
	coord.Stop()
}

func printBanner(cfg *config.Config) {
	log.Printf("dmxengine %s (built %s, %s)\n", Version, BuildTime, GitCommit)
	log.Printf("environment: %s\n", cfg.Env)
}
