package main

import (
	"log"
	"os"

	"github.com/seantiz/tensord/internal/api"
	"github.com/seantiz/tensord/internal/backend"
	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/config"
	"github.com/seantiz/tensord/internal/engine"
	"github.com/seantiz/tensord/internal/host"
	"github.com/seantiz/tensord/internal/registry"
	"github.com/seantiz/tensord/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("tensord: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workers", cfg.Workers,
		"device", cfg.Device,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	devices := compute.NewDeviceRegistry()
	devices.Register(compute.DeviceCPU, compute.NewLocalEngine())
	eng, err := devices.Resolve(cfg.Device)
	if err != nil {
		log.Fatalf("failed to resolve device: %v", err)
	}

	reg := registry.New(logger)
	bridge := engine.NewBridge(logger)
	pool := engine.NewPool(cfg.Workers, eng, bridge, logger)
	loop := host.NewLoop(bridge, logger)
	loop.Start()
	broker := engine.NewEventBroker()

	b := backend.New(loop, reg, eng, pool, broker, db, logger)
	defer b.Shutdown()

	srv := api.NewServer(cfg.ListenAddr, b, db, broker, devices, cfg.ModelRoot, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
