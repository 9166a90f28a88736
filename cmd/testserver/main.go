// testserver starts a tensord API server with a slowed-down engine for E2E
// testing. The artificial run delay makes asynchronous behavior (pending
// states, SSE streams, busy model deletes) observable from test clients.
// Usage: go run ./cmd/testserver
package main

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/seantiz/tensord/internal/api"
	"github.com/seantiz/tensord/internal/backend"
	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/config"
	"github.com/seantiz/tensord/internal/engine"
	"github.com/seantiz/tensord/internal/host"
	"github.com/seantiz/tensord/internal/registry"
	"github.com/seantiz/tensord/internal/store"
)

// slowEngine delays every session run by a fixed amount.
type slowEngine struct {
	compute.Engine
	delay time.Duration
}

func (e *slowEngine) RunSession(sess compute.Session, inputs []*compute.Tensor, inputNames, outputNames []string) ([]*compute.Tensor, error) {
	time.Sleep(e.delay)
	return e.Engine.RunSession(sess, inputs, inputNames, outputNames)
}

func main() {
	addr := ":8080"
	if v := os.Getenv("TENSORD_LISTEN_ADDR"); v != "" {
		addr = v
	}
	modelRoot := os.Getenv("TENSORD_MODEL_ROOT")

	logger := config.NewLogger(os.Stdout, config.Load().LogLevel)

	dbDir, err := os.MkdirTemp("", "tensord-testserver-*")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dbDir)

	db, err := store.NewSQLiteStore(filepath.Join(dbDir, "runs.db"))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	eng := &slowEngine{Engine: compute.NewLocalEngine(), delay: 500 * time.Millisecond}
	devices := compute.NewDeviceRegistry()
	devices.Register(compute.DeviceCPU, eng)

	reg := registry.New(logger)
	bridge := engine.NewBridge(logger)
	pool := engine.NewPool(engine.DefaultWorkers, eng, bridge, logger)
	loop := host.NewLoop(bridge, logger)
	loop.Start()
	broker := engine.NewEventBroker()

	b := backend.New(loop, reg, eng, pool, broker, db, logger)
	defer b.Shutdown()

	logger.Info("testserver: starting", "addr", addr, "delay_ms", 500, "device", compute.DeviceCPU)

	srv := api.NewServer(addr, b, db, broker, devices, modelRoot, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
