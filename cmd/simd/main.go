// simd - simulated clawft gateway daemon
//
// Serves the gateway REST and websocket surface from an embedded,
// sqlite-backed adapter so clients can be developed without a real
// backend.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clawft/clawft-go/internal/config"
	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/backend"
	"github.com/clawft/clawft-go/pkg/simulator"
)

func main() {
	addr := flag.String("addr", ":7600", "Listen address")
	dataDir := flag.String("data-dir", "", "State directory (overrides CLAWFT_DATA_DIR)")
	token := flag.String("token", "", "Require this bearer token on every request")
	healthEvery := flag.Duration("health-interval", 15*time.Second, "Health event interval, 0 to disable")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := config.LogLevel()
	if *debug {
		level = "debug"
	}
	log.Init(level)

	dir := *dataDir
	if dir == "" {
		dir = config.DataDir()
	}

	adapter, err := backend.New(backend.Config{
		Mode:    backend.ModeEmbedded,
		DataDir: dir,
		Logger:  log.L(),
	})
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}
	if err := adapter.Init(context.Background()); err != nil {
		stdlog.Fatalf("❌ Initialization failed: %v", err)
	}
	defer adapter.Dispose()

	srv := simulator.New(simulator.Config{
		Addr:           *addr,
		Token:          *token,
		HealthInterval: *healthEvery,
	}, adapter)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		_ = srv.Shutdown()
	}()

	if err := srv.Start(); err != nil {
		stdlog.Fatalf("❌ Server error: %v", err)
	}
}
