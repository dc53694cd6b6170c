package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/attribution-monitor/internal/api"
	"github.com/ignite/attribution-monitor/internal/bootstrap"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Attribution Monitor API Server (cmd/server/main.go)      ║")
	log.Println("║  Cached stats and fraud reports per app                   ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := bootstrap.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.AppsFlyer.APIToken == "" {
		log.Println("WARNING: APPSFLYER_API_TOKEN is not set, every platform call will be rejected")
	}

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("Startup aborted: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	if cfg.Scheduler.Enabled {
		refresher := app.Refresher()
		if err := refresher.Start(ctx, cfg.Scheduler.Schedule); err != nil {
			log.Fatalf("Failed to start report refresher: %v", err)
		}
		defer refresher.Stop()
		log.Printf("Report refresher started (schedule %q, periods %v)", cfg.Scheduler.Schedule, cfg.Scheduler.Periods)
	} else {
		log.Println("Report refresher disabled (scheduler.enabled=false)")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(app.Handlers()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
