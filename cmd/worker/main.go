package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/attribution-monitor/internal/bootstrap"
	"github.com/ignite/attribution-monitor/internal/pkg/distlock"
)

func main() {
	once := flag.Bool("once", false, "refresh every period once and exit")
	flag.Parse()

	log.Println("Starting Attribution Report Worker...")

	cfg, err := bootstrap.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	refresher := app.Refresher()

	if *once {
		runCtx, runCancel := context.WithTimeout(ctx, cfg.Scheduler.LockTTL())
		defer runCancel()
		start := time.Now()
		err := refresher.RefreshAll(runCtx)
		switch {
		case errors.Is(err, distlock.ErrNotAcquired):
			log.Println("Another instance is refreshing, nothing to do")
		case err != nil:
			log.Printf("Refresh finished with errors after %s: %v", time.Since(start).Round(time.Second), err)
			app.Close()
			os.Exit(1)
		default:
			log.Printf("Refresh finished in %s", time.Since(start).Round(time.Second))
		}
		return
	}

	if err := refresher.Start(ctx, cfg.Scheduler.Schedule); err != nil {
		log.Fatalf("Failed to start report refresher: %v", err)
	}
	log.Printf("Report refresher started (schedule %q, periods %v)", cfg.Scheduler.Schedule, cfg.Scheduler.Periods)
	log.Println("Worker running...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	refresher.Stop()

	log.Println("Worker stopped")
}
