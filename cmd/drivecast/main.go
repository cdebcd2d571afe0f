package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/drivecast/drivecast/internal/cache"
	"github.com/drivecast/drivecast/internal/config"
	"github.com/drivecast/drivecast/internal/drive"
	"github.com/drivecast/drivecast/internal/publisher"
	"github.com/drivecast/drivecast/internal/server"
	"github.com/drivecast/drivecast/internal/service"
	"github.com/drivecast/drivecast/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Run migrations.
	absMigrations, err := filepath.Abs("migrations")
	if err != nil {
		absMigrations = "migrations"
	}
	if _, err := os.Stat(absMigrations); err != nil {
		if exe, e := os.Executable(); e == nil {
			absMigrations = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	if err := store.RunMigrations(cfg.DatabaseURL, "file://"+absMigrations); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Pick the drive collaborator: real API client or the fixed listing.
	var lister drive.Lister
	if cfg.DriveAPIURL != "" {
		lister = drive.NewClient(cfg.DriveAPIURL, cfg.DriveAPIKey, cfg.UserAgent, cfg.Timeout)
		fmt.Fprintf(os.Stderr, "drive source: %s\n", cfg.DriveAPIURL)
	} else {
		lister = drive.Fixed{}
		fmt.Fprintln(os.Stderr, "drive source: fixed listing (DRIVE_API_URL not set)")
	}

	// Pick the publish collaborator the same way.
	var pub publisher.Publisher
	if cfg.PublishAPIURL != "" {
		pub = publisher.NewClient(cfg.PublishAPIURL, cfg.PublishAPIKey, cfg.Timeout)
		fmt.Fprintf(os.Stderr, "publish target: %s\n", cfg.PublishAPIURL)
	} else {
		pub = publisher.Fixed{}
		fmt.Fprintln(os.Stderr, "publish target: fixed links (PUBLISH_API_URL not set)")
	}

	// Connect to Redis if REDIS_URL is configured.
	var rds *cache.Redis
	var appStore store.Store = pg
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "redis ping: %v\n", err)
			os.Exit(1)
		}

		appStore = store.NewCachedStore(pg, rds)
		fmt.Fprintln(os.Stderr, "redis connected (caching enabled)")
	} else {
		fmt.Fprintln(os.Stderr, "redis disabled (REDIS_URL not set)")
	}

	ingest := service.NewIngest(appStore, lister, cfg.Timeout)
	lifecycle := service.NewLifecycle(appStore, pub, cfg.Timeout)
	stats := service.NewStats(appStore)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the background scan worker when Redis is available.
	if rds != nil {
		go runScanWorker(ctx, rds, ingest)
	}

	// The schedule worker is the external timer that triggers due publishes;
	// the core services own no wall-clock scheduling.
	go runScheduleWorker(ctx, lifecycle, cfg.SchedulePoll)

	srv := server.New(appStore, cfg, ingest, lifecycle, stats, rds)
	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

// runScanWorker continuously dequeues scan jobs from Redis and runs them,
// single-flighted per channel via a Redis lock. It stops when ctx is
// cancelled (graceful shutdown).
func runScanWorker(ctx context.Context, rds *cache.Redis, ingest *service.Ingest) {
	log.Println("scan worker started")
	for {
		select {
		case <-ctx.Done():
			log.Println("scan worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, rds, cache.ScanQueue, 5*time.Second)
		if err != nil {
			log.Printf("scan worker: dequeue error: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if job == nil {
			continue // timeout, loop back to check ctx
		}

		unlock, err := cache.TryLock(ctx, rds, cache.ScanLockKey(job.ChannelID), 5*time.Minute)
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				log.Printf("scan worker: channel %d scan already running, skipping", job.ChannelID)
			} else {
				log.Printf("scan worker: lock error: %v", err)
			}
			continue
		}

		newCount, err := ingest.Scan(ctx, job.ChannelID)
		unlock()
		if err != nil {
			log.Printf("scan[%s]: error: %v", job.ChannelName, err)
			continue
		}
		log.Printf("scan[%s]: %d new files", job.ChannelName, newCount)
	}
}

// runScheduleWorker periodically publishes pending media whose scheduled time
// has arrived. The per-run logic, including backing off a channel that has
// hit its daily limit, lives in Lifecycle.PublishDue.
func runScheduleWorker(ctx context.Context, lifecycle *service.Lifecycle, interval time.Duration) {
	log.Printf("schedule worker started (every %s)", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("schedule worker stopping")
			return
		case now := <-ticker.C:
			n, err := lifecycle.PublishDue(ctx, now)
			if err != nil {
				log.Printf("schedule worker: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("schedule worker: published %d due item(s)", n)
			}
		}
	}
}
