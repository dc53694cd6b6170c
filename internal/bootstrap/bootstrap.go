// Package bootstrap wires configuration into the running pieces shared by
// the server, the worker and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/attribution-monitor/internal/api"
	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/archive"
	"github.com/ignite/attribution-monitor/internal/cache"
	"github.com/ignite/attribution-monitor/internal/config"
	"github.com/ignite/attribution-monitor/internal/inventory"
	"github.com/ignite/attribution-monitor/internal/pkg/awsconf"
	"github.com/ignite/attribution-monitor/internal/pkg/distlock"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
	"github.com/ignite/attribution-monitor/internal/pkg/metrics"
	"github.com/ignite/attribution-monitor/internal/report"
	"github.com/ignite/attribution-monitor/internal/scheduler"
	"github.com/ignite/attribution-monitor/internal/selections"
)

// DefaultConfigPath is read when no path is given.
const DefaultConfigPath = "config/config.yaml"

// LoadConfig loads path with environment overrides. A missing default file
// is not an error: the run starts from defaults plus environment.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = DefaultConfigPath
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return config.LoadFromEnv(path)
}

// App holds every long-lived dependency built from one Config.
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Redis      *redis.Client
	S3         *s3.Client
	Metrics    *metrics.Metrics
	Client     *appsflyer.Client
	Store      cache.Store
	Reports    *report.Service
	Selections selections.Store
	Inventory  inventory.Provider

	archiver *archive.Async
}

// New connects the configured backends. Optional backends that fail are
// logged and skipped; a backend the cache depends on is an error.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	loc, _ := cfg.AppsFlyer.Location()

	a := &App{Config: cfg, Metrics: metrics.New(), Inventory: inventory.FromConfig(cfg.Apps)}

	if cfg.Database.URL != "" {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			if cfg.Cache.Backend == "postgres" {
				return nil, err
			}
			logger.Warn("database unavailable, using in-memory selections", "error", err)
		} else {
			a.DB = db
		}
	}

	if cfg.Redis.URL != "" {
		client, err := openRedis(ctx, cfg.Redis.URL)
		if err != nil {
			if cfg.Cache.Backend == "redis" {
				a.Close()
				return nil, err
			}
			logger.Warn("redis unavailable, falling back to database or local locks", "error", err)
		} else {
			a.Redis = client
		}
	}

	store, err := a.cacheStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	inner, err := a.archiveBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Client = appsflyer.NewClient(appsflyer.Config{
		BaseURL:       cfg.AppsFlyer.BaseURL,
		APIToken:      cfg.AppsFlyer.APIToken,
		Timeout:       cfg.AppsFlyer.Timeout(),
		MaxRetries:    cfg.AppsFlyer.MaxRetries,
		RetryDelay:    cfg.AppsFlyer.RetryDelay(),
		MaxRetryAfter: cfg.AppsFlyer.MaxRetryAfter(),
	})
	a.Client.SetMetrics(a.Metrics)

	opts := report.Options{
		Concurrency:       cfg.Report.Concurrency,
		Location:          loc,
		Locks:             distlock.NewFactory(a.Redis, a.DB, cfg.Cache.LockTTL()),
		LockWait:          cfg.Cache.LockWait(),
		Metrics:           a.Metrics,
		EventLookbackDays: cfg.Report.EventLookbackDays,
	}
	if inner != nil {
		a.archiver = archive.NewAsync(inner, cfg.Archive.QueueSize)
		a.archiver.OnDrop = func(archive.Export) { a.Metrics.ObserveArchive(true) }
		a.archiver.OnFailure = func(archive.Export, error) { a.Metrics.ObserveArchive(false) }
		opts.Archiver = a.archiver
	}
	a.Reports = report.NewService(a.Client, a.Store, opts)

	if a.DB != nil {
		pg := selections.NewPostgresStore(a.DB, "")
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.Selections = pg
	} else {
		a.Selections = selections.NewMemoryStore()
	}

	logger.Info("bootstrap complete",
		"cache", cfg.Cache.Backend,
		"archive", cfg.Archive.Backend,
		"database", a.DB != nil,
		"redis", a.Redis != nil,
		"apps", len(cfg.Apps),
	)
	return a, nil
}

func (a *App) cacheStore(ctx context.Context) (cache.Store, error) {
	cfg := a.Config.Cache
	switch cfg.Backend {
	case "postgres":
		pg := cache.NewPostgresStore(a.DB, cfg.Table)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case "redis":
		return cache.NewRedisStore(a.Redis, cfg.KeyPrefix), nil
	case "dynamodb":
		awsCfg, err := awsconf.Load(ctx, awsOptions(cfg.AWS))
		if err != nil {
			return nil, err
		}
		return cache.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Table), nil
	default:
		logger.Warn("using in-memory report cache, entries are lost on restart")
		return cache.NewMemory(), nil
	}
}

func (a *App) archiveBackend(ctx context.Context) (archive.Archiver, error) {
	cfg := a.Config.Archive
	switch cfg.Backend {
	case "local":
		return archive.NewLocal(cfg.LocalPath, cfg.Prefix), nil
	case "s3":
		awsCfg, err := awsconf.Load(ctx, awsOptions(cfg.AWS))
		if err != nil {
			return nil, err
		}
		a.S3 = s3.NewFromConfig(awsCfg)
		logger.Info("raw export archive enabled", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return archive.NewS3(a.S3, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, nil
	}
}

func awsOptions(c config.AWSConfig) awsconf.Options {
	return awsconf.Options{
		Region:          c.Region,
		Profile:         c.GetProfile(),
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
	}
}

// Handlers builds the HTTP handlers over the app's services.
func (a *App) Handlers() *api.Handlers {
	h := api.NewHandlers(a.Reports, a.Inventory, a.Selections)
	h.SetConfig(a.Config)
	h.SetMetrics(a.Metrics)
	h.SetHealthChecker(api.NewHealthChecker(a.DB, a.Redis, a.S3, a.Config.Archive.Bucket))
	return h
}

// Refresher builds the scheduled refresher. Its lock uses the scheduler's
// own TTL, not the cache write TTL.
func (a *App) Refresher() *scheduler.Refresher {
	return scheduler.New(a.Reports, a.Inventory, a.Selections,
		distlock.NewFactory(a.Redis, a.DB, a.Config.Scheduler.LockTTL()),
		scheduler.Options{
			Periods: a.Config.Scheduler.Periods,
			Pause:   a.Config.Scheduler.PauseBetweenKinds(),
			LockTTL: a.Config.Scheduler.LockTTL(),
		})
}

// Close drains the archive queue and closes connections.
func (a *App) Close() {
	if a.archiver != nil {
		a.archiver.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := cfg.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}
	logger.Info("connecting to database", "host", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// extractHost returns the host portion of a postgres DSN for logging,
// without credentials.
func extractHost(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}
