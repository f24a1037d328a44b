package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/fenorlabs/totesys-etl/pkg/blob"
	"github.com/fenorlabs/totesys-etl/pkg/extract"
	"github.com/fenorlabs/totesys-etl/pkg/load"
	"github.com/fenorlabs/totesys-etl/pkg/logger"
	"github.com/fenorlabs/totesys-etl/pkg/metrics"
	"github.com/fenorlabs/totesys-etl/pkg/notify"
	"github.com/fenorlabs/totesys-etl/pkg/pipeline"
	"github.com/fenorlabs/totesys-etl/pkg/server"
	"github.com/fenorlabs/totesys-etl/pkg/source"
	"github.com/fenorlabs/totesys-etl/pkg/transform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Source database configuration
	sourceDSNFlag := flag.String("source-dsn", "", "operational database DSN (or set TOTESYS_DB_DSN env var)")
	queriesPerSecondFlag := flag.Float64("queries-per-second", 0, "throttle for source database scans (0 disables)")

	// Object store configuration
	bucketFlag := flag.String("bucket", "", "object store bucket for raw snapshots and artifacts (or set ETL_BUCKET env var)")
	regionFlag := flag.String("region", "", "object store region (or set AWS_REGION env var)")

	// Warehouse configuration (optional; omit to skip the load stage)
	warehouseDSNFlag := flag.String("warehouse-dsn", "", "warehouse database DSN (or set WAREHOUSE_DB_DSN env var)")

	// Commands
	migrateFlag := flag.Bool("migrate", false, "run warehouse migrations and exit")
	onceFlag := flag.Bool("once", false, "run a single batch cycle and exit")

	// Service configuration
	intervalFlag := flag.Duration("interval", 10*time.Minute, "interval between batch cycles")
	listenAddrFlag := flag.String("listen-addr", ":8080", "ops HTTP listen address")
	sentryDSNFlag := flag.String("sentry-dsn", "", "Sentry DSN for error reporting (or set SENTRY_DSN env var)")
	slackTokenFlag := flag.String("slack-token", "", "Slack bot token for failure alerts (or set SLACK_BOT_TOKEN env var)")
	slackChannelFlag := flag.String("slack-channel", "", "Slack channel for failure alerts (or set SLACK_CHANNEL env var)")

	flag.Parse()

	// Load a local .env if present; real environments set variables directly.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("TOTESYS_DB_DSN"); env != "" {
		*sourceDSNFlag = env
	}
	if env := os.Getenv("ETL_BUCKET"); env != "" {
		*bucketFlag = env
	}
	if env := os.Getenv("AWS_REGION"); env != "" {
		*regionFlag = env
	}
	if env := os.Getenv("WAREHOUSE_DB_DSN"); env != "" {
		*warehouseDSNFlag = env
	}
	if env := os.Getenv("SENTRY_DSN"); env != "" {
		*sentryDSNFlag = env
	}
	if env := os.Getenv("SLACK_BOT_TOKEN"); env != "" {
		*slackTokenFlag = env
	}
	if env := os.Getenv("SLACK_CHANNEL"); env != "" {
		*slackChannelFlag = env
	}

	if *migrateFlag {
		if *warehouseDSNFlag == "" {
			return fmt.Errorf("--warehouse-dsn is required for --migrate")
		}
		return load.RunMigrations(log, *warehouseDSNFlag)
	}

	if *sourceDSNFlag == "" {
		return fmt.Errorf("--source-dsn is required")
	}
	if *bucketFlag == "" {
		return fmt.Errorf("--bucket is required")
	}

	if *sentryDSNFlag != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     *sentryDSNFlag,
			Release: version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(5 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log = log.With("run_id", runID)
	log.Info("etl: starting", "version", version, "commit", commit)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	db, err := source.NewClient(ctx, source.Config{
		Logger:           log,
		DSN:              *sourceDSNFlag,
		QueriesPerSecond: *queriesPerSecondFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create source client: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping source database: %w", err)
	}

	store, err := blob.NewS3Store(ctx, blob.S3StoreConfig{
		Logger: log,
		Bucket: *bucketFlag,
		Region: *regionFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	extractor, err := extract.New(extract.Config{
		Logger: log,
		DB:     db,
		Store:  store,
		Schema: db,
	})
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}
	if err := extractor.VerifySource(ctx); err != nil {
		return fmt.Errorf("source schema check failed: %w", err)
	}

	cursorStore, err := extract.NewCursorStore(extract.CursorStoreConfig{
		Logger: log,
		Store:  store,
	})
	if err != nil {
		return fmt.Errorf("failed to create cursor store: %w", err)
	}

	engine, err := transform.NewEngine(transform.Config{
		Logger: log,
		Store:  store,
	})
	if err != nil {
		return fmt.Errorf("failed to create transform engine: %w", err)
	}

	var loader pipeline.Loader
	if *warehouseDSNFlag != "" {
		l, err := load.NewLoader(ctx, load.Config{
			Logger: log,
			Store:  store,
			DSN:    *warehouseDSNFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create warehouse loader: %w", err)
		}
		defer l.Close()
		loader = l
	} else {
		log.Info("etl: no warehouse DSN configured, load stage disabled")
	}

	var notifier pipeline.Notifier
	if *slackTokenFlag != "" && *slackChannelFlag != "" {
		n, err := notify.NewSlackNotifier(notify.SlackConfig{
			Logger:  log,
			Token:   *slackTokenFlag,
			Channel: *slackChannelFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create slack notifier: %w", err)
		}
		notifier = n
	}

	pipe, err := pipeline.New(pipeline.Config{
		Logger:      log,
		Extractor:   extractor,
		CursorStore: cursorStore,
		Engine:      engine,
		Interval:    *intervalFlag,
		Loader:      loader,
		Notifier:    notifier,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if *onceFlag {
		status := pipe.RunOnce(ctx)
		if !status.Success {
			return fmt.Errorf("batch %s failed with codes %v", status.BatchID, status.FailureCodes)
		}
		log.Info("etl: batch succeeded", "batch_id", status.BatchID)
		return nil
	}

	srv, err := server.New(server.Config{
		Logger:     log,
		Pipeline:   pipe,
		ListenAddr: *listenAddrFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return pipe.Run(ctx) })
	group.Go(func() error { return srv.Run(ctx) })
	return group.Wait()
}
