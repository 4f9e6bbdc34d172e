// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/zapmedia/pkg/api"
	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"
	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/idempotency"
	"github.com/LeeDigitalWorks/zapmedia/pkg/jobs"
	"github.com/LeeDigitalWorks/zapmedia/pkg/lifecycle"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/registry"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store/memory"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store/postgres"
	"github.com/LeeDigitalWorks/zapmedia/pkg/upload"
	"github.com/LeeDigitalWorks/zapmedia/pkg/utils"
)

type ServerOpts struct {
	HTTPPort  int
	DebugPort int
	LogLevel  string

	DBDriver       string
	DBDSN          string
	DBMaxOpenConns int
	DBMaxIdleConns int

	StorageBackend  string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	SigningSecret string

	URLTTL             time.Duration
	UploadTTL          time.Duration
	PartSize           int64
	MultipartThreshold int64

	InitRate  float64
	InitBurst int

	EventsBroker string
	RedisAddr    string
	RedisDB      int
	KafkaBrokers []string

	WorkerEnabled     bool
	WorkerConcurrency int
	WorkerPollEvery   time.Duration
	AttemptTimeout    time.Duration

	SweeperEnabled bool
	SweepInterval  time.Duration
	SweepBatchSize int
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the upload pipeline server",
	Long: `Start the ZapMedia server that handles:
- Upload session management with presigned URLs
- File registry and access URL issuance
- Event-driven media processing workers
- Lifecycle sweeping and quota enforcement`,
	Run: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	f := serverCmd.Flags()
	f.Int("http_port", 8080, "HTTP port for the API")
	f.Int("debug_port", 8081, "Debug HTTP port (metrics, health, pprof)")
	f.String("log_level", "info", "Log level (debug, info, warn, error, fatal)")

	f.String("db_driver", "memory", "Metadata store driver (memory, postgres)")
	f.String("db_dsn", "", "Database connection string")
	f.Int("db_max_open_conns", 25, "Maximum open database connections")
	f.Int("db_max_idle_conns", 5, "Maximum idle database connections")

	f.String("storage_backend", "memory", "Object storage backend (memory, s3)")
	f.String("s3_bucket", "", "S3 bucket name")
	f.String("s3_region", "us-east-1", "S3 region")
	f.String("s3_endpoint", "", "S3 endpoint (for MinIO or other S3-compatible stores)")
	f.String("s3_access_key", "", "S3 access key (use env var S3_ACCESS_KEY)")
	f.String("s3_secret_key", "", "S3 secret key (use env var S3_SECRET_KEY)")
	f.String("s3_public_base_url", "", "Base URL for public object access")

	f.String("signing_secret", "", "HMAC secret for download tokens (use env var SIGNING_SECRET)")

	f.Duration("url_ttl", upload.DefaultURLTTL, "Presigned URL lifetime")
	f.Duration("upload_ttl", upload.DefaultUploadTTL, "Upload session lifetime before expiry")
	f.Int64("part_size", upload.DefaultPartSize, "Multipart part size in bytes")
	f.Int64("multipart_threshold", upload.DefaultMultipartThreshold, "Size at which uploads become multipart")

	f.Float64("init_rate", 0, "Per-tenant upload initiations per second (0 disables)")
	f.Int("init_burst", 0, "Per-tenant upload initiation burst")

	f.String("events_broker", "memory", "Event broker (memory, redis)")
	f.String("redis_addr", "localhost:6379", "Redis address for events and idempotency")
	f.Int("redis_db", 0, "Redis database number")
	f.StringSlice("kafka_brokers", nil, "Kafka brokers for mirroring pipeline events (optional)")

	f.Bool("worker_enabled", true, "Run processing workers in this process")
	f.Int("worker_concurrency", jobs.DefaultConcurrency, "Concurrent job executions")
	f.Duration("worker_poll_interval", jobs.DefaultPollInterval, "Queue poll interval")
	f.Duration("attempt_timeout", jobs.DefaultAttemptTimeout, "Per-attempt job timeout")

	f.Bool("sweeper_enabled", true, "Run the lifecycle sweeper in this process")
	f.Duration("sweep_interval", lifecycle.DefaultInterval, "Lifecycle sweep interval")
	f.Int("sweep_batch_size", lifecycle.DefaultBatchSize, "Records per sweep batch")

	viper.BindPFlags(f)
}

func loadServerOpts(cmd *cobra.Command) *ServerOpts {
	l := NewFlagLoader(cmd)
	return &ServerOpts{
		HTTPPort:  l.Int("http_port"),
		DebugPort: l.Int("debug_port"),
		LogLevel:  l.String("log_level"),

		DBDriver:       l.String("db_driver"),
		DBDSN:          l.String("db_dsn"),
		DBMaxOpenConns: l.Int("db_max_open_conns"),
		DBMaxIdleConns: l.Int("db_max_idle_conns"),

		StorageBackend:  l.String("storage_backend"),
		S3Bucket:        l.String("s3_bucket"),
		S3Region:        l.String("s3_region"),
		S3Endpoint:      l.String("s3_endpoint"),
		S3AccessKey:     l.String("s3_access_key"),
		S3SecretKey:     l.String("s3_secret_key"),
		S3PublicBaseURL: l.String("s3_public_base_url"),

		SigningSecret: l.String("signing_secret"),

		URLTTL:             l.Duration("url_ttl"),
		UploadTTL:          l.Duration("upload_ttl"),
		PartSize:           l.Int64("part_size"),
		MultipartThreshold: l.Int64("multipart_threshold"),

		InitRate:  l.Float64("init_rate"),
		InitBurst: l.Int("init_burst"),

		EventsBroker: l.String("events_broker"),
		RedisAddr:    l.String("redis_addr"),
		RedisDB:      l.Int("redis_db"),
		KafkaBrokers: l.StringSlice("kafka_brokers"),

		WorkerEnabled:     l.Bool("worker_enabled"),
		WorkerConcurrency: l.Int("worker_concurrency"),
		WorkerPollEvery:   l.Duration("worker_poll_interval"),
		AttemptTimeout:    l.Duration("attempt_timeout"),

		SweeperEnabled: l.Bool("sweeper_enabled"),
		SweepInterval:  l.Duration("sweep_interval"),
		SweepBatchSize: l.Int("sweep_batch_size"),
	}
}

func runServer(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("server", false)
	opts := loadServerOpts(cmd)

	if level, err := zerolog.ParseLevel(opts.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	debug.SetNotReady()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Metadata store
	var (
		st store.Store
		pg *postgres.Postgres
	)
	switch opts.DBDriver {
	case "postgres":
		var err error
		pg, err = postgres.New(postgres.Config{
			DSN:          opts.DBDSN,
			MaxOpenConns: opts.DBMaxOpenConns,
			MaxIdleConns: opts.DBMaxIdleConns,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		st = pg
	case "memory":
		st = memory.New()
		logger.Warn().Msg("using in-memory metadata store; data will not survive restarts")
	default:
		logger.Fatal().Str("driver", opts.DBDriver).Msg("unknown db driver")
	}

	// Object store
	var objects objectstore.ObjectStore
	switch opts.StorageBackend {
	case "s3":
		s3store, err := objectstore.NewS3(ctx, objectstore.S3Config{
			Bucket:        opts.S3Bucket,
			Region:        opts.S3Region,
			Endpoint:      opts.S3Endpoint,
			AccessKey:     opts.S3AccessKey,
			SecretKey:     opts.S3SecretKey,
			PublicBaseURL: opts.S3PublicBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize s3 backend")
		}
		objects = s3store
	case "memory":
		objects = objectstore.NewMemoryStore()
		logger.Warn().Msg("using in-memory object store; objects will not survive restarts")
	default:
		logger.Fatal().Str("backend", opts.StorageBackend).Msg("unknown storage backend")
	}

	// Event broker and idempotency guard
	var (
		broker events.Broker
		guard  idempotency.Guard
	)
	switch opts.EventsBroker {
	case "redis":
		redisBroker, err := events.NewRedisBroker(events.DefaultRedisConfig(opts.RedisAddr))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis broker")
		}
		broker = redisBroker
		guard = idempotency.NewRedisGuard(redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
			DB:   opts.RedisDB,
		}))
	case "memory":
		broker = events.NewMemoryBroker()
		guard = idempotency.NewMemoryGuard()
	default:
		logger.Fatal().Str("broker", opts.EventsBroker).Msg("unknown events broker")
	}
	defer broker.Close()

	publishers := []events.Publisher{broker}
	if len(opts.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: opts.KafkaBrokers})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to kafka")
		}
		defer kafka.Close()
		publishers = append(publishers, kafka)
	}
	emitter := events.NewEmitter(publishers...)

	ledger := quota.NewLedger(st)
	recorder := audit.NewRecorder(st)

	// Job queue
	var queue jobs.Queue
	if pg != nil {
		queue = jobs.NewDBQueue(pg.SqlDB())
	} else {
		queue = jobs.NewMemoryQueue()
	}
	defer queue.Close()

	// Services
	uploads, err := upload.NewService(upload.Config{
		Store:              st,
		Objects:            objects,
		Quota:              ledger,
		Audit:              recorder,
		Emitter:            emitter,
		URLTTL:             opts.URLTTL,
		UploadTTL:          opts.UploadTTL,
		PartSize:           opts.PartSize,
		MultipartThreshold: opts.MultipartThreshold,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build upload service")
	}

	signingSecret := []byte(opts.SigningSecret)
	if len(signingSecret) == 0 {
		signingSecret = make([]byte, 32)
		rand.Read(signingSecret)
		logger.Warn().Msg("signing_secret not set; download tokens will not survive restarts")
	}
	reg, err := registry.NewService(registry.Config{
		Store:         st,
		Objects:       objects,
		Audit:         recorder,
		Emitter:       emitter,
		SigningSecret: signingSecret,
		SignedURLTTL:  opts.URLTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build registry service")
	}

	// Dispatcher and workers
	dispatcher := jobs.NewDispatcher(queue, broker)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start job dispatcher")
	}

	var worker *jobs.Worker
	if opts.WorkerEnabled {
		worker = jobs.NewWorker(jobs.WorkerConfig{
			ID:             fmt.Sprintf("worker-%d", os.Getpid()),
			Queue:          queue,
			Guard:          guard,
			PollInterval:   opts.WorkerPollEvery,
			Concurrency:    opts.WorkerConcurrency,
			AttemptTimeout: opts.AttemptTimeout,
		})
		renderer := &jobs.CopyRenderer{Objects: objects}
		worker.RegisterHandler(&jobs.ScanHandler{
			Files:   st,
			Objects: objects,
			Scanner: jobs.NoopScanner{},
			Audit:   recorder,
		})
		worker.RegisterHandler(jobs.NewThumbnailHandler(st, renderer, recorder))
		worker.RegisterHandler(jobs.NewPreviewHandler(st, renderer, recorder))
		worker.RegisterHandler(jobs.NewTranscodeHandler(st, renderer, recorder))
		worker.RegisterHandler(&jobs.NotifyHandler{Publisher: broker})
		worker.Start(ctx)
	}

	// Lifecycle sweeper
	var sweeper *lifecycle.Sweeper
	if opts.SweeperEnabled {
		sweeper, err = lifecycle.NewSweeper(lifecycle.Config{
			Store:     st,
			Objects:   objects,
			Quota:     ledger,
			Audit:     recorder,
			Emitter:   emitter,
			Interval:  opts.SweepInterval,
			BatchSize: opts.SweepBatchSize,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build sweeper")
		}
		sweeper.Start(ctx)
	}

	// HTTP API
	handler, err := api.NewHandler(api.Config{
		Uploads:   uploads,
		Registry:  reg,
		Quota:     ledger,
		Audit:     recorder,
		Jobs:      queue,
		InitRate:  opts.InitRate,
		InitBurst: opts.InitBurst,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build api handler")
	}
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.HTTPPort),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info().Int("port", opts.HTTPPort).Msg("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server failed")
		}
	}()

	debugServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.DebugPort),
		Handler: debug.GetMux(),
	}
	go func() {
		logger.Info().Int("port", opts.DebugPort).Msg("debug server listening")
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("debug server failed")
		}
	}()

	debug.SetReady()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	debug.SetNotReady()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	apiServer.Shutdown(shutdownCtx)
	debugServer.Shutdown(shutdownCtx)

	if worker != nil {
		worker.Stop()
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	dispatcher.Wait()

	if pg != nil {
		pg.Close()
	}
	logger.Info().Msg("shutdown complete")
}
