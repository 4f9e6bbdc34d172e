// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"
	"github.com/LeeDigitalWorks/zapmedia/pkg/lifecycle"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store/postgres"
	"github.com/LeeDigitalWorks/zapmedia/pkg/utils"
)

var sweeperCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Run the lifecycle sweeper standalone",
	Long: `Run the lifecycle sweeper as a dedicated process. Useful when the
API replicas run with --sweeper_enabled=false and retention should be
driven from a single place.`,
	Run: runSweeper,
}

func init() {
	rootCmd.AddCommand(sweeperCmd)

	f := sweeperCmd.Flags()
	f.Int("debug_port", 8081, "Debug HTTP port (metrics, health, pprof)")
	f.String("log_level", "info", "Log level (debug, info, warn, error, fatal)")
	f.String("db_dsn", "", "Database connection string")
	f.String("s3_bucket", "", "S3 bucket name")
	f.String("s3_region", "us-east-1", "S3 region")
	f.String("s3_endpoint", "", "S3 endpoint (for MinIO or other S3-compatible stores)")
	f.String("s3_access_key", "", "S3 access key (use env var S3_ACCESS_KEY)")
	f.String("s3_secret_key", "", "S3 secret key (use env var S3_SECRET_KEY)")
	f.String("s3_public_base_url", "", "Base URL for public object access")
	f.Duration("sweep_interval", lifecycle.DefaultInterval, "Lifecycle sweep interval")
	f.Int("sweep_batch_size", lifecycle.DefaultBatchSize, "Records per sweep batch")
	f.Bool("once", false, "Run a single sweep pass and exit")

	viper.BindPFlags(f)
}

func runSweeper(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("sweeper", false)
	l := NewFlagLoader(cmd)

	if level, err := zerolog.ParseLevel(l.String("log_level")); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := postgres.New(postgres.Config{DSN: l.String("db_dsn")})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	objects, err := objectstore.NewS3(ctx, objectstore.S3Config{
		Bucket:        l.String("s3_bucket"),
		Region:        l.String("s3_region"),
		Endpoint:      l.String("s3_endpoint"),
		AccessKey:     l.String("s3_access_key"),
		SecretKey:     l.String("s3_secret_key"),
		PublicBaseURL: l.String("s3_public_base_url"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize s3 backend")
	}

	sweeper, err := lifecycle.NewSweeper(lifecycle.Config{
		Store:     pg,
		Objects:   objects,
		Quota:     quota.NewLedger(pg),
		Audit:     audit.NewRecorder(pg),
		Interval:  l.Duration("sweep_interval"),
		BatchSize: l.Int("sweep_batch_size"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build sweeper")
	}

	if l.Bool("once") {
		sweeper.Sweep(ctx)
		return
	}

	debugServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", l.Int("debug_port")),
		Handler: debug.GetMux(),
	}
	go func() {
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("debug server failed")
		}
	}()

	sweeper.Start(ctx)
	debug.SetReady()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	debug.SetNotReady()
	cancel()
	sweeper.Stop()
	debugServer.Close()
	logger.Info().Msg("sweeper stopped")
}
