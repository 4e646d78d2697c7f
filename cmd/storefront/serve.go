package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"storefront/internal/cache"
	"storefront/internal/config"
	apphttp "storefront/internal/http"
	applog "storefront/internal/log"
	"storefront/internal/repos"
	"storefront/internal/storage"
	"storefront/pkg/mercadopago"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Logger
	applog.Setup(cfg.Env, os.Stdout)
	if cfg.LogFile != "" {
		closer, err := applog.WithFile(cfg.Env, cfg.LogFile)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.LogFile).Msg("could not open log file")
		} else {
			defer closer.Close()
		}
	}

	// 3. Database
	db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if cfg.SeedDemo {
		if err := repos.SeedDemo(db); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	// 4. Redis (optional)
	var rdb *cache.RedisClient
	if cfg.Redis.Addr != "" {
		rdb, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
	}

	// 5. Image storage
	var images storage.ImageStore
	if cfg.S3.Bucket != "" {
		images, err = storage.NewS3Store(context.Background(), cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to init s3 storage: %w", err)
		}
	} else {
		images = storage.NewDiskStore(cfg.MediaDir)
	}

	// 6. Payment gateway
	if cfg.MercadoPago.AccessToken == "" {
		log.Warn().Msg("MERCADOPAGO_ACCESS_TOKEN is empty; checkout calls will fail")
	}
	gw := mercadopago.NewClient(cfg.MercadoPago.AccessToken, cfg.MercadoPago.BaseURL)

	// 7. HTTP
	app := apphttp.New(apphttp.Options{
		Config:  cfg,
		DB:      db,
		Gateway: gw,
		Images:  images,
		Redis:   rdb,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting HTTP server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
	return nil
}

func migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applog.Setup(cfg.Env, io.Discard)
			db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if seed {
				if err := repos.SeedDemo(db); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s database is up to date\n", cfg.DBDriver)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "also insert the demo users and products")
	return cmd
}
