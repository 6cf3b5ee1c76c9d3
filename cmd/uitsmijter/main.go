// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Command uitsmijter runs the OAuth2 authorization server with its
// forward-auth interceptor mode.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/entities/loader"
	"github.com/uitsmijter/uitsmijter/pkg/keystore"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/provider"
	"github.com/uitsmijter/uitsmijter/pkg/server"
	"github.com/uitsmijter/uitsmijter/pkg/session"
)

// Set at build time through -ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		logger.Fatalf("uitsmijter failed: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "uitsmijter",
		Short:        "OAuth2 authorization server with forward-auth interceptor mode",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	cmd.Flags().String("resources-path", "", "directory holding Configurations/Tenants and Configurations/Clients")
	cmd.Flags().Int("port", 8080, "listen port")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	_ = viper.BindPFlag("resources-path", cmd.Flags().Lookup("resources-path"))
	_ = viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("debug", cmd.Flags().Lookup("debug"))
	return cmd
}

func run(ctx context.Context) error {
	logger.Initialize()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(ctx, cfg)

	var keyBackend keystore.Store
	var sessionBackend session.Store
	if redisClient != nil {
		keyBackend = keystore.NewRedisStore(redisClient, "")
		sessionBackend = session.NewRedisStore(redisClient)
	} else {
		keyBackend = keystore.NewMemoryStore()
		sessionBackend = session.NewMemoryStore()
	}
	defer func() { _ = sessionBackend.Close() }()

	keys := keystore.NewManager(keyBackend, cfg.KeyRotationMaxAge)
	signer := keystore.NewSigner(keys, cfg)

	store := entities.NewStore()
	entityLoader := loader.New(store, cfg, viper.GetString("resources-path"))

	srv := server.New(cfg, store, sessionBackend, keys, signer, provider.New(cfg),
		server.VersionInfo{Version: version, BuildDate: buildDate})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return entityLoader.Run(ctx) })
	group.Go(func() error {
		return srv.Run(ctx, fmt.Sprintf(":%d", viper.GetInt("port")))
	})
	return group.Wait()
}

// connectRedis dials the configured Redis host with a bounded retry. When no
// host is configured, or the host stays unreachable, the server falls back
// to the in-memory backends; this fallback happens at startup only.
func connectRedis(ctx context.Context, cfg *config.Config) redis.UniversalClient {
	if cfg.RedisHost == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return struct{}{}, client.Ping(pingCtx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		logger.Warnw("redis is not reachable, falling back to in-memory stores; "+
			"sessions and keys will not be shared between replicas",
			"host", cfg.RedisHost, "error", err)
		_ = client.Close()
		return nil
	}

	logger.Infow("connected to redis", "host", cfg.RedisHost)
	return client
}

func init() {
	viper.AutomaticEnv()
}
