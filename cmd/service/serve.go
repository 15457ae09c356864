package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collab-playlist/internal/api"
	"collab-playlist/internal/config"
	"collab-playlist/internal/playlist"
	"collab-playlist/internal/realtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the playlist HTTP API and event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().String("port", "4000", "listen port (PORT)")
		c.Flags().String("storage", config.StorageMemory, "memory or postgres (STORAGE)")
		c.Flags().String("redis-url", "", "relay events through Redis (REDIS_URL)")
		c.Flags().Bool("seed", false, "load the demo catalog and playlist on start (SEED_ON_START)")
	}
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Server, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := realtime.NewHub(log)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	var pub playlist.Publisher = hub
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		// Publishes carry their own deadline.
		opt.ContextTimeoutEnabled = true
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		relay := realtime.NewRedisRelay(rdb, cfg.RedisChannel, hub, log)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("redis relay stopped", zap.Error(err))
			}
		}()
		pub = relay
		log.Info("relaying events through redis", zap.String("channel", cfg.RedisChannel))
	}

	svc := playlist.NewService(store, pub, log)
	if cfg.SeedOnStart {
		if err := svc.Seed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("seeded demo data", zap.Int("tracks", playlist.CatalogSize))
	}

	stream := realtime.NewServer(hub, cfg.HeartbeatInterval, cfg.CORSAllowedOrigin, log)
	srv := api.NewServer(svc, hub, stream, api.Options{
		RateLimitRPS:      cfg.RateLimitRPS,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	}, log)

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: srv.Router(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Logger,
			middleware.Recoverer,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("playlist-service listening", zap.String("addr", httpServer.Addr), zap.String("storage", cfg.Storage))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Stopping the hub closes every stream so Shutdown is not held open by them.
	<-hubDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
