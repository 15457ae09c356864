package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collab-playlist/internal/client"
	"collab-playlist/internal/config"
	"collab-playlist/internal/logger"
	"collab-playlist/internal/offline"
)

var rootCmd = &cobra.Command{
	Use:           "playlist-client",
	Short:         "Headless client for the shared playlist",
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		if err := config.LoadDotenv(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})

	f := rootCmd.Flags()
	f.String("api", "", "API base URL (API_URL)")
	f.String("transport", "", "sse or ws (TRANSPORT)")
	f.String("queue-db", "", "offline queue database (QUEUE_DB)")
	f.String("name", "", "name shown on added tracks (ADDED_BY)")
	f.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	f.String("log-file", "", "log file; the client logs nowhere else (LOG_FILE)")
}

func loadConfig(cmd *cobra.Command) (config.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	for flag, dst := range map[string]*string{
		"api":       &cfg.APIURL,
		"transport": &cfg.Transport,
		"queue-db":  &cfg.QueueDB,
		"name":      &cfg.AddedBy,
		"log-level": &cfg.LogLevel,
		"log-file":  &cfg.LogFile,
	} {
		if v, _ := f.GetString(flag); v != "" {
			*dst = v
		}
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile, Quiet: true, MaxSize: 10, MaxBackups: 2})
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := offline.OpenSQLite(cfg.QueueDB)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := client.NewEngine(
		client.NewAPIClient(cfg.APIURL, &http.Client{Timeout: 10 * time.Second}),
		newTransport(cfg),
		offline.NewQueue(store, log),
		client.Options{AddedBy: cfg.AddedBy, Log: log},
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := engine.Run(ctx); err != nil {
			log.Error("sync engine stopped", zap.Error(err))
		}
	}()

	r := newREPL(engine, cmd.InOrStdin(), cmd.OutOrStdout())
	go r.watch(ctx)
	err = r.run(ctx)
	cancel()
	return err
}

func newTransport(cfg config.Client) client.Transport {
	sseURL, wsURL := client.StreamURLs(cfg.APIURL)
	if cfg.Transport == config.TransportWS {
		return &client.WSTransport{URL: wsURL}
	}
	return &client.SSETransport{URL: sseURL}
}
