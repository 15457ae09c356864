package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collab-playlist/internal/config"
	"collab-playlist/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "playlist-service",
	Short: "Shared collaborative playlist server",
	// serve is the default.
	RunE:          func(cmd *cobra.Command, args []string) error { return serveCmd.RunE(cmd, args) },
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

	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-file", "", "rotated log file (LOG_FILE)")
	rootCmd.PersistentFlags().String("database-url", "", "postgres connection string (DATABASE_URL)")
}

// loadConfig reads the environment, then applies any flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Server, error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("log-file"); v != "" {
		cfg.LogFile = v
	}
	if v, _ := flags.GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("storage") {
		cfg.Storage, _ = flags.GetString("storage")
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL, _ = flags.GetString("redis-url")
	}
	if flags.Changed("seed") {
		cfg.SeedOnStart, _ = flags.GetBool("seed")
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Server) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	})
}
