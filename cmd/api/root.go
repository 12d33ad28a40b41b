package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"syncbrief/api/internal/bridge"
	"syncbrief/api/internal/brief"
	"syncbrief/api/internal/config"
	"syncbrief/api/internal/store"
)

var (
	envFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Collaborative UX brief server",
	Long: `api serves the shared UX brief: sections, locks, comments, approval, and
text assist. Without a subcommand it runs the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		cfg = config.Load()
		setupLogging(cfg)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
}

func setupLogging(cfg config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func openBackend(ctx context.Context, cfg config.Config) (store.Backend, error) {
	backend, err := store.OpenBackend(ctx, store.Options{
		Kind:          cfg.Backend,
		SQLitePath:    cfg.SQLitePath,
		PollInterval:  cfg.PollInterval,
		RedisURL:      cfg.RedisURL,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsDir,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	return backend, nil
}

// loadBrief reads the stored brief for the read-only commands. Nothing is
// written when no brief exists yet; the seed is shown instead.
func loadBrief(ctx context.Context, cfg config.Config) (brief.Document, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return brief.Document{}, err
	}
	defer backend.Close()

	doc, found, err := bridge.New(backend, cfg.StorageKey).Load(ctx)
	if err != nil {
		return brief.Document{}, err
	}
	if !found {
		slog.Debug("no stored brief, using seed", "key", cfg.StorageKey)
		return brief.Seed(time.Now().UnixMilli()), nil
	}
	return doc, nil
}
