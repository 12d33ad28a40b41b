package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"syncbrief/api/internal/app"
	"syncbrief/api/internal/assist"
	"syncbrief/api/internal/bridge"
	"syncbrief/api/internal/brief"
	"syncbrief/api/internal/email"
	"syncbrief/api/internal/export"
	"syncbrief/api/internal/history"
	"syncbrief/api/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	syncBridge := bridge.New(backend, cfg.StorageKey)
	doc, err := syncBridge.LoadOrSeed(ctx, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("load brief: %w", err)
	}
	briefStore := brief.NewStore(doc, time.Now)
	detach, err := syncBridge.Attach(ctx, briefStore)
	if err != nil {
		return fmt.Errorf("attach brief sync: %w", err)
	}
	defer detach()

	deps := app.Deps{
		Backend:  backend,
		Assist:   assist.NewGateway(assist.NewGemini(cfg.APIKey, cfg.GeminiBaseURL, cfg.AssistTimeout), cfg.GeminiModel),
		Exporter: export.NewService(cfg.PDFTimeout),
	}
	if cfg.APIKey == "" {
		slog.Warn("API_KEY is not set, text assist will fall back to the original text")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, briefStore.Snapshot)
	defer searchService.Close()
	deps.Search = searchService

	if cfg.HistoryDir != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
		deps.History = history.New(cfg.HistoryDir)
	}

	archiver, err := export.NewArchiver(export.ArchiveConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return err
	}
	if archiver != nil {
		deps.Archive = archiver
	}

	notifier := email.NewNotifier(email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}), email.ParseAddressBook(cfg.MentionEmails))
	if notifier.Enabled() {
		deps.Mentions = notifier
	}

	service := app.New(cfg, brief.NewEditor(briefStore), deps)
	stopStream := service.Start(ctx)
	defer stopStream()

	// Requests wait on the assist call when it has no timeout of its own.
	writeTimeout := cfg.AssistTimeout + cfg.PDFTimeout + 15*time.Second
	if cfg.AssistTimeout <= 0 {
		writeTimeout = 0
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server started",
			"addr", cfg.Addr,
			"backend", cfg.Backend,
			"key", syncBridge.Key(),
			"search", meiliClient != nil,
			"history", deps.History != nil,
			"archive", archiver != nil,
			"mentions", deps.Mentions != nil,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	stopStream()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	service.Wait()
	return nil
}
