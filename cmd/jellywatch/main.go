package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/halvden/jellywatch/internal/api"
	"github.com/halvden/jellywatch/internal/api/middleware"
	"github.com/halvden/jellywatch/internal/config"
	"github.com/halvden/jellywatch/internal/database"
	"github.com/halvden/jellywatch/internal/encryption"
	"github.com/halvden/jellywatch/internal/event"
	"github.com/halvden/jellywatch/internal/logging"
	"github.com/halvden/jellywatch/internal/pipeline"
	"github.com/halvden/jellywatch/internal/publish"
	"github.com/halvden/jellywatch/internal/scheduler"
	"github.com/halvden/jellywatch/internal/settings"
	"github.com/halvden/jellywatch/internal/stats"
	"github.com/halvden/jellywatch/internal/version"
	"github.com/halvden/jellywatch/internal/webhook"
)

func main() {
	// Handle subcommands before starting the service
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "set-token":
			if err := setToken(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("JW_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging via the logging Manager
	logManager, logger := logging.NewManager(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Open database and run migrations
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Resolve encryption key: env/config > file > generate new
	encKey, err := resolveEncryptionKey(cfg, logger)
	if err != nil {
		return fmt.Errorf("resolving encryption key: %w", err)
	}
	encryptor, _, err := encryption.New(encKey)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	// Initialize services
	store := settings.NewStore(db, encryptor)
	collector := stats.NewCollector(logger)
	publisher := publish.NewPublisher(logger)

	// Event bus with webhook notifications
	eventBus := event.NewBus(logger, 64)
	go eventBus.Start()
	defer eventBus.Stop()

	webhookService := webhook.NewService(db)
	webhookDispatcher := webhook.NewDispatcher(webhookService, logger)
	for _, eventType := range event.All {
		eventBus.Subscribe(eventType, webhookDispatcher.HandleEvent)
	}

	pipe := pipeline.New(store, collector, publisher, eventBus, logger)
	sched := scheduler.New(pipe, store, logger)

	// Admin API
	tokenAuth, err := middleware.NewTokenAuth(cfg.Server.APIToken)
	if err != nil {
		return fmt.Errorf("setting up API auth: %w", err)
	}
	if !tokenAuth.Enabled() {
		logger.Warn("admin API authentication disabled; set server.api_token")
	}

	router := api.NewRouter(api.RouterDeps{
		Store:          store,
		Pipeline:       pipe,
		Scheduler:      sched,
		WebhookService: webhookService,
		Auth:           tokenAuth,
		Logger:         logger,
	})

	logger.Info("starting jellywatch",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Reload the logging section when the config file changes
	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			logManager.Reconfigure(logging.Options{
				Level:    next.Logging.Level,
				Format:   next.Logging.Format,
				FilePath: next.Logging.FilePath,
			})
		})
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		}
	}()

	// The update loop waits for the admin API to come up before its first run.
	ready := make(chan struct{})
	sched.SetReadyGate(ready)
	go sched.Start(ctx)

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		close(ready)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// resolveEncryptionKey determines the encryption key to use.
// Priority: config/env > key file next to the database > generate new.
func resolveEncryptionKey(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.Encryption.Key != "" {
		return cfg.Encryption.Key, nil
	}

	dataDir := filepath.Dir(cfg.Database.Path)
	keyFile := filepath.Join(dataDir, "encryption.key")

	data, err := os.ReadFile(keyFile) //nolint:gosec // G304: path derived from trusted config
	if err == nil {
		key := strings.TrimSpace(string(data))
		if key != "" {
			logger.Debug("loaded encryption key from file", slog.String("path", keyFile))
			return key, nil
		}
	}

	_, key, err := encryption.New("")
	if err != nil {
		return "", fmt.Errorf("generating encryption key: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		logger.Warn("could not create data directory for encryption key",
			slog.String("path", dataDir), slog.Any("error", err))
		return key, nil
	}
	if err := os.WriteFile(keyFile, []byte(key+"\n"), 0o600); err != nil {
		logger.Warn("could not save encryption key to file",
			slog.String("path", keyFile), slog.Any("error", err))
	} else {
		logger.Warn("generated new encryption key -- back up this file",
			slog.String("path", keyFile))
	}

	return key, nil
}

// setToken stores the Jellyfin API key or Discord bot token from an
// interactive prompt, so credentials never land in shell history.
func setToken(args []string) error {
	if len(args) != 1 || (args[0] != "jellyfin" && args[0] != "discord") {
		return fmt.Errorf("usage: jellywatch set-token <jellyfin|discord>")
	}

	configPath := os.Getenv("JW_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	encKey, err := resolveEncryptionKey(cfg, logger)
	if err != nil {
		return fmt.Errorf("resolving encryption key: %w", err)
	}
	encryptor, _, err := encryption.New(encKey)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	store := settings.NewStore(db, encryptor)

	fmt.Printf("Enter %s token: ", args[0])
	token, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	if len(token) == 0 {
		return fmt.Errorf("empty token")
	}

	ctx := context.Background()
	if args[0] == "jellyfin" {
		err = store.SetAPIKey(ctx, string(token))
	} else {
		err = store.SetBotToken(ctx, string(token))
	}
	if err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	fmt.Println("Token saved.")
	return nil
}
