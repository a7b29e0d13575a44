package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/marcus-crane/voxpro/config"
	"github.com/marcus-crane/voxpro/db"
	"github.com/marcus-crane/voxpro/events"
	"github.com/marcus-crane/voxpro/hotkeys"
	"github.com/marcus-crane/voxpro/migrations"
	"github.com/marcus-crane/voxpro/notify"
	"github.com/marcus-crane/voxpro/playback"
	"github.com/marcus-crane/voxpro/search"
	"github.com/marcus-crane/voxpro/thumbnail"
	"github.com/marcus-crane/voxpro/utils"
	"github.com/marcus-crane/voxpro/xano"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", slog.Any("error", err))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))
	slog.SetDefault(logger)

	if cfg.Xano.BaseURL == "" {
		slog.Error("Required value was not provided", slog.String("key", "XANO_BASE_URL"))
		os.Exit(1)
	}

	if utils.GetEnv("RESET_DB", "0") == "1" && cfg.Voxpro.DbPath != "" {
		if err := os.Remove(cfg.Voxpro.DbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("Failed to reset database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var (
		preferences db.Store
		history     *playback.History
	)
	if cfg.Voxpro.DbPath != "" {
		sqlite, err := db.NewSqliteStore(cfg.Voxpro.DbPath)
		if err != nil {
			slog.Error("Failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		defer sqlite.Close()
		if err := sqlite.ApplyMigrations(migrations.GetMigrations()); err != nil {
			slog.Error("Failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		preferences = sqlite
		history = playback.NewHistory(sqlite.DB)
	} else {
		slog.Info("No DB_PATH set, preferences and history are kept in memory only")
		preferences = db.NewMapStore()
	}

	var rdb *redis.Client
	if cfg.Thumbnails.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Thumbnails.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	cache, err := thumbnail.NewCache(cfg.Thumbnails.CacheSize, rdb, time.Duration(cfg.Thumbnails.RedisTTLMins)*time.Minute)
	if err != nil {
		slog.Error("Failed to create thumbnail cache", slog.Any("error", err))
		os.Exit(1)
	}

	broker := events.NewBroker()
	defer broker.Close()
	notices := notify.NewCenter(broker, cfg.Pushover.Token, cfg.Pushover.Recipient)

	store := xano.NewClient(cfg.Xano.BaseURL)
	fetcher := &thumbnail.HTTPFetcher{Client: utils.NewHTTPClient(thumbnail.DefaultDecodeTimeout)}
	poppler := thumbnail.NewPoppler(cfg.Thumbnails.PdftoppmPath, cfg.Thumbnails.PdfinfoPath)

	pipeline, err := thumbnail.NewPipeline(thumbnail.Options{
		Cache:     cache,
		Frames:    thumbnail.NewFFmpeg(cfg.Thumbnails.FFmpegPath),
		Pages:     poppler,
		Fetcher:   fetcher,
		ProxyBase: cfg.Media.ProxyBase,
		PDFDPI:    cfg.Thumbnails.PDFDPI,
	})
	if err != nil {
		slog.Error("Failed to create thumbnail pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	controller := playback.NewController(playback.Options{
		History:   history,
		Publisher: broker,
		Fetcher:   fetcher,
		Pages:     poppler,
		Palettes:  pipeline,
		ProxyBase: cfg.Media.ProxyBase,
	})

	machine := hotkeys.NewMachine(hotkeys.Options{
		Store:       store,
		Presenter:   controller,
		Preferences: preferences,
		Notifier:    notices,
		Publisher:   broker,
		Thumbnails:  pipeline,
	})

	aggregator := search.NewAggregator(search.Options{
		Endpoints:  cfg.SearchEndpoints(),
		Limit:      cfg.Search.Limit,
		Debounce:   cfg.Debounce(),
		HTTPClient: utils.NewHTTPClient(search.DefaultTimeout),
		Store:      store,
		Notifier:   notices,
		Publisher:  broker,
	})

	// The first load happens up front so consoles never see an empty table
	ctx, cancel := context.WithTimeout(context.Background(), 2*xano.DefaultTimeout)
	if err := machine.Reload(ctx); err != nil {
		slog.Error("Initial assignment load failed, polling will retry", slog.Any("error", err))
	}
	cancel()

	jobScheduler, err := SetupInBackground(cfg.RefreshInterval(), machine)
	if err != nil {
		slog.Error("Failed to set up background jobs", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Voxpro.BackgroundJobsEnabled {
		jobScheduler.StartAsync()
		slog.Info("Background jobs have started up in the background.", slog.Duration("interval", cfg.RefreshInterval()))
	} else {
		slog.Info("Background jobs are disabled.")
	}

	router := RegisterRoutes(http.NewServeMux(), &App{
		Store:          store,
		Search:         aggregator,
		Hotkeys:        machine,
		Playback:       controller,
		Thumbnails:     pipeline,
		Preferences:    preferences,
		Notices:        notices,
		Events:         broker,
		AllowedOrigins: cfg.Origins(),
		WebhookSecret:  cfg.Voxpro.WebhookSecret,
	})

	server := &http.Server{
		Addr:              cfg.Voxpro.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Voxpro is running", slog.String("addr", cfg.Voxpro.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	slog.Info("Gracefully shutting down...")

	jobScheduler.Stop()
	machine.Deactivate(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down cleanly", slog.Any("error", err))
	}
	slog.Info("Voxpro has successfully shut down.")
}
