package config

import (
	"log/slog"
	"strings"
	"time"

	golobby "github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"

	"github.com/marcus-crane/voxpro/utils"
)

type Config struct {
	Voxpro     VoxproConfig
	Xano       XanoConfig
	Search     SearchConfig
	Media      MediaConfig
	Thumbnails ThumbnailsConfig
	Hotkeys    HotkeysConfig
	Pushover   PushoverConfig
}

type VoxproConfig struct {
	BackgroundJobsEnabled bool   `env:"BACKGROUND_JOBS_ENABLED"`
	DbPath                string `env:"DB_PATH"`
	ListenAddr            string `env:"LISTEN_ADDR"`
	LogLevel              string `env:"LOG_LEVEL"`
	AllowedOrigins        string `env:"ALLOWED_ORIGINS"`
	WebhookSecret         string `env:"WEBHOOK_SECRET"`
}

type XanoConfig struct {
	BaseURL string `env:"XANO_BASE_URL"`
}

type SearchConfig struct {
	// Comma separated, tried in order
	Endpoints  string `env:"SEARCH_ENDPOINTS"`
	Limit      int    `env:"SEARCH_LIMIT"`
	DebounceMs int    `env:"SEARCH_DEBOUNCE_MS"`
}

type MediaConfig struct {
	ProxyBase string `env:"MEDIA_PROXY_BASE"`
}

type ThumbnailsConfig struct {
	CacheSize    int    `env:"THUMBNAIL_CACHE_SIZE"`
	FFmpegPath   string `env:"FFMPEG_PATH"`
	PdftoppmPath string `env:"PDFTOPPM_PATH"`
	PdfinfoPath  string `env:"PDFINFO_PATH"`
	PDFDPI       int    `env:"THUMBNAIL_PDF_DPI"`
	RedisURL     string `env:"REDIS_URL"`
	RedisTTLMins int    `env:"THUMBNAIL_REDIS_TTL_MINUTES"`
}

type HotkeysConfig struct {
	RefreshSeconds int `env:"HOTKEYS_REFRESH_SECONDS"`
}

type PushoverConfig struct {
	Recipient string `env:"PUSHOVER_RECIPIENT"`
	Token     string `env:"PUSHOVER_TOKEN"`
}

// Default is the configuration used for anything the environment leaves unset
func Default() Config {
	return Config{
		Voxpro: VoxproConfig{
			BackgroundJobsEnabled: true,
			ListenAddr:            ":8080",
			LogLevel:              "info",
			AllowedOrigins:        "http://localhost:8080",
		},
		Search: SearchConfig{
			Limit:      100,
			DebounceMs: 180,
		},
		Thumbnails: ThumbnailsConfig{
			CacheSize:    1024,
			FFmpegPath:   "ffmpeg",
			PdftoppmPath: "pdftoppm",
			PdfinfoPath:  "pdfinfo",
			PDFDPI:       36,
			RedisTTLMins: 24 * 60,
		},
		Hotkeys: HotkeysConfig{
			RefreshSeconds: 30,
		},
	}
}

// Load reads the environment over the defaults
func Load() (Config, error) {
	cfg := Default()
	err := golobby.New().
		AddFeeder(feeder.Env{}).
		AddStruct(&cfg).
		Feed()
	if err != nil {
		return Config{}, err
	}
	cfg.applyFloors()
	return cfg, nil
}

// applyFloors puts back defaults for values the environment zeroed out
func (c *Config) applyFloors() {
	d := Default()
	if c.Voxpro.ListenAddr == "" {
		c.Voxpro.ListenAddr = d.Voxpro.ListenAddr
	}
	if c.Search.Limit <= 0 {
		c.Search.Limit = d.Search.Limit
	}
	if c.Search.DebounceMs <= 0 {
		c.Search.DebounceMs = d.Search.DebounceMs
	}
	if c.Thumbnails.CacheSize <= 0 {
		c.Thumbnails.CacheSize = d.Thumbnails.CacheSize
	}
	if c.Thumbnails.PDFDPI <= 0 {
		c.Thumbnails.PDFDPI = d.Thumbnails.PDFDPI
	}
	if c.Hotkeys.RefreshSeconds <= 0 {
		c.Hotkeys.RefreshSeconds = d.Hotkeys.RefreshSeconds
	}
}

func (c *Config) SearchEndpoints() []string {
	return utils.SplitList(c.Search.Endpoints)
}

func (c *Config) Origins() []string {
	return utils.SplitList(c.Voxpro.AllowedOrigins)
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Search.DebounceMs) * time.Millisecond
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Hotkeys.RefreshSeconds) * time.Second
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Voxpro.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
