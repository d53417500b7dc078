package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"time"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// Options are the global flags shared by every command. Each one can also be
// supplied through the environment (or a .env file loaded before parsing).
type Options struct {
	// Storage
	DBPath       string `long:"db-path" env:"DB_PATH" default:"data/news.db" description:"SQLite database file"`
	SourcesDir   string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source group YAML files"`
	OPMLPath     string `long:"opml" env:"OPML_FILE" default:"config/subscriptions.opml" description:"Subscription list used when no source groups are configured"`
	OutputPath   string `long:"output" env:"OUTPUT_FILE" default:"news_summary.html" description:"Rendered digest path"`
	TempNewsPath string `long:"temp-file" env:"TEMP_FILE" default:"temp_news.json" description:"Debug dump written by --save-temp"`

	// Fetching
	UserAgent        string `long:"user-agent" env:"USER_AGENT" default:"Music Digest/1.0" description:"User agent string for HTTP requests"`
	FetchTimeout     int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Feed request timeout in seconds"`
	RequestInterval  int    `long:"request-interval" env:"REQUEST_INTERVAL_MS" default:"1000" description:"Pause between outbound feed requests in milliseconds"`
	MaxItemsPerFeed  int    `long:"max-items-per-feed" env:"MAX_ITEMS_PER_FEED" default:"2" description:"Entries taken from each subscription"`
	SubtitleMaxRunes int    `long:"subtitle-max" env:"SUBTITLE_MAX_RUNES" default:"100" description:"Subtitle length limit in characters"`
	RedisAddr        string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the feed body cache (optional)"`
	FeedCacheTTL     int    `long:"feed-cache-ttl" env:"FEED_CACHE_TTL" default:"600" description:"Feed body cache TTL in seconds"`

	// Summarization
	OpenAIAPIKey    string `long:"gpt-api-key" env:"GPT_API_KEY" description:"API key for the summarization service"`
	OpenAIBaseURL   string `long:"gpt-base-url" env:"GPT_BASE_URL" description:"Base URL of an OpenAI-compatible API (optional)"`
	OpenAIModel     string `long:"gpt-model" env:"GPT_MODEL" default:"gpt-4" description:"Chat model used for summaries"`
	PromptFile      string `long:"prompt-file" env:"PROMPT_FILE" description:"YAML file with summary rules (optional)"`
	SummaryInterval int    `long:"summary-interval" env:"SUMMARY_INTERVAL_MS" default:"1000" description:"Pause between summarization calls in milliseconds"`
	SummaryTimeout  int    `long:"summary-timeout" env:"SUMMARY_TIMEOUT" default:"60" description:"Summarization request timeout in seconds"`

	// Mail delivery
	SMTPServer       string `long:"smtp-server" env:"SMTP_SERVER" default:"smtp.163.com" description:"SMTP host"`
	SMTPUsername     string `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP login"`
	SMTPPassword     string `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password or app token"`
	SenderEmail      string `long:"sender" env:"SENDER_EMAIL" description:"From address"`
	ReceiverEmail    string `long:"receiver" env:"RECEIVER_EMAIL" description:"To address"`
	SMTPPrimaryPort  int    `long:"smtp-port" env:"SMTP_PORT" default:"465" description:"Implicit TLS port"`
	SMTPFallbackPort int    `long:"smtp-fallback-port" env:"SMTP_FALLBACK_PORT" default:"25" description:"STARTTLS port tried when the TLS port fails"`
	SMTPTimeout      int    `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10" description:"SMTP connection timeout in seconds"`

	// Digest archive
	ArchiveBucket string `long:"archive-bucket" env:"ARCHIVE_BUCKET" description:"S3 bucket receiving rendered digests (optional)"`
	ArchiveRegion string `long:"archive-region" env:"ARCHIVE_REGION" description:"S3 region"`
	ArchivePrefix string `long:"archive-prefix" env:"ARCHIVE_PREFIX" default:"digests/" description:"S3 key prefix"`

	// Scheduling and HTTP
	Schedule     string `long:"schedule" env:"SCHEDULE" default:"0 9 * * *" description:"Cron expression used by the schedule command"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP port used by the serve command"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the serve command (optional)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Asia/Shanghai)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load converts parsed options into the global configuration.
func Load(opts *Options) (*Cfg, error) {
	if opts == nil {
		return nil, fmt.Errorf("options are required")
	}
	if opts.FetchTimeout < 0 || opts.RequestInterval < 0 || opts.SummaryInterval < 0 {
		return nil, fmt.Errorf("timeouts and intervals must be non-negative")
	}
	if opts.MaxItemsPerFeed < 0 {
		return nil, fmt.Errorf("max items per feed must be non-negative")
	}

	cfg := &Cfg{
		DBPath:       opts.DBPath,
		SourcesDir:   opts.SourcesDir,
		OPMLPath:     opts.OPMLPath,
		OutputPath:   opts.OutputPath,
		TempNewsPath: opts.TempNewsPath,

		UserAgent:        opts.UserAgent,
		FetchTimeout:     seconds(opts.FetchTimeout, 30),
		RequestInterval:  time.Duration(opts.RequestInterval) * time.Millisecond,
		MaxItemsPerFeed:  opts.MaxItemsPerFeed,
		SubtitleMaxRunes: opts.SubtitleMaxRunes,
		RedisAddr:        opts.RedisAddr,
		FeedCacheTTL:     seconds(opts.FeedCacheTTL, 600),

		OpenAIAPIKey:    opts.OpenAIAPIKey,
		OpenAIBaseURL:   opts.OpenAIBaseURL,
		OpenAIModel:     opts.OpenAIModel,
		PromptFile:      opts.PromptFile,
		SummaryInterval: time.Duration(opts.SummaryInterval) * time.Millisecond,
		SummaryTimeout:  seconds(opts.SummaryTimeout, 60),

		SMTPServer:       opts.SMTPServer,
		SMTPUsername:     opts.SMTPUsername,
		SMTPPassword:     opts.SMTPPassword,
		SenderEmail:      opts.SenderEmail,
		ReceiverEmail:    opts.ReceiverEmail,
		SMTPPrimaryPort:  opts.SMTPPrimaryPort,
		SMTPFallbackPort: opts.SMTPFallbackPort,
		SMTPTimeout:      seconds(opts.SMTPTimeout, 10),

		ArchiveBucket: opts.ArchiveBucket,
		ArchiveRegion: opts.ArchiveRegion,
		ArchivePrefix: opts.ArchivePrefix,

		Schedule:     opts.Schedule,
		Port:         opts.Port,
		APIAccessKey: opts.APIAccessKey,

		Timezone: opts.Timezone,
		Debug:    opts.Debug,
		Version:  GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Location returns the configured timezone, falling back to UTC.
func (c *Cfg) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			slog.Debug("Timezone configured", "timezone", timezone)
		}
	}
	return nil
}
