package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/lysyi3m/music-digest/app/aggregator"
	"github.com/lysyi3m/music-digest/app/archive"
	"github.com/lysyi3m/music-digest/app/cfg"
	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
	"github.com/lysyi3m/music-digest/app/notify"
	"github.com/lysyi3m/music-digest/app/render"
	"github.com/lysyi3m/music-digest/app/summarizer"
	"github.com/lysyi3m/music-digest/app/tasks"
)

var opts Options

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "Music industry news digest"

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			return
		}
		if errors.As(err, &flagsErr) {
			fmt.Fprintln(os.Stderr, flagsErr.Message)
			os.Exit(2)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// application holds the components shared by every command.
type application struct {
	cfg         *cfg.Cfg
	db          *database.DB
	items       *database.ItemStore
	runs        *database.RunStore
	configCache *feed.ConfigCache
	registry    *aggregator.Aggregator
	resolver    *daterange.Resolver
	renderer    *render.Renderer
	mailer      *notify.Mailer
	cache       *feed.RedisCache
}

// runWith loads configuration, builds the application and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func runWith(fn func(ctx context.Context, app *application) error) error {
	c, err := cfg.Load(&opts.Options)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.SetupLogger(c.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, c)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func newApplication(ctx context.Context, c *cfg.Cfg) (*application, error) {
	slog.Debug("Opening database", "path", c.DBPath)
	db, err := database.Open(c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	renderer, err := render.New()
	if err != nil {
		db.Close()
		return nil, err
	}

	loc := c.Location()
	app := &application{
		cfg:         c,
		db:          db,
		items:       database.NewItemStore(db, nil, loc),
		runs:        database.NewRunStore(db),
		configCache: feed.NewConfigCache(c.SourcesDir),
		registry:    aggregator.New(),
		resolver:    daterange.NewResolver(loc),
		renderer:    renderer,
		mailer: notify.NewMailer(notify.Config{
			Server:       c.SMTPServer,
			Username:     c.SMTPUsername,
			Password:     c.SMTPPassword,
			Sender:       c.SenderEmail,
			Receiver:     c.ReceiverEmail,
			PrimaryPort:  c.SMTPPrimaryPort,
			FallbackPort: c.SMTPFallbackPort,
			Timeout:      c.SMTPTimeout,
		}),
	}

	if err := app.bootstrapSources(ctx); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func (a *application) bootstrapSources(ctx context.Context) error {
	if err := a.configCache.Run(); err != nil {
		return fmt.Errorf("failed to load source groups: %w", err)
	}

	configs := a.configCache.GetEnabledConfigs()
	if a.configCache.GetConfigCount() == 0 {
		config := feed.DefaultConfig(a.cfg.OPMLPath)
		config.Settings.Timeout = int(a.cfg.FetchTimeout.Seconds())
		config.Settings.MaxItemsPerFeed = a.cfg.MaxItemsPerFeed
		config.Settings.SubtitleMaxRunes = a.cfg.SubtitleMaxRunes
		interval := int(a.cfg.RequestInterval.Milliseconds())
		config.Settings.RequestIntervalMs = &interval
		configs = []*feed.Config{config}
	}

	deps := aggregator.Deps{
		HTTPClient: &http.Client{Timeout: a.cfg.FetchTimeout},
		UserAgent:  a.cfg.UserAgent,
	}

	if a.cfg.RedisAddr != "" {
		cache, err := feed.NewRedisCache(ctx, a.cfg.RedisAddr, a.cfg.FeedCacheTTL)
		if err != nil {
			slog.Warn("Feed cache unavailable, fetching without it", "addr", a.cfg.RedisAddr, "error", err)
		} else {
			a.cache = cache
			deps.Cache = cache
		}
	}

	return a.registry.Bootstrap(configs, deps)
}

func (a *application) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("Database close failed", "error", err)
	}
}

func (a *application) newSummarizer() (tasks.Summarizer, error) {
	prompt, err := summarizer.LoadPrompt(a.cfg.PromptFile)
	if err != nil {
		return nil, err
	}

	client, err := summarizer.New(summarizer.Config{
		APIKey:  a.cfg.OpenAIAPIKey,
		BaseURL: a.cfg.OpenAIBaseURL,
		Model:   a.cfg.OpenAIModel,
		Timeout: a.cfg.SummaryTimeout,
		Prompt:  prompt,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *application) pipeline(ctx context.Context, saveToDB, saveTemp bool) *tasks.Pipeline {
	deps := tasks.PipelineDeps{
		Collector:     a.registry,
		Items:         a.items,
		Runs:          a.runs,
		NewSummarizer: a.newSummarizer,
		SummaryDelay:  feed.NewIntervalLimiter(a.cfg.SummaryInterval),
		Renderer:      a.renderer,
		Mailer:        a.mailer,
	}

	if a.cfg.ArchiveBucket != "" {
		store, err := archive.NewS3Archive(ctx, a.cfg.ArchiveBucket, a.cfg.ArchivePrefix, a.cfg.ArchiveRegion)
		if err != nil {
			slog.Warn("Digest archive unavailable", "bucket", a.cfg.ArchiveBucket, "error", err)
		} else {
			deps.Archiver = store
		}
	}

	return tasks.NewPipeline(deps, tasks.PipelineOptions{
		OutputPath: a.cfg.OutputPath,
		TempPaths:  []string{a.cfg.TempNewsPath},
		SaveToDB:   saveToDB,
		SaveTemp:   saveTemp,
	})
}
