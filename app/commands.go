package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/music-digest/app/api"
	"github.com/lysyi3m/music-digest/app/cfg"
	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
	"github.com/lysyi3m/music-digest/app/tasks"
)

type Options struct {
	cfg.Options

	Fetch     FetchCommand     `command:"fetch" description:"Fetch news for a window and store it"`
	Summarize SummarizeCommand `command:"summarize" description:"Summarize stored news that has no summary yet"`
	Render    RenderCommand    `command:"render" alias:"html" description:"Render the HTML digest"`
	Notify    NotifyCommand    `command:"notify" alias:"email" description:"Mail the rendered digest"`
	RunAll    RunAllCommand    `command:"run-all" alias:"all" description:"Fetch, summarize, render and mail"`
	PurgeTemp PurgeTempCommand `command:"purge-temp" alias:"cleanup" description:"Remove temporary files"`
	Registry  RegistryCommand  `command:"show-registry" alias:"summary" description:"List registered sources"`
	Query     QueryCommand     `command:"query" description:"Query stored news"`
	Stats     StatsCommand     `command:"show-stats" alias:"stats" description:"Show store statistics"`
	Retention RetentionCommand `command:"retention-sweep" alias:"cleanup-db" description:"Delete news older than the retention period"`
	ClearAll  ClearAllCommand  `command:"clear-all" alias:"clear-db" description:"Delete all stored news"`
	Schedule  ScheduleCommand  `command:"schedule" description:"Run the full pipeline on a cron schedule"`
	Serve     ServeCommand     `command:"serve" description:"Serve the read-only HTTP API"`
	Runs      RunsCommand      `command:"runs" description:"Show recent pipeline runs"`
}

type WindowFlags struct {
	Date    string `long:"date" description:"Single day (YYYY-MM-DD)"`
	From    string `long:"from" description:"Range start (YYYY-MM-DD), used with --to"`
	To      string `long:"to" description:"Range end (YYYY-MM-DD), used with --from"`
	Days    int    `long:"days" description:"The past N days up to yesterday"`
	Sources string `long:"sources" default:"rss" description:"Comma-separated source types"`
}

func (w WindowFlags) resolve(resolver *daterange.Resolver) (daterange.Range, error) {
	args := daterange.Args{Date: w.Date, Days: w.Days}
	if w.From != "" || w.To != "" {
		if w.From == "" || w.To == "" {
			return daterange.Range{}, errors.New("--from and --to must be given together")
		}
		args.Range = &[2]string{w.From, w.To}
	}
	return resolver.Resolve(args)
}

func (w WindowFlags) sourceTypes() []string {
	var types []string
	for _, t := range strings.Split(w.Sources, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

type SaveFlags struct {
	NoSaveDB bool `long:"no-save-db" description:"Do not store fetched news"`
	SaveTemp bool `long:"save-temp" description:"Write fetched news to the temp file"`
}

type FetchCommand struct {
	WindowFlags
	SaveFlags
}

func (c *FetchCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		window, err := c.resolve(app.resolver)
		if err != nil {
			return err
		}

		fetchOpts := tasks.FetchOptions{SourceTypes: c.sourceTypes(), SaveToDB: !c.NoSaveDB}
		if c.SaveTemp {
			fetchOpts.TempPath = app.cfg.TempNewsPath
		}

		task := tasks.NewFetchTask(app.registry, app.items, window, fetchOpts)
		if err := tasks.Execute(ctx, task); err != nil {
			return err
		}

		fmt.Printf("Fetched %d items for %s, %d new\n", task.Fetched, window.String(), task.Saved)
		return nil
	})
}

type SummarizeCommand struct {
	WindowFlags
}

func (c *SummarizeCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		window, err := c.resolve(app.resolver)
		if err != nil {
			return err
		}

		task := tasks.NewSummarizeTask(app.items, app.newSummarizer, feed.NewIntervalLimiter(app.cfg.SummaryInterval), window)
		if err := tasks.Execute(ctx, task); err != nil {
			return err
		}

		fmt.Printf("Summarized %d of %d items (%d fell back to the title)\n", task.Summarized, task.Pending, task.Fallbacks)
		return nil
	})
}

type RenderCommand struct {
	WindowFlags
}

func (c *RenderCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		window, err := c.resolve(app.resolver)
		if err != nil {
			return err
		}

		task := tasks.NewRenderTask(app.items, app.renderer, window, app.cfg.OutputPath)
		if err := tasks.Execute(ctx, task); err != nil {
			return err
		}

		if task.Rendered == 0 {
			fmt.Printf("No summarized items for %s\n", window.String())
			return nil
		}
		fmt.Printf("Rendered %d items to %s\n", task.Rendered, app.cfg.OutputPath)
		return nil
	})
}

type NotifyCommand struct {
	WindowFlags
}

func (c *NotifyCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		window, err := c.resolve(app.resolver)
		if err != nil {
			return err
		}

		task := tasks.NewNotifyTask(app.mailer, app.renderer, tasks.NotifyDigest, window, nil, app.cfg.OutputPath)
		return tasks.Execute(ctx, task)
	})
}

type RunAllCommand struct {
	WindowFlags
	SaveFlags
}

func (c *RunAllCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		window, err := c.resolve(app.resolver)
		if err != nil {
			return err
		}

		run, err := app.pipeline(ctx, !c.NoSaveDB, c.SaveTemp).Run(ctx, window, c.sourceTypes())
		if run != nil {
			fmt.Printf("Run %s finished with outcome %s (fetched %d, saved %d, summarized %d, rendered %d)\n",
				run.ID, run.Outcome, run.Fetched, run.Saved, run.Summarized, run.Rendered)
			for _, e := range run.Errors {
				fmt.Printf("  error: %s\n", e)
			}
		}
		return err
	})
}

type PurgeTempCommand struct{}

func (c *PurgeTempCommand) Execute(args []string) error {
	conf, err := cfg.Load(&opts.Options)
	if err != nil {
		return err
	}
	cfg.SetupLogger(conf.Debug)

	removed := tasks.PurgeTemp(conf.TempNewsPath)
	fmt.Printf("Removed %d temporary files\n", removed)
	return nil
}

type RegistryCommand struct{}

func (c *RegistryCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		summary := app.registry.Summary()

		fmt.Printf("Registered sources: %d\n", summary.TotalSources)
		for _, sourceType := range slices.Sorted(maps.Keys(summary.SourceTypes)) {
			fmt.Printf("  %s: %d\n", sourceType, summary.SourceTypes[sourceType])
		}
		for _, source := range summary.Sources {
			fmt.Printf("  - %s (%s)\n", source.Name, source.Type)
		}
		return nil
	})
}

type QueryCommand struct {
	Date   string `long:"query-date" description:"Fetch date (YYYY-MM-DD)"`
	From   string `long:"query-from" description:"Fetch date range start, used with --query-to"`
	To     string `long:"query-to" description:"Fetch date range end, used with --query-from"`
	Source string `long:"query-source" description:"Source name"`
	Search string `long:"search" description:"Keyword matched against title and content"`
}

func (c *QueryCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		var dateRange *database.DateRange
		switch {
		case c.From != "" || c.To != "":
			if c.From == "" || c.To == "" {
				return errors.New("--query-from and --query-to must be given together")
			}
			window, err := app.resolver.Between(c.From, c.To)
			if err != nil {
				return err
			}
			dateRange = &database.DateRange{Start: window.Start, End: window.End}
		case c.Date != "":
			window, err := app.resolver.Day(c.Date)
			if err != nil {
				return err
			}
			dateRange = &database.DateRange{Start: window.Start, End: window.End}
		}

		var items []feed.Item
		var err error
		switch {
		case c.Source != "":
			items, err = app.items.QueryBySource(ctx, c.Source, dateRange)
		case c.Search != "":
			items, err = app.items.Search(ctx, c.Search, dateRange)
		case dateRange != nil:
			items, err = app.items.QueryByDateRange(ctx, dateRange.Start, dateRange.End)
		default:
			return errors.New("give --query-date, --query-from/--query-to, --query-source or --search")
		}
		if err != nil {
			return err
		}

		printItems(items)
		return nil
	})
}

func printItems(items []feed.Item) {
	fmt.Printf("Found %d items\n", len(items))
	for _, item := range items {
		fmt.Printf("\n[%s] %s | %s\n", daterange.FormatShort(item.Published), item.SourceName, item.Title)
		if item.Summary != nil && *item.Summary != "" {
			fmt.Printf("  %s\n", *item.Summary)
		}
		fmt.Printf("  %s\n", item.Link)
	}
}

type StatsCommand struct{}

func (c *StatsCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		stats, err := app.items.Statistics(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Total items: %d\n", stats.Total)
		if stats.Earliest != nil && stats.Latest != nil {
			fmt.Printf("Fetch dates: %s to %s\n", *stats.Earliest, *stats.Latest)
		}
		fmt.Println("\nBy source:")
		for _, s := range stats.SourceStats {
			fmt.Printf("  %-30s %d\n", s.SourceName, s.Count)
		}
		fmt.Println("\nRecent dates:")
		for _, d := range stats.RecentDates {
			fmt.Printf("  %s  %d\n", d.Date, d.Count)
		}
		return nil
	})
}

type RetentionCommand struct {
	DaysToKeep int `long:"days-to-keep" default:"90" description:"Keep news fetched within this many days"`
}

func (c *RetentionCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		deleted, err := app.items.DeleteOlderThan(ctx, c.DaysToKeep)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d items older than %d days\n", deleted, c.DaysToKeep)
		return nil
	})
}

type ClearAllCommand struct{}

func (c *ClearAllCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		deleted, err := app.items.ClearAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d items\n", deleted)
		return nil
	})
}

type ScheduleCommand struct {
	Sources string `long:"sources" default:"rss" description:"Comma-separated source types"`
}

func (c *ScheduleCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		scheduler, err := startScheduler(ctx, app, WindowFlags{Sources: c.Sources}.sourceTypes())
		if err != nil {
			return err
		}
		defer scheduler.Stop()

		<-ctx.Done()
		slog.Info("Shutting down scheduler")
		return nil
	})
}

func startScheduler(ctx context.Context, app *application, sourceTypes []string) (*tasks.Scheduler, error) {
	scheduler := tasks.NewScheduler(app.pipeline(ctx, true, false), app.resolver, sourceTypes, app.cfg.Location())
	if err := scheduler.Start(app.cfg.Schedule); err != nil {
		return nil, err
	}
	return scheduler, nil
}

type ServeCommand struct {
	WithScheduler bool `long:"with-scheduler" description:"Also run the pipeline on the configured schedule"`
}

func (c *ServeCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		if c.WithScheduler {
			scheduler, err := startScheduler(ctx, app, []string{feed.SourceTypeRSS})
			if err != nil {
				return err
			}
			defer scheduler.Stop()
		}

		handler := api.NewHandler(app.items, app.runs, app.registry, app.configCache, app.resolver, app.cfg.Version)
		httpServer := &http.Server{
			Addr:         ":" + app.cfg.Port,
			Handler:      api.NewServer(handler, app.cfg.APIAccessKey),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		serverErr := make(chan error, 1)
		go func() {
			slog.Info("HTTP server started", "port", app.cfg.Port, "version", app.cfg.Version)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()

		select {
		case <-ctx.Done():
			slog.Info("Shutting down HTTP server")
		case err := <-serverErr:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		slog.Info("HTTP server stopped")
		return nil
	})
}

type RunsCommand struct {
	Limit int `long:"limit" default:"20" description:"Number of runs to show"`
}

func (c *RunsCommand) Execute(args []string) error {
	return runWith(func(ctx context.Context, app *application) error {
		runs, err := app.runs.RecentRuns(ctx, c.Limit)
		if err != nil {
			return err
		}

		for _, run := range runs {
			fmt.Printf("%s  %s  %-10s  %s to %s  fetched=%d saved=%d summarized=%d rendered=%d notified=%t\n",
				run.StartedAt.In(app.cfg.Location()).Format(database.TimestampLayout),
				run.ID,
				run.Outcome,
				daterange.FormatDateOnly(run.WindowStart),
				daterange.FormatDateOnly(run.WindowEnd),
				run.Fetched, run.Saved, run.Summarized, run.Rendered, run.Notified)
			for _, e := range run.Errors {
				fmt.Printf("    %s\n", e)
			}
		}
		return nil
	})
}
