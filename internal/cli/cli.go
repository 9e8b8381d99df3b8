package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/config"
	"github.com/barcelona-calendar/barca-ics/internal/filter"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/pipeline"
	"github.com/barcelona-calendar/barca-ics/internal/publish"
	"github.com/barcelona-calendar/barca-ics/internal/schedule"
	"github.com/barcelona-calendar/barca-ics/internal/scraper"
	"github.com/barcelona-calendar/barca-ics/internal/server"
	"github.com/barcelona-calendar/barca-ics/internal/storage"
)

const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitFetchFailed = 2
)

// exitCodeError carries a specific process exit code.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// ExitCode maps an error returned by the root command to a process exit
// code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var coded *exitCodeError
	if errors.As(err, &coded) {
		return coded.code
	}
	return ExitError
}

// app holds global flag values and the loaded configuration.
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "barca-ics",
		Short: "Publish FC Barcelona fixtures as an iCalendar feed",
		Long: `barca-ics reads the FC Barcelona fixtures page, keeps the league and
Champions League matches and publishes them as a subscribable .ics feed.

The feed is rebuilt at most once a day, after the morning cutoff, unless
forced. Settings come from an optional YAML file and BARCA_* environment
variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context(), a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger.SetDefault(cfg.Logger(a.verbose))
			logger.Debug("Configuration loaded", logger.Fields{
				"config":  a.configPath,
				"source":  cfg.Source.URL,
				"storage": cfg.Storage.Driver,
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Enable verbose logging and output")

	cmd.AddCommand(
		newGenerateCmd(a),
		newServeCmd(a),
		newInspectCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

// Execute runs the CLI and exits with the matching code
func Execute() {
	err := NewRootCmd().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	_ = logger.Default().Sync()
	os.Exit(ExitCode(err))
}

func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(s))
	if format != FormatText && format != FormatJSON {
		return "", errors.Newf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}

// components is everything a refresh needs, built from the config.
type components struct {
	service *pipeline.Service
	store   storage.Backend
}

func (c *components) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	extractor, err := scraper.NewExtractor(cfg.Rules, cfg.Competitions)
	if err != nil {
		return nil, errors.Wrap(err, "building extractor")
	}
	opts, err := cfg.SynthesizerOptions()
	if err != nil {
		return nil, err
	}
	return pipeline.New(
		scraper.New(cfg.Source, extractor),
		calendar.NewSynthesizer(opts),
		calendar.NewAssembler(cfg.Feed),
	), nil
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	p, err := buildPipeline(cfg)
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	return &components{
		service: pipeline.NewService(p, store, policy, cfg.Feed),
		store:   store,
	}, nil
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		force  bool
		output string
		dryRun bool
		strict bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Rebuild the feed and write it to a file",
		Long: `Rebuild the feed if the cache is stale (or always with --force) and write
it to --output. When the page yields no fixtures the existing output is left
untouched. With --strict a failed fetch exits with code 2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output") {
				output = a.cfg.Output
			}
			out := cmd.OutOrStdout()

			if dryRun {
				return runDryRun(cmd.Context(), a, out, f)
			}
			return runGenerate(cmd.Context(), a, out, f, generateOptions{
				force:  force,
				output: output,
				strict: strict,
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Refresh even if the cached feed is fresh")
	cmd.Flags().StringVarP(&output, "output", "o", "barcelona.ics", "Output file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the feed instead of writing it; the cache is not touched")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with code 2 when the fixtures page cannot be fetched")
	cmd.Flags().StringVar(&format, "format", "text", "Summary format: text or json")
	return cmd
}

type generateOptions struct {
	force  bool
	output string
	strict bool
}

func runGenerate(ctx context.Context, a *app, out io.Writer, format OutputFormat, opts generateOptions) error {
	c, err := buildComponents(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	outcome, err := c.service.Refresh(ctx, opts.force)
	if err != nil {
		return errors.Wrap(err, "refreshing feed")
	}

	summary := &RunSummary{
		CheckedAt: time.Now().UTC(),
		Ran:       outcome.Ran,
		Reason:    string(outcome.Reason),
		Output:    opts.output,
		Diff:      outcome.Diff,
	}
	pub := publish.NewFilePublisher(opts.output)

	var fetchErr error
	if !outcome.Ran {
		// Fresh cache: make sure the output reflects it.
		cached, err := c.service.CachedFeed(ctx)
		if err != nil {
			return errors.Wrap(err, "reading cached feed")
		}
		if err := pub.Publish(ctx, cached); err != nil {
			return err
		}
		summary.Published = true
	} else {
		res := outcome.Result
		fillSummary(summary, res)
		switch res.Status {
		case pipeline.StatusRefreshed:
			if err := pub.Publish(ctx, res.Feed); err != nil {
				return err
			}
			summary.Published = true
		case pipeline.StatusFetchFailed:
			fetchErr = res.FetchErr
		}
	}

	if err := WriteOutput(out, summary, format, a.verbose); err != nil {
		return errors.Wrap(err, "writing output")
	}

	if fetchErr != nil && opts.strict {
		return &exitCodeError{code: ExitFetchFailed, err: fetchErr}
	}
	return nil
}

// runDryRun runs the pipeline without touching the cache or the output file.
func runDryRun(ctx context.Context, a *app, out io.Writer, format OutputFormat) error {
	p, err := buildPipeline(a.cfg)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	summary := &RunSummary{CheckedAt: time.Now().UTC(), Ran: true, Reason: "dry run"}
	fillSummary(summary, res)

	if res.Status == pipeline.StatusRefreshed && format == FormatText {
		if err := publish.NewDryRunPublisher(out).Publish(ctx, res.Feed); err != nil {
			return err
		}
	}
	return WriteOutput(out, summary, format, a.verbose)
}

func fillSummary(s *RunSummary, res *pipeline.Result) {
	s.Status = string(res.Status)
	s.Matches = len(res.Matches)
	s.Skipped = res.Skipped
	s.Events = res.Events
	s.EventCount = len(res.Events)
	s.Elapsed = res.Elapsed.Round(time.Millisecond).String()
	if res.FetchErr != nil {
		s.Error = res.FetchErr.Error()
	}
}

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the feed over HTTP and refresh it on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}

			c, err := buildComponents(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			sched, err := schedule.NewScheduler(cfg.Schedule.Cron, loc, func(ctx context.Context) {
				if _, err := c.service.Refresh(ctx, false); err != nil {
					logger.Error("Scheduled refresh failed", nil, err)
				}
			})
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Listen:          cfg.Server.Listen,
				FeedPath:        cfg.Server.FeedPath,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, c.service, sched)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	var (
		sortBy    string
		format    string
		dateRange string
	)

	cmd := &cobra.Command{
		Use:   "inspect <file.ics>",
		Short: "List the events of a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			order, ok := parseSortOrder(sortBy)
			if !ok {
				return errors.Newf("invalid sort: %s (must be 'date', 'title' or 'competition')", sortBy)
			}

			file, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "opening feed")
			}
			defer file.Close()

			events, err := calendar.Parse(file)
			if err != nil {
				return err
			}
			if dateRange != "" {
				events, err = eventsInRange(events, dateRange, a.cfg)
				if err != nil {
					return err
				}
			}
			sortEvents(events, order)

			return WriteEventList(cmd.OutOrStdout(), &EventList{
				File:       args[0],
				Events:     events,
				EventCount: len(events),
			}, f, a.verbose)
		},
	}

	cmd.Flags().StringVar(&sortBy, "sort", "date", "Sort by: date, title or competition")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&dateRange, "range", "", "Only list events in a date range, e.g. 'Sep 1-15', 'Sep 20 - Oct 5' or 'Sep'")
	return cmd
}

// eventsInRange keeps the events starting inside the range, read on the
// feed's calendar.
func eventsInRange(events []calendar.Event, input string, cfg *config.Config) ([]calendar.Event, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	r, err := filter.ParseDateRange(input, time.Now().In(loc))
	if err != nil {
		return nil, err
	}
	kept := events[:0]
	for _, e := range events {
		if r.Contains(e.Start) {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

func newConfigCmd(a *app) *cobra.Command {
	var write string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if write != "" {
				if err := config.Save(write, a.cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", write)
				return nil
			}
			data, err := config.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&write, "write", "", "Write the configuration to this path instead of printing it")
	return cmd
}
