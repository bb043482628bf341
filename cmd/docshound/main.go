package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/fetch"
	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/metrics"
	"github.com/docs-hound/docshound/internal/output"
	"github.com/docs-hound/docshound/internal/pipeline"
	"github.com/docs-hound/docshound/internal/progress"
	"github.com/docs-hound/docshound/internal/registry"
	"github.com/docs-hound/docshound/internal/shutdown"
	"github.com/docs-hound/docshound/internal/sitemap"
	"github.com/docs-hound/docshound/pkg/crawler"
)

var (
	version = "1.0.0"

	// Global flags
	configFile   string
	databasePath string
	verbose      bool
	debug        bool
	showProgress bool
	outputFormat string
	outputFile   string
	prettyJSON   bool
	logFile      string
	metricsFile  string

	// Discover flags
	useSitemaps bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docshound",
		Short: "DocsHound - documentation indexer",
		Long: `DocsHound - discovers the pages of documentation sites, extracts their
article content and keeps it searchable.

Register a site with "add", map it with "discover", store its pages with
"index" and query them with "search".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "", "Database file (default: XDG data dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().BoolVar(&showProgress, "progress", false, "Show a progress line while crawling")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "", "Output format (text, json, markdown)")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&prettyJSON, "pretty", false, "Indent JSON output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		newAddCmd(),
		newSitesCmd(),
		newSiteCmd(),
		newFiltersCmd(),
		newDiscoverCmd(),
		newIndexCmd(),
		newSearchCmd(),
		newRemoveCmd(),
		newShowCmd(),
		newCrawlCmd(),
		newServeCmd(),
	)

	return rootCmd
}

// app holds what a command needs. Cleanup registered on the shutdown
// handler runs when the command returns.
type app struct {
	config   *fileConfig
	log      *logger.Logger
	shutdown *shutdown.Handler
	out      output.Writer
	metrics  *metrics.Collector

	db       *bolt.DB
	registry *registry.Registry
	store    *docstore.BoltStore
	pipeline *pipeline.Pipeline
}

// newApp loads configuration and sets up logging, signals and output.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadFileConfig(configFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)

	levelName := cfg.LogLevel
	switch {
	case debug:
		levelName = "debug"
	case verbose:
		levelName = "info"
	case levelName == "":
		levelName = "warn"
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logCfg := logger.Config{Level: level, Pretty: true, Output: cmd.ErrOrStderr()}
	var rotating io.Closer
	if cfg.LogFile.Path != "" {
		w := cfg.LogFile.writer()
		logCfg.File, rotating = w, w
	}
	log := logger.New(logCfg)

	a := &app{
		config: cfg,
		log:    log,
		shutdown: shutdown.New(cmd.Context(), shutdown.Config{
			Timeout: 10 * time.Second,
			Logger:  log,
		}),
		metrics: metrics.New(),
	}

	// Callbacks run in reverse: the log file closes last.
	if rotating != nil {
		a.shutdown.RegisterCloser("log file", rotating)
	}
	if cfg.MetricsFile != "" {
		a.shutdown.Register("metrics file", func(context.Context) error {
			return a.metrics.WriteTextfile(cfg.MetricsFile)
		})
	}

	out, err := a.openOutput(cmd)
	if err != nil {
		a.close()
		return nil, err
	}
	a.out = out
	a.shutdown.RegisterCloser("output", out)

	return a, nil
}

// applyFlags lets explicitly set flags override the file.
func applyFlags(cmd *cobra.Command, cfg *fileConfig) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = databasePath
	}
	if flags.Changed("format") {
		cfg.Output.Format = outputFormat
	}
	if flags.Changed("pretty") {
		cfg.Output.Pretty = prettyJSON
	}
	if flags.Changed("log-file") {
		cfg.LogFile.Path = logFile
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
}

func (a *app) openOutput(cmd *cobra.Command) (output.Writer, error) {
	// Hide stdout's Close so closing the writer leaves it open.
	var w io.Writer = struct{ io.Writer }{cmd.OutOrStdout()}
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		w = f
	}
	return output.NewWriter(w, a.config.Output)
}

// openStore opens the database and builds the registry, the document
// store and the pipeline on it.
func (a *app) openStore() error {
	if err := os.MkdirAll(filepath.Dir(a.config.Database), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bolt.Open(a.config.Database, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", a.config.Database, err)
	}
	a.db = db
	a.shutdown.RegisterCloser("database", db)

	a.registry, err = registry.OpenBolt(db, a.log)
	if err != nil {
		return err
	}
	a.store, err = docstore.OpenBoltStore(db, a.log)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		Registry:     a.registry,
		Store:        a.store,
		Logger:       a.log,
		Metrics:      a.metrics,
		CrawlOptions: a.requestOptions(),
	}
	if useSitemaps {
		client := fetch.NewClient(fetch.Config{
			Timeout:     a.config.Crawl.Timeout,
			UserAgent:   a.config.Crawl.UserAgent,
			MaxBodySize: a.config.Crawl.MaxBodySize,
			Logger:      a.log,
			Metrics:     a.metrics,
		})
		a.shutdown.Register("sitemap client", func(context.Context) error {
			client.Close()
			return nil
		})
		cfg.Sitemaps = sitemap.New(client, 0, a.log)
	}

	a.pipeline, err = pipeline.New(cfg)
	return err
}

// requestOptions carries the configured request settings into every crawl.
func (a *app) requestOptions() []crawler.Option {
	c := a.config.Crawl
	opts := []crawler.Option{
		crawler.WithTimeout(c.Timeout),
		crawler.WithUserAgent(c.UserAgent),
		crawler.WithMaxBodySize(c.MaxBodySize),
	}
	if showProgress {
		opts = append(opts, crawler.WithProgress(progress.New(os.Stderr)))
	}
	return opts
}

func (a *app) ctx() context.Context {
	return a.shutdown.Context()
}

func (a *app) close() error {
	return a.shutdown.Close()
}

// withApp runs fn with a ready app and releases it afterwards.
func withApp(cmd *cobra.Command, needStore bool, fn func(a *app) error) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if needStore {
		if err := a.openStore(); err != nil {
			return err
		}
	}
	if err := fn(a); err != nil {
		return err
	}
	return a.out.Flush()
}
