package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/tag-weaver/internal/catalog"
	"github.com/alvmarrod/tag-weaver/internal/config"
	"github.com/alvmarrod/tag-weaver/internal/controller"
	"github.com/alvmarrod/tag-weaver/internal/crawler"
	"github.com/alvmarrod/tag-weaver/internal/memory"
	"github.com/alvmarrod/tag-weaver/internal/metrics"
	"github.com/alvmarrod/tag-weaver/internal/propagate"
	"github.com/alvmarrod/tag-weaver/internal/storage"
	"github.com/alvmarrod/tag-weaver/internal/version"
)

// progressInterval is how often crawl statistics are logged
const progressInterval = 10 * time.Second

// NewCrawlCmd creates the crawl command
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [page-size]",
		Short: "Crawl the catalog until interrupted",
		Long: `Crawl fetches catalog pages of up to page-size entries (clamped to 1..100),
resuming from the saved cursor. SIGINT or SIGTERM stops the crawl after the
current page and saves the cursor; a second signal exits immediately.

Exit status is 0 after a clean shutdown, 1 when the crawl failed and 2 when
the configuration or setup was invalid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().IntP("page-size", "n", 0, "Entries per catalog page (overrides page_size)")
	cmd.Flags().Bool("ephemeral", false, "Keep records in memory and never save the checkpoint")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return setupError("failed to load config: %w", err)
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return setupError("invalid log_level: %w", err)
		}
		logrus.SetLevel(level)
	}

	pageSize := cfg.PageSize
	if cmd.Flags().Changed("page-size") {
		pageSize, _ = cmd.Flags().GetInt("page-size")
	}
	if len(args) == 1 {
		if pageSize, err = strconv.Atoi(args[0]); err != nil {
			return setupError("invalid page size %q", args[0])
		}
	}
	if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
		cfg.Ephemeral = true
	}

	runID := uuid.NewString()
	logger := logrus.WithField("run_id", runID)
	pageSize = catalog.ClampPageSize(pageSize, logger)

	logger.Infof("Tag Weaver v%s starting...", version.Version)
	logger.Infof("Configuration loaded: catalog=%s, page_size=%d, store=%s, ephemeral=%t",
		cfg.CatalogURL, pageSize, cfg.Store, cfg.Ephemeral)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// Restore default signal handling so a second signal exits immediately
		<-ctx.Done()
		stop()
	}()

	store, flusher, err := openStore(ctx, cfg, logger)
	if err != nil {
		return setupError("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("Failed to close storage: %v", err)
		}
	}()

	tracker := metrics.NewTracker(runID)
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, tracker, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := catalog.NewClient(catalog.Config{
		BaseURL:        cfg.CatalogURL,
		UserAgent:      cfg.UserAgent,
		RequestTimeout: time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		return setupError("failed to create catalog client: %w", err)
	}

	state := &storage.CrawlState{}
	engine, err := propagate.NewEngine(propagate.Config{
		Store:           store,
		State:           state,
		TraversalBudget: cfg.TraversalBudget,
		Observer:        tracker,
		Logger:          logger,
	})
	if err != nil {
		return setupError("failed to create propagation engine: %w", err)
	}

	driver, err := crawler.New(crawler.Config{
		Catalog:  client,
		Store:    store,
		Engine:   engine,
		State:    state,
		PageSize: pageSize,
		Delay:    time.Duration(cfg.RequestDelayMs) * time.Millisecond,
		Observer: tracker,
		Logger:   logger,
	})
	if err != nil {
		return setupError("failed to create crawler: %w", err)
	}

	ctlConfig := controller.Config{
		Driver:      driver,
		State:       state,
		StatePath:   cfg.StatePath,
		MetricsPath: cfg.MetricsPath,
		Ephemeral:   cfg.Ephemeral,
		Tracker:     tracker,
		Logger:      logger,
	}
	if flusher != nil {
		ctlConfig.Flusher = flusher
	}
	ctl, err := controller.New(ctlConfig)
	if err != nil {
		return setupError("failed to create controller: %w", err)
	}

	stopProgress := make(chan struct{})
	defer close(stopProgress)
	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logger.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	if err := ctl.Run(ctx); err != nil {
		return fatalError(err)
	}

	logger.Info("Graceful shutdown complete. Goodbye!")
	return nil
}

// openStore returns the configured record store. With write_back the store is
// fronted by an in-memory cache that is also returned for flushing.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (storage.RecordStore, *memory.Graph, error) {
	if cfg.Ephemeral || cfg.Store == "memory" {
		logger.Info("Keeping records in memory only")
		return memory.NewGraph(nil, logger), nil, nil
	}

	backing, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Store,
		DBPath:      cfg.DBPath,
		RecordsDir:  cfg.RecordsDir,
		RedisAddr:   cfg.RedisAddr,
		PostgresURL: cfg.PostgresURL,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("Record store initialized: %s", cfg.Store)

	if !cfg.WriteBack {
		return backing, nil, nil
	}
	graph := memory.NewGraph(backing, logger)
	return graph, graph, nil
}
