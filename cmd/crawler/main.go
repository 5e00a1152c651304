package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cerrors "cloudeng.io/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/delivery/http/handler"
	"github.com/user/forum-crawler/internal/delivery/http/router"
	"github.com/user/forum-crawler/internal/delivery/scheduler"
	"github.com/user/forum-crawler/internal/entity"
	"github.com/user/forum-crawler/internal/usecase"
	"github.com/user/forum-crawler/pkg/config"
	"github.com/user/forum-crawler/pkg/logger"
	"github.com/user/forum-crawler/pkg/metrics"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	command   string
	mode      string
	overwrite bool
	fid       string
	postID    string
	env       string
	output    string
	scheduled bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("crawler", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: crawler [flags] [crawl|serve]")
		flags.PrintDefaults()
	}
	var opts options
	flags.StringVar(&opts.mode, "mode", "db", "target mode: db (paginated crawl into the store) or json (single-batch export)")
	flags.Int("max-pages", 2, "maximum listing pages per section")
	flags.BoolVar(&opts.overwrite, "overwrite", false, "refresh title, content and images of stored posts")
	flags.StringVar(&opts.fid, "fid", "", "crawl only this section id")
	flags.StringVar(&opts.postID, "post-id", "", "fetch a single post and print it without storing")
	flags.StringVar(&opts.env, "env", "", "load env.<name> before .env (e.g. dev, prd)")
	flags.StringVar(&opts.output, "output", "", "json export path (defaults to EXPORT_PATH)")
	flags.BoolVar(&opts.scheduled, "scheduled", false, "record the run as scheduled")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	switch rest := flags.Args(); len(rest) {
	case 0:
		opts.command = "crawl"
	case 1:
		opts.command = rest[0]
	default:
		flags.Usage()
		return exitUsage
	}
	if opts.command != "crawl" && opts.command != "serve" {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", opts.command)
		return exitUsage
	}
	if opts.mode != "db" && opts.mode != "json" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", opts.mode)
		return exitUsage
	}

	cfg, err := config.Load(opts.env, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		return exitError
	}
	if opts.fid != "" {
		cfg.SectionIDs = []string{opts.fid}
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		return exitError
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sc, err := newScraper(cfg, m, log)
	if err != nil {
		log.Error("failed to build scraper", zap.Error(err))
		return exitError
	}

	switch {
	case opts.postID != "":
		return inspect(ctx, sc, opts.postID, log)
	case opts.command == "serve":
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return serve(ctx, stop, cfg, sc, reg, m, log)
	case opts.mode == "json":
		return export(ctx, cfg, sc, opts.output, log)
	default:
		code := crawl(ctx, cfg, sc, opts, m, log)
		pushMetrics(cfg, reg, log)
		return code
	}
}

func inspect(ctx context.Context, sc *scraper, postID string, log *zap.Logger) int {
	exporter := usecase.NewExporter(sc.urls, sc.fetcher, sc.extractor, sc.enricher, log)
	post, err := exporter.InspectPost(ctx, postID)
	if err != nil {
		log.Error("post inspection failed", zap.String("post_id", postID), zap.Error(err))
		return exitError
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(post); err != nil {
		log.Error("failed to print post", zap.Error(err))
		return exitError
	}
	return exitOK
}

func export(ctx context.Context, cfg *config.Config, sc *scraper, output string, log *zap.Logger) int {
	if output == "" {
		output = cfg.ExportPath
	}
	exporter := usecase.NewExporter(sc.urls, sc.fetcher, sc.extractor, sc.enricher, log)
	if _, err := exporter.ExportFile(ctx, cfg.SectionIDs, output); err != nil {
		log.Error("export failed", zap.String("path", output), zap.Error(err))
		return exitError
	}
	return exitOK
}

func crawl(ctx context.Context, cfg *config.Config, sc *scraper, opts options, m *metrics.Metrics, log *zap.Logger) int {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		return exitError
	}
	lock, _, closeLock, err := runLock(ctx, cfg, log)
	if err != nil {
		_ = st.close()
		log.Error("failed to set up run lock", zap.Error(err))
		return exitError
	}
	defer closeAll(log, st.close, closeLock)

	execType := entity.ExecutionManual
	if opts.scheduled {
		execType = entity.ExecutionScheduled
	}
	runner := newRunner(cfg, sc, st, lock, m, log)
	stats, err := runner.Run(ctx, usecase.RunRequest{
		CrawlOptions: usecase.CrawlOptions{
			SectionIDs: cfg.SectionIDs,
			MaxPages:   cfg.MaxPages,
			Delay:      cfg.Delay(),
			Overwrite:  opts.overwrite,
		},
		Type:    execType,
		Command: strings.Join(os.Args, " "),
		Timeout: cfg.RunTimeout,
	})
	if err != nil {
		return exitError
	}
	log.Info("crawl complete",
		zap.Int("persisted", stats.Persisted),
		zap.Int("pages", stats.Pages),
		zap.Strings("failed_sections", stats.FailedSections),
	)
	return exitOK
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *config.Config, sc *scraper, reg *prometheus.Registry, m *metrics.Metrics, log *zap.Logger) int {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		return exitError
	}
	lock, checks, closeLock, err := runLock(ctx, cfg, log)
	if err != nil {
		_ = st.close()
		log.Error("failed to set up run lock", zap.Error(err))
		return exitError
	}
	defer closeAll(log, st.close, closeLock)
	checks["store"] = st.posts

	runner := newRunner(cfg, sc, st, lock, m, log)
	defaults := usecase.RunRequest{
		CrawlOptions: usecase.CrawlOptions{
			SectionIDs: cfg.SectionIDs,
			MaxPages:   cfg.MaxPages,
			Delay:      cfg.Delay(),
		},
		Timeout: cfg.RunTimeout,
	}

	sched, err := scheduler.New(cfg.CrawlSchedule, runner, defaults, log)
	if err != nil {
		log.Error("failed to set up scheduler", zap.Error(err))
		return exitError
	}

	// API-started runs outlive their request but end with the server.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()
	h := handler.NewHandler(runCtx, runner, st.logs, checks, handler.CrawlDefaults{
		SectionIDs: cfg.SectionIDs,
		MaxPages:   cfg.MaxPages,
		Delay:      cfg.Delay(),
		Timeout:    cfg.RunTimeout,
	}, log)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	sched.Start()
	log.Info("server started", zap.String("port", cfg.ServerPort), zap.String("schedule", cfg.CrawlSchedule))

	code := exitOK
	select {
	case <-ctx.Done():
		// Restore default signal handling so a second signal kills the process.
		stop()
		log.Info("shutting down server...")
	case err := <-serverErr:
		log.Error("could not start server", zap.Error(err))
		code = exitError
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	errs := &cerrors.M{}
	errs.Append(server.Shutdown(shutdownCtx))
	cancelRuns()
	errs.Append(sched.Stop(shutdownCtx))
	errs.Append(runner.Wait(shutdownCtx))
	if err := errs.Err(); err != nil {
		log.Error("unclean shutdown", zap.Error(err))
		code = exitError
	}
	log.Info("server exiting")
	return code
}

func pushMetrics(cfg *config.Config, reg *prometheus.Registry, log *zap.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	if err := push.New(cfg.PushgatewayURL, "forum_crawler").Gatherer(reg).Push(); err != nil {
		log.Warn("failed to push metrics", zap.String("url", cfg.PushgatewayURL), zap.Error(err))
	}
}

func closeAll(log *zap.Logger, closers ...func() error) {
	errs := &cerrors.M{}
	for _, c := range closers {
		errs.Append(c())
	}
	if err := errs.Err(); err != nil {
		log.Warn("failed to close resources", zap.Error(err))
	}
}
