package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linartova/data-quality/internal/api"
	"github.com/linartova/data-quality/internal/config"
	"github.com/linartova/data-quality/internal/download"
	"github.com/linartova/data-quality/internal/page"
	"github.com/linartova/data-quality/internal/plot"
	"github.com/linartova/data-quality/internal/poller"
	"github.com/linartova/data-quality/internal/search"
	"github.com/linartova/data-quality/internal/status"
	"github.com/linartova/data-quality/internal/storage"
	"github.com/linartova/data-quality/web"
)

const downloadConcurrency = 2

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)

	logConfig(logger, cfg)

	defs, err := poller.LoadVariants(cfg.VariantsFile)
	if err != nil {
		logger.Error("failed to load variants", "err", err)
		os.Exit(2)
	}
	variants, err := poller.Resolve(cfg.Variants, defs)
	if err != nil {
		logger.Error("invalid VARIANTS", "err", err)
		os.Exit(2)
	}
	for _, v := range variants {
		for _, name := range v.Downloads {
			if _, err := download.Endpoint(name); err != nil {
				logger.Error("invalid variant download", "variant", v.Name, "err", err)
				os.Exit(2)
			}
		}
	}

	statusClient, err := status.NewClient(cfg.UpstreamURL, cfg.RequestTimeout)
	if err != nil {
		logger.Error("failed to create status client", "err", err)
		os.Exit(2)
	}
	downloads, err := download.NewClient(cfg.UpstreamURL, logger)
	if err != nil {
		logger.Error("failed to create download client", "err", err)
		os.Exit(2)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open poll history", "err", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting dq-dashboard", "mode", cfg.Mode, "upstream", cfg.UpstreamURL)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		status:    statusClient,
		downloads: downloads,
		store:     store,
	}
	if err := a.run(ctx, variants); err != nil {
		logger.Error("dq-dashboard failed", "err", err)
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}
	logger.Info("shut down")
}

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	status    *status.Client
	downloads *download.Client
	store     storage.Store
}

func (a *app) run(ctx context.Context, variants []poller.Variant) error {
	metrics := poller.NewMetrics()

	pollers := make([]*poller.Poller, 0, len(variants))
	for _, v := range variants {
		doc, err := web.DashboardShell(v.Title, v.Downloads)
		if err != nil {
			return fmt.Errorf("dashboard page: %w", err)
		}
		p, err := poller.New(v, a.status, doc, poller.Options{
			Interval: a.cfg.PollInterval,
			Renderer: a.renderer(v),
			Sanitize: a.cfg.SanitizeMarkup,
			Store:    a.store,
			Metrics:  metrics,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		pollers = append(pollers, p)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pollers {
		g.Go(func() error { return a.watch(gctx, p) })
	}

	if a.cfg.Mode == config.ModeServe {
		handler, err := a.viewer(pollers)
		if err != nil {
			return err
		}
		g.Go(func() error { return a.serve(gctx, handler) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		a.logger.Info("interrupted")
		return nil
	}

	if a.cfg.Mode == config.ModeWatch && a.cfg.DownloadDir != "" {
		return a.fetchDownloads(ctx, variants)
	}
	return nil
}

// watch runs one poller to completion and writes its page.
func (a *app) watch(ctx context.Context, p *poller.Poller) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close()

	if err := p.Wait(ctx); err != nil {
		if errors.Is(err, poller.ErrStopped) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	path := filepath.Join(a.cfg.OutputDir, p.Variant().Name+".html")
	if err := p.WritePage(path); err != nil {
		return fmt.Errorf("variant %s: %w", p.Variant().Name, err)
	}
	a.logger.Info("page written", "variant", p.Variant().Name, "path", path)
	return nil
}

func (a *app) renderer(v poller.Variant) plot.Renderer {
	if a.cfg.SnapshotDir == "" {
		return plot.PlotlyRenderer{}
	}
	return plot.Chain{
		plot.PlotlyRenderer{},
		plot.SnapshotRenderer{Dir: filepath.Join(a.cfg.SnapshotDir, v.Name), Logger: a.logger},
	}
}

func (a *app) viewer(pollers []*poller.Poller) (http.Handler, error) {
	docs, err := a.documentation()
	if err != nil {
		return nil, err
	}

	dashboards := make([]api.Dashboard, 0, len(pollers))
	for _, p := range pollers {
		dashboards = append(dashboards, p)
	}
	srv, err := api.NewServer(api.Options{
		Dashboards: dashboards,
		Store:      a.store,
		Docs:       docs,
		Downloads:  a.downloads,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	return srv.Routes()
}

func (a *app) documentation() (*page.Document, error) {
	docs, err := web.DocumentationShell()
	if err != nil {
		return nil, fmt.Errorf("documentation page: %w", err)
	}
	if a.cfg.DocsDir == "" {
		return docs, nil
	}
	n, err := search.LoadSections(docs, os.DirFS(a.cfg.DocsDir), a.cfg.DocsGlob, a.logger)
	if err != nil {
		return nil, fmt.Errorf("load documentation: %w", err)
	}
	a.logger.Info("documentation loaded", "dir", a.cfg.DocsDir, "sections", n)
	return docs, nil
}

func (a *app) serve(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.logger.Info("viewer listening", "listen", a.cfg.ListenAddr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down viewer")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// fetchDownloads saves the archives linked from the finished pages.
func (a *app) fetchDownloads(ctx context.Context, variants []poller.Variant) error {
	seen := make(map[string]bool)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for _, v := range variants {
		for _, name := range v.Downloads {
			if seen[name] {
				continue
			}
			seen[name] = true
			g.Go(func() error {
				_, err := a.downloads.Fetch(gctx, name, a.cfg.DownloadDir)
				return err
			})
		}
	}
	return g.Wait()
}

func openStore(cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		s, err := storage.NewSQLiteStore(cfg.StoragePath, cfg.StorageMaxRows, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMemory:
		return storage.NewMemoryStore(cfg.StorageMaxRows), nil
	default:
		return nil, nil
	}
}

func newLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "info":
		lvl.Set(slog.LevelInfo)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration",
		"mode", string(cfg.Mode),
		"listen_addr", cfg.ListenAddr,
		"upstream_url", cfg.UpstreamURL,
		"variants", strings.Join(cfg.Variants, ","),
		"variants_file", cfg.VariantsFile,
		"poll_interval", cfg.PollInterval,
		"request_timeout", cfg.RequestTimeout,
		"sanitize_markup", cfg.SanitizeMarkup,
		"output_dir", cfg.OutputDir,
		"snapshot_dir", cfg.SnapshotDir,
		"download_dir", cfg.DownloadDir,
		"docs_dir", cfg.DocsDir,
		"docs_glob", cfg.DocsGlob,
		"storage", string(cfg.Storage),
		"storage_path", cfg.StoragePath,
		"storage_max_rows", cfg.StorageMaxRows,
		"log_level", cfg.LogLevel,
	)
}
