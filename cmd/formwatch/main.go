// Command formwatch keeps a UI container mounted next to the comment form of
// single-page product listings.
//
// Usage:
//
//	formwatch -config formwatch.yaml                # watch pages from YAML config
//	formwatch -url https://example.com/posts/x      # quick single-page watch (stdout sink)
//	formwatch -replay page.html -url https://...    # run detection on a saved page and exit
//	formwatch -config formwatch.yaml -http :8080 -db formwatch.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/formwatch"
	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/idgen"
	"github.com/hazyhaar/formwatch/internal/memdom"
	"github.com/hazyhaar/formwatch/shield"
)

type options struct {
	configPath string
	url        string
	replay     string
	httpAddr   string
	dbPath     string
	env        string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to formwatch.yaml config file")
	flag.StringVar(&opts.url, "url", "", "watch a single URL (stdout sink); with -replay, the page URL")
	flag.StringVar(&opts.replay, "replay", "", "run detection on a saved HTML file and exit")
	flag.StringVar(&opts.httpAddr, "http", "", "serve the status API and MCP on this address (e.g. :8080)")
	flag.StringVar(&opts.dbPath, "db", "", "record events in this SQLite database")
	flag.StringVar(&opts.env, "env", "", "environment: production | development (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("formwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	switch {
	case opts.replay != "":
		return runReplay(ctx, logger, opts)
	case opts.configPath != "" || opts.url != "":
		return runWatch(ctx, logger, opts)
	}
	fmt.Fprintln(os.Stderr, "usage: formwatch -config <file> | -url <url> | -replay <file.html> [-url <url>]")
	os.Exit(2)
	return nil
}

func loadConfig(opts options) (*formwatch.Config, error) {
	cfg := &formwatch.Config{}
	if opts.configPath != "" {
		var err error
		if cfg, err = formwatch.LoadConfig(opts.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if opts.url != "" {
		cfg.Pages = append(cfg.Pages, formwatch.PageConfig{ID: idgen.New(), URL: opts.url})
	}
	if opts.env != "" {
		cfg.Env = opts.env
	}
	if opts.dbPath != "" {
		cfg.Store.Path = opts.dbPath
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Addr = opts.httpAddr
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func runWatch(ctx context.Context, logger *slog.Logger, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	sinks, st, err := formwatch.BuildSinks(cfg, logger)
	if err != nil {
		return err
	}
	if st == nil && cfg.Store.Path != "" {
		if st, err = formwatch.OpenStore(cfg.Store.Path, cfg.Env); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, formwatch.NewStdoutSink(nil))
	}

	w := formwatch.New(cfg, logger, sinks...)
	if st != nil {
		w.UseStore(st)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("start: %w", err)
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = serveHTTP(logger, cfg.HTTP.Addr, w)
	}

	<-ctx.Done()
	logger.Info("formwatch: shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("formwatch: http shutdown", "error", err)
		}
		cancel()
	}
	w.Stop()
	return nil
}

// serveHTTP exposes the status API and the MCP tools (streamable HTTP on /mcp).
func serveHTTP(logger *slog.Logger, addr string, w *formwatch.Watcher) *http.Server {
	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "formwatch", Version: "1.0.0"}, nil)
	w.RegisterMCP(mcpSrv)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(shield.APIStack()...)
	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/api", w.Routes())
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("formwatch: http starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("formwatch: http", "error", err)
		}
	}()
	return srv
}

// runReplay loads a saved page into the in-memory DOM, runs one detection
// pass and prints the resulting detections as JSON lines.
func runReplay(ctx context.Context, logger *slog.Logger, opts options) error {
	src, err := os.ReadFile(opts.replay)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	pageURL := opts.url
	if pageURL == "" {
		pageURL = "file://" + opts.replay
	}
	win, err := memdom.Parse(string(src), pageURL)
	if err != nil {
		return fmt.Errorf("replay: parse: %w", err)
	}

	var cfg *formwatch.Config
	if opts.configPath != "" {
		if cfg, err = formwatch.LoadConfig(opts.configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	pc := formwatch.PageConfig{ID: "replay", URL: pageURL}
	if cfg != nil && len(cfg.Pages) > 0 {
		pc = cfg.Pages[0]
		pc.URL = pageURL
	}

	found := 0
	printer := formwatch.NewCallbackSink(func(_ context.Context, d event.Detection) error {
		found++
		data, err := event.MarshalDetection(&d)
		if err != nil {
			return err
		}
		os.Stdout.Write(append(data, '\n'))
		return nil
	}, nil)

	w := formwatch.New(cfg, logger, printer)
	defer w.Stop()
	if err := w.Attach(ctx, pc, win); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if found == 0 {
		logger.Warn("formwatch: comment form not found", "file", opts.replay, "selector", pc.FormSelector)
	}
	return nil
}
