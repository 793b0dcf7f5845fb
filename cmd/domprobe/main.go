// Command domprobe serves DOM inspection tools over MCP (stdio or streamable
// HTTP) and plain HTTP.
//
// Usage:
//
//	domprobe                              # MCP over stdio, default config
//	domprobe -config domprobe.yaml        # settings from YAML
//	domprobe -http 127.0.0.1:8931         # MCP at /mcp and POST /v1/<tool>
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

	"github.com/hazyhaar/domprobe/dom"
	"github.com/hazyhaar/domprobe/extract"
	"github.com/hazyhaar/domprobe/internal/browser"
	"github.com/hazyhaar/domprobe/internal/config"
	"github.com/hazyhaar/domprobe/internal/shield"
	"github.com/hazyhaar/domprobe/internal/sink"
	"github.com/hazyhaar/domprobe/internal/urlguard"
	"github.com/hazyhaar/domprobe/kit"
	"github.com/hazyhaar/domprobe/tools"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to domprobe.yaml config file")
	httpAddr := flag.String("http", "", "serve over HTTP on this address instead of stdio")
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
	// stdout belongs to the stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *httpAddr); err != nil {
		logger.Error("domprobe: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, httpAddr string) error {
	cfg := config.Default()
	if configPath != "" {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if httpAddr != "" {
		cfg.Server.Transport = "http"
		cfg.Server.Listen = httpAddr
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Bin:             cfg.Browser.Bin,
		Mode:            browser.ParseMode(cfg.Browser.Mode),
		HeapLimit:       cfg.Browser.HeapLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		BlockResources:  cfg.Browser.BlockResources,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		Display:         cfg.Browser.XvfbDisplay,
		Logger:          logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	sinks := buildSinks(cfg, logger)
	defer func() {
		for _, s := range sinks {
			s.Close()
		}
	}()

	var tags dom.TagSet
	if len(cfg.Query.SignificantTags) > 0 {
		tags = dom.NewTagSet(cfg.Query.SignificantTags...)
	}
	opener := tools.OpenerFunc(func(ctx context.Context, url string) (tools.Page, error) {
		s, err := mgr.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	svc := tools.New(opener, tools.Config{
		QueryTimeout:    cfg.Query.Timeout,
		MaxDepth:        cfg.Query.MaxDepth,
		SignificantTags: tags,
		Extract: extract.Options{
			MinContentLength: cfg.Extract.MinContentLength,
			Selectors:        cfg.Extract.Selectors,
			Logger:           logger,
		},
		CheckURL:      urlguard.Guard{AllowPrivate: cfg.Browser.AllowPrivate}.Check,
		ObserveBuffer: cfg.Observe.Buffer,
		CloseTimeout:  cfg.Observe.CloseTimeout,
		Sinks:         sinks,
		Logger:        logger,
	})
	defer svc.Close()

	if cfg.Browser.StartURL != "" {
		if err := (urlguard.Guard{AllowPrivate: cfg.Browser.AllowPrivate}).Check(cfg.Browser.StartURL); err != nil {
			return fmt.Errorf("start url: %w", err)
		}
		s, err := mgr.Open(ctx, cfg.Browser.StartURL)
		if err != nil {
			return fmt.Errorf("open start url: %w", err)
		}
		svc.Adopt(tools.DefaultSession, s)
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "domprobe", Version: version}, nil)
	svc.RegisterMCP(srv)

	if cfg.Server.Transport == "stdio" {
		logger.Info("domprobe: serving mcp on stdio", "tools", len(svc.Names()))
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	}
	return serveHTTP(ctx, logger, cfg.Server, srv, svc)
}

// buildSinks turns the sinks section into extra outputs for every
// subscription. In stdio mode the stdout sink writes to stderr instead.
func buildSinks(cfg *config.Config, logger *slog.Logger) []sink.Sink {
	var out []sink.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			w := os.Stdout
			if cfg.Server.Transport == "stdio" {
				logger.Warn("domprobe: stdout sink redirected to stderr in stdio mode")
				w = os.Stderr
			}
			out = append(out, sink.NewStdout(w))
		case "webhook":
			out = append(out, sink.NewWebhook(sc.URL,
				sink.WithWebhookRetries(sc.Retries),
				sink.WithWebhookLogger(logger),
			))
		default:
			logger.Warn("domprobe: unknown sink type", "type", sc.Type)
		}
	}
	return out
}

func serveHTTP(ctx context.Context, logger *slog.Logger, sc config.ServerConfig, srv *mcp.Server, svc *tools.Service) error {
	limiter := shield.NewRateLimiter(sc.RateLimit, time.Minute, logger, "/health")
	limiter.StartGC(ctx.Done())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(shield.SecurityHeaders)
	r.Use(limiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		kit.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "tools": svc.Names()})
	})
	svc.RegisterHTTP(r)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
	r.Handle("/mcp", mcpHandler)
	r.Handle("/mcp/*", mcpHandler)

	addr := sc.Listen
	hs := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("domprobe: serving http", "addr", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("domprobe: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
