package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pypirun/pypirun/internal/config"
	"github.com/pypirun/pypirun/internal/db"
	"github.com/pypirun/pypirun/internal/handlers"
	"github.com/pypirun/pypirun/internal/models"
	"github.com/pypirun/pypirun/internal/pypi"
	"github.com/pypirun/pypirun/internal/runner"
	"github.com/pypirun/pypirun/internal/ws"
)

// version is set at build time via -ldflags="-X main.version=..."
var version = "1.0.0"

// devTemplatePath is where the runner template lives in the source tree,
// served directly in dev mode so edits apply without a rebuild.
const devTemplatePath = "internal/runner/templates/runner.py"

func main() {
	// Quick healthcheck mode — used by Docker HEALTHCHECK from scratch image.
	// Avoids needing wget/curl in the container. The binary starts in ~10ms,
	// hits /healthz, and exits immediately — no server initialization.
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		port := "8000"
		if v := os.Getenv("PORT"); v != "" {
			port = v
		}
		resp, err := http.Get("http://127.0.0.1:" + port + "/healthz")
		if err != nil || resp.StatusCode != 200 {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg := config.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	slog.Info("starting pypirun",
		"port", cfg.Port,
		"dataDir", cfg.DataDir,
		"dev", cfg.Dev,
		"pprof", cfg.Dev || cfg.Pprof,
		"logLevel", cfg.LogLevel,
		"verifyPackages", cfg.VerifyPackages,
	)

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		slog.Error("database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	// Models
	users := models.NewUserStore(database)
	settings := models.NewSettingStore(database)
	hits := models.NewHitStore(database)

	// JWT secret (auto-generated on first run)
	jwtSecret, err := settings.EnsureJWTSecret()
	if err != nil {
		slog.Error("jwt secret", "err", err)
		os.Exit(1)
	}

	// Seed the admin user from the environment on first run.
	userCount, err := users.Count()
	if err != nil {
		slog.Error("user count", "err", err)
		os.Exit(1)
	}
	if userCount == 0 && cfg.AdminPassword != "" {
		if _, err := users.Create("admin", cfg.AdminPassword); err != nil {
			slog.Error("seed admin", "err", err)
			os.Exit(1)
		}
		slog.Info("seeded admin user")
	}

	// Runner script renderer
	var renderer *runner.Renderer
	if cfg.Dev {
		renderer, err = runner.NewFromFile(devTemplatePath)
		if err != nil {
			slog.Error("runner template", "err", err)
			os.Exit(1)
		}
		slog.Info("dev mode: serving runner template from filesystem", "path", devTemplatePath)
	} else {
		renderer = runner.New()
	}

	// Frontend SPA files
	var frontendFS fs.FS
	if cfg.Dev {
		// Serve from filesystem (for Vite HMR, point the dev proxy at this port)
		distPath := "dist"
		slog.Info("dev mode: serving frontend from filesystem", "path", distPath)
		frontendFS = os.DirFS(distPath)
	} else {
		sub, err := fs.Sub(staticFiles, "dist")
		if err != nil {
			slog.Error("embed frontend", "err", err)
			os.Exit(1)
		}
		frontendFS = sub
	}

	// WebSocket server
	wss := ws.NewServer()

	// Wire up handlers
	app := &handlers.App{
		Users:          users,
		Settings:       settings,
		Hits:           hits,
		WS:             wss,
		Index:          pypi.NewClient(cfg.IndexURL),
		Renderer:       renderer,
		Frontend:       frontendFS,
		JWTSecret:      jwtSecret,
		Version:        version,
		VerifyPackages: cfg.VerifyPackages,
	}
	app.InitBroadcast()
	handlers.RegisterStatsHandlers(app)

	// HTTP mux
	mux := http.NewServeMux()
	mux.Handle("/ws", wss.UpgradeHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	handlers.RegisterScriptHandlers(app, mux)
	handlers.RegisterAPIHandlers(app, mux)
	handlers.RegisterAdminHandlers(app, mux)
	mux.Handle("/", gzipMiddleware(http.HandlerFunc(app.ServeFrontend)))

	// Enable pprof endpoints in dev mode or via PYPIRUN_PPROF=1
	if cfg.Dev || cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", netpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
		slog.Info("pprof enabled at /debug/pprof/")
	}

	// Background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer app.StopBroadcast()

	// Dev mode: reload the runner template on file change
	if cfg.Dev {
		if err := runner.StartWatcher(ctx, renderer, func() {
			slog.Info("runner template changed, cache cleared")
		}); err != nil {
			slog.Warn("runner template watcher failed to start", "err", err)
		}
	}

	// Start HTTP server — binds all interfaces, the port comes from PORT
	// (or -port) per the deployment contract.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

// gzipPool reuses gzip.Writer instances (~256KB internal state each).
var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

// gzipMiddleware compresses responses on the fly for clients that accept it.
func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		// Skip compression for small/binary responses
		ext := filepath.Ext(r.URL.Path)
		switch ext {
		case ".png", ".jpg", ".jpeg", ".gif", ".ico", ".woff", ".woff2", ".br", ".gz":
			next.ServeHTTP(w, r)
			return
		}

		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			gz.Close()
			gzipPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	})
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}
