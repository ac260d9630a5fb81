// Package app wires Echo's components together and owns the process
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avvaruyasaswini/Echo/internal/echo/config"
	"github.com/avvaruyasaswini/Echo/internal/echo/engine"
	"github.com/avvaruyasaswini/Echo/internal/echo/llm"
	"github.com/avvaruyasaswini/Echo/internal/echo/metadata"
	"github.com/avvaruyasaswini/Echo/internal/echo/session"
	"github.com/avvaruyasaswini/Echo/internal/echo/store"
	"github.com/avvaruyasaswini/Echo/internal/echo/web"
)

// prune interval for expired web sessions.
const pruneInterval = 10 * time.Minute

// App is the assembled Echo application.
type App struct {
	cfg       *config.Config
	store     *store.Store
	webServer *web.Server
	server    *http.Server
	mux       *http.ServeMux
	startedAt time.Time
}

// New builds the application from configuration: opens the store (running
// migrations), constructs the model provider, and mounts the API routes.
// It does not start listening; call Run.
func New(cfg *config.Config) (*App, error) {
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	var limiter *llm.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = llm.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}

	orchestrator := engine.New(s, provider, limiter)
	webServer := web.New(s, session.NewGate(s), metadata.New(s), orchestrator,
		web.Config{SessionTTL: cfg.SessionTTL})

	a := &App{
		cfg:       cfg,
		store:     s,
		webServer: webServer,
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}
	a.mux.HandleFunc("/health", a.handleHealth)
	a.mux.HandleFunc("/status", a.handleStatus)
	webServer.RegisterRoutes(a.mux)

	return a, nil
}

// newProvider constructs the generation backend selected by the config.
func newProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return llm.NewGemini(llm.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey,
			BaseURL: cfg.Gemini.BaseURL,
			Model:   cfg.Gemini.Model,
			Timeout: cfg.Gemini.Timeout,
		}), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("app: unknown provider %q", cfg.Provider)
	}
}

// ServeHTTP implements http.Handler so the app can be exercised in tests
// without a live listener.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (a *App) Run() error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.HTTPAddr, err)
	}

	a.server = &http.Server{
		Handler:      a,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("echo listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stopPruner := make(chan struct{})
	go a.pruneLoop(stopPruner)
	defer close(stopPruner)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown error", "error", err)
	}
	return nil
}

// Stop closes the store. Call after Run returns.
func (a *App) Stop() {
	if err := a.store.Close(); err != nil {
		slog.Warn("store close error", "error", err)
	}
}

// pruneLoop periodically drops expired web sessions.
func (a *App) pruneLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.webServer.PruneSessions()
		case <-stop:
			return
		}
	}
}
