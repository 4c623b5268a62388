package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/lackhoa/fractal-sky/internal/auth"
	"github.com/lackhoa/fractal-sky/internal/blob"
	"github.com/lackhoa/fractal-sky/internal/config"
	"github.com/lackhoa/fractal-sky/internal/diagram"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/export"
	"github.com/lackhoa/fractal-sky/internal/metrics"
	mw "github.com/lackhoa/fractal-sky/internal/middleware"
	"github.com/lackhoa/fractal-sky/internal/scene"
	"github.com/lackhoa/fractal-sky/internal/session"
	"github.com/lackhoa/fractal-sky/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	blobs, err := blob.Open(ctx, blob.Config{
		Driver:    blob.Driver(cfg.BlobDriver),
		Dir:       cfg.BlobDir,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		slog.Error("open blob store", "driver", cfg.BlobDriver, "error", err)
		os.Exit(1)
	}

	sceneOpts := scene.DefaultOptions()
	sceneOpts.FrameDim = cfg.FrameDim
	sceneOpts.Depth = cfg.DefaultDepth
	editorCfg := editor.Config{Scene: sceneOpts, MaxDepth: cfg.MaxDepth, MaxViews: cfg.MaxViews, Logger: slog.Default()}

	m := metrics.New()

	authService := auth.NewService(st, cfg.JWTSecret)
	authHandler := auth.NewHandler(authService)

	diagramService := diagram.NewService(st, blobs, editorCfg)
	diagramHandler := diagram.NewHandler(diagramService)

	exportHandler := export.NewHandler(diagramService, blobs, editorCfg, cfg.DefaultDepth, cfg.ExportMaxDepth, m)
	sessionHandler := session.NewHandler(diagramService, editorCfg, cfg.Origins(), m, m.HistoryObserver())

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(m.Middleware)

	// Auth routes (public)
	r.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	r.Handle("/auth/me", authService.AuthMiddleware(http.HandlerFunc(authHandler.Me))).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/diagrams", diagramHandler.List).Methods("GET")
	api.HandleFunc("/diagrams", diagramHandler.Create).Methods("POST")
	api.HandleFunc("/diagrams/{diagramId}", diagramHandler.Get).Methods("GET")
	api.HandleFunc("/diagrams/{diagramId}", diagramHandler.Update).Methods("PUT")
	api.HandleFunc("/diagrams/{diagramId}", diagramHandler.Delete).Methods("DELETE")
	api.HandleFunc("/diagrams/{diagramId}/export.svg", exportHandler.ExportSVG).Methods("GET")

	// WebSocket endpoint; browsers pass the token as a query parameter.
	r.Handle("/ws/diagram/{diagramId}", authService.QueryTokenMiddleware(http.HandlerFunc(sessionHandler.ServeWS)))

	// CORS wraps the router so preflight requests are answered before
	// method matching.
	handler := mw.CORS(cfg.Origins())(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "addr", addr, "store", cfg.StoreDriver, "blobs", cfg.BlobDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return store.NewSQLite(cfg.SQLitePath)
	default:
		return store.NewMemory(), nil
	}
}
