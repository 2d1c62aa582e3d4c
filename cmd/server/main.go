package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelai/localrag"
	"github.com/kestrelai/localrag/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := localrag.DefaultConfig()
	if *configPath != "" {
		loaded, err := localrag.LoadConfigFile(cfg, *configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if v := os.Getenv("LOCALRAG_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOCALRAG_GPU_ENGINE_URL"); v != "" {
		cfg.GPUEngineURL = v
	}
	if v := os.Getenv("LOCALRAG_WASM_ENGINE_URL"); v != "" {
		cfg.WasmEngineURL = v
	}
	if v := os.Getenv("LOCALRAG_CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv("LOCALRAG_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}

	eng, err := localrag.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	router := httpapi.NewRouter(eng, httpapi.RouterConfig{
		APIKey:      os.Getenv("LOCALRAG_API_KEY"),
		CORSOrigins: os.Getenv("LOCALRAG_CORS_ORIGINS"),
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming query responses run long
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
