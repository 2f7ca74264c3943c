package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/config"
	"github.com/mandalnilabja/streamgate/internal/provider"
	"github.com/mandalnilabja/streamgate/internal/version"
)

func setupLogger() *slog.Logger {
	// Use sensible defaults: info level, text format
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, registry *catalog.Registry, adapters *provider.Registry) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Streamgate %s - LLM Streaming Gateway\n", version.Version)
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "Chat API:   http://localhost%s/v1/chat/stream\n", cfg.HTTPAddr)
	fmt.Fprintf(os.Stderr, "Models:     http://localhost%s/v1/models\n", cfg.HTTPAddr)
	if cfg.StreamAddr != "" {
		fmt.Fprintf(os.Stderr, "Stream TCP: localhost%s\n", cfg.StreamAddr)
	}
	fmt.Fprintf(os.Stderr, "Catalog:    %d models, %d providers\n", registry.Len(), len(adapters.Tags()))
	fmt.Fprintf(os.Stderr, "Data:       %s\n", config.DataDir())
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "\n")
}
