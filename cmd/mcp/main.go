package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dgallion1/docoutline/internal/chunker"
	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/mcptools"
	"github.com/dgallion1/docoutline/internal/version"
)

const serverName = "docoutline-mcp"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s version %s\n", serverName, version.Version)
		os.Exit(0)
	}

	// stdout carries the protocol.
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Load()
	catalogs := marker.NewRegistry()
	if cfg.CatalogDir != "" {
		n, err := catalogs.LoadDir(cfg.CatalogDir)
		if err != nil {
			log.Error("custom catalogs failed to load", "dir", cfg.CatalogDir, "error", err)
			os.Exit(1)
		}
		log.Info("custom catalogs loaded", "count", n)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version.Version,
	}, nil)
	mcptools.New(catalogs, chunker.Config{
		ChunkSize:    cfg.DefaultChunkSize,
		HeadingTypes: cfg.HeadingTypes,
		ArticleTypes: cfg.ArticleTypes,
	}, cfg.MaxLines, log).Register(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("server ready", "version", version.Version, "catalogs", catalogs.Names())
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
