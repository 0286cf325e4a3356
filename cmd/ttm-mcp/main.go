// Command ttm-mcp serves the assessment engine as MCP tools over stdio.
//
// Usage:
//
//	ttm-mcp    # Start the MCP server (stdio transport)
//
// Nothing is persisted. Logs go to stderr; stdout carries the protocol.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/config"
	"github.com/tbourn/go-ttm-coach/internal/engine"
	"github.com/tbourn/go-ttm-coach/internal/mcptools"
	"github.com/tbourn/go-ttm-coach/internal/services"
	"github.com/tbourn/go-ttm-coach/internal/sysutil"
)

var version string

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, "mcp")

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("mcp server stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	policy, err := engine.ParseSEPolicy(cfg.SEPolicy)
	if err != nil {
		return err
	}

	presc := services.NewPrescriptionService(nil, cat, policy, nil, cfg.IdempotencyTTL)
	chat := &services.WorkChatService{Catalog: cat, Planner: presc.Planner}

	v := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")
	log.Info().Str("version", v).Str("catalog_version", cat.Version).Msg("serving mcp on stdio")
	return server.ServeStdio(mcptools.New(cfg.MCPName, v, presc, chat))
}
