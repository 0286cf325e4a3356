// Command server runs the TTM stress-coach HTTP API.
//
//	@title						TTM Stress Coach API
//	@version					1.0
//	@description				Stage-of-change stress-management assessments, prescriptions, work skeletons and coaching chat.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/config"
	httpapi "github.com/tbourn/go-ttm-coach/internal/http"
	"github.com/tbourn/go-ttm-coach/internal/knowledge"
	"github.com/tbourn/go-ttm-coach/internal/llm"
	"github.com/tbourn/go-ttm-coach/internal/observability"
	"github.com/tbourn/go-ttm-coach/internal/repo"
	"github.com/tbourn/go-ttm-coach/internal/scheduler"
	"github.com/tbourn/go-ttm-coach/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, "http")
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{
		Version:        sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev"),
		Component:      "http",
		CatalogVersion: cat.Version,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	kb := knowledge.Default()
	if cfg.KnowledgePath != "" {
		if kb, err = knowledge.Load(cfg.KnowledgePath); err != nil {
			return err
		}
	}

	var client llm.Client = llm.Disabled{}
	gem, err := llm.NewGemini(ctx, cfg.LLM)
	switch {
	case err == nil:
		client = gem
		log.Info().Str("model", cfg.LLM.Model).Msg("llm enabled")
	case errors.Is(err, llm.ErrDisabled):
		log.Info().Msg("llm disabled; chat answers from the knowledge base")
	default:
		return err
	}

	r := gin.New()
	if err := httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Catalog: cat, Knowledge: kb, LLM: client}, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	jobs, err := scheduler.New(db, cfg.PurgeInterval)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("catalog_version", cat.Version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return jobs.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
