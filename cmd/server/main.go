package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CindyDuong5/pdf-polish/internal/api"
	"github.com/CindyDuong5/pdf-polish/internal/config"
	"github.com/CindyDuong5/pdf-polish/internal/decision"
	"github.com/CindyDuong5/pdf-polish/internal/keylock"
	"github.com/CindyDuong5/pdf-polish/internal/lifecycle"
	"github.com/CindyDuong5/pdf-polish/internal/logger"
	"github.com/CindyDuong5/pdf-polish/internal/metrics"
	"github.com/CindyDuong5/pdf-polish/internal/objstore"
	"github.com/CindyDuong5/pdf-polish/internal/store"
	"github.com/CindyDuong5/pdf-polish/internal/styling"
	"github.com/CindyDuong5/pdf-polish/pkg/db"
	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("pdf-polish-server", "info", false)
		bootLog.Fatal().Err(err).Msg("configuration")
	}
	log := logger.New("pdf-polish-server", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect")
	}
	defer pool.Close()

	objects, err := objstore.NewS3(ctx, cfg.S3Bucket, cfg.AWSRegion)
	if err != nil {
		log.Fatal().Err(err).Msg("object storage")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	st := store.New(pool)
	locks := keylock.New()
	tokens := decisiontoken.New(cfg.DecisionTokenSecret, cfg.DecisionTokenTTL)

	orch := lifecycle.New(lifecycle.Deps{
		Registry: st,
		Renderer: styling.NewClient(cfg.StylerBaseURL),
		Objects:  objects,
		Locks:    locks,
		Log:      log,
		Metrics:  met,
	}, lifecycle.Options{
		TaxRate:           cfg.TaxRate,
		RenderTimeout:     cfg.RenderTimeout,
		FinalizeTimeout:   cfg.FinalizeTimeout,
		StylingStaleAfter: cfg.StylingStaleAfter,
	})
	recorder := decision.NewRecorder(st, orch, tokens, locks, log, met)

	h := &api.Handler{
		Store:     st,
		Lifecycle: orch,
		Decider:   recorder,
		Presigner: objects,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(met.Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Method("GET", "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	h.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("port", cfg.HTTPPort).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server")
	}
	log.Info().Msg("stopped")
}
