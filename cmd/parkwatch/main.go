package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkwatch/internal/config"
	"parkwatch/internal/db"
	httpapi "parkwatch/internal/http"
	"parkwatch/internal/notify"
	"parkwatch/internal/repository"
	"parkwatch/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "parkwatch").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	gdb, err := db.Connect(cfg.DB.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	permits := repository.NewPermitRepository(gdb)
	stays := repository.NewStayRepository(gdb)
	events := repository.NewEventRepository(gdb)
	hub := notify.NewHub(log)

	decisions := service.NewDecisionService(gdb, permits, stays, events, hub, service.Options{
		ConfidenceThreshold: cfg.Decision.ConfidenceThreshold,
		TimedLimit:          cfg.Decision.TimedLimit,
		DefaultZone:         cfg.Decision.DefaultZone,
		LockTimeout:         cfg.Decision.LockTimeout,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := httpapi.NewHandler(decisions, hub, log)
	handler.Register(r, httpapi.AuthMiddleware(cfg.Auth))

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
