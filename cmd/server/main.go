package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/api"
	"github.com/yourname/sleepbot/internal/bot"
	"github.com/yourname/sleepbot/internal/config"
	"github.com/yourname/sleepbot/internal/metrics"
	"github.com/yourname/sleepbot/internal/service"
	"github.com/yourname/sleepbot/internal/storage"
)

type app struct {
	logger  internal.Logger
	tracker *service.Tracker
	bot     *bot.Bot
	window  time.Duration
}

func (a *app) Logger() internal.Logger    { return a.logger }
func (a *app) Tracker() *service.Tracker  { return a.tracker }
func (a *app) Bot() *bot.Bot              { return a.bot }
func (a *app) StatsWindow() time.Duration { return a.window }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("failed to close storage: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tracker := service.NewTracker(store, clockwork.NewRealClock(), logger, m)
	a := &app{
		logger:  logger,
		tracker: tracker,
		bot:     bot.New(tracker, logger),
		window:  time.Duration(cfg.StatsWindowDays) * 24 * time.Hour,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(a, cfg.WebhookSecret, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
	}()

	logger.Infof("server running on :%s (storage=%s)", cfg.Port, cfg.DBType)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("server failed: %v", err)
		return
	}
	<-done
}
