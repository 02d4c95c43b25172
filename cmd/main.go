package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jluzny/hag/internal/config"
	"github.com/jluzny/hag/internal/handlers"
	"github.com/jluzny/hag/internal/homeassistant"
	"github.com/jluzny/hag/internal/hvac"
	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/notify"
	"github.com/jluzny/hag/internal/repository"
	"github.com/jluzny/hag/internal/repository/db"
	"github.com/jluzny/hag/internal/server"
	"github.com/jluzny/hag/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(sqlDB)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ha := homeassistant.NewClient(homeassistant.Config{
		URL:   cfg.HomeAssistant.URL,
		Token: cfg.HomeAssistant.Token,
	}, log.Named("ha"))
	go ha.Run(ctx)

	machine, err := buildMachine(cfg, ha, repos, log)
	if err != nil {
		log.Fatalw("invalid threshold configuration", "err", err)
	}

	services := service.NewService(repos, machine, ha.Updates(), service.SensorIDs{
		Indoor:  cfg.Sensors.Indoor,
		Outdoor: cfg.Sensors.Outdoor,
	}, cfg.Auth.SigningKey, log)

	if err := services.Controller.Start(ctx); err != nil {
		log.Fatalw("failed to start controller", "err", err)
	}

	apiHandler := handlers.NewHandler(services, log)
	srv := &server.Server{}
	go func() {
		if err := srv.Run(cfg.Port, apiHandler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()

	waitForShutdown(cancel, srv, services, log)
}

// buildMachine assembles the engine, executor and state machine.
func buildMachine(cfg *config.Config, ha *homeassistant.Client, repos *repository.Repository, log *logger.Logger) (*hvac.Machine, error) {
	engine, err := hvac.NewEngine(hvac.EngineConfig{
		Heating:     cfg.Heating,
		Cooling:     cfg.Cooling,
		ActiveHours: cfg.ActiveHours,
		Defrost:     cfg.Defrost,
		CacheTTL:    cfg.CacheTTL(),
	})
	if err != nil {
		return nil, err
	}

	executor := hvac.NewUnitExecutor(ha, cfg.Entities, cfg.Heating, cfg.Cooling, log.Named("exec"))

	var notifier hvac.Notifier = notify.Nop{}
	if cfg.Alerts.Enabled {
		notifier = notify.NewFailureNotifier(
			notify.NewMailgunSender(cfg.Alerts),
			cfg.Alerts.FailureThreshold,
			log.Named("alerts"),
		)
	}

	recorder := service.NewEventRecorder(repos.EventRepo, log)
	return hvac.NewMachine(engine, executor, cfg.SystemMode, log.Named("hvac"),
		hvac.WithRecorder(recorder),
		hvac.WithNotifier(notifier),
	), nil
}

// waitForShutdown listens for termination signals and drains cleanly.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop background goroutines and the state machine
	cancel()
	if err := services.Controller.Stop(context.Background()); err != nil {
		log.Errorw("controller stop failed", "err", err)
	}

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
