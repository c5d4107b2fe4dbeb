// Package main provides the API server entry point for the community pulse service.
// It serves stored data and runs the daily cycle on schedule.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/community-pulse/internal/api"
	"github.com/community-pulse/internal/app"
	"github.com/community-pulse/internal/config"
	"github.com/community-pulse/internal/service"
)

func main() {
	noSchedule := flag.Bool("no-schedule", false, "Serve the API without running the daily cycle")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.InitLogging(cfg)

	a, err := app.New(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scheduler *service.Scheduler
	if !*noSchedule {
		hour, minute, _ := cfg.Schedule.Clock()
		loc, err := cfg.Schedule.Location()
		if err != nil {
			logger.WithError(err).Fatal("Invalid schedule")
		}
		scheduler = service.NewScheduler(a.Pipeline, a.Cleaner, hour, minute, loc)
		if err := scheduler.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	checks := make(map[string]api.HealthCheck)
	for name, check := range a.HealthChecks() {
		checks[name] = check
	}

	deps := api.Dependencies{
		Membership: a.Membership,
		Activity:   a.Activity,
		Stats:      a.Stats,
		Summaries:  a.Pipeline,
		Renderer:   a.Renderer,
		Cache:      a.Cache,
		Checks:     checks,
	}
	if scheduler != nil {
		deps.Scheduler = scheduler
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
	}
	server := api.NewServer(serverConfig, deps)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":      cfg.Server.Host,
		"port":      cfg.Server.Port,
		"community": cfg.Hive.Community,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// An in-flight cycle gets a longer grace period than HTTP requests
	if scheduler != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if err := scheduler.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("Scheduler did not stop cleanly")
		}
		stopCancel()
	}

	logger.Info("Server exited")
}
