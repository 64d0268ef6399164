package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gopower/adapters/api"
	"gopower/adapters/rng"
	"gopower/adapters/stats/boundary"
	"gopower/adapters/stats/logit"
	"gopower/app"
	"gopower/internal"
	"gopower/internal/config"
	"gopower/ports"
)

func main() {
	_ = godotenv.Load()

	logger := internal.DefaultLogger

	cfg, err := config.Load()
	if err != nil {
		logger.Error("loading configuration: %v", err)
		os.Exit(1)
	}

	designers := map[ports.SpendingFamily]ports.BoundaryDesigner{
		ports.SpendingOBrienFleming: boundary.NewOBrienFleming(),
		ports.SpendingPocock:        boundary.NewPocock(),
	}
	service := app.NewPowerService(logit.NewAnalyzer(), rng.NewDeterministic(), designers, cfg.Simulation, logger)
	server := api.NewServer(service, logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("power API listening on :%s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown: %v", err)
	}
}
