package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"gouncertain/adapters/ledger"
	"gouncertain/adapters/rng"
	"gouncertain/app"
	"gouncertain/internal/api"
	"gouncertain/internal/config"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	runLedger := ledger.NewInMemoryLedger(appConfig.Benchmark.LedgerCapacity)
	service := app.NewEstimationService(rng.NewStreams(), runLedger, appConfig.Benchmark.MaxConcurrency)
	server := api.NewServer(service, appConfig.Estimation)

	srv := &http.Server{
		Addr:    ":" + appConfig.Server.Port,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting gouncertain server on port %s (estimator %s, strategy %s, %d runs)",
			appConfig.Server.Port, appConfig.Estimation.Estimator, appConfig.Estimation.Strategy, appConfig.Estimation.NNRuns)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
