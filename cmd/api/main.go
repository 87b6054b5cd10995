package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chaincalc/internal/calculator"
	"chaincalc/internal/engine"
	"chaincalc/internal/observability"
	"chaincalc/internal/server"
	"chaincalc/internal/store"
	"chaincalc/internal/stream"

	"go.uber.org/zap"
)

func main() {

	ctx := context.Background()

	if err := loadDotEnv(); err != nil {
		panic(err)
	}

	// Logger
	err := observability.InitLogger()
	if err != nil {
		panic(err)
	}
	defer observability.SyncLogger()

	// Tracing
	traceShutdown, err := observability.InitTracing(ctx)
	if err != nil {
		panic(err)
	}
	defer traceShutdown(ctx)

	// Metrics
	metricShutdown, err := initMetrics(ctx)
	if err != nil {
		panic(err)
	}
	defer metricShutdown(ctx)

	// Engine over its persistence store, publishing snapshots to the hub.
	var chainStore engine.Store
	if path := dataFile(); path != "" {
		chainStore = store.NewFile(path)
		observability.Logger.Info("using file-backed chain store", zap.String("path", path))
	} else {
		chainStore = store.NewMemory()
		observability.Logger.Info("using in-memory chain store")
	}

	hub := stream.NewHub()
	eng := engine.New(chainStore, observability.Logger, engine.WithOnChange(hub.Publish))

	// Router
	router := server.NewRouter(calculator.NewHandlers(eng), hub)

	srv := &http.Server{
		Addr:    listenAddr(),
		Handler: router,
	}

	go func() {
		observability.Logger.Info("server started", zap.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	waitForShutdown(srv)
}

func waitForShutdown(srv *http.Server) {

	stop := make(chan os.Signal, 1)

	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.Shutdown(ctx)
}
