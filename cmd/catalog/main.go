package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/ecomarket/internal/catalog"
	"github.com/joao-fontenele/ecomarket/internal/config"
	"github.com/joao-fontenele/ecomarket/internal/database"
	"github.com/joao-fontenele/ecomarket/internal/storage"
	"github.com/joao-fontenele/ecomarket/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("catalog", "8082")
	if err != nil {
		telemetry.NewLogger(os.Stdout, "info", "catalog").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName)

	if err := cfg.Require("POSTGRES_URL"); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := database.Open(ctx, cfg.PostgresURL, cfg.DBSchema)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	handler := catalog.NewHandler(storage.NewPostgres(db).Catalog(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("PUT /products/{id}", telemetry.WithHTTPRoute(handler.HandleUpdate))
	mux.HandleFunc("POST /products/{id}/stock", telemetry.WithHTTPRoute(handler.HandleAdjustStock))
	mux.HandleFunc("GET /categories", telemetry.WithHTTPRoute(handler.HandleListCategories))
	mux.HandleFunc("GET /categories/{id}", telemetry.WithHTTPRoute(handler.HandleGetCategory))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, cfg.ServiceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting catalog service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
