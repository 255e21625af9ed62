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

	"github.com/joao-fontenele/ecomarket/internal/config"
	"github.com/joao-fontenele/ecomarket/internal/gateway"
	"github.com/joao-fontenele/ecomarket/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("gateway", "8080")
	if err != nil {
		telemetry.NewLogger(os.Stdout, "info", "gateway").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName)

	if err := cfg.Require("ORDERS_SERVICE_URL", "CATALOG_SERVICE_URL"); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	// The gateway does not authenticate. Services trust the X-User-* headers,
	// so they are stripped from client requests unless an authenticating
	// proxy in front of the gateway sets them (GATEWAY_TRUST_IDENTITY_HEADERS).
	if cfg.TrustIdentityHeaders {
		logger.Warn("forwarding caller identity headers; the gateway must only be reachable through an authenticating proxy")
	}
	ordersProxy := gateway.NewServiceProxy(cfg.OrdersServiceURL, httpClient, cfg.TrustIdentityHeaders)
	catalogProxy := gateway.NewServiceProxy(cfg.CatalogServiceURL, httpClient, cfg.TrustIdentityHeaders)
	handler := gateway.NewHandler(ordersProxy, catalogProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("PUT /products/{id}", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("POST /products/{id}/stock", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /categories", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /categories/{id}", telemetry.WithHTTPRoute(handler.HandleCatalog))

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "gateway",
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
		logger.Info("starting gateway service", "port", cfg.Port)
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
