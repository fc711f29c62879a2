package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/logger"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTelemetry wires the otel metric instruments to a Prometheus registry
// served on cfg.Addr. With metrics disabled only tracing is set up.
func setupTelemetry(ctx context.Context, cfg config.MetricsConfig, l logger.Logger) (
	*consumerotel.Telemetry, func(), error,
) {
	tp := sdktrace.NewTracerProvider()
	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	if !cfg.Enabled {
		tel, err := consumerotel.NewTelemetry(tp, nil, prop)
		if err != nil {
			return nil, nil, err
		}
		return tel, func() { _ = tp.Shutdown(context.Background()) }, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	tel, err := consumerotel.NewTelemetry(tp, mp, prop)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		l.Info("Serving metrics", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Metrics server failed", "error", err)
		}
	}()

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(sctx)
		_ = mp.Shutdown(sctx)
		_ = tp.Shutdown(sctx)
	}

	return tel, shutdown, nil
}
