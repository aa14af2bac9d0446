package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medeasy/pos/internal/resilience"
)

// metricsHandler exposes the till's breaker metrics.
func metricsHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(resilience.Collectors()...)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
