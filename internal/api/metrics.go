package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	quotes      *prometheus.CounterVec
	sales       *prometheus.CounterVec
	salesAmount *prometheus.CounterVec
	unitsSold   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medeasy",
			Name:      "quotes_total",
			Help:      "Price quotes served, by outcome.",
		}, []string{"outcome"}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medeasy",
			Name:      "sales_total",
			Help:      "Sale submissions, by outcome.",
		}, []string{"outcome"}),
		salesAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medeasy",
			Name:      "sales_amount_total",
			Help:      "Revenue of completed sales in GHS, by payment method.",
		}, []string{"payment_method"}),
		unitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medeasy",
			Name:      "units_sold_total",
			Help:      "Units dispensed by completed sales.",
		}),
	}
	reg.MustRegister(
		m.quotes, m.sales, m.salesAmount, m.unitsSold,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (h *Handler) metricsHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}
