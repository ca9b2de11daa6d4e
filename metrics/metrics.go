// Package metrics exposes line telemetry as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lineflow"

// Metrics owns a private registry so several engines can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	PiecesFinished *prometheus.CounterVec
	OrdersTotal    *prometheus.CounterVec
	PostStock      *prometheus.GaugeVec
	StockAlerts    *prometheus.CounterVec
	PostHealth     *prometheus.GaugeVec
	LineHealth     *prometheus.GaugeVec
	ActiveAlerts   *prometheus.GaugeVec
	Detections     prometheus.Counter
	DroppedEvents  prometheus.Gauge
	PublishDropped prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PiecesFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "pieces_finished_total",
				Help:      "Pieces that left the last post of the route",
			},
			[]string{"line"},
		),

		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "orders_total",
				Help:      "Orders by outcome (completed, cancelled, failed)",
			},
			[]string{"line", "outcome"},
		),

		PostStock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "post",
				Name:      "stock",
				Help:      "Raw material units left at a post",
			},
			[]string{"line", "post"},
		),

		StockAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "post",
				Name:      "stock_alerts_total",
				Help:      "Low and out-of-stock alerts",
			},
			[]string{"line", "post", "kind"},
		),

		PostHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "post",
				Name:      "health_score",
				Help:      "Health score of a post (0-100)",
			},
			[]string{"line", "post"},
		),

		LineHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "line",
				Name:      "health_score",
				Help:      "Average health score of the line (0-100)",
			},
			[]string{"line"},
		),

		ActiveAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "open",
				Help:      "Open maintenance alerts by severity",
			},
			[]string{"severity"},
		),

		Detections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "iot",
				Name:      "detections_total",
				Help:      "Presence detections received from the sensor line",
			},
		),

		DroppedEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "iot",
				Name:      "dropped_events",
				Help:      "Events dropped for slow subscribers of the provider hub",
			},
		),

		PublishDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messaging",
				Name:      "dropped_total",
				Help:      "Messages dropped because the publish queue was full",
			},
		),
	}

	m.registry.MustRegister(
		m.PiecesFinished,
		m.OrdersTotal,
		m.PostStock,
		m.StockAlerts,
		m.PostHealth,
		m.LineHealth,
		m.ActiveAlerts,
		m.Detections,
		m.DroppedEvents,
		m.PublishDropped,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) PieceFinished(line string) { m.PiecesFinished.WithLabelValues(line).Inc() }

func (m *Metrics) OrderDone(line, outcome string) {
	m.OrdersTotal.WithLabelValues(line, outcome).Inc()
}

func (m *Metrics) SetStock(line, post string, stock int) {
	m.PostStock.WithLabelValues(line, post).Set(float64(stock))
}

func (m *Metrics) StockAlert(line, post, kind string) {
	m.StockAlerts.WithLabelValues(line, post, kind).Inc()
}

func (m *Metrics) SetHealth(line, post string, score float64) {
	m.PostHealth.WithLabelValues(line, post).Set(score)
}

func (m *Metrics) SetLineHealth(line string, score float64) {
	m.LineHealth.WithLabelValues(line).Set(score)
}

// SetOpenAlerts replaces the per-severity gauge values.
func (m *Metrics) SetOpenAlerts(counts map[string]int) {
	m.ActiveAlerts.Reset()
	for sev, n := range counts {
		m.ActiveAlerts.WithLabelValues(sev).Set(float64(n))
	}
}

func (m *Metrics) SetDropped(n uint64) { m.DroppedEvents.Set(float64(n)) }
