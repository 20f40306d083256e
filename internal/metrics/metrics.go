// Package metrics exposes coordinator counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds a private registry so tests and multiple daemons never collide
// on the global one.
type Metrics struct {
	reg *prometheus.Registry

	triggers   *prometheus.CounterVec
	coalesced  *prometheus.CounterVec
	evals      *prometheus.CounterVec
	switches   *prometheus.CounterVec
	stale      *prometheus.CounterVec
	backendErr *prometheus.CounterVec
	generation prometheus.Gauge
	info       *prometheus.GaugeVec
}

// New registers all audiomon collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &Metrics{
		reg: reg,

		triggers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiomon_triggers_total",
			Help: "Evaluation triggers accepted, by kind",
		}, []string{"kind"}),
		coalesced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiomon_triggers_coalesced_total",
			Help: "Triggers dropped because the queue was full, by kind",
		}, []string{"kind"}),
		evals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiomon_evaluations_total",
			Help: "Priority evaluations, by class and outcome",
		}, []string{"class", "outcome"}),
		switches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiomon_switches_total",
			Help: "Default device switch attempts, by class and result",
		}, []string{"class", "result"}),
		stale: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiomon_stale_decisions_total",
			Help: "Decisions discarded because a newer generation existed",
		}, []string{"class"}),
		backendErr: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiomon_backend_errors_total",
			Help: "Audio backend failures, by operation",
		}, []string{"op"}),
		generation: f.NewGauge(prometheus.GaugeOpts{
			Name: "audiomon_generation",
			Help: "Latest trigger generation issued",
		}),
		info: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audiomon_info",
			Help: "Static daemon information",
		}, []string{"version", "backend", "instance"}),
	}
}

func (m *Metrics) Trigger(kind string)              { m.triggers.WithLabelValues(kind).Inc() }
func (m *Metrics) Coalesced(kind string)            { m.coalesced.WithLabelValues(kind).Inc() }
func (m *Metrics) Evaluation(class, outcome string) { m.evals.WithLabelValues(class, outcome).Inc() }
func (m *Metrics) Switch(class, result string)      { m.switches.WithLabelValues(class, result).Inc() }
func (m *Metrics) StaleDecision(class string)       { m.stale.WithLabelValues(class).Inc() }
func (m *Metrics) BackendError(op string)           { m.backendErr.WithLabelValues(op).Inc() }
func (m *Metrics) Generation(g uint64)              { m.generation.Set(float64(g)) }

// SetInfo publishes the static info series.
func (m *Metrics) SetInfo(version, backend, instance string) {
	m.info.Reset()
	m.info.WithLabelValues(version, backend, instance).Set(1)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(m.reg, promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
}

// Serve exposes /metrics on listener until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	hs := http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}()

	if err := hs.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
