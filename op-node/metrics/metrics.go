// Package metrics exposes the node's Prometheus metrics: head-block
// gauges, a derivation-error counter by kind and an attributes counter, in the naming style of
// op-node's own metrics package.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "op_node"

type Metrics struct {
	registry *prometheus.Registry

	UnsafeHead    prometheus.Gauge
	SafeHead      prometheus.Gauge
	FinalizedHead prometheus.Gauge

	L1Head prometheus.Gauge

	DerivationErrors *prometheus.CounterVec
	AttributesBuilt  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		UnsafeHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "unsafe_head", Help: "Highest L2 block number the driver has built.",
		}),
		SafeHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "safe_head", Help: "Highest L2 block number derived from L1 data.",
		}),
		FinalizedHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "finalized_head", Help: "Highest L2 block number covered by a finalized L1 origin.",
		}),
		L1Head: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "l1_head", Help: "Highest L1 block number the L1 Source has ingested.",
		}),
		DerivationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "derivation_errors_total", Help: "Count of derivation errors by classification.",
		}, []string{"kind"}),
		AttributesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Name: "attributes_built_total", Help: "Count of PayloadAttributes submitted to the execution client.",
		}),
	}
	registry.MustRegister(m.UnsafeHead, m.SafeHead, m.FinalizedHead, m.L1Head, m.DerivationErrors, m.AttributesBuilt)
	return m
}

// Handler returns an http.Handler exposing the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
