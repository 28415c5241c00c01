// Package metrics owns the Prometheus registry served on /metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/geoportal/internal/core/observability"
)

const namespace = "geoportal"

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Config struct {
	Build BuildInfo
	// Runtime adds the Go and process collectors.
	Runtime bool
}

// Provider is the service registry plus the gauges it owns directly.
type Provider struct {
	reg         *prometheus.Registry
	dependency  *prometheus.GaugeVec
	checkTiming *prometheus.HistogramVec
}

// Init builds a private registry carrying build info, dependency health and the
// application collectors from observability.
func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	if cfg.Runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build info for this binary (value is always 1).",
		ConstLabels: prometheus.Labels{
			"version": v.Version, "revision": v.Revision, "build_date": v.BuildDate,
		},
	})
	build.Set(1)

	p := &Provider{
		reg: reg,
		dependency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "1 when the last readiness check of a dependency succeeded.",
		}, []string{"dependency"}),
		checkTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dependency_check_seconds",
			Help:      "Readiness check latency per dependency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"dependency"}),
	}
	reg.MustRegister(build, p.dependency, p.checkTiming)

	observability.Init(reg)
	return p
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Track wraps a dependency check so every run updates dependency_up and its latency.
func (p *Provider) Track(name string, check func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		err := check(ctx)
		p.checkTiming.WithLabelValues(name).Observe(time.Since(start).Seconds())
		up := 1.0
		if err != nil {
			up = 0
		}
		p.dependency.WithLabelValues(name).Set(up)
		return err
	}
}
