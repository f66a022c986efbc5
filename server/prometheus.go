package server

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"

	"notifier/log"
)

const shutdownTimeout = 5 * time.Second

// PrometheusServer copies a go-metrics registry into prometheus gauges
// every flushInterval and serves them on /metrics.
type PrometheusServer struct {
	addr   string
	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc

	namespace     string
	registry      metrics.Registry
	subsystem     string
	promRegistry  prometheus.Registerer
	flushInterval time.Duration
	gauges        map[string]prometheus.Gauge
}

// NewPrometheusServer returns nil when addr is empty.
func NewPrometheusServer(addr string, r metrics.Registry, promRegistry prometheus.Registerer, flushInterval time.Duration) *PrometheusServer {
	if len(addr) == 0 {
		return nil
	}

	p := &PrometheusServer{
		addr:          addr,
		namespace:     "notifier",
		registry:      r,
		subsystem:     "metrics",
		promRegistry:  promRegistry,
		flushInterval: flushInterval,
		gauges:        make(map[string]prometheus.Gauge),
	}

	var handler http.Handler = promhttp.Handler()
	if g, ok := promRegistry.(prometheus.Gatherer); ok {
		handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	p.server = &http.Server{
		Addr:     addr,
		Handler:  mux,
		ErrorLog: stdlog.New(log.NewWriter(), "", 0),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

func (ps *PrometheusServer) flattenKey(key string) string {
	key = strings.Replace(key, " ", "_", -1)
	key = strings.Replace(key, ".", "_", -1)
	key = strings.Replace(key, "-", "_", -1)
	key = strings.Replace(key, "=", "_", -1)
	return key
}

func (ps *PrometheusServer) gaugeFromNameAndValue(name string, val float64) {
	key := fmt.Sprintf("%s_%s_%s", ps.namespace, ps.subsystem, name)
	g, ok := ps.gauges[key]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ps.flattenKey(ps.namespace),
			Subsystem: ps.flattenKey(ps.subsystem),
			Name:      ps.flattenKey(name),
			Help:      name,
		})
		ps.promRegistry.MustRegister(g)
		ps.gauges[key] = g
	}
	g.Set(val)
}

// Run blocks serving /metrics until Stop.
func (ps *PrometheusServer) Run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ps.updatePrometheusMetrics()
	}()

	log.Log.Infof("prometheus server listen on %s", ps.addr)
	err := ps.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Log.Errorf("PrometheusServer ListenAndServe error,err:%s", err)
	}
	ps.cancel()
	<-done
}

func (ps *PrometheusServer) Stop() {
	ps.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ps.server.Shutdown(ctx); err != nil {
		log.Log.Errorf("PrometheusServer Shutdown error,err:%s", err)
	}
}

func (ps *PrometheusServer) updatePrometheusMetrics() {
	tick := time.NewTicker(ps.flushInterval)
	defer tick.Stop()
	for {
		select {
		case <-ps.ctx.Done():
			return
		case <-tick.C:
			log.Log.Debugf("update Prometheus Metrics Once")
			ps.updatePrometheusMetricsOnce()
		}
	}
}

func (ps *PrometheusServer) updatePrometheusMetricsOnce() {
	ps.registry.Each(func(name string, i interface{}) {
		switch metric := i.(type) {
		case metrics.Counter:
			ps.gaugeFromNameAndValue(name, float64(metric.Count()))
		case metrics.Gauge:
			ps.gaugeFromNameAndValue(name, float64(metric.Value()))
		case metrics.GaugeFloat64:
			ps.gaugeFromNameAndValue(name, metric.Value())
		case metrics.Histogram:
			snap := metric.Snapshot()
			ps.gaugeFromNameAndValue(name+".mean", snap.Mean())
			ps.gaugeFromNameAndValue(name+".p95", snap.Percentile(0.95))
			ps.gaugeFromNameAndValue(name+".max", float64(snap.Max()))
		case metrics.Meter:
			snap := metric.Snapshot()
			ps.gaugeFromNameAndValue(name, snap.Rate1())
			ps.gaugeFromNameAndValue(name+".count", float64(snap.Count()))
		case metrics.Timer:
			ps.gaugeFromNameAndValue(name, metric.Snapshot().Rate1())
		}
	})
}
