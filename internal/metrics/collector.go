// Package metrics 以 Prometheus 格式暴露连接池占用与回源计数。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/repohub/internal/pool"
)

const namespace = "repohub"

// Collector 记录请求结果与上游回源，实现 proxy.Observer。
type Collector struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchBytes    *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
}

// NewCollector 在独立 registry 上构建 collector。manager 非 nil 时每次抓取都导出各 origin 统计。
func NewCollector(manager *pool.Manager) *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Resolved requests by repository, type and outcome.",
		}, []string{"repository", "type", "outcome"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "cache_hits_total",
			Help:      "Proxy requests served from the local store.",
		}, []string{"repository"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "cache_misses_total",
			Help:      "Proxy requests that required an upstream fetch.",
		}, []string{"repository"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch duration including checksum validation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"repository"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "fetch_bytes_total",
			Help:      "Bytes stored from upstream fetches.",
		}, []string{"repository"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "fetch_errors_total",
			Help:      "Failed upstream fetches.",
		}, []string{"repository"}),
	}
	registry.MustRegister(c.requests, c.cacheHits, c.cacheMisses, c.fetchDuration, c.fetchBytes, c.fetchErrors)
	if manager != nil {
		registry.MustRegister(newPoolCollector(manager))
	}
	return c
}

// Registry 暴露底层 registry，主要供测试使用。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 以 Prometheus 文本格式输出 registry。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Request 统计一次已完成的请求。
func (c *Collector) Request(repository, repoType, outcome string) {
	c.requests.WithLabelValues(repository, repoType, outcome).Inc()
}

func (c *Collector) CacheHit(repository string) {
	c.cacheHits.WithLabelValues(repository).Inc()
}

func (c *Collector) CacheMiss(repository string) {
	c.cacheMisses.WithLabelValues(repository).Inc()
}

func (c *Collector) Fetch(repository string, elapsed time.Duration, bytes int64, err error) {
	c.fetchDuration.WithLabelValues(repository).Observe(elapsed.Seconds())
	if err != nil {
		c.fetchErrors.WithLabelValues(repository).Inc()
		return
	}
	c.fetchBytes.WithLabelValues(repository).Add(float64(bytes))
}
