package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/any-hub/repohub/internal/pool"
)

// poolCollector 在抓取时读取 pool.Manager 统计，不把每次 acquire/release 同步到 gauge。
type poolCollector struct {
	manager   *pool.Manager
	leased    *prometheus.Desc
	allocated *prometheus.Desc
	maxOrigin *prometheus.Desc
	total     *prometheus.Desc
}

func newPoolCollector(manager *pool.Manager) *poolCollector {
	labels := []string{"origin"}
	return &poolCollector{
		manager:   manager,
		leased:    prometheus.NewDesc(namespace+"_pool_leased", "Connections currently leased per origin.", labels, nil),
		allocated: prometheus.NewDesc(namespace+"_pool_allocated", "Peak concurrent leases per origin.", labels, nil),
		maxOrigin: prometheus.NewDesc(namespace+"_pool_max_per_origin", "Current per-origin cap.", labels, nil),
		total:     prometheus.NewDesc(namespace+"_pool_leased_total", "Connections leased across all origins.", nil, nil),
	}
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.leased
	ch <- p.allocated
	ch <- p.maxOrigin
	ch <- p.total
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range p.manager.AllStats() {
		ch <- prometheus.MustNewConstMetric(p.leased, prometheus.GaugeValue, float64(s.Leased), s.Origin)
		ch <- prometheus.MustNewConstMetric(p.allocated, prometheus.GaugeValue, float64(s.Allocated), s.Origin)
		ch <- prometheus.MustNewConstMetric(p.maxOrigin, prometheus.GaugeValue, float64(s.MaxPerOrigin), s.Origin)
	}
	ch <- prometheus.MustNewConstMetric(p.total, prometheus.GaugeValue, float64(p.manager.TotalLeased()))
}
