package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveStats exposes state read at scrape time.
type LiveStats interface {
	SSESubscriberCount() int
	BridgeConnected() bool
	TranslationsInFlight() int
	CatalogReloads() int64
}

// Collector implements prometheus.Collector over LiveStats.
type Collector struct {
	stats LiveStats

	sseSubscribers  *prometheus.Desc
	bridgeConnected *prometheus.Desc
	inFlight        *prometheus.Desc
	catalogReloads  *prometheus.Desc
}

// NewCollector creates a collector. stats may be nil; every gauge then reads 0.
func NewCollector(stats LiveStats) *Collector {
	return &Collector{
		stats: stats,
		sseSubscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sse_subscribers_active"),
			"Current number of SSE subscribers.",
			nil, nil,
		),
		bridgeConnected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "bridge", "connected"),
			"1 when a platform client is attached.",
			nil, nil,
		),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "translations_in_flight"),
			"Translation batches currently awaiting the service.",
			nil, nil,
		),
		catalogReloads: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "catalog", "reloads"),
			"Successful catalog file reloads since start.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sseSubscribers
	ch <- c.bridgeConnected
	ch <- c.inFlight
	ch <- c.catalogReloads
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var subs, connected, inFlight, reloads float64
	if c.stats != nil {
		subs = float64(c.stats.SSESubscriberCount())
		if c.stats.BridgeConnected() {
			connected = 1
		}
		inFlight = float64(c.stats.TranslationsInFlight())
		reloads = float64(c.stats.CatalogReloads())
	}
	ch <- prometheus.MustNewConstMetric(c.sseSubscribers, prometheus.GaugeValue, subs)
	ch <- prometheus.MustNewConstMetric(c.bridgeConnected, prometheus.GaugeValue, connected)
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, inFlight)
	ch <- prometheus.MustNewConstMetric(c.catalogReloads, prometheus.CounterValue, reloads)
}
