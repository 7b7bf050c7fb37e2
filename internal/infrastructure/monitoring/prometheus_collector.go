package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes the signaling metrics. It registers against the given
// registerer so tests can use an isolated registry.
type Collector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	evictionsTotal    prometheus.Counter
	envelopesRelayed  *prometheus.CounterVec
	envelopesDropped  *prometheus.CounterVec
	broadcastsTotal   *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "campuschat_signal_connections_active",
			Help: "Number of currently registered signaling connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "campuschat_signal_connections_total",
			Help: "Total number of accepted signaling connections",
		}),

		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "campuschat_signal_evictions_total",
			Help: "Total number of connections evicted by the liveness sweep",
		}),

		envelopesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campuschat_signal_envelopes_relayed_total",
			Help: "Total number of envelopes relayed between peers",
		}, []string{"type"}),

		envelopesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campuschat_signal_envelopes_dropped_total",
			Help: "Total number of envelopes dropped by the relay",
		}, []string{"reason"}),

		broadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campuschat_signal_broadcasts_total",
			Help: "Total number of presence broadcasts",
		}, []string{"type"}),
	}
}

func (c *Collector) ConnectionOpened(active int) {
	c.connectionsTotal.Inc()
	c.connectionsActive.Set(float64(active))
}

func (c *Collector) ConnectionClosed(active int) {
	c.connectionsActive.Set(float64(active))
}

func (c *Collector) ConnectionEvicted() {
	c.evictionsTotal.Inc()
}

func (c *Collector) EnvelopeRelayed(envelopeType string) {
	c.envelopesRelayed.WithLabelValues(envelopeType).Inc()
}

func (c *Collector) EnvelopeDropped(reason string) {
	c.envelopesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) Broadcast(envelopeType string) {
	c.broadcastsTotal.WithLabelValues(envelopeType).Inc()
}
