package hub

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the hub's Prometheus collectors.
type Metrics struct {
	Clients   prometheus.Gauge
	Channels  prometheus.Gauge
	Published prometheus.Counter
	Delivered prometheus.Counter
	Dropped   prometheus.Counter
	Skipped   prometheus.Counter
	Evicted   prometheus.Counter
}

// NewMetrics creates the hub collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gohub",
			Name:      "clients",
			Help:      "Number of registered clients",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gohub",
			Name:      "channels",
			Help:      "Number of live channels",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gohub",
			Name:      "messages_published_total",
			Help:      "Messages published to existing channels",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gohub",
			Name:      "deliveries_total",
			Help:      "Messages enqueued on a client outbox",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gohub",
			Name:      "deliveries_dropped_total",
			Help:      "Deliveries rejected because the client outbox was full",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gohub",
			Name:      "deliveries_skipped_total",
			Help:      "Deliveries skipped because the client was being torn down",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gohub",
			Name:      "clients_evicted_total",
			Help:      "Clients disconnected for exceeding the consecutive drop limit",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Clients, m.Channels, m.Published, m.Delivered, m.Dropped, m.Skipped, m.Evicted)
	}
	return m
}

func (m *Metrics) observePublish(r PublishReport) {
	m.Published.Inc()
	m.Delivered.Add(float64(r.Delivered))
	m.Dropped.Add(float64(r.Dropped))
	m.Skipped.Add(float64(r.Skipped))
}
