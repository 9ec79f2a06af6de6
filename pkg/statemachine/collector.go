package statemachine

import "github.com/prometheus/client_golang/prometheus"

// Collector 将状态机指标导出为 Prometheus 指标
type Collector struct {
	machines []*Machine
	events   *prometheus.Desc
	inFlight *prometheus.Desc
	avgWait  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector 创建收集器，machines 在收集时读取快照
func NewCollector(machines ...*Machine) *Collector {
	return &Collector{
		machines: machines,
		events: prometheus.NewDesc(
			"fsm_events_total",
			"Events handled by the machine, partitioned by result.",
			[]string{"machine", "result"}, nil,
		),
		inFlight: prometheus.NewDesc(
			"fsm_deferred_inflight",
			"Deferred transitions currently awaiting resolution.",
			[]string{"machine"}, nil,
		),
		avgWait: prometheus.NewDesc(
			"fsm_deferred_avg_seconds",
			"Average time taken by resolved deferred transitions.",
			[]string{"machine"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.inFlight
	ch <- c.avgWait
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.machines {
		s := m.Metrics()
		id := m.ID()

		results := []struct {
			name  string
			value int64
		}{
			{"succeeded", s.Succeeded},
			{"no_match", s.NoMatch},
			{"cancelled", s.Cancelled},
			{"unavailable", s.Unavailable},
			{"panic", s.Panics},
		}
		for _, r := range results {
			ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(r.value), id, r.name)
		}

		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.InFlight), id)
		ch <- prometheus.MustNewConstMetric(c.avgWait, prometheus.GaugeValue, s.AvgDeferredTime.Seconds(), id)
	}
}
