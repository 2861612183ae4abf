// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for channel and buffer-pool activity.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-bridge/pool"
	"github.com/momentics/hioload-bridge/transport"
)

const namespace = "hioload_bridge"

// Metrics records transport and pool events. It satisfies both
// transport.Recorder and pool.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	reads          prometheus.Counter
	writes         prometheus.Counter
	partialWrites  prometheus.Counter
	writeInterest  prometheus.Counter
	accepted       prometheus.Counter
	exceptions     prometheus.Counter
	activeChannels prometheus.Gauge
	allocations    *prometheus.CounterVec
	frees          *prometheus.CounterVec
	liveHandles    prometheus.Gauge
}

var (
	_ transport.Recorder = (*Metrics)(nil)
	_ pool.Recorder      = (*Metrics)(nil)
)

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

// NewMetrics creates a private registry with every collector registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:      prometheus.NewRegistry(),
		bytesRead:     counter("channel", "read_bytes_total", "Bytes read from connections."),
		bytesWritten:  counter("channel", "written_bytes_total", "Bytes written to connections."),
		reads:         counter("channel", "reads_total", "Read cycles that returned data."),
		writes:        counter("channel", "writes_total", "Write calls that moved bytes."),
		partialWrites: counter("channel", "partial_writes_total", "Writes that left bytes pending."),
		writeInterest: counter("channel", "write_interest_total", "Times write readiness was requested."),
		accepted:      counter("server", "accepted_total", "Connections accepted."),
		exceptions:    counter("channel", "exceptions_total", "Exceptions fired into pipelines."),
		activeChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "channel", Name: "active",
			Help: "Channels currently active.",
		}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "allocations_total",
			Help: "Direct buffer handles allocated, by origin.",
		}, []string{"origin"}),
		frees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "frees_total",
			Help: "Direct buffer handles freed, by origin.",
		}, []string{"origin"}),
		liveHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "live_handles",
			Help: "Direct buffer handles not yet freed.",
		}),
	}
	m.registry.MustRegister(
		m.bytesRead, m.bytesWritten, m.reads, m.writes, m.partialWrites,
		m.writeInterest, m.accepted, m.exceptions, m.activeChannels,
		m.allocations, m.frees, m.liveHandles,
	)
	return m
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BytesRead(n int) {
	if n <= 0 {
		return
	}
	m.reads.Inc()
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) BytesWritten(n int64) {
	if n <= 0 {
		return
	}
	m.writes.Inc()
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) PartialWrite()    { m.partialWrites.Inc() }
func (m *Metrics) WriteInterest()   { m.writeInterest.Inc() }
func (m *Metrics) Accepted()        { m.accepted.Inc() }
func (m *Metrics) Exception()       { m.exceptions.Inc() }
func (m *Metrics) ChannelActive()   { m.activeChannels.Inc() }
func (m *Metrics) ChannelInactive() { m.activeChannels.Dec() }

func (m *Metrics) HandleAllocated(origin pool.Origin) {
	m.allocations.WithLabelValues(origin.String()).Inc()
	m.liveHandles.Inc()
}

func (m *Metrics) HandleFreed(origin pool.Origin) {
	m.frees.WithLabelValues(origin.String()).Inc()
	m.liveHandles.Dec()
}

// GetSnapshot flattens the registry into name{label} -> value. Gather errors
// yield an empty snapshot.
func (m *Metrics) GetSnapshot() map[string]float64 {
	out := make(map[string]float64)
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, mf := range families {
		for _, mt := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range mt.GetLabel() {
				key += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch {
			case mt.GetCounter() != nil:
				out[key] = mt.GetCounter().GetValue()
			case mt.GetGauge() != nil:
				out[key] = mt.GetGauge().GetValue()
			}
		}
	}
	return out
}
