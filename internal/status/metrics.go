package status

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors Snapshot's counters as Prometheus collectors (spec
// §11.5). Build does not touch it; Observe folds a Snapshot that Build
// produced into the collectors, so both views read the same counters.
type Metrics struct {
	PoolTotal      prometheus.Gauge
	PoolFree       prometheus.Gauge
	PoolExhaustion prometheus.Counter

	SendTotal     prometheus.Counter
	EAGAINTotal   prometheus.Counter
	ENOBUFSTotal  prometheus.Counter
	ClientsActive prometheus.Gauge
	ClientsSlow   prometheus.Gauge
}

// NewMetrics constructs and registers every collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoolTotal:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rtp2httpd", Name: "buffer_pool_total"}),
		PoolFree:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rtp2httpd", Name: "buffer_pool_free"}),
		PoolExhaustion: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rtp2httpd", Name: "buffer_pool_exhaustion_total"}),
		SendTotal:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rtp2httpd", Name: "send_total"}),
		EAGAINTotal:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rtp2httpd", Name: "send_eagain_total"}),
		ENOBUFSTotal:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rtp2httpd", Name: "send_enobufs_copied_total"}),
		ClientsActive:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rtp2httpd", Name: "clients_active"}),
		ClientsSlow:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rtp2httpd", Name: "clients_slow"}),
	}

	reg.MustRegister(m.PoolTotal, m.PoolFree, m.PoolExhaustion, m.SendTotal, m.EAGAINTotal, m.ENOBUFSTotal, m.ClientsActive, m.ClientsSlow)
	return m
}

// Observe folds one Snapshot into the registered collectors. Counters
// only move forward, so Observe tracks the last-seen cumulative value and
// adds the delta (Prometheus counters have no Set()).
type counterState struct {
	lastSend, lastEAGAIN, lastENOBUFS, lastExhaustion int64
}

func (m *Metrics) Observe(snap Snapshot, state *counterState) {
	m.PoolTotal.Set(float64(snap.Pool.Total))
	m.PoolFree.Set(float64(snap.Pool.Free))

	if d := int64(snap.Pool.Exhaustion) - state.lastExhaustion; d > 0 {
		m.PoolExhaustion.Add(float64(d))
	}
	state.lastExhaustion = int64(snap.Pool.Exhaustion)

	if d := snap.SendTotal - state.lastSend; d > 0 {
		m.SendTotal.Add(float64(d))
	}
	state.lastSend = snap.SendTotal

	if d := snap.EAGAINCount - state.lastEAGAIN; d > 0 {
		m.EAGAINTotal.Add(float64(d))
	}
	state.lastEAGAIN = snap.EAGAINCount

	if d := snap.ENOBUFSCopied - state.lastENOBUFS; d > 0 {
		m.ENOBUFSTotal.Add(float64(d))
	}
	state.lastENOBUFS = snap.ENOBUFSCopied

	slow := 0
	for _, c := range snap.Clients {
		if c.Slow {
			slow++
		}
	}
	m.ClientsActive.Set(float64(len(snap.Clients)))
	m.ClientsSlow.Set(float64(slow))
}

// NewCounterState returns a zeroed delta-tracking state for Observe.
func NewCounterState() *counterState { return &counterState{} }
