package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/plankton-sim/plankton-go/pkg/log"
)

const namespace = "plankton"

// Metrics holds the simulator's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	mu     sync.Mutex
	cycles uint64

	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	DeviceState      *prometheus.GaugeVec

	Cycles     prometheus.Counter
	Runtime    prometheus.Gauge
	Uptime     prometheus.Gauge
	Paused     prometheus.Gauge
	Speed      prometheus.Gauge
	CycleDelay prometheus.Gauge
}

// New creates the collectors. Go runtime and process collectors are
// registered as well.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests answered by adapters and the control server",
		}, []string{"protocol", "command", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from receiving a request until its reply",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1},
		}, []string{"protocol"}),

		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error events by layer",
		}, []string{"layer"}),

		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_state_transitions_total",
			Help:      "Device state machine transitions",
			// "from" is empty for the initial state.
		}, []string{"device", "from", "to"}),

		DeviceState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_state",
			Help:      "1 for the current state of each device",
		}, []string{"device", "state"}),

		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_cycles_total",
			Help:      "Simulation cycles run",
		}),
		Runtime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_runtime_seconds",
			Help:      "Simulated time passed in the device",
		}),
		Uptime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_uptime_seconds",
			Help:      "Wall clock time since the simulation started",
		}),
		Paused: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_paused",
			Help:      "1 while the simulation is paused",
		}),
		Speed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_speed",
			Help:      "Simulation speed factor",
		}),
		CycleDelay: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_cycle_delay_seconds",
			Help:      "Configured delay between simulation cycles",
		}),
	}
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Log implements log.Logger. Responses count as requests; state changes
// of devices update the transition counter and the state gauge.
func (m *Metrics) Log(event log.Event) {
	switch event.Category {
	case log.CategoryMessage:
		msg := event.Message
		if msg == nil || msg.Type != log.MessageTypeResponse {
			return
		}
		protocol := msg.Protocol
		if protocol == "" {
			protocol = "unknown"
		}
		m.Requests.WithLabelValues(protocol, msg.Command, msg.Status.String()).Inc()
		if msg.ProcessingTime != nil {
			m.RequestDuration.WithLabelValues(protocol).Observe(msg.ProcessingTime.Seconds())
		}

	case log.CategoryState:
		sc := event.StateChange
		if sc == nil || sc.Entity != log.StateEntityDevice {
			return
		}
		m.StateTransitions.WithLabelValues(event.Device, sc.OldState, sc.NewState).Inc()
		if sc.OldState != "" {
			m.DeviceState.WithLabelValues(event.Device, sc.OldState).Set(0)
		}
		m.DeviceState.WithLabelValues(event.Device, sc.NewState).Set(1)

	case log.CategoryError:
		m.Errors.WithLabelValues(event.Layer.String()).Inc()
	}
}

var _ log.Logger = (*Metrics)(nil)

// SimulationStatus is a snapshot of the simulation counters.
type SimulationStatus struct {
	Cycles     uint64
	Runtime    float64
	Uptime     float64
	Paused     bool
	Speed      float64
	CycleDelay float64
}

// Observe updates the simulation gauges. Cycles only ever grow; a smaller
// value than already counted is ignored.
func (m *Metrics) Observe(s SimulationStatus) {
	m.mu.Lock()
	if s.Cycles > m.cycles {
		m.Cycles.Add(float64(s.Cycles - m.cycles))
		m.cycles = s.Cycles
	}
	m.mu.Unlock()

	m.Runtime.Set(s.Runtime)
	m.Uptime.Set(s.Uptime)
	if s.Paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
	m.Speed.Set(s.Speed)
	m.CycleDelay.Set(s.CycleDelay)
}
