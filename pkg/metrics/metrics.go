// Package metrics instruments the AT round driver: how many rounds ran,
// what they consumed (opcodes, steps, fees), how the machines were disposed
// of (slept, froze, finished, errored), and what the store holds. All
// instruments render in Prometheus text format through Server.
package metrics

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing value.
type Counter struct {
	name string
	help string
	v    atomic.Uint64
}

// NewCounter creates a counter. Counters made outside NewMetrics must be
// attached to a Metrics set via Attach to be rendered.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// Inc adds one.
func (c *Counter) Inc() { c.v.Add(1) }

// Add adds n.
func (c *Counter) Add(n uint64) { c.v.Add(n) }

// Value returns the current count.
func (c *Counter) Value() uint64 { return c.v.Load() }

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

func (c *Counter) writeProm(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
	fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
	fmt.Fprintf(w, "%s %d\n", c.name, c.Value())
}

// Gauge is a value that can move in both directions.
type Gauge struct {
	name string
	help string
	v    atomic.Int64
}

// NewGauge creates a gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

// Set stores v.
func (g *Gauge) Set(v int64) { g.v.Store(v) }

// SetUint64 stores v.
func (g *Gauge) SetUint64(v uint64) { g.v.Store(int64(v)) }

// Value returns the current value.
func (g *Gauge) Value() int64 { return g.v.Load() }

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

func (g *Gauge) writeProm(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)
	fmt.Fprintf(w, "%s %d\n", g.name, g.Value())
}

// roundDurationBounds are the fixed histogram buckets for RunRound wall
// time. Rounds are step-capped, so the interesting range is sub-second;
// anything beyond a few seconds means the host is in trouble, not the VM.
var roundDurationBounds = []time.Duration{
	100 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	25 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
}

// DurationHistogram is a fixed-bucket histogram of elapsed times.
type DurationHistogram struct {
	name   string
	help   string
	bounds []time.Duration
	counts []atomic.Uint64 // one per bound, plus +Inf at the end
	sumNs  atomic.Int64
	total  atomic.Uint64
}

// NewDurationHistogram creates a histogram over the given bucket bounds
// (nil uses the round-duration defaults).
func NewDurationHistogram(name, help string, bounds []time.Duration) *DurationHistogram {
	if bounds == nil {
		bounds = roundDurationBounds
	}
	return &DurationHistogram{
		name:   name,
		help:   help,
		bounds: bounds,
		counts: make([]atomic.Uint64, len(bounds)+1),
	}
}

// Observe records one elapsed time.
func (h *DurationHistogram) Observe(d time.Duration) {
	idx := len(h.bounds)
	for i, b := range h.bounds {
		if d <= b {
			idx = i
			break
		}
	}
	h.counts[idx].Add(1)
	h.sumNs.Add(int64(d))
	h.total.Add(1)
}

// Count returns the number of observations.
func (h *DurationHistogram) Count() uint64 { return h.total.Load() }

// Name returns the metric name.
func (h *DurationHistogram) Name() string { return h.name }

func (h *DurationHistogram) writeProm(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", h.name)
	var cumulative uint64
	for i, b := range h.bounds {
		cumulative += h.counts[i].Load()
		fmt.Fprintf(w, "%s_bucket{le=\"%g\"} %d\n", h.name, b.Seconds(), cumulative)
	}
	cumulative += h.counts[len(h.bounds)].Load()
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, cumulative)
	fmt.Fprintf(w, "%s_sum %g\n", h.name, time.Duration(h.sumNs.Load()).Seconds())
	fmt.Fprintf(w, "%s_count %d\n", h.name, cumulative)
}

type promWriter interface {
	Name() string
	writeProm(io.Writer)
}

// Metrics is the round driver's instrument set.
type Metrics struct {
	RoundsExecuted   *Counter
	OpcodesExecuted  *Counter
	StepsCharged     *Counter
	FeesChargedTotal *Counter
	MachinesSlept    *Counter
	MachinesFrozen   *Counter
	MachinesFinished *Counter
	ErrorsTotal      *Counter

	MachinesDeployed *Gauge
	StoreSizeBytes   *Gauge
	HeapBytes        *Gauge
	Goroutines       *Gauge

	RoundDuration *DurationHistogram

	lastRoundUnixNano atomic.Int64

	instruments []promWriter
}

// NewMetrics creates the full instrument set.
func NewMetrics() *Metrics {
	m := &Metrics{
		RoundsExecuted:   NewCounter("atvm_rounds_executed_total", "Rounds executed"),
		OpcodesExecuted:  NewCounter("atvm_opcodes_executed_total", "Opcodes executed across all rounds"),
		StepsCharged:     NewCounter("atvm_steps_charged_total", "Steps charged against max_steps_per_round"),
		FeesChargedTotal: NewCounter("atvm_fees_charged_total", "Fee units charged across all rounds"),
		MachinesSlept:    NewCounter("atvm_machines_slept_total", "Rounds that ended with the machine sleeping"),
		MachinesFrozen:   NewCounter("atvm_machines_frozen_total", "Rounds that ended with the machine frozen"),
		MachinesFinished: NewCounter("atvm_machines_finished_total", "Machines that reached the terminal finished state"),
		ErrorsTotal:      NewCounter("atvm_errors_total", "Rounds that trapped a VM error"),

		MachinesDeployed: NewGauge("atvm_machines_deployed", "Machines currently deployed in the store"),
		StoreSizeBytes:   NewGauge("atvm_store_size_bytes", "On-disk size of the machine store"),
		HeapBytes:        NewGauge("atvm_heap_bytes", "Go heap in use"),
		Goroutines:       NewGauge("atvm_goroutines", "Live goroutines"),

		RoundDuration: NewDurationHistogram("atvm_round_duration_seconds", "RunRound wall time", nil),
	}
	m.instruments = []promWriter{
		m.RoundsExecuted, m.OpcodesExecuted, m.StepsCharged, m.FeesChargedTotal,
		m.MachinesSlept, m.MachinesFrozen, m.MachinesFinished, m.ErrorsTotal,
		m.MachinesDeployed, m.StoreSizeBytes, m.HeapBytes, m.Goroutines,
		m.RoundDuration,
	}
	return m
}

// Attach adds an extra instrument to the rendered set.
func (m *Metrics) Attach(p promWriter) {
	m.instruments = append(m.instruments, p)
}

// Get returns the instrument with the given name, or nil.
func (m *Metrics) Get(name string) promWriter {
	for _, p := range m.instruments {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// RoundOutcome summarizes one RunRound call: what it consumed and which
// disposition flags the post-round step left set.
type RoundOutcome struct {
	Opcodes  uint64
	Steps    uint64
	Fee      uint64
	Slept    bool
	Froze    bool
	Finished bool
	Errored  bool
}

// RecordRound records one completed round.
func (m *Metrics) RecordRound(o RoundOutcome, duration time.Duration) {
	m.RoundsExecuted.Inc()
	m.OpcodesExecuted.Add(o.Opcodes)
	m.StepsCharged.Add(o.Steps)
	m.FeesChargedTotal.Add(o.Fee)
	if o.Slept {
		m.MachinesSlept.Inc()
	}
	if o.Froze {
		m.MachinesFrozen.Inc()
	}
	if o.Finished {
		m.MachinesFinished.Inc()
	}
	if o.Errored {
		m.ErrorsTotal.Inc()
	}
	m.RoundDuration.Observe(duration)
	m.lastRoundUnixNano.Store(time.Now().UnixNano())
}

// UpdateMachinesDeployed sets the deployed-machine gauge from the store's
// current count.
func (m *Metrics) UpdateMachinesDeployed(count uint64) {
	m.MachinesDeployed.SetUint64(count)
}

// LastRoundTime returns when RecordRound last fired (zero time if never).
func (m *Metrics) LastRoundTime() time.Time {
	ns := m.lastRoundUnixNano.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// WriteProm renders every instrument in Prometheus text format.
func (m *Metrics) WriteProm(w io.Writer) {
	for _, p := range m.instruments {
		p.writeProm(w)
	}
}

// Format renders the instrument set as a string.
func (m *Metrics) Format() string {
	var sb strings.Builder
	m.WriteProm(&sb)
	return sb.String()
}
