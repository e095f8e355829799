package metrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// HealthConfig sets the thresholds Health judges the round driver against.
// Zero values disable the corresponding check.
type HealthConfig struct {
	// MaxErrorRatePct fails the error-rate check when more than this
	// percentage of executed rounds trapped a VM error.
	MaxErrorRatePct uint64

	// StaleRoundAfter fails the freshness check when no round has been
	// recorded for this long. Only meaningful on hosts that run rounds
	// continuously; leave zero for on-demand drivers.
	StaleRoundAfter time.Duration

	// MaxHeapBytes fails the memory check when the sampled heap exceeds
	// this size.
	MaxHeapBytes uint64
}

// DefaultHealthConfig bounds the error rate and heap but leaves round
// freshness off, since the reference driver only runs rounds when asked.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		MaxErrorRatePct: 25,
		MaxHeapBytes:    4 << 30,
	}
}

// Check is one health judgement.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Status is the full health report served at /health.
type Status struct {
	Healthy bool    `json:"healthy"`
	Ready   bool    `json:"ready"`
	Checks  []Check `json:"checks"`
}

// Health judges the round driver's instruments against thresholds.
// Readiness is a separate, host-controlled bit: a driver is ready once its
// store is open and its servers are listening, regardless of check results.
type Health struct {
	metrics *Metrics
	cfg     HealthConfig
	ready   atomic.Bool
}

// NewHealth creates a health judge over m. nil cfg uses defaults.
func NewHealth(m *Metrics, cfg *HealthConfig) *Health {
	c := DefaultHealthConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Health{metrics: m, cfg: c}
}

// SetReady flips the readiness bit.
func (h *Health) SetReady(ready bool) { h.ready.Store(ready) }

// Ready reports the readiness bit.
func (h *Health) Ready() bool { return h.ready.Load() }

// Status runs every enabled check.
func (h *Health) Status() Status {
	s := Status{Healthy: true, Ready: h.ready.Load()}
	add := func(c Check) {
		s.Checks = append(s.Checks, c)
		if !c.OK {
			s.Healthy = false
		}
	}

	if h.cfg.MaxErrorRatePct > 0 {
		add(h.checkErrorRate())
	}
	if h.cfg.StaleRoundAfter > 0 {
		add(h.checkRoundFreshness())
	}
	if h.cfg.MaxHeapBytes > 0 {
		add(h.checkHeap())
	}
	return s
}

// Healthy reports whether every enabled check passes.
func (h *Health) Healthy() bool { return h.Status().Healthy }

func (h *Health) checkErrorRate() Check {
	rounds := h.metrics.RoundsExecuted.Value()
	if rounds == 0 {
		return Check{Name: "error-rate", OK: true, Detail: "no rounds executed yet"}
	}
	errs := h.metrics.ErrorsTotal.Value()
	pct := errs * 100 / rounds
	if pct > h.cfg.MaxErrorRatePct {
		return Check{Name: "error-rate", OK: false, Detail: percentDetail(errs, rounds, pct)}
	}
	return Check{Name: "error-rate", OK: true, Detail: percentDetail(errs, rounds, pct)}
}

func (h *Health) checkRoundFreshness() Check {
	last := h.metrics.LastRoundTime()
	if last.IsZero() {
		return Check{Name: "round-freshness", OK: true, Detail: "no rounds executed yet"}
	}
	age := time.Since(last)
	if age > h.cfg.StaleRoundAfter {
		return Check{Name: "round-freshness", OK: false, Detail: fmt.Sprintf("last round %s ago", age.Round(time.Second))}
	}
	return Check{Name: "round-freshness", OK: true}
}

func (h *Health) checkHeap() Check {
	heap := uint64(h.metrics.HeapBytes.Value())
	if heap > h.cfg.MaxHeapBytes {
		return Check{Name: "heap", OK: false, Detail: fmt.Sprintf("%d bytes in use", heap)}
	}
	return Check{Name: "heap", OK: true}
}

func percentDetail(errs, rounds, pct uint64) string {
	return fmt.Sprintf("%d/%d rounds errored (%d%%)", errs, rounds, pct)
}
