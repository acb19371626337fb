// Package metrics is a small in-process collector exposed on the /metrics
// endpoint. Counters track command throughput, gauges track partition sizes
// and health checks track the dependencies the service needs to stay useful.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects service-level counters, gauges and health flags
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates an empty collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	atomic.AddInt64(m.slot(&m.counters, name), value)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(&m.gauges, name), value)
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, healthy bool) {
	var value int64
	if healthy {
		value = 1
	}
	atomic.StoreInt64(m.slot(&m.healthChecks, component), value)
}

// slot returns the stable pointer for a named value, creating it on first use
func (m *Metrics) slot(table *map[string]*int64, name string) *int64 {
	m.mu.RLock()
	slot, exists := (*table)[name]
	m.mu.RUnlock()
	if exists {
		return slot
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, exists = (*table)[name]; !exists {
		var v int64
		slot = &v
		(*table)[name] = slot
	}
	return slot
}

// GetCounters returns a snapshot of all counters
func (m *Metrics) GetCounters() map[string]int64 {
	return m.snapshot(m.counters)
}

// GetGauges returns a snapshot of all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	return m.snapshot(m.gauges)
}

// GetHealthChecks returns the health status of every tracked component
func (m *Metrics) GetHealthChecks() map[string]bool {
	checks := make(map[string]bool)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, health := range m.healthChecks {
		checks[name] = atomic.LoadInt64(health) > 0
	}
	return checks
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns every metric in the shape served on /metrics
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"health_checks":  m.GetHealthChecks(),
	}
}

func (m *Metrics) snapshot(table map[string]*int64) map[string]int64 {
	values := make(map[string]int64)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, slot := range table {
		values[name] = atomic.LoadInt64(slot)
	}
	return values
}
