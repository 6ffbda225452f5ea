package dispatcher

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics counts protocol commands. Totals are lock-free; per-method
// figures share one mutex.
type Metrics struct {
	dispatches atomic.Uint64
	errors     atomic.Uint64
	panics     atomic.Uint64

	mu      sync.Mutex
	methods map[string]*MethodMetrics
}

// MethodMetrics describes one protocol method.
type MethodMetrics struct {
	Name          string
	DispatchCount uint64
	ErrorCount    uint64
	PanicCount    uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
	LastDispatch  time.Time
}

// Domain returns the part of the method name before the dot.
func (mm MethodMetrics) Domain() string {
	domain, _, _ := strings.Cut(mm.Name, ".")
	return domain
}

// Mean returns the mean handler time.
func (mm MethodMetrics) Mean() time.Duration {
	if mm.DispatchCount == 0 {
		return 0
	}
	return mm.TotalDuration / time.Duration(mm.DispatchCount)
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{methods: make(map[string]*MethodMetrics)}
}

func (m *Metrics) method(name string) *MethodMetrics {
	mm, ok := m.methods[name]
	if !ok {
		mm = &MethodMetrics{Name: name}
		m.methods[name] = mm
	}
	return mm
}

// RecordDispatch counts one handled command.
func (m *Metrics) RecordDispatch(method string, d time.Duration, failed bool) {
	m.dispatches.Add(1)
	if failed {
		m.errors.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mm := m.method(method)
	mm.DispatchCount++
	mm.TotalDuration += d
	mm.MaxDuration = max(mm.MaxDuration, d)
	mm.LastDispatch = time.Now()
	if failed {
		mm.ErrorCount++
	}
}

// RecordPanic counts a handler panic. The dispatch itself is recorded
// separately as a failure.
func (m *Metrics) RecordPanic(method string) {
	m.panics.Add(1)
	m.mu.Lock()
	m.method(method).PanicCount++
	m.mu.Unlock()
}

// TotalDispatches returns the number of commands handled.
func (m *Metrics) TotalDispatches() uint64 { return m.dispatches.Load() }

// TotalErrors returns the number of commands answered with an error.
func (m *Metrics) TotalErrors() uint64 { return m.errors.Load() }

// TotalPanics returns the number of recovered handler panics.
func (m *Metrics) TotalPanics() uint64 { return m.panics.Load() }

// MethodStats returns a copy of the figures for method, or nil.
func (m *Metrics) MethodStats(method string) *MethodMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm, ok := m.methods[method]
	if !ok {
		return nil
	}
	out := *mm
	return &out
}

// TopMethods returns the n most used methods, ties broken by name.
func (m *Metrics) TopMethods(n int) []MethodMetrics {
	all := m.snapshot()
	sort.Slice(all, func(i, j int) bool {
		if all[i].DispatchCount != all[j].DispatchCount {
			return all[i].DispatchCount > all[j].DispatchCount
		}
		return all[i].Name < all[j].Name
	})
	return all[:min(n, len(all))]
}

// DomainCounts sums dispatches per protocol domain.
func (m *Metrics) DomainCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	for _, mm := range m.snapshot() {
		counts[mm.Domain()] += mm.DispatchCount
	}
	return counts
}

func (m *Metrics) snapshot() []MethodMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MethodMetrics, 0, len(m.methods))
	for _, mm := range m.methods {
		out = append(out, *mm)
	}
	return out
}
