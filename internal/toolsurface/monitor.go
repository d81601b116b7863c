package toolsurface

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// defaultWindowSize bounds the rolling-mean-latency window per operation.
const defaultWindowSize = 50

// Monitor records per-operation call outcomes into OTel instruments for
// export, and keeps a small in-process rolling window so
// get_performance_analytics_dashboard can report a mean latency and
// error rate without querying back through a metrics backend.
type Monitor struct {
	callsTotal   metric.Int64Counter
	errorsTotal  metric.Int64Counter
	callDuration metric.Float64Histogram

	mu         sync.Mutex
	windows    map[string]*window
	windowSize int
}

type window struct {
	latenciesMS []float64
	calls       int64
	errors      int64
	next        int
}

// NewMonitor builds a Monitor backed by meter. meter may be the no-op
// meter from otel.GetMeterProvider() when no SDK is configured — every
// instrument call degrades to a no-op in that case, so callers never
// need a nil check.
func NewMonitor(meter metric.Meter) (*Monitor, error) {
	callsTotal, err := meter.Int64Counter("chronicle.tool.calls.total",
		metric.WithDescription("Total tool invocations"), metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	errorsTotal, err := meter.Int64Counter("chronicle.tool.errors.total",
		metric.WithDescription("Total tool invocation errors"), metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}
	callDuration, err := meter.Float64Histogram("chronicle.tool.call.duration",
		metric.WithDescription("Tool call duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Monitor{
		callsTotal:   callsTotal,
		errorsTotal:  errorsTotal,
		callDuration: callDuration,
		windows:      make(map[string]*window),
		windowSize:   defaultWindowSize,
	}, nil
}

// Call wraps fn, recording its duration and success against operation.
func (m *Monitor) Call(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.record(ctx, operation, time.Since(start), err == nil)
	return err
}

func (m *Monitor) record(ctx context.Context, operation string, dur time.Duration, success bool) {
	attrs := attribute.NewSet(attribute.String("operation", operation), attribute.Bool("success", success))
	ms := float64(dur.Microseconds()) / 1000.0

	m.callsTotal.Add(ctx, 1, metric.WithAttributeSet(attrs))
	m.callDuration.Record(ctx, ms, metric.WithAttributeSet(attrs))
	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[operation]
	if !ok {
		w = &window{latenciesMS: make([]float64, 0, m.windowSize)}
		m.windows[operation] = w
	}
	w.calls++
	if !success {
		w.errors++
	}
	if len(w.latenciesMS) < m.windowSize {
		w.latenciesMS = append(w.latenciesMS, ms)
	} else {
		w.latenciesMS[w.next] = ms
		w.next = (w.next + 1) % m.windowSize
	}
}

// OperationStats is the rolling snapshot for one operation.
type OperationStats struct {
	Operation       string
	TotalCalls      int64
	TotalErrors     int64
	ErrorRate       float64
	MeanLatencyMS   float64
	WindowedSamples int
}

// Snapshot returns the current rolling stats for every operation that
// has been called at least once.
func (m *Monitor) Snapshot() []OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OperationStats, 0, len(m.windows))
	for op, w := range m.windows {
		var sum float64
		for _, v := range w.latenciesMS {
			sum += v
		}
		mean := 0.0
		if len(w.latenciesMS) > 0 {
			mean = sum / float64(len(w.latenciesMS))
		}
		errRate := 0.0
		if w.calls > 0 {
			errRate = float64(w.errors) / float64(w.calls)
		}
		out = append(out, OperationStats{
			Operation:       op,
			TotalCalls:      w.calls,
			TotalErrors:     w.errors,
			ErrorRate:       errRate,
			MeanLatencyMS:   mean,
			WindowedSamples: len(w.latenciesMS),
		})
	}
	return out
}
