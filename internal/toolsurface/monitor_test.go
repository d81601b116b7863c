package toolsurface

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	meter := sdkmetric.NewMeterProvider().Meter("chronicle-test")
	m, err := NewMonitor(meter)
	require.NoError(t, err)
	return m
}

func TestMonitor_CallRecordsSuccessAndLatency(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()

	err := m.Call(ctx, "search_conversations_unified", func() error { return nil })
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "search_conversations_unified", snap[0].Operation)
	assert.Equal(t, int64(1), snap[0].TotalCalls)
	assert.Equal(t, int64(0), snap[0].TotalErrors)
	assert.Equal(t, 0.0, snap[0].ErrorRate)
}

func TestMonitor_CallRecordsFailureInErrorRate(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()

	_ = m.Call(ctx, "op", func() error { return nil })
	err := m.Call(ctx, "op", func() error { return errors.New("boom") })
	assert.Error(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(2), snap[0].TotalCalls)
	assert.Equal(t, int64(1), snap[0].TotalErrors)
	assert.InDelta(t, 0.5, snap[0].ErrorRate, 1e-9)
}

func TestMonitor_SeparatesOperationsIndependently(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()

	_ = m.Call(ctx, "a", func() error { return nil })
	_ = m.Call(ctx, "b", func() error { return errors.New("x") })

	byOp := map[string]OperationStats{}
	for _, s := range m.Snapshot() {
		byOp[s.Operation] = s
	}
	require.Contains(t, byOp, "a")
	require.Contains(t, byOp, "b")
	assert.Equal(t, int64(0), byOp["a"].TotalErrors)
	assert.Equal(t, int64(1), byOp["b"].TotalErrors)
}

func TestMonitor_WindowCapsSampleCount(t *testing.T) {
	m := newTestMonitor(t)
	m.windowSize = 3
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = m.Call(ctx, "op", func() error { return nil })
	}

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(10), snap[0].TotalCalls)
	assert.Equal(t, 3, snap[0].WindowedSamples)
}
