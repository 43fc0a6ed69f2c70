package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("watchy-test", reg)
	require.NotNil(t, m)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestServiceInfoGaugeIsSetOnConstruction(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("watchy-test", reg)

	metric := &dto.Metric{}
	require.NoError(t, m.ServiceInfo.WithLabelValues("watchy-test", "1.0.0").Write(metric))
	assert.Equal(t, float64(1), metric.GetGauge().GetValue())
}

func TestCountersIncrementIndependently(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("watchy-test", reg)

	m.AuditsTotal.WithLabelValues("watchy-test", "completed").Inc()
	m.AuditsTotal.WithLabelValues("watchy-test", "completed").Inc()
	m.AuditsTotal.WithLabelValues("watchy-test", "failed").Inc()

	completed := &dto.Metric{}
	require.NoError(t, m.AuditsTotal.WithLabelValues("watchy-test", "completed").Write(completed))
	assert.Equal(t, float64(2), completed.GetCounter().GetValue())

	failed := &dto.Metric{}
	require.NoError(t, m.AuditsTotal.WithLabelValues("watchy-test", "failed").Write(failed))
	assert.Equal(t, float64(1), failed.GetCounter().GetValue())
}

func TestRegisteringTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry("watchy-test", reg)
	assert.Panics(t, func() {
		NewWithRegistry("watchy-test", reg)
	})
}
