package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewGateway_RegistersAndCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewGateway(reg)

	m.Requests.WithLabelValues("GET", OutcomeOK).Inc()
	m.Requests.WithLabelValues("GET", OutcomeOK).Inc()
	m.Refreshes.WithLabelValues(RefreshRejected).Inc()
	m.RequestDuration.WithLabelValues("GET").Observe(0.1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues(RefreshRejected)))

	n, err := testutil.GatherAndCount(reg, "gateway_requests_total", "gateway_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestNewGateway_NilRegistry(t *testing.T) {
	t.Parallel()

	m := NewGateway(nil)
	m.Coalesced.Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(m.Coalesced))
}

func TestNewHTTP_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_ = NewHTTP(reg)
	require.Panics(t, func() { _ = NewHTTP(reg) })
}

func TestNewRegistry_HasRuntimeCollectors(t *testing.T) {
	t.Parallel()

	mfs, err := NewRegistry().Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	require.Contains(t, names, "go_goroutines")
}
