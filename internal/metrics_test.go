package internal

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserveCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	clock := newFakeClock()
	ok := credsFor(clock, 15*time.Minute)
	ex := &fakeExchanger{next: func(n int32) (Credentials, error) {
		if n == 2 {
			return Credentials{}, errors.New("throttled")
		}
		return ok(n)
	}}
	cache := NewCredentialCache(testRole, ex, WithClock(clock.Now), WithObserver(m))

	first, err := cache.Get(t.Context())
	require.NoError(t, err)
	_, err = cache.Get(t.Context())
	require.NoError(t, err)
	require.Error(t, cache.Refresh(t.Context()))

	require.InDelta(t, 1, testutil.ToFloat64(m.hits), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.exchanges.WithLabelValues("success")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.exchanges.WithLabelValues("error")), 0)
	require.InDelta(t, float64(clock.Now().Add(15*time.Minute).Unix()), testutil.ToFloat64(m.expiration), 0)
	require.Equal(t, "AKIAA", first.AccessKeyID)
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	var already prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &already)
}
