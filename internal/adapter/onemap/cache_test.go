package onemap

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

type countingGeocoder struct {
	calls  int
	result *domain.Coordinates
	err    error
}

func (m *countingGeocoder) Geocode(_ context.Context, _, _ string) (*domain.Coordinates, error) {
	m.calls++
	return m.result, m.err
}

func TestCachedGeocoder_Hit(t *testing.T) {
	inner := &countingGeocoder{result: &domain.Coordinates{Lat: 1.3, Lon: 103.8}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.Geocode(context.Background(), "1 BEACH RD", testToken)
	require.NoError(t, err)
	r2, err := cached.Geocode(context.Background(), "1  beach rd ", testToken)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "normalised address hits the cache")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")), 0)
}

func TestCachedGeocoder_ReturnsCopies(t *testing.T) {
	inner := &countingGeocoder{result: &domain.Coordinates{Lat: 1.3, Lon: 103.8}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	r1, _ := cached.Geocode(context.Background(), "1 BEACH RD", testToken)
	r1.Lat = 0

	r2, _ := cached.Geocode(context.Background(), "1 BEACH RD", testToken)
	assert.InDelta(t, 1.3, r2.Lat, 0)
}

func TestCachedGeocoder_MissNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	for range 2 {
		loc, err := cached.Geocode(context.Background(), "999 NOWHERE ST", testToken)
		require.NoError(t, err)
		assert.Nil(t, loc)
	}
	assert.Equal(t, 2, inner.calls)
	assert.Zero(t, cached.Len())
}

func TestCachedGeocoder_ErrorNotCached(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("boom")}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.Geocode(context.Background(), "1 BEACH RD", testToken)
	require.Error(t, err)
	assert.Zero(t, cached.Len())
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[int](2)

	c.put("a", 1)
	c.put("b", 2)
	c.put("c", 3)

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry evicted")
	v, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[int](2)

	c.put("a", 1)
	c.put("b", 2)
	c.get("a")
	c.put("c", 3)

	_, ok := c.get("a")
	assert.True(t, ok, "recently read entry survives")
	_, ok = c.get("b")
	assert.False(t, ok)
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "first")
	c.put("a", "second")

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_ZeroCapacityDisables(t *testing.T) {
	c := newLRUCache[int](0)
	c.put("a", 1)
	_, ok := c.get("a")
	assert.False(t, ok)
}
