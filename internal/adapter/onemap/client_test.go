package onemap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/apiclient"
	"github.com/couchcryptid/hdb-property-etl/internal/config"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAPI(metrics *observability.Metrics) *apiclient.Client {
	return apiclient.New("onemap", 5*time.Second, discardLogger(), metrics)
}

func testClient(baseURL string) (*Client, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return NewClient(testAPI(metrics), baseURL, 0, discardLogger(), metrics), metrics
}

func TestClient_Geocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, searchPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1 BEACH RD", q.Get("searchVal"))
		assert.Equal(t, "Y", q.Get("returnGeom"))
		assert.Equal(t, "Y", q.Get("getAddrDetails"))
		assert.Equal(t, "1", q.Get("pageNum"))
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		resp := searchResponse{
			Found: 2,
			Results: []searchResult{
				{SearchValue: "1 BEACH ROAD", Latitude: "1.29475386234532", Longitude: "103.854333440512"},
				{SearchValue: "1 BEACH ROAD CARPARK", Latitude: "1.2950", Longitude: "103.8545"},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, metrics := testClient(srv.URL)
	loc, err := c.Geocode(context.Background(), "1 BEACH RD", testToken)
	require.NoError(t, err)
	require.NotNil(t, loc)

	assert.InDelta(t, 1.29475386234532, loc.Lat, 1e-12)
	assert.InDelta(t, 103.854333440512, loc.Lon, 1e-12)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("match")), 0)
}

func TestClient_Geocode_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"found":0,"totalNumPages":0,"pageNum":1,"results":[]}`))
	}))
	defer srv.Close()

	c, metrics := testClient(srv.URL)
	loc, err := c.Geocode(context.Background(), "999 NOWHERE ST", testToken)
	require.NoError(t, err)
	assert.Nil(t, loc)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("empty")), 0)
}

func TestClient_Geocode_FoundButNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"found":3,"results":[]}`))
	}))
	defer srv.Close()

	c, _ := testClient(srv.URL)
	loc, err := c.Geocode(context.Background(), "1 BEACH RD", testToken)
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestClient_Geocode_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Your token has expired"}`))
	}))
	defer srv.Close()

	c, metrics := testClient(srv.URL)
	_, err := c.Geocode(context.Background(), "1 BEACH RD", "expired")

	var httpErr *domain.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("error")), 0)
}

func TestClient_Geocode_BadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"found":1,"results":[{"LATITUDE":"NIL","LONGITUDE":"103.8"}]}`))
	}))
	defer srv.Close()

	c, _ := testClient(srv.URL)
	_, err := c.Geocode(context.Background(), "1 BEACH RD", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LATITUDE")
}

func TestClient_Geocode_ThrottleHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"found":0,"results":[]}`))
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	c := NewClient(testAPI(metrics), srv.URL, 1, discardLogger(), metrics)

	// The burst of one is spent by the first call; the second must wait a minute.
	_, err := c.Geocode(context.Background(), "1 BEACH RD", testToken)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Geocode(ctx, "2 BEACH RD", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle")
}

func TestTokenProvider_Token(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, tokenPath, r.URL.Path)

		var body tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ops@example.com", body.Email)
		assert.Equal(t, "hunter2", body.Password)

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"access_token":"abc.def","expiry_timestamp":"1735689600"}`))
	}))
	defer srv.Close()

	p := NewTokenProvider(testAPI(observability.NewMetricsForTesting()), srv.URL,
		config.Credentials{Email: "ops@example.com", Password: "hunter2"}, discardLogger())

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok.AccessToken)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), tok.ExpiresAt)
}

func TestTokenProvider_MissingCredentials(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		creds config.Credentials
		key   string
	}{
		{"missing email", config.Credentials{Password: "x"}, "ONEMAP_EMAIL"},
		{"missing password", config.Credentials{Email: "a@b.c"}, "ONEMAP_EMAIL_PASSWORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTokenProvider(testAPI(observability.NewMetricsForTesting()), srv.URL, tt.creds, discardLogger())
			_, err := p.Token(context.Background())

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
	assert.Zero(t, calls, "no request without credentials")
}

func TestTokenProvider_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
	}))
	defer srv.Close()

	p := NewTokenProvider(testAPI(observability.NewMetricsForTesting()), srv.URL,
		config.Credentials{Email: "a@b.c", Password: "wrong"}, discardLogger())
	_, err := p.Token(context.Background())

	var httpErr *domain.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestTokenProvider_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":""}`))
	}))
	defer srv.Close()

	p := NewTokenProvider(testAPI(observability.NewMetricsForTesting()), srv.URL,
		config.Credentials{Email: "a@b.c", Password: "pw"}, discardLogger())
	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}
