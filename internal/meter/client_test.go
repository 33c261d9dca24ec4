package meter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"indevolt-ems/config"
	"indevolt-ems/internal/httpclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(config.MeterConfig{
		URL:      url,
		Timezone: "Europe/Brussels",
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestClientFetch(t *testing.T) {
	t.Run("FullReading", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(sampleP1JSON))
		}))
		defer ts.Close()

		reading, err := newTestClient(t, ts.URL).Fetch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, -543.0, reading.Data.ActivePowerW)
		// Both timestamps are Brussels winter time (UTC+1).
		assert.Equal(t, time.Date(2023, 12, 31, 22, 59, 59, 0, time.UTC), reading.MonthlyPowerPeakTime)
		assert.Equal(t, time.Date(2024, 1, 1, 5, 30, 15, 0, time.UTC), reading.GasTime)
		assert.Empty(t, reading.TimestampFallbacks)
	})

	t.Run("BadTimestampFallsBackToNow", func(t *testing.T) {
		body := strings.Replace(sampleP1JSON, `"gas_timestamp": "240101063015"`, `"gas_timestamp": "bogus"`, 1)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		defer ts.Close()

		before := time.Now().UTC()
		reading, err := newTestClient(t, ts.URL).Fetch(context.Background())
		require.NoError(t, err, "a bad timestamp must not fail the reading")

		// Only the broken field falls back; the other resolves normally.
		assert.Equal(t, []string{"gas_timestamp"}, reading.TimestampFallbacks)
		assert.False(t, reading.GasTime.Before(before))
		assert.Equal(t, time.Date(2023, 12, 31, 22, 59, 59, 0, time.UTC), reading.MonthlyPowerPeakTime)
	})

	t.Run("NonSuccessStatus", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "device busy", http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		_, err := newTestClient(t, ts.URL).Fetch(context.Background())
		require.Error(t, err)

		var statusErr *httpclient.StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"meter_model": `))
		}))
		defer ts.Close()

		_, err := newTestClient(t, ts.URL).Fetch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode")
	})

	t.Run("UnknownTimezone", func(t *testing.T) {
		_, err := NewClient(config.MeterConfig{URL: "http://127.0.0.1", Timezone: "Mars/Olympus"})
		require.Error(t, err)
	})
}
