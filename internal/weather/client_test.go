package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCurrent = `{
	"name": "London",
	"weather": [{"description": "light rain"}],
	"main": {"temp": 15.23, "feels_like": 14.8, "temp_min": 13.0, "temp_max": 17.1, "humidity": 82},
	"wind": {"speed": 4.12, "deg": 230},
	"clouds": {"all": 90},
	"rain": {"1h": 0.5}
}`

func TestCurrent_FormatsProviderText(t *testing.T) {
	var gotQuery, gotKey, gotUnits string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("appid")
		gotUnits = r.URL.Query().Get("units")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleCurrent))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL, time.Second)
	report, err := c.Current(context.Background(), "London")

	require.NoError(t, err)
	assert.Equal(t, "London", gotQuery)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "metric", gotUnits)

	assert.Contains(t, report, "In London, the current weather is as follows:")
	assert.Contains(t, report, "Detailed status: light rain")
	assert.Contains(t, report, "Humidity: 82%")
	assert.Contains(t, report, "Current: 15.23°C")
	assert.Contains(t, report, "Wind speed: 4.12 m/s")
	assert.Contains(t, report, "Cloud cover: 90%")
}

func TestCurrent_ProviderErrorSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod": 401, "message": "Invalid API key"}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("bad-key", srv.URL, time.Second)
	_, err := c.Current(context.Background(), "London")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
	assert.Contains(t, err.Error(), "401")
}

func TestCurrent_CityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod": "404", "message": "city not found"}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("key", srv.URL, time.Second)
	_, err := c.Current(context.Background(), "Atlantis")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "city not found")
}

func TestCurrent_RequiresAPIKey(t *testing.T) {
	c := NewClient("", time.Second)
	_, err := c.Current(context.Background(), "London")
	require.Error(t, err)
}

func TestCurrent_RequiresCity(t *testing.T) {
	c := NewClient("key", time.Second)
	_, err := c.Current(context.Background(), "  ")
	require.Error(t, err)
}

func TestCurrent_EscapesCityName(t *testing.T) {
	var gotRawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(sampleCurrent))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("key", srv.URL, time.Second)
	_, err := c.Current(context.Background(), "San José")

	require.NoError(t, err)
	assert.Equal(t, "San José", gotRawQuery)
}
