package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chasingmana/weather-api/internal/api"
	"github.com/chasingmana/weather-api/internal/weather"
)

// ---- mock implementations ----

type mockGeocoder struct {
	searchFn func(ctx context.Context, query string, limit int) ([]weather.GeoLocation, error)
	calls    int
}

func (m *mockGeocoder) Search(ctx context.Context, query string, limit int) ([]weather.GeoLocation, error) {
	m.calls++
	return m.searchFn(ctx, query, limit)
}

type mockWeather struct {
	currentFn  func(ctx context.Context, lat, lon float64, units string) (*weather.CurrentWeather, error)
	forecastFn func(ctx context.Context, lat, lon float64, days int, units string) (*weather.ForecastResponse, error)
	calls      int
}

func (m *mockWeather) Current(ctx context.Context, lat, lon float64, units string) (*weather.CurrentWeather, error) {
	m.calls++
	return m.currentFn(ctx, lat, lon, units)
}

func (m *mockWeather) Forecast(ctx context.Context, lat, lon float64, days int, units string) (*weather.ForecastResponse, error) {
	m.calls++
	return m.forecastFn(ctx, lat, lon, days, units)
}

type mockCache struct {
	getFn func(ctx context.Context, key string, dst any) (bool, error)
	setFn func(ctx context.Context, key string, v any) error
}

func (m *mockCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	return m.getFn(ctx, key, dst)
}

func (m *mockCache) Set(ctx context.Context, key string, v any) error {
	return m.setFn(ctx, key, v)
}

// mapCache is an in-memory ResponseCache that round-trips values through JSON.
type mapCache map[string][]byte

func (c mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	b, ok := c[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c mapCache) Set(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c[key] = b
	return nil
}

// ---- helpers ----

func sampleLocations() []weather.GeoLocation {
	state := "Ile-de-France"
	return []weather.GeoLocation{
		{Name: "Paris", Lat: 48.8566, Lon: 2.3522, Country: "FR", State: &state, DisplayName: "Paris, Ile-de-France, FR"},
	}
}

func sampleCurrent() *weather.CurrentWeather {
	return &weather.CurrentWeather{
		LocationName: "Paris",
		Lat:          48.8566,
		Lon:          2.3522,
		Timestamp:    time.Unix(1704067200, 0).UTC(),
		Temp:         20.5,
		Humidity:     65,
		Condition:    weather.WeatherCondition{ID: 800, Main: "Clear", Description: "clear sky", Icon: "01d"},
	}
}

func sampleForecast(days int) *weather.ForecastResponse {
	tz := 3600
	loc := time.FixedZone("", tz)
	daily := make([]weather.DailyForecast, 0, days)
	for i := 0; i < days; i++ {
		daily = append(daily, weather.DailyForecast{
			Date:    time.Date(2024, 1, 1+i, 0, 0, 0, 0, loc),
			TempDay: 19.25,
			Pop:     0.2,
		})
	}
	return &weather.ForecastResponse{Lat: 48.8566, Lon: 2.3522, Timezone: &tz, Daily: daily}
}

func failingGeocoder(t *testing.T) *mockGeocoder {
	return &mockGeocoder{searchFn: func(_ context.Context, _ string, _ int) ([]weather.GeoLocation, error) {
		t.Fatal("geocoder should not be called")
		return nil, nil
	}}
}

func failingWeather(t *testing.T) *mockWeather {
	return &mockWeather{
		currentFn: func(_ context.Context, _, _ float64, _ string) (*weather.CurrentWeather, error) {
			t.Fatal("current should not be called")
			return nil, nil
		},
		forecastFn: func(_ context.Context, _, _ float64, _ int, _ string) (*weather.ForecastResponse, error) {
			t.Fatal("forecast should not be called")
			return nil, nil
		},
	}
}

func buildRouter(geo api.LocationSearcher, wx api.WeatherProvider, c api.ResponseCache) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := api.NewHandlers(geo, wx, c, log)
	return api.NewRouter(handlers, api.RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}}, log)
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type validationBody struct {
	Detail []api.FieldError `json:"detail"`
}

func decodeValidation(t *testing.T, w *httptest.ResponseRecorder) validationBody {
	t.Helper()
	var body validationBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.NotEmpty(t, body.Detail)
	return body
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["detail"]
}

// ---- GET /health ----

func TestHealth(t *testing.T) {
	router := buildRouter(failingGeocoder(t), failingWeather(t), nil)
	w := get(router, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "chasingmana-api", body["service"])
}

// ---- GET /api/geocode ----

func TestGeocode_ReturnsResults(t *testing.T) {
	geo := &mockGeocoder{searchFn: func(_ context.Context, query string, limit int) ([]weather.GeoLocation, error) {
		assert.Equal(t, "Paris", query)
		assert.Equal(t, 5, limit)
		return sampleLocations(), nil
	}}

	w := get(buildRouter(geo, failingWeather(t), nil), "/api/geocode?q=Paris")

	assert.Equal(t, http.StatusOK, w.Code)
	var got weather.GeocodingResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Paris, Ile-de-France, FR", got.Results[0].DisplayName)
	require.NotNil(t, got.Results[0].State)
	assert.Equal(t, "Ile-de-France", *got.Results[0].State)
}

func TestGeocode_EmptyResultsEncodeAsArray(t *testing.T) {
	geo := &mockGeocoder{searchFn: func(_ context.Context, _ string, _ int) ([]weather.GeoLocation, error) {
		return nil, nil
	}}

	w := get(buildRouter(geo, failingWeather(t), nil), "/api/geocode?q=Atlantis")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results": []}`, w.Body.String())
}

func TestGeocode_PassesLimit(t *testing.T) {
	geo := &mockGeocoder{searchFn: func(_ context.Context, _ string, limit int) ([]weather.GeoLocation, error) {
		assert.Equal(t, 3, limit)
		return nil, nil
	}}

	w := get(buildRouter(geo, failingWeather(t), nil), "/api/geocode?q=Paris&limit=3")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, geo.calls)
}

func TestGeocode_InvalidParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "missing query", query: "", field: "q"},
		{name: "empty query", query: "?q=", field: "q"},
		{name: "limit too high", query: "?q=Paris&limit=6", field: "limit"},
		{name: "limit zero", query: "?q=Paris&limit=0", field: "limit"},
		{name: "limit not a number", query: "?q=Paris&limit=lots", field: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(buildRouter(failingGeocoder(t), failingWeather(t), nil), "/api/geocode"+tt.query)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			body := decodeValidation(t, w)
			assert.Equal(t, []string{"query", tt.field}, body.Detail[0].Loc)
		})
	}
}

func TestGeocode_UpstreamError(t *testing.T) {
	geo := &mockGeocoder{searchFn: func(_ context.Context, _ string, _ int) ([]weather.GeoLocation, error) {
		return nil, fmt.Errorf("API error")
	}}

	w := get(buildRouter(geo, failingWeather(t), nil), "/api/geocode?q=Paris")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Geocoding service error: API error", decodeDetail(t, w))
}

func TestGeocode_CacheHitSkipsUpstream(t *testing.T) {
	c := mapCache{}
	geo := &mockGeocoder{searchFn: func(_ context.Context, _ string, _ int) ([]weather.GeoLocation, error) {
		return sampleLocations(), nil
	}}
	router := buildRouter(geo, failingWeather(t), c)

	first := get(router, "/api/geocode?q=Paris")
	second := get(router, "/api/geocode?q=+Paris+")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, geo.calls)

	// The query is sent upstream with its original case, so case is part of the key.
	third := get(router, "/api/geocode?q=PARIS")
	assert.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, 2, geo.calls)
}

// ---- GET /api/weather/current ----

func TestCurrentWeather_ReturnsData(t *testing.T) {
	wx := failingWeather(t)
	wx.currentFn = func(_ context.Context, lat, lon float64, units string) (*weather.CurrentWeather, error) {
		assert.Equal(t, 48.8566, lat)
		assert.Equal(t, 2.3522, lon)
		assert.Equal(t, "metric", units)
		return sampleCurrent(), nil
	}

	w := get(buildRouter(failingGeocoder(t), wx, nil), "/api/weather/current?lat=48.8566&lon=2.3522")

	assert.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "Paris", got["location_name"])
	assert.Equal(t, 20.5, got["temp"])
	assert.Equal(t, "2024-01-01T00:00:00Z", got["timestamp"])
	assert.NotContains(t, got, "visibility")
	assert.NotContains(t, got, "sunrise")
}

func TestCurrentWeather_PassesUnits(t *testing.T) {
	wx := failingWeather(t)
	wx.currentFn = func(_ context.Context, _, _ float64, units string) (*weather.CurrentWeather, error) {
		assert.Equal(t, "imperial", units)
		return sampleCurrent(), nil
	}

	w := get(buildRouter(failingGeocoder(t), wx, nil), "/api/weather/current?lat=0&lon=0&units=imperial")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCurrentWeather_InvalidParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "missing lat", query: "?lon=2.35", field: "lat"},
		{name: "missing lon", query: "?lat=48.85", field: "lon"},
		{name: "lat out of range", query: "?lat=100&lon=0", field: "lat"},
		{name: "lat below range", query: "?lat=-90.5&lon=0", field: "lat"},
		{name: "lon out of range", query: "?lat=0&lon=200", field: "lon"},
		{name: "lat not a number", query: "?lat=north&lon=0", field: "lat"},
		{name: "unknown units", query: "?lat=0&lon=0&units=kelvin", field: "units"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(buildRouter(failingGeocoder(t), failingWeather(t), nil), "/api/weather/current"+tt.query)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			body := decodeValidation(t, w)
			assert.Equal(t, []string{"query", tt.field}, body.Detail[0].Loc)
		})
	}
}

func TestCurrentWeather_BoundaryCoordinatesAccepted(t *testing.T) {
	wx := failingWeather(t)
	wx.currentFn = func(_ context.Context, _, _ float64, _ string) (*weather.CurrentWeather, error) {
		return sampleCurrent(), nil
	}

	w := get(buildRouter(failingGeocoder(t), wx, nil), "/api/weather/current?lat=-90&lon=180")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCurrentWeather_UpstreamError(t *testing.T) {
	wx := failingWeather(t)
	wx.currentFn = func(_ context.Context, _, _ float64, _ string) (*weather.CurrentWeather, error) {
		return nil, fmt.Errorf("API error")
	}

	w := get(buildRouter(failingGeocoder(t), wx, nil), "/api/weather/current?lat=48.85&lon=2.35")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Weather service error: API error", decodeDetail(t, w))
}

func TestCurrentWeather_CacheErrorsDoNotFailRequest(t *testing.T) {
	wx := failingWeather(t)
	wx.currentFn = func(_ context.Context, _, _ float64, _ string) (*weather.CurrentWeather, error) {
		return sampleCurrent(), nil
	}
	c := &mockCache{
		getFn: func(_ context.Context, _ string, _ any) (bool, error) { return false, fmt.Errorf("redis down") },
		setFn: func(_ context.Context, _ string, _ any) error { return fmt.Errorf("redis down") },
	}

	w := get(buildRouter(failingGeocoder(t), wx, c), "/api/weather/current?lat=48.85&lon=2.35")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, wx.calls)
}

// ---- GET /api/weather/forecast ----

func TestForecast_ReturnsData(t *testing.T) {
	wx := failingWeather(t)
	wx.forecastFn = func(_ context.Context, _, _ float64, days int, units string) (*weather.ForecastResponse, error) {
		assert.Equal(t, 5, days)
		assert.Equal(t, "metric", units)
		return sampleForecast(days), nil
	}

	w := get(buildRouter(failingGeocoder(t), wx, nil), "/api/weather/forecast?lat=48.8566&lon=2.3522")

	assert.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Lat      float64          `json:"lat"`
		Timezone int              `json:"timezone"`
		Daily    []map[string]any `json:"daily"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, 48.8566, got.Lat)
	assert.Equal(t, 3600, got.Timezone)
	require.Len(t, got.Daily, 5)
	assert.Equal(t, "2024-01-01T00:00:00+01:00", got.Daily[0]["date"])
	assert.NotContains(t, got.Daily[0], "rain")
}

func TestForecast_RespectsDaysParam(t *testing.T) {
	wx := failingWeather(t)
	wx.forecastFn = func(_ context.Context, _, _ float64, days int, _ string) (*weather.ForecastResponse, error) {
		assert.Equal(t, 3, days)
		return sampleForecast(days), nil
	}

	w := get(buildRouter(failingGeocoder(t), wx, nil), "/api/weather/forecast?lat=48.85&lon=2.35&days=3")

	assert.Equal(t, http.StatusOK, w.Code)
	var got weather.ForecastResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Len(t, got.Daily, 3)
}

func TestForecast_InvalidParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "days too high", query: "?lat=0&lon=0&days=6", field: "days"},
		{name: "days zero", query: "?lat=0&lon=0&days=0", field: "days"},
		{name: "lat out of range", query: "?lat=100&lon=0", field: "lat"},
		{name: "lon out of range", query: "?lat=0&lon=-200", field: "lon"},
		{name: "unknown units", query: "?lat=0&lon=0&units=si", field: "units"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(buildRouter(failingGeocoder(t), failingWeather(t), nil), "/api/weather/forecast"+tt.query)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			body := decodeValidation(t, w)
			assert.Equal(t, []string{"query", tt.field}, body.Detail[0].Loc)
		})
	}
}

func TestForecast_UpstreamError(t *testing.T) {
	wx := failingWeather(t)
	wx.forecastFn = func(_ context.Context, _, _ float64, _ int, _ string) (*weather.ForecastResponse, error) {
		return nil, &weather.StatusError{StatusCode: http.StatusInternalServerError, Endpoint: "/forecast"}
	}

	w := get(buildRouter(failingGeocoder(t), wx, nil), "/api/weather/forecast?lat=48.85&lon=2.35")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decodeDetail(t, w), "Weather service error: upstream rejected request")
}

func TestForecast_CacheHitSkipsUpstream(t *testing.T) {
	c := mapCache{}
	wx := failingWeather(t)
	wx.forecastFn = func(_ context.Context, _, _ float64, days int, _ string) (*weather.ForecastResponse, error) {
		return sampleForecast(days), nil
	}
	router := buildRouter(failingGeocoder(t), wx, c)

	first := get(router, "/api/weather/forecast?lat=48.85&lon=2.35&days=2")
	second := get(router, "/api/weather/forecast?lat=48.85&lon=2.35&days=2")
	third := get(router, "/api/weather/forecast?lat=48.85&lon=2.35&days=3")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, 2, wx.calls)
}

// ---- CORS ----

func TestCORS_AllowsFrontendOrigin(t *testing.T) {
	router := buildRouter(failingGeocoder(t), failingWeather(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_RejectsUnknownOrigin(t *testing.T) {
	router := buildRouter(failingGeocoder(t), failingWeather(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// ---- rate limiting ----

func TestRateLimit(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := api.NewHandlers(failingGeocoder(t), failingWeather(t), nil, log)
	router := api.NewRouter(handlers, api.RouterOptions{RateLimitPerMinute: 2}, log)

	assert.Equal(t, http.StatusOK, get(router, "/health").Code)
	assert.Equal(t, http.StatusOK, get(router, "/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "/health").Code)
}

func TestRateLimit_DisabledByDefault(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := api.NewHandlers(failingGeocoder(t), failingWeather(t), nil, log)
	router := api.NewRouter(handlers, api.RouterOptions{}, log)

	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, get(router, "/health").Code, "request %d", i+1)
	}
}

func TestCurrentWeather_UpstreamCallOutlivesCanceledRequest(t *testing.T) {
	wx := failingWeather(t)
	wx.currentFn = func(ctx context.Context, _, _ float64, _ string) (*weather.CurrentWeather, error) {
		assert.NoError(t, ctx.Err(), "upstream call should not inherit request cancellation")
		return sampleCurrent(), nil
	}
	router := buildRouter(failingGeocoder(t), wx, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/weather/current?lat=48.85&lon=2.35", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, wx.calls)
}
