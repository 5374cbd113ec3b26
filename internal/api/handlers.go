package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chasingmana/weather-api/internal/cache"
	"github.com/chasingmana/weather-api/internal/weather"
)

const serviceName = "chasingmana-api"

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	geocoder LocationSearcher
	weather  WeatherProvider
	cache    ResponseCache
	log      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
// A nil cache disables response caching.
func NewHandlers(geocoder LocationSearcher, provider WeatherProvider, c ResponseCache, log *slog.Logger) *Handlers {
	if c == nil {
		c = cache.NewCache(nil, 0)
	}
	return &Handlers{
		geocoder: geocoder,
		weather:  provider,
		cache:    c,
		log:      log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeValidationError writes a 422 listing every rejected parameter.
func writeValidationError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": verr.Fields})
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
}

// writeUpstreamError writes a 502 whose detail is prefix plus the cause.
func (h *Handlers) writeUpstreamError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	h.log.Error("upstream request failed", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"detail": prefix + ": " + err.Error()})
}

// upstreamContext keeps request values but not cancellation: an outbound call
// is bounded by the client timeout, not by the caller staying connected.
func upstreamContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *Handlers) cached(r *http.Request, key string, dst any) bool {
	hit, err := h.cache.Get(r.Context(), key, dst)
	if err != nil {
		h.log.Warn("cache get failed", "key", key, "err", err)
		return false
	}
	return hit
}

func (h *Handlers) store(r *http.Request, key string, v any) {
	if err := h.cache.Set(r.Context(), key, v); err != nil {
		h.log.Warn("cache set failed", "key", key, "err", err)
	}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

// Geocode handles GET /api/geocode?q=&limit=.
func (h *Handlers) Geocode(w http.ResponseWriter, r *http.Request) {
	p, err := parseGeocodeParams(r.URL.Query())
	if err != nil {
		writeValidationError(w, err)
		return
	}

	key := cache.GeocodeKey(p.Q, p.Limit)
	var results []weather.GeoLocation
	if !h.cached(r, key, &results) {
		results, err = h.geocoder.Search(upstreamContext(r), p.Q, p.Limit)
		if err != nil {
			h.writeUpstreamError(w, r, "Geocoding service error", err)
			return
		}
		h.store(r, key, results)
	}
	if results == nil {
		results = []weather.GeoLocation{}
	}

	writeJSON(w, http.StatusOK, weather.GeocodingResponse{Results: results})
}

// CurrentWeather handles GET /api/weather/current?lat=&lon=&units=.
func (h *Handlers) CurrentWeather(w http.ResponseWriter, r *http.Request) {
	p, err := parseCurrentParams(r.URL.Query())
	if err != nil {
		writeValidationError(w, err)
		return
	}

	key := cache.CurrentKey(*p.Lat, *p.Lon, p.Units)
	var current weather.CurrentWeather
	if h.cached(r, key, &current) {
		writeJSON(w, http.StatusOK, current)
		return
	}

	cw, err := h.weather.Current(upstreamContext(r), *p.Lat, *p.Lon, p.Units)
	if err != nil {
		h.writeUpstreamError(w, r, "Weather service error", err)
		return
	}
	h.store(r, key, cw)

	writeJSON(w, http.StatusOK, cw)
}

// Forecast handles GET /api/weather/forecast?lat=&lon=&days=&units=.
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	p, err := parseForecastParams(r.URL.Query())
	if err != nil {
		writeValidationError(w, err)
		return
	}

	key := cache.ForecastKey(*p.Lat, *p.Lon, p.Days, p.Units)
	var forecast weather.ForecastResponse
	if h.cached(r, key, &forecast) {
		writeJSON(w, http.StatusOK, forecast)
		return
	}

	fr, err := h.weather.Forecast(upstreamContext(r), *p.Lat, *p.Lon, p.Days, p.Units)
	if err != nil {
		h.writeUpstreamError(w, r, "Weather service error", err)
		return
	}
	h.store(r, key, fr)

	writeJSON(w, http.StatusOK, fr)
}
