package api

import (
	"context"

	"github.com/chasingmana/weather-api/internal/weather"
)

// LocationSearcher defines the geocoding operation needed by handlers.
type LocationSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]weather.GeoLocation, error)
}

// WeatherProvider defines the weather operations needed by handlers.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64, units string) (*weather.CurrentWeather, error)
	Forecast(ctx context.Context, lat, lon float64, days int, units string) (*weather.ForecastResponse, error)
}

// ResponseCache defines the cache operations needed by handlers.
// Get returns false, nil on a miss.
type ResponseCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}
