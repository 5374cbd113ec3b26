package weather

import "time"

// GeoLocation is a normalized geocoding result.
type GeoLocation struct {
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Country     string  `json:"country"`
	State       *string `json:"state,omitempty"`
	DisplayName string  `json:"display_name"`
}

// GeocodingResponse wraps the results of a location search.
type GeocodingResponse struct {
	Results []GeoLocation `json:"results"`
}

// WeatherCondition describes the sky/precipitation state reported upstream.
type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// CurrentWeather holds normalized current conditions for a coordinate.
type CurrentWeather struct {
	LocationName string           `json:"location_name"`
	Lat          float64          `json:"lat"`
	Lon          float64          `json:"lon"`
	Timestamp    time.Time        `json:"timestamp"`
	Temp         float64          `json:"temp"`
	FeelsLike    float64          `json:"feels_like"`
	TempMin      float64          `json:"temp_min"`
	TempMax      float64          `json:"temp_max"`
	Humidity     int              `json:"humidity"`
	Pressure     int              `json:"pressure"`
	WindSpeed    float64          `json:"wind_speed"`
	WindDeg      int              `json:"wind_deg"`
	Clouds       int              `json:"clouds"`
	Visibility   *int             `json:"visibility,omitempty"`
	Condition    WeatherCondition `json:"condition"`
	Sunrise      *time.Time       `json:"sunrise,omitempty"`
	Sunset       *time.Time       `json:"sunset,omitempty"`
}

// DailyForecast is one local calendar day reduced from 3-hour samples.
type DailyForecast struct {
	Date         time.Time        `json:"date"`
	TempDay      float64          `json:"temp_day"`
	TempMin      float64          `json:"temp_min"`
	TempMax      float64          `json:"temp_max"`
	TempNight    float64          `json:"temp_night"`
	FeelsLikeDay float64          `json:"feels_like_day"`
	Humidity     int              `json:"humidity"`
	WindSpeed    float64          `json:"wind_speed"`
	WindDeg      int              `json:"wind_deg"`
	Clouds       int              `json:"clouds"`
	Pop          float64          `json:"pop"`
	Rain         *float64         `json:"rain,omitempty"`
	Snow         *float64         `json:"snow,omitempty"`
	Condition    WeatherCondition `json:"condition"`
}

// ForecastResponse is the daily forecast for a coordinate.
// Timezone is the upstream UTC offset in seconds, when reported.
type ForecastResponse struct {
	Lat      float64         `json:"lat"`
	Lon      float64         `json:"lon"`
	Timezone *int            `json:"timezone,omitempty"`
	Daily    []DailyForecast `json:"daily"`
}

// ForecastSample is a single 3-hour interval from the upstream forecast.
type ForecastSample struct {
	Time      time.Time
	Temp      float64
	FeelsLike float64
	Humidity  float64
	WindSpeed float64
	WindDeg   float64
	Clouds    float64
	Pop       float64
	Rain      float64
	Snow      float64
	Condition WeatherCondition
}

// Units selects the measurement system requested from the provider.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
	UnitsStandard = "standard"
)
