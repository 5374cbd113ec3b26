package weather

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedPayload is returned when an upstream body lacks a required field.
var ErrMalformedPayload = errors.New("malformed upstream payload")

// ---- raw OpenWeatherMap payloads ----
//
// Pointer fields distinguish "absent" from zero so that required fields can
// be enforced and optional ones left unset.

type owmGeoEntry struct {
	Name    *string  `json:"name"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Country *string  `json:"country"`
	State   *string  `json:"state"`
}

type owmCondition struct {
	ID          *int    `json:"id"`
	Main        *string `json:"main"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

type owmCoord struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type owmWind struct {
	Speed *float64 `json:"speed"`
	Deg   *float64 `json:"deg"`
}

type owmClouds struct {
	All *float64 `json:"all"`
}

type owmPrecip struct {
	ThreeHour *float64 `json:"3h"`
}

type owmCurrentResponse struct {
	Name  *string   `json:"name"`
	Coord *owmCoord `json:"coord"`
	Dt    *int64    `json:"dt"`
	Main  *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		TempMin   *float64 `json:"temp_min"`
		TempMax   *float64 `json:"temp_max"`
		Pressure  *float64 `json:"pressure"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind       *owmWind       `json:"wind"`
	Clouds     *owmClouds     `json:"clouds"`
	Visibility *int           `json:"visibility"`
	Weather    []owmCondition `json:"weather"`
	Sys        *struct {
		Sunrise *int64 `json:"sunrise"`
		Sunset  *int64 `json:"sunset"`
	} `json:"sys"`
}

type owmForecastItem struct {
	Dt   *int64 `json:"dt"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind    *owmWind       `json:"wind"`
	Clouds  *owmClouds     `json:"clouds"`
	Pop     *float64       `json:"pop"`
	Rain    *owmPrecip     `json:"rain"`
	Snow    *owmPrecip     `json:"snow"`
	Weather []owmCondition `json:"weather"`
}

type owmForecastResponse struct {
	City *struct {
		Coord    *owmCoord `json:"coord"`
		Timezone *int      `json:"timezone"`
	} `json:"city"`
	List []owmForecastItem `json:"list"`
}

// fields records required fields that were missing while reading a payload.
type fields struct {
	prefix  string
	missing []string
}

func (f *fields) float(p *float64, name string) float64 {
	if p == nil {
		f.missing = append(f.missing, f.prefix+name)
		return 0
	}
	return *p
}

func (f *fields) integer(p *int64, name string) int64 {
	if p == nil {
		f.missing = append(f.missing, f.prefix+name)
		return 0
	}
	return *p
}

func (f *fields) present(ok bool, name string) bool {
	if !ok {
		f.missing = append(f.missing, f.prefix+name)
	}
	return ok
}

func (f *fields) err() error {
	if len(f.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrMalformedPayload, strings.Join(f.missing, ", "))
}

func optFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func optString(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// normalizeGeoLocation maps one geocoding record. The display name joins the
// name, state and country that are present; a missing name is reported as
// "Unknown".
func normalizeGeoLocation(raw owmGeoEntry) (GeoLocation, error) {
	f := fields{}
	lat := f.float(raw.Lat, "lat")
	lon := f.float(raw.Lon, "lon")
	if err := f.err(); err != nil {
		return GeoLocation{}, err
	}

	parts := make([]string, 0, 3)
	for _, p := range []*string{raw.Name, raw.State, raw.Country} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}

	var state *string
	if raw.State != nil {
		s := *raw.State
		state = &s
	}

	return GeoLocation{
		Name:        optString(raw.Name, "Unknown"),
		Lat:         lat,
		Lon:         lon,
		Country:     optString(raw.Country, ""),
		State:       state,
		DisplayName: strings.Join(parts, ", "),
	}, nil
}

func normalizeCondition(f *fields, list []owmCondition) WeatherCondition {
	if !f.present(len(list) > 0, "weather[0]") {
		return WeatherCondition{}
	}
	c := list[0]
	f.present(c.ID != nil, "weather[0].id")
	f.present(c.Main != nil, "weather[0].main")
	f.present(c.Description != nil, "weather[0].description")
	f.present(c.Icon != nil, "weather[0].icon")
	if c.ID == nil {
		return WeatherCondition{}
	}
	return WeatherCondition{
		ID:          *c.ID,
		Main:        optString(c.Main, ""),
		Description: optString(c.Description, ""),
		Icon:        optString(c.Icon, ""),
	}
}

// normalizeCurrent maps a current-conditions payload. Missing wind or cloud
// blocks default to zero; missing visibility, sunrise and sunset stay absent.
func normalizeCurrent(raw owmCurrentResponse) (*CurrentWeather, error) {
	f := fields{}
	out := &CurrentWeather{LocationName: optString(raw.Name, "Unknown")}

	if f.present(raw.Coord != nil, "coord") {
		out.Lat = f.float(raw.Coord.Lat, "coord.lat")
		out.Lon = f.float(raw.Coord.Lon, "coord.lon")
	}
	out.Timestamp = unixUTC(f.integer(raw.Dt, "dt"))

	if f.present(raw.Main != nil, "main") {
		out.Temp = f.float(raw.Main.Temp, "main.temp")
		out.FeelsLike = f.float(raw.Main.FeelsLike, "main.feels_like")
		out.TempMin = f.float(raw.Main.TempMin, "main.temp_min")
		out.TempMax = f.float(raw.Main.TempMax, "main.temp_max")
		out.Humidity = int(f.float(raw.Main.Humidity, "main.humidity"))
		out.Pressure = int(f.float(raw.Main.Pressure, "main.pressure"))
	}

	if raw.Wind != nil {
		out.WindSpeed = optFloat(raw.Wind.Speed)
		out.WindDeg = int(optFloat(raw.Wind.Deg))
	}
	if raw.Clouds != nil {
		out.Clouds = int(optFloat(raw.Clouds.All))
	}
	if raw.Visibility != nil {
		v := *raw.Visibility
		out.Visibility = &v
	}

	out.Condition = normalizeCondition(&f, raw.Weather)

	if raw.Sys != nil {
		if raw.Sys.Sunrise != nil {
			t := unixUTC(*raw.Sys.Sunrise)
			out.Sunrise = &t
		}
		if raw.Sys.Sunset != nil {
			t := unixUTC(*raw.Sys.Sunset)
			out.Sunset = &t
		}
	}

	if err := f.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeForecastSample maps one 3-hour forecast entry.
func normalizeForecastSample(raw owmForecastItem, index int) (ForecastSample, error) {
	f := fields{prefix: fmt.Sprintf("list[%d].", index)}
	s := ForecastSample{
		Time: unixUTC(f.integer(raw.Dt, "dt")),
		Pop:  optFloat(raw.Pop),
	}

	if f.present(raw.Main != nil, "main") {
		s.Temp = f.float(raw.Main.Temp, "main.temp")
		s.FeelsLike = f.float(raw.Main.FeelsLike, "main.feels_like")
		s.Humidity = f.float(raw.Main.Humidity, "main.humidity")
	}
	if f.present(raw.Wind != nil, "wind") {
		s.WindSpeed = f.float(raw.Wind.Speed, "wind.speed")
		s.WindDeg = optFloat(raw.Wind.Deg)
	}
	if f.present(raw.Clouds != nil, "clouds") {
		s.Clouds = f.float(raw.Clouds.All, "clouds.all")
	}
	if raw.Rain != nil {
		s.Rain = optFloat(raw.Rain.ThreeHour)
	}
	if raw.Snow != nil {
		s.Snow = optFloat(raw.Snow.ThreeHour)
	}
	s.Condition = normalizeCondition(&f, raw.Weather)

	if err := f.err(); err != nil {
		return ForecastSample{}, err
	}
	return s, nil
}

// normalizeForecast maps a 3-hour forecast payload and reduces it to at most
// days daily records in the location's local time.
func normalizeForecast(raw owmForecastResponse, days int) (*ForecastResponse, error) {
	f := fields{}
	out := &ForecastResponse{}

	offset := 0
	if f.present(raw.City != nil, "city") {
		if f.present(raw.City.Coord != nil, "city.coord") {
			out.Lat = f.float(raw.City.Coord.Lat, "city.coord.lat")
			out.Lon = f.float(raw.City.Coord.Lon, "city.coord.lon")
		}
		if raw.City.Timezone != nil {
			tz := *raw.City.Timezone
			out.Timezone = &tz
			offset = tz
		}
	}
	f.present(raw.List != nil, "list")
	if err := f.err(); err != nil {
		return nil, err
	}

	samples := make([]ForecastSample, 0, len(raw.List))
	for i, item := range raw.List {
		s, err := normalizeForecastSample(item, i)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	out.Daily = AggregateDaily(samples, offset, days)
	return out, nil
}
