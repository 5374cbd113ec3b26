package weather

import (
	"sort"
	"time"
)

const dateKeyLayout = "2006-01-02"

// AggregateDaily groups 3-hour samples by calendar date in the location's
// local time (UTC offset in seconds) and reduces each group to one
// DailyForecast. The result is ordered by date and holds at most days entries.
func AggregateDaily(samples []ForecastSample, offsetSeconds, days int) []DailyForecast {
	loc := time.FixedZone("", offsetSeconds)

	groups := make(map[string][]ForecastSample)
	for _, s := range samples {
		key := s.Time.In(loc).Format(dateKeyLayout)
		groups[key] = append(groups[key], s)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if days >= 0 && len(keys) > days {
		keys = keys[:days]
	}

	daily := make([]DailyForecast, 0, len(keys))
	for _, k := range keys {
		date, _ := time.ParseInLocation(dateKeyLayout, k, loc)
		daily = append(daily, reduceDay(groups[k], date))
	}
	return daily
}

// reduceDay collapses one non-empty group. The last sample stands in for the
// night temperature and the middle one for the day's condition.
func reduceDay(items []ForecastSample, date time.Time) DailyForecast {
	n := float64(len(items))

	var (
		sumTemp, sumFeels, sumHum  float64
		sumWind, sumDeg, sumClouds float64
		sumRain, sumSnow           float64
		anyRain, anySnow           bool
	)
	minTemp, maxTemp := items[0].Temp, items[0].Temp
	maxPop := items[0].Pop

	for _, it := range items {
		sumTemp += it.Temp
		sumFeels += it.FeelsLike
		sumHum += it.Humidity
		sumWind += it.WindSpeed
		sumDeg += it.WindDeg
		sumClouds += it.Clouds
		minTemp = min(minTemp, it.Temp)
		maxTemp = max(maxTemp, it.Temp)
		maxPop = max(maxPop, it.Pop)

		sumRain += it.Rain
		sumSnow += it.Snow
		anyRain = anyRain || it.Rain != 0
		anySnow = anySnow || it.Snow != 0
	}

	d := DailyForecast{
		Date:         date,
		TempDay:      sumTemp / n,
		TempMin:      minTemp,
		TempMax:      maxTemp,
		TempNight:    items[len(items)-1].Temp,
		FeelsLikeDay: sumFeels / n,
		Humidity:     int(sumHum / n),
		WindSpeed:    sumWind / n,
		WindDeg:      int(sumDeg / n),
		Clouds:       int(sumClouds / n),
		Pop:          maxPop,
		Condition:    items[len(items)/2].Condition,
	}
	if anyRain {
		d.Rain = &sumRain
	}
	if anySnow {
		d.Snow = &sumSnow
	}
	return d
}
