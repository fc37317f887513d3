package weather

import (
	"time"
)

// Condition represents a normalized icon category for a weather code.
type Condition string

const (
	ConditionUnknown     Condition = "unknown"
	ConditionStorm       Condition = "storm"
	ConditionLightRain   Condition = "light_rain"
	ConditionRain        Condition = "rain"
	ConditionSnow        Condition = "snow"
	ConditionMist        Condition = "mist"
	ConditionClear       Condition = "clear"
	ConditionLightClouds Condition = "light_clouds"
	ConditionCloudy      Condition = "cloudy"
)

// codeRange is an inclusive block of the OpenWeatherMap condition-code table.
type codeRange struct {
	lo, hi int
}

// knownCodes lists the condition groups defined by OpenWeatherMap.
// https://openweathermap.org/weather-conditions
var knownCodes = []codeRange{
	{200, 232}, // thunderstorm
	{300, 321}, // drizzle
	{500, 531}, // rain
	{600, 622}, // snow
	{701, 781}, // atmosphere
	{800, 804}, // clear and clouds
}

// IsKnownWeatherID reports whether id belongs to the condition-code table.
func IsKnownWeatherID(id int) bool {
	for _, r := range knownCodes {
		if id >= r.lo && id <= r.hi {
			return true
		}
	}
	return false
}

// ConditionForID maps an OpenWeatherMap condition code to the icon category
// drawn on the watch face.
func ConditionForID(id int) Condition {
	switch {
	case id >= 200 && id <= 232:
		return ConditionStorm
	case id >= 300 && id <= 321:
		return ConditionLightRain
	case id >= 500 && id <= 504:
		return ConditionRain
	case id == 511:
		return ConditionSnow
	case id >= 520 && id <= 531:
		return ConditionRain
	case id >= 600 && id <= 622:
		return ConditionSnow
	case id == 761 || id == 781:
		return ConditionStorm
	case id >= 701 && id <= 781:
		return ConditionMist
	case id == 800:
		return ConditionClear
	case id == 801:
		return ConditionLightClouds
	case id >= 802 && id <= 804:
		return ConditionCloudy
	default:
		return ConditionUnknown
	}
}

// Location represents a logical place for which the companion tracks weather.
// City/Country must be provided; Lat/Lon are only needed by coordinate based providers.
type Location struct {
	City    string   `json:"city" validate:"required"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// Label is the human readable name pushed to the watch.
func (l Location) Label() string {
	if l.Country == "" {
		return l.City
	}
	return l.City + ", " + l.Country
}

// Snapshot is the single weather record shown on the watch face.
// It is only ever replaced as a whole.
type Snapshot struct {
	ObservedAtMs     int64   `json:"observedAtMs"`
	Location         string  `json:"location,omitempty"`
	WeatherID        int     `json:"weatherId" validate:"owmcode"`
	HighTempC        float64 `json:"highTempC" validate:"notnan"`
	LowTempC         float64 `json:"lowTempC" validate:"notnan"`
	ShortDescription string  `json:"shortDescription"`
}

// ObservedAt returns the observation time as a UTC time.Time.
func (s Snapshot) ObservedAt() time.Time {
	return time.UnixMilli(s.ObservedAtMs).UTC()
}

// Condition returns the icon category for the snapshot's weather code.
func (s Snapshot) Condition() Condition {
	return ConditionForID(s.WeatherID)
}
