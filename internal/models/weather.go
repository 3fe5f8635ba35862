package models

import "time"

// DateLayout is the calendar-day format used by forecast and historical records.
const DateLayout = "2006-01-02"

// Units selects the unit system requested from a provider.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Valid reports whether u is a known unit system.
func (u Units) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// Location is the resolved place a provider reported data for.
type Location struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country,omitempty"`
}

// Condition is the provider's textual description of the weather.
type Condition struct {
	Text    string `json:"text"`
	IconURL string `json:"iconUrl,omitempty"`
	Code    *int   `json:"code,omitempty"`
}

// NormalizedCurrent is a provider-agnostic snapshot of current conditions.
// Both temperature units are always populated; nil optional fields mean the
// provider does not report that value.
type NormalizedCurrent struct {
	Provider     string    `json:"provider"`
	Location     Location  `json:"location"`
	ObservedAt   time.Time `json:"observedAt"`
	TemperatureC float64   `json:"temperatureC"`
	TemperatureF float64   `json:"temperatureF"`
	FeelsLikeC   *float64  `json:"feelsLikeC,omitempty"`
	FeelsLikeF   *float64  `json:"feelsLikeF,omitempty"`
	Humidity     *float64  `json:"humidity,omitempty"`
	WindKph      *float64  `json:"windKph,omitempty"`
	WindMph      *float64  `json:"windMph,omitempty"`
	WindDir      *string   `json:"windDir,omitempty"`
	PressureMb   *float64  `json:"pressureMb,omitempty"`
	UV           *float64  `json:"uv,omitempty"`
	Condition    Condition `json:"condition"`
}

// ForecastDay is one calendar day of a normalized forecast.
type ForecastDay struct {
	Date            string     `json:"date"`
	AvgTempC        *float64   `json:"avgTempC,omitempty"`
	AvgTempF        *float64   `json:"avgTempF,omitempty"`
	MaxTempC        *float64   `json:"maxTempC,omitempty"`
	MaxTempF        *float64   `json:"maxTempF,omitempty"`
	MinTempC        *float64   `json:"minTempC,omitempty"`
	MinTempF        *float64   `json:"minTempF,omitempty"`
	ChanceOfRainPct *int       `json:"chanceOfRainPct,omitempty"`
	ChanceOfSnowPct *int       `json:"chanceOfSnowPct,omitempty"`
	Condition       *Condition `json:"condition,omitempty"`
}

// Forecast holds days ordered ascending by date.
type Forecast struct {
	Provider string        `json:"provider"`
	Location Location      `json:"location"`
	Days     []ForecastDay `json:"days"`
}

// NormalizedHistorical is the daily summary for a single past date.
type NormalizedHistorical struct {
	NormalizedCurrent
	Date string `json:"date"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
