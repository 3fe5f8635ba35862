package provider

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/units"
)

const (
	WeatherAPIName           = "weatherapi"
	defaultWeatherAPIBaseURL = "https://api.weatherapi.com/v1"
)

// WeatherAPI adapts weatherapi.com. Upstream reports both unit systems and
// pre-bucketed daily forecasts, and serves historical days.
type WeatherAPI struct {
	apiKey string
	http   upstream
}

// NewWeatherAPI creates an adapter. An empty key is rejected.
func NewWeatherAPI(apiKey string, opts Options) (*WeatherAPI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	return &WeatherAPI{
		apiKey: apiKey,
		http:   newUpstream(WeatherAPIName, defaultWeatherAPIBaseURL, opts),
	}, nil
}

func (w *WeatherAPI) Name() string { return WeatherAPIName }

type waLocation struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type waCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code *int   `json:"code"`
}

type waCurrent struct {
	LastUpdatedEpoch int64       `json:"last_updated_epoch"`
	TempC            *float64    `json:"temp_c"`
	TempF            *float64    `json:"temp_f"`
	FeelsLikeC       *float64    `json:"feelslike_c"`
	FeelsLikeF       *float64    `json:"feelslike_f"`
	Humidity         *float64    `json:"humidity"`
	WindKph          *float64    `json:"wind_kph"`
	WindMph          *float64    `json:"wind_mph"`
	WindDir          string      `json:"wind_dir"`
	PressureMb       *float64    `json:"pressure_mb"`
	UV               *float64    `json:"uv"`
	Condition        waCondition `json:"condition"`
}

type waDay struct {
	AvgTempC          *float64     `json:"avgtemp_c"`
	AvgTempF          *float64     `json:"avgtemp_f"`
	MaxTempC          *float64     `json:"maxtemp_c"`
	MaxTempF          *float64     `json:"maxtemp_f"`
	MinTempC          *float64     `json:"mintemp_c"`
	MinTempF          *float64     `json:"mintemp_f"`
	MaxWindKph        *float64     `json:"maxwind_kph"`
	MaxWindMph        *float64     `json:"maxwind_mph"`
	AvgHumidity       *float64     `json:"avghumidity"`
	UV                *float64     `json:"uv"`
	DailyChanceOfRain *int         `json:"daily_chance_of_rain"`
	DailyChanceOfSnow *int         `json:"daily_chance_of_snow"`
	Condition         *waCondition `json:"condition"`
}

type waResponse struct {
	Location waLocation `json:"location"`
	Current  waCurrent  `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  waDay  `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (w *WeatherAPI) params(q models.LocationQuery) url.Values {
	params := url.Values{}
	params.Set("key", w.apiKey)
	switch q.Mode() {
	case models.AddressCoords:
		params.Set("q", strconv.FormatFloat(*q.Lat, 'f', -1, 64)+","+strconv.FormatFloat(*q.Lon, 'f', -1, 64))
	default:
		params.Set("q", q.String())
	}
	return params
}

// FetchCurrent returns current conditions. Upstream always reports both unit
// systems, so units is not sent.
func (w *WeatherAPI) FetchCurrent(ctx context.Context, q models.LocationQuery, _ models.Units) (models.NormalizedCurrent, error) {
	if err := checkQuery(q); err != nil {
		return models.NormalizedCurrent{}, err
	}

	var resp waResponse
	if err := w.http.getJSON(ctx, "/current.json", w.params(q), &resp); err != nil {
		return models.NormalizedCurrent{}, err
	}

	c := resp.Current
	tempC, tempF, ok := dualTemp(c.TempC, c.TempF)
	if !ok {
		return models.NormalizedCurrent{}, formatError("weatherapi: missing current temperature")
	}
	out := models.NormalizedCurrent{
		Provider:     WeatherAPIName,
		Location:     waLoc(resp.Location),
		ObservedAt:   observedAt(c.LastUpdatedEpoch),
		TemperatureC: tempC,
		TemperatureF: tempF,
		Humidity:     c.Humidity,
		PressureMb:   c.PressureMb,
		UV:           c.UV,
		Condition:    waCond(&c.Condition),
	}
	if fc, ff, ok := dualTemp(c.FeelsLikeC, c.FeelsLikeF); ok {
		out.FeelsLikeC, out.FeelsLikeF = &fc, &ff
	}
	out.WindKph, out.WindMph = dualWind(c.WindKph, c.WindMph)
	if c.WindDir != "" {
		out.WindDir = models.String(c.WindDir)
	}
	return out, nil
}

// FetchForecast maps upstream daily buckets directly.
func (w *WeatherAPI) FetchForecast(ctx context.Context, q models.LocationQuery, _ models.Units, days int) (models.Forecast, error) {
	if err := checkQuery(q); err != nil {
		return models.Forecast{}, err
	}

	params := w.params(q)
	params.Set("days", strconv.Itoa(days))
	var resp waResponse
	if err := w.http.getJSON(ctx, "/forecast.json", params, &resp); err != nil {
		return models.Forecast{}, err
	}

	out := models.Forecast{
		Provider: WeatherAPIName,
		Location: waLoc(resp.Location),
		Days:     make([]models.ForecastDay, 0, len(resp.Forecast.ForecastDay)),
	}
	for _, fd := range resp.Forecast.ForecastDay {
		d := fd.Day
		day := models.ForecastDay{
			Date:            fd.Date,
			ChanceOfRainPct: d.DailyChanceOfRain,
			ChanceOfSnowPct: d.DailyChanceOfSnow,
		}
		if c, f, ok := dualTemp(d.AvgTempC, d.AvgTempF); ok {
			day.AvgTempC, day.AvgTempF = &c, &f
		}
		if c, f, ok := dualTemp(d.MaxTempC, d.MaxTempF); ok {
			day.MaxTempC, day.MaxTempF = &c, &f
		}
		if c, f, ok := dualTemp(d.MinTempC, d.MinTempF); ok {
			day.MinTempC, day.MinTempF = &c, &f
		}
		if d.Condition != nil {
			cond := waCond(d.Condition)
			day.Condition = &cond
		}
		out.Days = append(out.Days, day)
	}
	sort.SliceStable(out.Days, func(i, j int) bool { return out.Days[i].Date < out.Days[j].Date })
	if days > 0 && len(out.Days) > days {
		out.Days = out.Days[:days]
	}
	return out, nil
}

// FetchHistorical returns the daily summary for date (UTC calendar day).
func (w *WeatherAPI) FetchHistorical(ctx context.Context, q models.LocationQuery, date time.Time) (models.NormalizedHistorical, error) {
	if err := checkQuery(q); err != nil {
		return models.NormalizedHistorical{}, err
	}

	dt := date.UTC().Format(models.DateLayout)
	params := w.params(q)
	params.Set("dt", dt)
	var resp waResponse
	if err := w.http.getJSON(ctx, "/history.json", params, &resp); err != nil {
		return models.NormalizedHistorical{}, err
	}
	if len(resp.Forecast.ForecastDay) == 0 {
		return models.NormalizedHistorical{}, formatError("weatherapi: history has no forecastday")
	}

	d := resp.Forecast.ForecastDay[0].Day
	tempC, tempF, ok := dualTemp(d.AvgTempC, d.AvgTempF)
	if !ok {
		return models.NormalizedHistorical{}, formatError("weatherapi: history missing avgtemp")
	}
	day, _ := time.Parse(models.DateLayout, dt)
	cur := models.NormalizedCurrent{
		Provider:     WeatherAPIName,
		Location:     waLoc(resp.Location),
		ObservedAt:   day,
		TemperatureC: tempC,
		TemperatureF: tempF,
		Humidity:     d.AvgHumidity,
		UV:           d.UV,
		Condition:    waCond(d.Condition),
	}
	cur.WindKph, cur.WindMph = dualWind(d.MaxWindKph, d.MaxWindMph)
	return models.NormalizedHistorical{NormalizedCurrent: cur, Date: dt}, nil
}

func waLoc(l waLocation) models.Location {
	return models.Location{Name: l.Name, Lat: l.Lat, Lon: l.Lon, Country: l.Country}
}

func waCond(c *waCondition) models.Condition {
	if c == nil {
		return models.Condition{}
	}
	out := models.Condition{Text: c.Text, Code: c.Code}
	if c.Icon != "" {
		out.IconURL = c.Icon
		if strings.HasPrefix(c.Icon, "//") {
			out.IconURL = "https:" + c.Icon
		}
	}
	return out
}

// dualTemp fills whichever side upstream omitted.
func dualTemp(c, f *float64) (float64, float64, bool) {
	switch {
	case c != nil && f != nil:
		return *c, *f, true
	case c != nil:
		return *c, units.CelsiusToFahrenheit(*c), true
	case f != nil:
		return units.FahrenheitToCelsius(*f), *f, true
	default:
		return 0, 0, false
	}
}

func dualWind(kph, mph *float64) (*float64, *float64) {
	switch {
	case kph != nil && mph != nil:
		return kph, mph
	case kph != nil:
		return kph, models.Float64(units.KphToMph(*kph))
	case mph != nil:
		return models.Float64(units.MphToKph(*mph)), mph
	default:
		return nil, nil
	}
}
