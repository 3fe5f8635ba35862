package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/units"
)

const (
	OpenWeatherName           = "openweather"
	defaultOpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5"
	openWeatherIconURL        = "https://openweathermap.org/img/wn/%s@2x.png"
)

// OpenWeather adapts the OpenWeatherMap 2.5 API. Its forecast endpoint returns
// 3-hourly samples, which are bucketed into calendar days here. It has no
// historical capability.
type OpenWeather struct {
	apiKey string
	http   upstream
}

// NewOpenWeather creates an adapter. An empty key is rejected.
func NewOpenWeather(apiKey string, opts Options) (*OpenWeather, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	return &OpenWeather{
		apiKey: apiKey,
		http:   newUpstream(OpenWeatherName, defaultOpenWeatherBaseURL, opts),
	}, nil
}

func (o *OpenWeather) Name() string { return OpenWeatherName }

type owCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type owWeather struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owMain struct {
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
	Pressure  *float64 `json:"pressure"`
	Humidity  *float64 `json:"humidity"`
}

type owWind struct {
	Speed *float64 `json:"speed"`
	Deg   *float64 `json:"deg"`
}

type owCurrentResponse struct {
	Name    string      `json:"name"`
	Dt      int64       `json:"dt"`
	Coord   owCoord     `json:"coord"`
	Main    owMain      `json:"main"`
	Weather []owWeather `json:"weather"`
	Wind    owWind      `json:"wind"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type owForecastResponse struct {
	List []struct {
		Dt      int64              `json:"dt"`
		Main    owMain             `json:"main"`
		Weather []owWeather        `json:"weather"`
		Rain    map[string]float64 `json:"rain"`
		Snow    map[string]float64 `json:"snow"`
	} `json:"list"`
	City struct {
		Name    string  `json:"name"`
		Coord   owCoord `json:"coord"`
		Country string  `json:"country"`
	} `json:"city"`
}

func (o *OpenWeather) params(q models.LocationQuery, u models.Units) url.Values {
	params := url.Values{}
	switch q.Mode() {
	case models.AddressCoords:
		params.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(*q.Lon, 'f', -1, 64))
	default:
		params.Set("q", q.String())
	}
	if !u.Valid() {
		u = models.UnitsMetric
	}
	params.Set("units", string(u))
	params.Set("appid", o.apiKey)
	return params
}

// FetchCurrent returns current conditions in both unit systems.
func (o *OpenWeather) FetchCurrent(ctx context.Context, q models.LocationQuery, u models.Units) (models.NormalizedCurrent, error) {
	if err := checkQuery(q); err != nil {
		return models.NormalizedCurrent{}, err
	}
	if !u.Valid() {
		u = models.UnitsMetric
	}

	var resp owCurrentResponse
	if err := o.http.getJSON(ctx, "/weather", o.params(q, u), &resp); err != nil {
		return models.NormalizedCurrent{}, err
	}
	if resp.Main.Temp == nil {
		return models.NormalizedCurrent{}, formatError("openweather: missing main.temp")
	}

	tempC, tempF := dualFromNative(*resp.Main.Temp, u)
	out := models.NormalizedCurrent{
		Provider: OpenWeatherName,
		Location: models.Location{
			Name:    resp.Name,
			Lat:     resp.Coord.Lat,
			Lon:     resp.Coord.Lon,
			Country: resp.Sys.Country,
		},
		ObservedAt:   observedAt(resp.Dt),
		TemperatureC: tempC,
		TemperatureF: tempF,
		Humidity:     resp.Main.Humidity,
		PressureMb:   resp.Main.Pressure,
		Condition:    owCondition(resp.Weather),
	}
	if resp.Main.FeelsLike != nil {
		c, f := dualFromNative(*resp.Main.FeelsLike, u)
		out.FeelsLikeC, out.FeelsLikeF = &c, &f
	}
	if resp.Wind.Speed != nil {
		kph := *resp.Wind.Speed
		if u == models.UnitsImperial {
			kph = units.MphToKph(kph)
		} else {
			kph = units.MetersPerSecondToKph(kph)
		}
		out.WindKph = models.Float64(kph)
		out.WindMph = models.Float64(units.KphToMph(kph))
	}
	if resp.Wind.Deg != nil {
		out.WindDir = models.String(units.DegreesToCompass(*resp.Wind.Deg))
	}
	return out, nil
}

// FetchForecast buckets the 3-hourly forecast into at most days calendar days.
func (o *OpenWeather) FetchForecast(ctx context.Context, q models.LocationQuery, u models.Units, days int) (models.Forecast, error) {
	if err := checkQuery(q); err != nil {
		return models.Forecast{}, err
	}
	if !u.Valid() {
		u = models.UnitsMetric
	}

	var resp owForecastResponse
	if err := o.http.getJSON(ctx, "/forecast", o.params(q, u), &resp); err != nil {
		return models.Forecast{}, err
	}

	samples := make([]sample, 0, len(resp.List))
	for _, item := range resp.List {
		if item.Main.Temp == nil {
			return models.Forecast{}, formatError("openweather: forecast slot missing main.temp")
		}
		tempC, _ := dualFromNative(*item.Main.Temp, u)
		s := sample{
			At:    time.Unix(item.Dt, 0).UTC(),
			TempC: tempC,
			Rain:  item.Rain != nil,
			Snow:  item.Snow != nil,
		}
		if len(item.Weather) > 0 {
			c := owCondition(item.Weather)
			s.Condition = &c
		}
		samples = append(samples, s)
	}

	return models.Forecast{
		Provider: OpenWeatherName,
		Location: models.Location{
			Name:    resp.City.Name,
			Lat:     resp.City.Coord.Lat,
			Lon:     resp.City.Coord.Lon,
			Country: resp.City.Country,
		},
		Days: bucketByDay(samples, days),
	}, nil
}

func owCondition(weather []owWeather) models.Condition {
	if len(weather) == 0 {
		return models.Condition{}
	}
	w := weather[0]
	c := models.Condition{Text: w.Description, Code: models.Int(w.ID)}
	if c.Text == "" {
		c.Text = w.Main
	}
	if w.Icon != "" {
		c.IconURL = fmt.Sprintf(openWeatherIconURL, w.Icon)
	}
	return c
}

// dualFromNative returns (celsius, fahrenheit) for a temperature reported in u.
func dualFromNative(v float64, u models.Units) (float64, float64) {
	if u == models.UnitsImperial {
		return units.FahrenheitToCelsius(v), v
	}
	return v, units.CelsiusToFahrenheit(v)
}

func observedAt(unix int64) time.Time {
	if unix <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}
