package provider

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

const owCurrentBody = `{
  "name": "Seattle",
  "dt": 1714557600,
  "coord": {"lat": 47.61, "lon": -122.33},
  "main": {"temp": 15.5, "feels_like": 14.2, "pressure": 1015, "humidity": 65},
  "weather": [{"id": 802, "main": "Clouds", "description": "scattered clouds", "icon": "03d"}],
  "wind": {"speed": 5, "deg": 225},
  "sys": {"country": "US"}
}`

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// TestOpenWeather_FetchCurrent_Metric verifies request parameters and
// dual-unit mapping of a metric response.
func TestOpenWeather_FetchCurrent_Metric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/weather" {
			t.Errorf("path = %s, want /weather", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "Seattle,US" {
			t.Errorf("q = %q, want Seattle,US", q.Get("q"))
		}
		if q.Get("appid") != "ow-key" {
			t.Errorf("appid = %q, want ow-key", q.Get("appid"))
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		_, _ = w.Write([]byte(owCurrentBody))
	}))
	defer server.Close()

	ow, err := NewOpenWeather("ow-key", Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenWeather() error = %v", err)
	}

	got, err := ow.FetchCurrent(context.Background(), models.CityQuery("Seattle", "US"), models.UnitsMetric)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}

	if got.Provider != OpenWeatherName {
		t.Errorf("Provider = %q, want %q", got.Provider, OpenWeatherName)
	}
	if got.Location.Name != "Seattle" || got.Location.Country != "US" {
		t.Errorf("Location = %+v, want Seattle/US", got.Location)
	}
	if got.TemperatureC != 15.5 || !approx(got.TemperatureF, 59.9) {
		t.Errorf("Temperature = %v/%v, want 15.5/59.9", got.TemperatureC, got.TemperatureF)
	}
	if got.WindKph == nil || !approx(*got.WindKph, 18) {
		t.Errorf("WindKph = %v, want 18", got.WindKph)
	}
	if got.WindMph == nil || !approx(*got.WindMph, 18/1.609344) {
		t.Errorf("WindMph = %v, want %v", got.WindMph, 18/1.609344)
	}
	if got.WindDir == nil || *got.WindDir != "SW" {
		t.Errorf("WindDir = %v, want SW", got.WindDir)
	}
	if got.Condition.Text != "scattered clouds" {
		t.Errorf("Condition.Text = %q, want scattered clouds", got.Condition.Text)
	}
	if got.Condition.IconURL != "https://openweathermap.org/img/wn/03d@2x.png" {
		t.Errorf("Condition.IconURL = %q", got.Condition.IconURL)
	}
	if got.ObservedAt.Unix() != 1714557600 {
		t.Errorf("ObservedAt = %v, want unix 1714557600", got.ObservedAt)
	}
}

// TestOpenWeather_FetchCurrent_Imperial verifies imperial responses are
// converted back to metric.
func TestOpenWeather_FetchCurrent_Imperial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("units") != "imperial" {
			t.Errorf("units = %q, want imperial", r.URL.Query().Get("units"))
		}
		if r.URL.Query().Get("lat") != "47.61" || r.URL.Query().Get("lon") != "-122.33" {
			t.Errorf("lat/lon = %s/%s", r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
		}
		_, _ = w.Write([]byte(`{"name":"Seattle","main":{"temp":50},"wind":{"speed":10},"weather":[]}`))
	}))
	defer server.Close()

	ow, _ := NewOpenWeather("ow-key", Options{BaseURL: server.URL})
	got, err := ow.FetchCurrent(context.Background(), models.CoordsQuery(47.61, -122.33), models.UnitsImperial)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if !approx(got.TemperatureC, 10) || got.TemperatureF != 50 {
		t.Errorf("Temperature = %v/%v, want 10/50", got.TemperatureC, got.TemperatureF)
	}
	if got.WindMph == nil || !approx(*got.WindMph, 10) {
		t.Errorf("WindMph = %v, want 10", got.WindMph)
	}
	if got.WindKph == nil || !approx(*got.WindKph, 16.09344) {
		t.Errorf("WindKph = %v, want 16.09344", got.WindKph)
	}
}

// TestOpenWeather_FetchCurrent_MissingTemp verifies a body without main.temp
// is a format error.
func TestOpenWeather_FetchCurrent_MissingTemp(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{"name":"Nowhere","main":{}}`)
	ow, _ := NewOpenWeather("ow-key", Options{BaseURL: srv.URL})

	_, err := ow.FetchCurrent(context.Background(), models.CityQuery("Nowhere", ""), models.UnitsMetric)
	if !errorsIsFormat(err) {
		t.Errorf("FetchCurrent() error = %v, want ErrUpstreamFormat", err)
	}
}

// TestOpenWeather_FetchForecast verifies 3-hourly slots are bucketed into days.
func TestOpenWeather_FetchForecast(t *testing.T) {
	body := `{
	  "city": {"name": "Paris", "country": "FR", "coord": {"lat": 48.85, "lon": 2.35}},
	  "list": [
	    {"dt": 1714521600, "main": {"temp": 8},  "weather": [{"description": "light rain"}], "rain": {"3h": 0.4}},
	    {"dt": 1714532400, "main": {"temp": 12}, "weather": [{"description": "light rain"}], "rain": {"3h": 0.1}},
	    {"dt": 1714543200, "main": {"temp": 16}, "weather": [{"description": "clear sky"}]},
	    {"dt": 1714554000, "main": {"temp": 12}, "weather": [{"description": "clear sky"}]},
	    {"dt": 1714608000, "main": {"temp": 10}, "weather": [{"description": "clear sky"}]},
	    {"dt": 1714618800, "main": {"temp": 14}, "weather": [{"description": "clear sky"}]},
	    {"dt": 1714694400, "main": {"temp": 20}, "weather": [{"description": "clear sky"}]}
	  ]
	}`
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/forecast" {
			t.Errorf("path = %s, want /forecast", r.URL.Path)
		}
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	ow, _ := NewOpenWeather("ow-key", Options{BaseURL: server.URL})
	got, err := ow.FetchForecast(context.Background(), models.CityQuery("Paris", "FR"), models.UnitsMetric, 2)
	if err != nil {
		t.Fatalf("FetchForecast() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
	if got.Provider != OpenWeatherName || got.Location.Name != "Paris" {
		t.Errorf("Forecast header = %s/%s", got.Provider, got.Location.Name)
	}
	if len(got.Days) != 2 {
		t.Fatalf("len(Days) = %d, want 2", len(got.Days))
	}

	d0 := got.Days[0]
	if d0.Date != "2024-05-01" {
		t.Errorf("Days[0].Date = %q, want 2024-05-01", d0.Date)
	}
	if *d0.AvgTempC != 12 || *d0.MaxTempC != 16 || *d0.MinTempC != 8 {
		t.Errorf("Days[0] avg/max/min = %v/%v/%v, want 12/16/8", *d0.AvgTempC, *d0.MaxTempC, *d0.MinTempC)
	}
	if *d0.ChanceOfRainPct != 50 {
		t.Errorf("Days[0].ChanceOfRainPct = %d, want 50", *d0.ChanceOfRainPct)
	}
	if d0.Condition == nil || d0.Condition.Text != "light rain" {
		t.Errorf("Days[0].Condition = %+v, want light rain (tie, earliest)", d0.Condition)
	}

	d1 := got.Days[1]
	if d1.Date != "2024-05-02" || *d1.ChanceOfRainPct != 0 {
		t.Errorf("Days[1] = %s rain %d, want 2024-05-02 rain 0", d1.Date, *d1.ChanceOfRainPct)
	}
}
