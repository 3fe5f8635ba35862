package provider

import (
	"math"
	"sort"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/units"
)

// sample is one sub-daily forecast slot, already in Celsius.
type sample struct {
	At        time.Time
	TempC     float64
	Rain      bool
	Snow      bool
	Condition *models.Condition
}

type dayBucket struct {
	sum, max, min  float64
	n, rain, snow  int
	conditions     map[string]int
	conditionOrder []*models.Condition
}

// bucketByDay groups samples by UTC calendar date. Temperatures are the mean
// and extrema of the day's samples; rain and snow chance are the rounded
// percentage of slots carrying precipitation. Days without samples are
// omitted. The result is ascending by date and holds at most days entries.
func bucketByDay(samples []sample, days int) []models.ForecastDay {
	buckets := make(map[string]*dayBucket)
	for _, s := range samples {
		key := s.At.UTC().Format(models.DateLayout)
		b, ok := buckets[key]
		if !ok {
			b = &dayBucket{max: math.Inf(-1), min: math.Inf(1), conditions: make(map[string]int)}
			buckets[key] = b
		}
		b.n++
		b.sum += s.TempC
		b.max = math.Max(b.max, s.TempC)
		b.min = math.Min(b.min, s.TempC)
		if s.Rain {
			b.rain++
		}
		if s.Snow {
			b.snow++
		}
		if s.Condition != nil {
			if b.conditions[s.Condition.Text] == 0 {
				b.conditionOrder = append(b.conditionOrder, s.Condition)
			}
			b.conditions[s.Condition.Text]++
		}
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if days > 0 && len(dates) > days {
		dates = dates[:days]
	}

	out := make([]models.ForecastDay, 0, len(dates))
	for _, d := range dates {
		b := buckets[d]
		avg := b.sum / float64(b.n)
		day := models.ForecastDay{
			Date:            d,
			AvgTempC:        models.Float64(avg),
			AvgTempF:        models.Float64(units.CelsiusToFahrenheit(avg)),
			MaxTempC:        models.Float64(b.max),
			MaxTempF:        models.Float64(units.CelsiusToFahrenheit(b.max)),
			MinTempC:        models.Float64(b.min),
			MinTempF:        models.Float64(units.CelsiusToFahrenheit(b.min)),
			ChanceOfRainPct: models.Int(percent(b.rain, b.n)),
			ChanceOfSnowPct: models.Int(percent(b.snow, b.n)),
			Condition:       b.dominantCondition(),
		}
		out = append(out, day)
	}
	return out
}

// dominantCondition is the most frequent condition; ties go to the earliest seen.
func (b *dayBucket) dominantCondition() *models.Condition {
	var best *models.Condition
	bestCount := 0
	for _, c := range b.conditionOrder {
		if n := b.conditions[c.Text]; n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
