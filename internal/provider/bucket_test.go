package provider

import (
	"math"
	"testing"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

func at(date string, hour int) time.Time {
	d, _ := time.Parse(models.DateLayout, date)
	return d.Add(time.Duration(hour) * time.Hour)
}

// TestBucketByDay_Aggregates verifies mean, extrema and precipitation
// percentage per UTC day.
func TestBucketByDay_Aggregates(t *testing.T) {
	samples := []sample{
		{At: at("2024-05-02", 0), TempC: 10},
		{At: at("2024-05-02", 12), TempC: 14},
		{At: at("2024-05-01", 0), TempC: 8, Rain: true},
		{At: at("2024-05-01", 6), TempC: 12},
		{At: at("2024-05-01", 12), TempC: 16, Rain: true},
		{At: at("2024-05-01", 18), TempC: 12},
	}

	got := bucketByDay(samples, 5)
	if len(got) != 2 {
		t.Fatalf("bucketByDay() len = %d, want 2", len(got))
	}

	first := got[0]
	if first.Date != "2024-05-01" {
		t.Errorf("Days[0].Date = %q, want 2024-05-01", first.Date)
	}
	if *first.AvgTempC != 12 {
		t.Errorf("Days[0].AvgTempC = %v, want 12", *first.AvgTempC)
	}
	if *first.MaxTempC != 16 || *first.MinTempC != 8 {
		t.Errorf("Days[0] max/min = %v/%v, want 16/8", *first.MaxTempC, *first.MinTempC)
	}
	if math.Abs(*first.AvgTempF-53.6) > 1e-9 {
		t.Errorf("Days[0].AvgTempF = %v, want 53.6", *first.AvgTempF)
	}
	if *first.ChanceOfRainPct != 50 {
		t.Errorf("Days[0].ChanceOfRainPct = %d, want 50", *first.ChanceOfRainPct)
	}

	second := got[1]
	if second.Date != "2024-05-02" {
		t.Errorf("Days[1].Date = %q, want 2024-05-02", second.Date)
	}
	if *second.ChanceOfRainPct != 0 {
		t.Errorf("Days[1].ChanceOfRainPct = %d, want 0", *second.ChanceOfRainPct)
	}
	if *second.ChanceOfSnowPct != 0 {
		t.Errorf("Days[1].ChanceOfSnowPct = %d, want 0", *second.ChanceOfSnowPct)
	}
}

// TestBucketByDay_Truncates verifies output is limited to the requested count
// and that gaps are not zero-filled.
func TestBucketByDay_Truncates(t *testing.T) {
	samples := []sample{
		{At: at("2024-05-05", 3), TempC: 1},
		{At: at("2024-05-01", 3), TempC: 1},
		{At: at("2024-05-03", 3), TempC: 1},
	}

	got := bucketByDay(samples, 2)
	if len(got) != 2 {
		t.Fatalf("bucketByDay() len = %d, want 2", len(got))
	}
	if got[0].Date != "2024-05-01" || got[1].Date != "2024-05-03" {
		t.Errorf("bucketByDay() dates = %s,%s, want 2024-05-01,2024-05-03", got[0].Date, got[1].Date)
	}
}

// TestBucketByDay_UsesUTCDate verifies a late-evening local sample lands on its UTC date.
func TestBucketByDay_UsesUTCDate(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*60*60)
	local := time.Date(2024, 5, 1, 21, 0, 0, 0, zone)

	got := bucketByDay([]sample{{At: local, TempC: 5}}, 1)
	if len(got) != 1 || got[0].Date != "2024-05-02" {
		t.Errorf("bucketByDay() = %+v, want single day 2024-05-02", got)
	}
}

// TestBucketByDay_DominantCondition verifies the most frequent condition wins
// and ties resolve to the earliest seen.
func TestBucketByDay_DominantCondition(t *testing.T) {
	rain := &models.Condition{Text: "light rain"}
	clouds := &models.Condition{Text: "overcast clouds"}

	tests := []struct {
		name    string
		samples []sample
		want    string
	}{
		{
			name: "majority",
			samples: []sample{
				{At: at("2024-05-01", 0), Condition: rain},
				{At: at("2024-05-01", 3), Condition: clouds},
				{At: at("2024-05-01", 6), Condition: clouds},
			},
			want: "overcast clouds",
		},
		{
			name: "tie keeps earliest",
			samples: []sample{
				{At: at("2024-05-01", 0), Condition: rain},
				{At: at("2024-05-01", 3), Condition: clouds},
			},
			want: "light rain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bucketByDay(tt.samples, 1)
			if len(got) != 1 || got[0].Condition == nil {
				t.Fatalf("bucketByDay() = %+v, want one day with condition", got)
			}
			if got[0].Condition.Text != tt.want {
				t.Errorf("Condition.Text = %q, want %q", got[0].Condition.Text, tt.want)
			}
		})
	}
}

func TestBucketByDay_Empty(t *testing.T) {
	if got := bucketByDay(nil, 3); len(got) != 0 {
		t.Errorf("bucketByDay(nil) = %v, want empty", got)
	}
}
