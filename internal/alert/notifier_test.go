package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

func webhookAlert(url string) models.WeatherAlert {
	return models.WeatherAlert{
		ID: "alert-1",
		AlertDefinition: models.AlertDefinition{
			Name:       "heat",
			Location:   models.CityQuery("Phoenix", "US"),
			Condition:  models.AlertCondition{Type: models.ConditionTempAbove, Threshold: models.Float64(40)},
			Channel:    models.ChannelWebhook,
			WebhookURL: url,
		},
	}
}

// TestDispatcher_Webhook verifies a single JSON POST of {id, message, alert, payload}.
func TestDispatcher_Webhook(t *testing.T) {
	var calls int
	var body map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDispatcher(nil, time.Second)
	d.Notify(context.Background(), Notification{
		ID:      "alert-1",
		Message: "temperature 41.0°C at or above 40.0°C in Phoenix,US",
		Alert:   webhookAlert(server.URL),
		Payload: models.NormalizedCurrent{Provider: "weatherapi", TemperatureC: 41},
	})

	if calls != 1 {
		t.Fatalf("webhook calls = %d, want 1", calls)
	}
	for _, k := range []string{"id", "message", "alert", "payload"} {
		if _, ok := body[k]; !ok {
			t.Errorf("body missing %q: %v", k, body)
		}
	}
	var id string
	_ = json.Unmarshal(body["id"], &id)
	if id != "alert-1" {
		t.Errorf("id = %q, want alert-1", id)
	}
}

// TestDispatcher_Webhook_FailureSwallowed verifies a failing endpoint is
// attempted once and logged, never retried.
func TestDispatcher_Webhook_FailureSwallowed(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDispatcher(zap.New(core), time.Second)
	d.Notify(context.Background(), Notification{ID: "alert-1", Alert: webhookAlert(server.URL)})

	if calls != 1 {
		t.Errorf("webhook calls = %d, want 1", calls)
	}
	if logs.FilterMessage("webhook delivery failed").Len() != 1 {
		t.Errorf("expected one webhook failure log, got %v", logs.All())
	}
}

// TestDispatcher_Webhook_Unreachable verifies network errors are swallowed.
func TestDispatcher_Webhook_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDispatcher(zap.New(core), 200*time.Millisecond)
	d.Notify(context.Background(), Notification{ID: "alert-1", Alert: webhookAlert(url)})

	if logs.FilterMessage("webhook delivery failed").Len() != 1 {
		t.Errorf("expected one webhook failure log, got %v", logs.All())
	}
}

// TestDispatcher_Console verifies console delivery is a structured info line.
func TestDispatcher_Console(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewDispatcher(zap.New(core), time.Second)

	a := webhookAlert("")
	a.Channel = models.ChannelConsole
	d.Notify(context.Background(), Notification{ID: a.ID, Message: "hot", Alert: a})

	entries := logs.FilterMessage("weather alert triggered").All()
	if len(entries) != 1 {
		t.Fatalf("console log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["alert_id"] != "alert-1" || fields["message"] != "hot" || fields["condition"] != "temp_above" {
		t.Errorf("console fields = %v", fields)
	}
}
