package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// Notification is what a triggered alert delivers. It is also the webhook
// request body.
type Notification struct {
	ID      string              `json:"id"`
	Message string              `json:"message"`
	Alert   models.WeatherAlert `json:"alert"`
	Payload interface{}         `json:"payload"`
}

// Notifier delivers notifications. Delivery is best effort: implementations
// log failures and never return them.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Dispatcher routes a notification by the alert's channel: console writes a
// structured log line, webhook POSTs the notification once.
type Dispatcher struct {
	logger *zap.Logger
	client *http.Client
}

// NewDispatcher creates a Dispatcher. timeout bounds each webhook POST.
func NewDispatcher(logger *zap.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		logger: observability.OrNop(logger),
		client: &http.Client{Timeout: timeout},
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	switch n.Alert.Channel {
	case models.ChannelWebhook:
		d.webhook(ctx, n)
	default:
		d.console(n)
	}
}

func (d *Dispatcher) console(n Notification) {
	d.logger.Info("weather alert triggered",
		zap.String("alert_id", n.ID),
		zap.String("alert_name", n.Alert.Name),
		zap.String("condition", string(n.Alert.Condition.Type)),
		zap.String("location", n.Alert.Location.String()),
		zap.String("message", n.Message),
		zap.Any("payload", n.Payload),
	)
}

func (d *Dispatcher) webhook(ctx context.Context, n Notification) {
	logger := d.logger.With(zap.String("alert_id", n.ID), zap.String("webhook_url", n.Alert.WebhookURL))
	if err := d.post(ctx, n); err != nil {
		observability.AlertWebhookFailuresTotal.Inc()
		logger.Warn("webhook delivery failed", zap.Error(err))
		return
	}
	logger.Debug("webhook delivered")
}

func (d *Dispatcher) post(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Alert.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
