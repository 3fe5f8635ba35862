package models

import "time"

// ConditionType is the kind of weather condition an alert watches.
type ConditionType string

const (
	ConditionRain      ConditionType = "rain"
	ConditionTempAbove ConditionType = "temp_above"
	ConditionTempBelow ConditionType = "temp_below"
	ConditionWindAbove ConditionType = "wind_above"
)

// Channel is where a triggered alert is delivered.
type Channel string

const (
	ChannelConsole Channel = "console"
	ChannelWebhook Channel = "webhook"
)

// Sensitivity scales an alert's threshold.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Factor returns the multiplier applied to thresholds: high trips more
// easily, low less easily, medium or unset leaves the threshold unchanged.
func (s Sensitivity) Factor() float64 {
	switch s {
	case SensitivityHigh:
		return 0.9
	case SensitivityLow:
		return 1.1
	default:
		return 1.0
	}
}

// AlertCondition describes what trips an alert.
type AlertCondition struct {
	Type      ConditionType `json:"type" validate:"required,oneof=rain temp_above temp_below wind_above"`
	Threshold *float64      `json:"threshold,omitempty"`
	DaysAhead *int          `json:"daysAhead,omitempty" validate:"omitempty,min=1,max=7"`
}

// AlertDefinition is the caller-supplied part of an alert.
type AlertDefinition struct {
	Name        string         `json:"name,omitempty" validate:"omitempty,max=128"`
	Location    LocationQuery  `json:"location"`
	Condition   AlertCondition `json:"condition"`
	Channel     Channel        `json:"channel" validate:"required,oneof=console webhook"`
	WebhookURL  string         `json:"webhookUrl,omitempty" validate:"required_if=Channel webhook,omitempty,url"`
	Sensitivity Sensitivity    `json:"sensitivity,omitempty" validate:"omitempty,oneof=low medium high"`
}

// WeatherAlert is a registered alert.
type WeatherAlert struct {
	ID string `json:"id"`
	AlertDefinition
	CreatedAt       time.Time  `json:"createdAt"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
}
