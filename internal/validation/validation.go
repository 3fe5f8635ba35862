// Package validation checks inbound weather queries and alert definitions
// before they reach the aggregator or the alert registry.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

// Bounds for city names, in runes.
const (
	MinCityLen = 1
	MaxCityLen = 100
)

// MaxForecastDays is the longest forecast window accepted.
const MaxForecastDays = 7

var (
	ErrLocationEmpty         = errors.New("city or lat/lon is required")
	ErrLocationTooShort      = errors.New("location too short")
	ErrLocationTooLong       = errors.New("location too long")
	ErrLocationInvalidChars  = errors.New("location contains invalid characters")
	ErrCountryInvalid        = errors.New("country must be a 2-letter code")
	ErrCoordinatesIncomplete = errors.New("lat and lon must be given together")
	ErrLatitudeRange         = errors.New("lat must be between -90 and 90")
	ErrLongitudeRange        = errors.New("lon must be between -180 and 180")
	ErrUnits                 = errors.New("units must be metric or imperial")
	ErrDays                  = fmt.Errorf("days must be between 1 and %d", MaxForecastDays)
	ErrDate                  = errors.New("date must be YYYY-MM-DD")
	ErrDateInFuture          = errors.New("date must not be in the future")
	ErrInvalidAlert          = errors.New("invalid alert definition")
)

var validate = validator.New()

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to letters, digits, space, comma, hyphen, period and apostrophe.
// Returns the trimmed string.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateCoordinates checks lat/lon ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return ErrLatitudeRange
	}
	if lon < -180 || lon > 180 {
		return ErrLongitudeRange
	}
	return nil
}

// ValidateQuery checks q resolves to exactly one addressing mode and returns
// it trimmed. When both modes are present, coordinates win and the city is
// dropped.
func ValidateQuery(q models.LocationQuery) (models.LocationQuery, error) {
	switch q.Mode() {
	case models.AddressCoords:
		if err := ValidateCoordinates(*q.Lat, *q.Lon); err != nil {
			return models.LocationQuery{}, err
		}
		return models.CoordsQuery(*q.Lat, *q.Lon), nil
	case models.AddressCity:
		city, err := ValidateLocation(q.City, MinCityLen, MaxCityLen)
		if err != nil {
			return models.LocationQuery{}, err
		}
		country := strings.TrimSpace(q.Country)
		if country != "" && !isCountryCode(country) {
			return models.LocationQuery{}, ErrCountryInvalid
		}
		return models.CityQuery(city, strings.ToUpper(country)), nil
	default:
		if q.Lat != nil || q.Lon != nil {
			return models.LocationQuery{}, ErrCoordinatesIncomplete
		}
		return models.LocationQuery{}, ErrLocationEmpty
	}
}

func isCountryCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ParseUnits returns def for an empty value.
func ParseUnits(s string, def models.Units) (models.Units, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def, nil
	}
	u := models.Units(s)
	if !u.Valid() {
		return "", ErrUnits
	}
	return u, nil
}

// ValidateDays checks a forecast window.
func ValidateDays(days int) error {
	if days < 1 || days > MaxForecastDays {
		return ErrDays
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date (UTC) no later than now's date.
func ParseDate(s string, now time.Time) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrDate
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if d.After(today) {
		return time.Time{}, ErrDateInFuture
	}
	return d, nil
}

// ValidateAlert checks an alert definition: struct tags, a resolvable location,
// and a threshold on every threshold-based condition. Returns the definition
// with its location normalized.
func ValidateAlert(def models.AlertDefinition) (models.AlertDefinition, error) {
	if err := validate.Struct(def); err != nil {
		return def, fmt.Errorf("%w: %s", ErrInvalidAlert, describe(err))
	}
	q, err := ValidateQuery(def.Location)
	if err != nil {
		return def, fmt.Errorf("%w: location: %w", ErrInvalidAlert, err)
	}
	def.Location = q
	if def.Condition.Type != models.ConditionRain && def.Condition.Threshold == nil {
		return def, fmt.Errorf("%w: condition.threshold is required for %s", ErrInvalidAlert, def.Condition.Type)
	}
	if def.Channel != models.ChannelWebhook {
		def.WebhookURL = ""
	}
	return def, nil
}

// describe renders the first validator failure as "field: rule".
func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
	}
	return err.Error()
}
