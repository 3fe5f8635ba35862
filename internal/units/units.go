// Package units converts between metric and imperial representations so every
// normalized record can carry both.
package units

import "math"

const kmPerMile = 1.609344

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FahrenheitToCelsius converts °F to °C.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// KphToMph converts kilometres per hour to miles per hour.
func KphToMph(kph float64) float64 {
	return kph / kmPerMile
}

// MphToKph converts miles per hour to kilometres per hour.
func MphToKph(mph float64) float64 {
	return mph * kmPerMile
}

// MetersPerSecondToKph converts m/s (OpenWeather metric wind) to km/h.
func MetersPerSecondToKph(ms float64) float64 {
	return ms * 3.6
}

var compassPoints = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DegreesToCompass maps a meteorological wind bearing to a 16-point compass label.
func DegreesToCompass(deg float64) string {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	idx := int(math.Floor(d/22.5+0.5)) % len(compassPoints)
	return compassPoints[idx]
}
