package utils

import (
	"math"
	"time"
)

// IsLocationValid checks if the provided coordinates are valid
func IsLocationValid(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// IsLocationRecent checks if the location was updated within the window
func IsLocationRecent(lastUpdate *time.Time, window time.Duration) bool {
	if lastUpdate == nil {
		return false
	}
	return lastUpdate.After(time.Now().Add(-window))
}
