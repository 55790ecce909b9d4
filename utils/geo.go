package utils

import "math"

const (
	earthRadiusKm = 6371.0
	// AverageSpeedKmh is the urban average used for rough arrival estimates
	AverageSpeedKmh = 25.0
)

// HaversineKm returns the great-circle distance between two lng/lat points in kilometres.
func HaversineKm(lng1, lat1, lng2, lat2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// EstimateMinutes converts a straight-line distance into whole travel minutes, at least 1.
func EstimateMinutes(distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}
	minutes := int(math.Ceil(distanceKm / AverageSpeedKmh * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
