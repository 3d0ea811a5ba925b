package utils

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// HaversineDistanceKm returns the great-circle distance between two points
// in kilometers.
func HaversineDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLon1 := lon1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	rLon2 := lon2 * math.Pi / 180

	dLat := rLat2 - rLat1
	dLon := rLon2 - rLon1

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

// CalculatePace returns minutes per kilometer, or 0 for a zero distance.
func CalculatePace(distanceKm float64, durationSeconds int) float64 {
	if distanceKm <= 0 {
		return 0
	}
	pace := (float64(durationSeconds) / 60) / distanceKm
	return math.Round(pace*100) / 100
}

// CalculateSpeed returns kilometers per hour, or 0 for a zero duration.
func CalculateSpeed(distanceKm float64, durationSeconds int) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	speed := distanceKm / (float64(durationSeconds) / 3600)
	return math.Round(speed*100) / 100
}

// CalculateCalories estimates calories burned on a run. The factor is the
// common ~1 kcal per kg per km approximation.
func CalculateCalories(distanceKm, weightKg float64) float64 {
	if weightKg <= 0 {
		weightKg = 70
	}
	return math.Round(weightKg*distanceKm*100) / 100
}

func FormatDistance(distanceKm float64) string {
	if distanceKm < 1 {
		return fmt.Sprintf("%.0fm", distanceKm*1000)
	}
	return fmt.Sprintf("%.2fkm", distanceKm)
}

// FormatPace renders a min/km pace as M:SS.
func FormatPace(paceMinPerKm float64) string {
	minutes := int(paceMinPerKm)
	seconds := int((paceMinPerKm - float64(minutes)) * 60)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatDuration renders seconds as H:MM:SS, or M:SS under an hour.
func FormatDuration(totalSeconds int) string {
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
