package models

import "time"

type Run struct {
	ID     int `json:"id"`
	UserID int `json:"user_id"`

	DistanceKm      float64 `json:"distance_km"`
	DurationSeconds int     `json:"duration_seconds"`
	AvgPace         float64 `json:"avg_pace"`
	AvgSpeed        float64 `json:"avg_speed"`
	CaloriesBurned  float64 `json:"calories_burned"`

	StartLat *float64 `json:"start_lat,omitempty"`
	StartLng *float64 `json:"start_lng,omitempty"`
	EndLat   *float64 `json:"end_lat,omitempty"`
	EndLng   *float64 `json:"end_lng,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}
