package models

import "time"

type LeagueTier string

const (
	TierBronze   LeagueTier = "Bronze"
	TierSilver   LeagueTier = "Silver"
	TierGold     LeagueTier = "Gold"
	TierPlatinum LeagueTier = "Platinum"
	TierDiamond  LeagueTier = "Diamond"
)

const DefaultEloRating = 1200

type User struct {
	ID           int     `json:"id"`
	Email        string  `json:"email"`
	Username     string  `json:"username"`
	PasswordHash string  `json:"-"`
	FullName     string  `json:"full_name,omitempty"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
	WeightKg     float64 `json:"weight_kg"`

	// Aggregated run stats, updated by the run service.
	TotalDistanceKm      float64 `json:"total_distance_km"`
	TotalDurationSeconds int     `json:"total_duration_seconds"`
	TotalRuns            int     `json:"total_runs"`
	AvgPace              float64 `json:"avg_pace"`

	// Ranking. LeagueTier is always derived from EloRating, never set directly.
	EloRating    int        `json:"elo_rating"`
	LeagueTier   LeagueTier `json:"league_tier"`
	LeaguePoints int        `json:"league_points"`

	CreatedAt time.Time `json:"created_at"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
