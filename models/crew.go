package models

import "time"

type CrewRole string

const (
	CrewRoleCaptain CrewRole = "captain"
	CrewRoleMember  CrewRole = "member"
)

type Crew struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CaptainID    int       `json:"captain_id"`
	IsPublic     bool      `json:"is_public"`
	MaxMembers   int       `json:"max_members"`
	TotalMembers int       `json:"total_members"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CrewMembership struct {
	CrewID   int       `json:"crew_id"`
	UserID   int       `json:"user_id"`
	Role     CrewRole  `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// CrewMember is a membership row joined with user details for listings.
type CrewMember struct {
	UserID          int       `json:"user_id"`
	Username        string    `json:"username"`
	AvatarURL       *string   `json:"avatar_url,omitempty"`
	Role            CrewRole  `json:"role"`
	JoinedAt        time.Time `json:"joined_at"`
	TotalDistanceKm float64   `json:"total_distance_km"`
	TotalRuns       int       `json:"total_runs"`
}
