package models

import "time"

type BattleStatus string

const (
	BattleStatusPending   BattleStatus = "pending"
	BattleStatusActive    BattleStatus = "active"
	BattleStatusCompleted BattleStatus = "completed"
	BattleStatusCancelled BattleStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave this status.
func (s BattleStatus) IsTerminal() bool {
	return s == BattleStatusCompleted || s == BattleStatusCancelled
}

const DefaultBattleDistanceKm = 5.0

type Battle struct {
	ID       int `json:"id"`
	User1ID  int `json:"user1_id"`
	User2ID  int `json:"user2_id"`

	// Target distance the battle is raced over.
	DistanceKm float64 `json:"distance_km"`

	WinnerID      *int    `json:"winner_id,omitempty"`
	User1Distance float64 `json:"user1_distance"`
	User2Distance float64 `json:"user2_distance"`
	User1Time     int     `json:"user1_time"`
	User2Time     int     `json:"user2_time"`
	User1Pace     float64 `json:"user1_pace"`
	User2Pace     float64 `json:"user2_pace"`

	// Rating snapshots. *_EloBefore is fixed at creation and never
	// recomputed; *_EloAfter is set only when the battle completes.
	User1EloBefore int  `json:"user1_elo_before"`
	User2EloBefore int  `json:"user2_elo_before"`
	User1EloAfter  *int `json:"user1_elo_after,omitempty"`
	User2EloAfter  *int `json:"user2_elo_after,omitempty"`

	Status      BattleStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`

	// Optional participant details for detail responses.
	User1 *User `json:"user1,omitempty"`
	User2 *User `json:"user2,omitempty"`
}

func (b *Battle) HasParticipant(userID int) bool {
	return b.User1ID == userID || b.User2ID == userID
}

// OpponentOf returns the other participant's id, or 0 when userID is not
// part of the battle.
func (b *Battle) OpponentOf(userID int) int {
	switch userID {
	case b.User1ID:
		return b.User2ID
	case b.User2ID:
		return b.User1ID
	}
	return 0
}
