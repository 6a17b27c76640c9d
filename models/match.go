package models

import "time"

type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
)

// Match is one pairing of a single-elimination round.
// Player2ID == nil marks a bye: the match is created already completed
// with WinnerID = Player1ID and never accepts reports.
type Match struct {
	ID              int         `json:"id" db:"id"`
	TournamentID    int         `json:"tournament_id" db:"tournament_id"`
	Round           int         `json:"round" db:"round"`
	Player1ID       int         `json:"player1_id" db:"player1_id"`
	Player2ID       *int        `json:"player2_id,omitempty" db:"player2_id"`
	Status          MatchStatus `json:"status" db:"status"`
	WinnerID        *int        `json:"winner_id,omitempty" db:"winner_id"`
	Player1Reported bool        `json:"player1_reported" db:"player1_reported"`
	Player2Reported bool        `json:"player2_reported" db:"player2_reported"`
	MatchDeadline   *time.Time  `json:"match_deadline,omitempty" db:"match_deadline"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

func (m *Match) IsBye() bool {
	return m.Player2ID == nil
}

// HasPlayer reports whether userID plays in this match.
func (m *Match) HasPlayer(userID int) bool {
	if m.Player1ID == userID {
		return true
	}
	return m.Player2ID != nil && *m.Player2ID == userID
}
