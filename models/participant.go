package models

import "time"

type ParticipantStatus string

const (
	ParticipantStatusEnrolled   ParticipantStatus = "enrolled"
	ParticipantStatusEliminated ParticipantStatus = "eliminated"
	ParticipantStatusWinner     ParticipantStatus = "winner"
)

// Participant is one (tournament, user) enrollment. The pair is unique;
// the row is created only after the entry fee debit succeeded.
type Participant struct {
	ID           int               `json:"id" db:"id"`
	TournamentID int               `json:"tournament_id" db:"tournament_id"`
	UserID       int               `json:"user_id" db:"user_id"`
	Status       ParticipantStatus `json:"status" db:"status"`
	JoinedAt     time.Time         `json:"joined_at" db:"joined_at"`

	User *User `json:"user,omitempty" db:"-"`
}
