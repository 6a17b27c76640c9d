package models

import "time"

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	TournamentStatusUpcoming  TournamentStatus = "upcoming"
	TournamentStatusActive    TournamentStatus = "active"
	TournamentStatusCompleted TournamentStatus = "completed"
	TournamentStatusExpired   TournamentStatus = "expired"
)

type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	Description     *string          `json:"description,omitempty" db:"description"`
	CreatorID       int              `json:"creator_id" db:"creator_id"`
	Status          TournamentStatus `json:"status" db:"status"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`
	MinParticipants int              `json:"min_participants" db:"min_participants"`
	EntryFee        int64            `json:"entry_fee" db:"entry_fee"`
	PrizePool       int64            `json:"prize_pool" db:"prize_pool"`
	TotalCollected  int64            `json:"total_collected" db:"total_collected"`
	PrizePaid       bool             `json:"prize_paid" db:"prize_paid"`
	CurrentRound    int              `json:"current_round" db:"current_round"`
	TotalRounds     int              `json:"total_rounds" db:"total_rounds"`
	IsWeekly        bool             `json:"is_weekly" db:"is_weekly"`
	WinnerUserID    *int             `json:"winner_user_id,omitempty" db:"winner_user_id"`
	StartDate       time.Time        `json:"start_date" db:"start_date"`
	EndDate         time.Time        `json:"end_date" db:"end_date"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	BannerKey       *string          `json:"-" db:"banner_key"`
	BannerURL       *string          `json:"banner_url,omitempty" db:"-"`

	// Optional related entities, loaded on demand.
	Creator      *User         `json:"creator,omitempty" db:"-"`
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Matches      []Match       `json:"matches,omitempty" db:"-"`
}

// IsTerminal reports whether no further status transition is possible.
func (s TournamentStatus) IsTerminal() bool {
	return s == TournamentStatusCompleted || s == TournamentStatusExpired
}
