package models

import "time"

// ReportedResult is a player's claim about a match outcome.
type ReportedResult string

const (
	ResultPlayer1Win ReportedResult = "player1_win"
	ResultPlayer2Win ReportedResult = "player2_win"
	ResultDoubleLoss ReportedResult = "double_loss"
)

func (r ReportedResult) Valid() bool {
	switch r {
	case ResultPlayer1Win, ResultPlayer2Win, ResultDoubleLoss:
		return true
	}
	return false
}

// WinnerFor maps the claim onto a user id, nil for double_loss.
func (r ReportedResult) WinnerFor(m *Match) *int {
	switch r {
	case ResultPlayer1Win:
		id := m.Player1ID
		return &id
	case ResultPlayer2Win:
		if m.Player2ID != nil {
			id := *m.Player2ID
			return &id
		}
	}
	return nil
}

// MatchReport is one reporter's active claim for a match. A resubmission
// replaces the prior row for that reporter (upsert, not append).
type MatchReport struct {
	ID             int            `json:"id" db:"id"`
	MatchID        int            `json:"match_id" db:"match_id"`
	ReporterID     int            `json:"reporter_id" db:"reporter_id"`
	ReportedResult ReportedResult `json:"reported_result" db:"reported_result"`
	IsCreator      bool           `json:"is_creator" db:"is_creator"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// ConsensusState is what report evaluation derived for a match. It is a
// reporting state surfaced to callers, not an error.
type ConsensusState string

const (
	ConsensusPending          ConsensusState = "pending"
	ConsensusAwaitingOpponent ConsensusState = "awaiting_opponent"
	ConsensusResolved         ConsensusState = "resolved"
	ConsensusConflicting      ConsensusState = "conflicting"
)
