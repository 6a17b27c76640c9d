package models

import "time"

// TransactionKind tags a currency movement in the audit log.
type TransactionKind string

const (
	TransactionEntryFee    TransactionKind = "entry_fee"
	TransactionPrizePayout TransactionKind = "prize_payout"
	TransactionRefund      TransactionKind = "refund"
)

// Transaction is one immutable ledger entry. Amount is signed from the
// user's point of view: negative for debits, positive for credits.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	UserID       int             `json:"user_id" db:"user_id"`
	TournamentID *int            `json:"tournament_id,omitempty" db:"tournament_id"`
	Kind         TransactionKind `json:"kind" db:"kind"`
	Amount       int64           `json:"amount" db:"amount"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
