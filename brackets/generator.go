package brackets

import "context"

// Pairing is one generated match of a round. Player2ID == nil marks a
// bye: that player advances without playing and the persisted match must
// be created already completed with the bye player as winner.
type Pairing struct {
	Round     int
	Player1ID int
	Player2ID *int
}

func (p *Pairing) IsBye() bool {
	return p.Player2ID == nil
}

type GenerateRoundParams struct {
	Round   int
	Players []int
}

// Generator produces the pairings of a single round from the set of
// players still in the bracket.
type Generator interface {
	GenerateRound(ctx context.Context, params GenerateRoundParams) ([]*Pairing, error)
	Name() string
}
