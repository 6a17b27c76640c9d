package brackets

import (
	"context"
	"errors"
	"math/rand"
	"sync"
)

var (
	ErrNoPlayers        = errors.New("cannot generate a round with zero players")
	ErrDuplicatePlayers = errors.New("player set contains duplicates")
)

// RandomPairingGenerator shuffles the players uniformly and pairs them
// consecutively: (p0,p1), (p2,p3), ... An odd player count leaves the
// last player unpaired, which becomes a bye.
type RandomPairingGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPairingGenerator(rng *rand.Rand) Generator {
	return &RandomPairingGenerator{rng: rng}
}

func (g *RandomPairingGenerator) Name() string {
	return "RandomPairing"
}

func (g *RandomPairingGenerator) GenerateRound(ctx context.Context, params GenerateRoundParams) ([]*Pairing, error) {
	n := len(params.Players)
	if n == 0 {
		return nil, ErrNoPlayers
	}

	seen := make(map[int]struct{}, n)
	for _, id := range params.Players {
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicatePlayers
		}
		seen[id] = struct{}{}
	}

	shuffled := make([]int, n)
	copy(shuffled, params.Players)

	g.mu.Lock()
	g.rng.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	g.mu.Unlock()

	pairings := make([]*Pairing, 0, (n+1)/2)
	for i := 0; i+1 < n; i += 2 {
		p2 := shuffled[i+1]
		pairings = append(pairings, &Pairing{
			Round:     params.Round,
			Player1ID: shuffled[i],
			Player2ID: &p2,
		})
	}
	if n%2 == 1 {
		pairings = append(pairings, &Pairing{
			Round:     params.Round,
			Player1ID: shuffled[n-1],
		})
	}

	return pairings, nil
}

// RoundsFor returns the number of single-elimination rounds needed for n
// players: the smallest r with 2^r >= n.
func RoundsFor(n int) int {
	if n <= 1 {
		return 0
	}
	rounds := 0
	for size := 1; size < n; size <<= 1 {
		rounds++
	}
	return rounds
}
