package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cardarena/tournament-engine/models"
	"github.com/cardarena/tournament-engine/repositories"
)

func TestJoinChargesFeeAndTracksCollected(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 10, 40, 2, 8)

	var userIDs []int
	for _, nick := range []string{"alice", "bob", "carol"} {
		userIDs = append(userIDs, env.addUser(t, nick, 100))
	}
	for _, id := range userIDs {
		env.join(t, tournament.ID, id)
	}

	got := env.tournament(t, tournament.ID)
	if got.TotalCollected != 30 {
		t.Fatalf("total collected = %d, want 30", got.TotalCollected)
	}
	for _, id := range userIDs {
		if b := env.balance(t, id); b != 90 {
			t.Fatalf("user %d balance = %d, want 90", id, b)
		}
	}

	fees := 0
	for _, tx := range env.store.transactions {
		if tx.Kind == models.TransactionEntryFee {
			fees++
			if tx.Amount != -10 {
				t.Fatalf("entry fee amount = %d, want -10", tx.Amount)
			}
			if tx.TournamentID == nil || *tx.TournamentID != tournament.ID {
				t.Fatalf("entry fee not linked to tournament: %+v", tx)
			}
		}
	}
	if fees != 3 {
		t.Fatalf("entry fee audit rows = %d, want 3", fees)
	}
}

func TestJoinInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 100, 0, 2, 8)
	poor := env.addUser(t, "poor", 40)

	_, err := env.participantSvc.Join(context.Background(), tournament.ID, poor)
	if !errors.Is(err, repositories.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if b := env.balance(t, poor); b != 40 {
		t.Fatalf("balance = %d, want untouched 40", b)
	}
	if n, _ := env.participants.CountByTournament(context.Background(), nil, tournament.ID); n != 0 {
		t.Fatalf("participants = %d, want 0", n)
	}
}

func TestJoinTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 10, 0, 2, 8)
	alice := env.addUser(t, "alice", 100)

	env.join(t, tournament.ID, alice)
	_, err := env.participantSvc.Join(context.Background(), tournament.ID, alice)
	if !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("err = %v, want ErrAlreadyEnrolled", err)
	}
	if b := env.balance(t, alice); b != 90 {
		t.Fatalf("balance = %d, want single debit 90", b)
	}
}

func TestJoinLastSlotRace(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 10, 0, 2, 2)
	env.join(t, tournament.ID, env.addUser(t, "first", 100))

	racerA := env.addUser(t, "racerA", 100)
	racerB := env.addUser(t, "racerB", 100)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []int{racerA, racerB} {
		wg.Add(1)
		go func(slot, userID int) {
			defer wg.Done()
			_, errs[slot] = env.participantSvc.Join(context.Background(), tournament.ID, userID)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrTournamentFull):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("successful joins = %d, want exactly 1", succeeded)
	}

	count, _ := env.participants.CountByTournament(context.Background(), nil, tournament.ID)
	if count != 2 {
		t.Fatalf("participants = %d, want capacity 2", count)
	}
	// The loser of the race keeps their funds.
	total := env.balance(t, racerA) + env.balance(t, racerB)
	if total != 190 {
		t.Fatalf("combined racer balances = %d, want 190", total)
	}
}

func TestJoinClosedAfterStart(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 10, 0, 2, 8)
	env.join(t, tournament.ID, env.addUser(t, "alice", 100))
	env.join(t, tournament.ID, env.addUser(t, "bob", 100))

	if _, err := env.tournamentSvc.Start(context.Background(), tournament.ID, creator); err != nil {
		t.Fatalf("start: %v", err)
	}

	late := env.addUser(t, "late", 100)
	_, err := env.participantSvc.Join(context.Background(), tournament.ID, late)
	if !errors.Is(err, ErrEnrollmentClosed) {
		t.Fatalf("err = %v, want ErrEnrollmentClosed", err)
	}
}
