package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cardarena/tournament-engine/events"
	"github.com/cardarena/tournament-engine/models"
)

// setupActive creates a tournament, enrolls n funded players and starts
// it. Returns the tournament id and the player user ids.
func setupActive(t *testing.T, env *testEnv, fee, prize int64, n int) (int, []int) {
	t.Helper()
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, fee, prize, 2, 64)

	players := make([]int, 0, n)
	for i := 0; i < n; i++ {
		id := env.addUser(t, "player"+string(rune('a'+i)), 1000)
		env.join(t, tournament.ID, id)
		players = append(players, id)
	}
	if _, err := env.tournamentSvc.Start(context.Background(), tournament.ID, creator); err != nil {
		t.Fatalf("start: %v", err)
	}
	return tournament.ID, players
}

// playRound resolves every open match of the given round by agreeing
// reports in favour of player1. Byes are already resolved.
func playRound(t *testing.T, env *testEnv, tournamentID, round int) {
	t.Helper()
	for _, m := range env.roundMatches(t, tournamentID, round) {
		if m.Status == models.MatchStatusCompleted {
			continue
		}
		env.reportBoth(t, m, models.ResultPlayer1Win)
	}
}

func TestStartGeneratesFirstRound(t *testing.T) {
	env := newTestEnv(t)
	tournamentID, players := setupActive(t, env, 10, 40, 5)

	got := env.tournament(t, tournamentID)
	if got.Status != models.TournamentStatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if got.CurrentRound != 1 || got.TotalRounds != 3 {
		t.Fatalf("rounds = %d/%d, want 1/3", got.CurrentRound, got.TotalRounds)
	}
	if got.TotalCollected != 50 {
		t.Fatalf("total collected = %d, want 50", got.TotalCollected)
	}

	matches := env.roundMatches(t, tournamentID, 1)
	if len(matches) != 3 {
		t.Fatalf("round 1 matches = %d, want 3 for 5 players", len(matches))
	}

	seen := make(map[int]bool)
	byes := 0
	for _, m := range matches {
		seen[m.Player1ID] = true
		if m.IsBye() {
			byes++
			if m.Status != models.MatchStatusCompleted || m.WinnerID == nil || *m.WinnerID != m.Player1ID {
				t.Fatalf("bye match %d not pre-resolved for its player", m.ID)
			}
			if m.MatchDeadline != nil {
				t.Fatalf("bye match %d has a report deadline", m.ID)
			}
			continue
		}
		seen[*m.Player2ID] = true
		if m.Status != models.MatchStatusPending {
			t.Fatalf("match %d status = %s, want pending", m.ID, m.Status)
		}
		if m.MatchDeadline == nil {
			t.Fatalf("match %d has no report deadline", m.ID)
		}
	}
	if byes != 1 {
		t.Fatalf("byes = %d, want 1 for 5 players", byes)
	}
	for _, p := range players {
		if !seen[p] {
			t.Fatalf("player %d missing from round 1", p)
		}
	}
}

func TestStartRequiresCreator(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	outsider := env.addUser(t, "outsider", 0)
	tournament := env.createTournament(t, creator, 0, 0, 2, 8)
	env.join(t, tournament.ID, env.addUser(t, "alice", 100))
	env.join(t, tournament.ID, env.addUser(t, "bob", 100))

	if _, err := env.tournamentSvc.Start(context.Background(), tournament.ID, outsider); !errors.Is(err, ErrNotTournamentCreator) {
		t.Fatalf("err = %v, want ErrNotTournamentCreator", err)
	}
}

func TestStartBelowMinimumRejected(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 0, 0, 4, 8)
	env.join(t, tournament.ID, env.addUser(t, "alice", 100))
	env.join(t, tournament.ID, env.addUser(t, "bob", 100))

	if _, err := env.tournamentSvc.Start(context.Background(), tournament.ID, creator); !errors.Is(err, ErrMinParticipantsNotMet) {
		t.Fatalf("err = %v, want ErrMinParticipantsNotMet", err)
	}
	if got := env.tournament(t, tournament.ID); got.Status != models.TournamentStatusUpcoming {
		t.Fatalf("status = %s, want upcoming after failed start", got.Status)
	}
}

func TestAdvanceWaitsForWholeRound(t *testing.T) {
	env := newTestEnv(t)
	tournamentID, _ := setupActive(t, env, 0, 0, 4)

	matches := env.roundMatches(t, tournamentID, 1)
	if len(matches) != 2 {
		t.Fatalf("round 1 matches = %d, want 2", len(matches))
	}
	env.reportBoth(t, matches[0], models.ResultPlayer1Win)

	// Resolution already triggered advancement once; the open second
	// match must have held the round.
	if got := env.tournament(t, tournamentID); got.CurrentRound != 1 {
		t.Fatalf("current round = %d, want 1 while a match is open", got.CurrentRound)
	}
	if err := env.tournamentSvc.AdvanceIfReady(context.Background(), tournamentID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := env.tournament(t, tournamentID); got.CurrentRound != 1 {
		t.Fatalf("explicit advance moved to round %d with an open match", got.CurrentRound)
	}
}

func TestAdvanceIsIdempotentUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)
	tournamentID, _ := setupActive(t, env, 0, 0, 8)
	playRound(t, env, tournamentID, 1)

	// Round resolution already advanced to round 2. Hammer the
	// advancement trigger again from several goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.tournamentSvc.AdvanceIfReady(context.Background(), tournamentID); err != nil {
				t.Errorf("advance: %v", err)
			}
		}()
	}
	wg.Wait()

	got := env.tournament(t, tournamentID)
	if got.CurrentRound != 2 {
		t.Fatalf("current round = %d, want 2", got.CurrentRound)
	}
	if n := len(env.roundMatches(t, tournamentID, 2)); n != 2 {
		t.Fatalf("round 2 matches = %d, want 2 for 4 winners", n)
	}
	if n := len(env.roundMatches(t, tournamentID, 3)); n != 0 {
		t.Fatalf("round 3 matches = %d, want none yet", n)
	}
}

func TestByeWinnerAdvancesWithoutReporting(t *testing.T) {
	env := newTestEnv(t)
	tournamentID, _ := setupActive(t, env, 0, 0, 5)

	var byePlayer int
	for _, m := range env.roundMatches(t, tournamentID, 1) {
		if m.IsBye() {
			byePlayer = m.Player1ID
		}
	}
	if byePlayer == 0 {
		t.Fatal("no bye in a 5 player round")
	}

	playRound(t, env, tournamentID, 1)
	if got := env.tournament(t, tournamentID); got.CurrentRound != 2 {
		t.Fatalf("current round = %d, want 2", got.CurrentRound)
	}

	found := false
	for _, m := range env.roundMatches(t, tournamentID, 2) {
		if m.HasPlayer(byePlayer) {
			found = true
		}
	}
	if !found {
		t.Fatalf("bye player %d missing from round 2", byePlayer)
	}
}

func TestCompletionPaysPrizeExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	tournamentID, players := setupActive(t, env, 10, 500, 2)

	final := env.roundMatches(t, tournamentID, 1)[0]
	env.reportBoth(t, final, models.ResultPlayer1Win)
	champion := final.Player1ID

	// Duplicate completion triggers must not pay again.
	for i := 0; i < 3; i++ {
		if err := env.tournamentSvc.AdvanceIfReady(context.Background(), tournamentID); err != nil {
			t.Fatalf("advance after completion: %v", err)
		}
	}

	got := env.tournament(t, tournamentID)
	if got.Status != models.TournamentStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if !got.PrizePaid || got.WinnerUserID == nil || *got.WinnerUserID != champion {
		t.Fatalf("completion state = paid:%v winner:%v, want paid winner %d", got.PrizePaid, got.WinnerUserID, champion)
	}
	if b := env.balance(t, champion); b != 1000-10+500 {
		t.Fatalf("champion balance = %d, want 1490", b)
	}

	payouts := 0
	for _, tx := range env.store.transactions {
		if tx.Kind == models.TransactionPrizePayout {
			payouts++
		}
	}
	if payouts != 1 {
		t.Fatalf("payout audit rows = %d, want exactly 1", payouts)
	}

	var loser int
	for _, p := range players {
		if p != champion {
			loser = p
		}
	}
	if b := env.balance(t, loser); b != 990 {
		t.Fatalf("loser balance = %d, want 990", b)
	}
}

func TestFivePlayerTournamentRunsToCompletion(t *testing.T) {
	env := newTestEnv(t)
	tournamentID, _ := setupActive(t, env, 10, 50, 5)

	for round := 1; round <= 3; round++ {
		playRound(t, env, tournamentID, round)
	}

	got := env.tournament(t, tournamentID)
	if got.Status != models.TournamentStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.WinnerUserID == nil {
		t.Fatal("no winner recorded")
	}
	if got.TotalCollected != 50 {
		t.Fatalf("total collected = %d, want 50", got.TotalCollected)
	}
	if b := env.balance(t, *got.WinnerUserID); b != 1000-10+50 {
		t.Fatalf("champion balance = %d, want 1040", b)
	}

	winners, eliminated := 0, 0
	for _, p := range env.store.participants {
		switch p.Status {
		case models.ParticipantStatusWinner:
			winners++
		case models.ParticipantStatusEliminated:
			eliminated++
		}
	}
	if winners != 1 || eliminated != 4 {
		t.Fatalf("participant statuses = %d winner / %d eliminated, want 1/4", winners, eliminated)
	}

	seen := env.hub.typesSeen()
	if seen[events.TypeTournamentCompleted] != 1 {
		t.Fatalf("completion events = %d, want 1", seen[events.TypeTournamentCompleted])
	}
}

func TestSweepExpiresUnderEnrolledAndRefunds(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 50, 0, 4, 8)
	alice := env.addUser(t, "alice", 100)
	env.join(t, tournament.ID, alice)

	// Push the start date into the past so the sweep picks it up.
	env.store.tournaments[tournament.ID].StartDate = env.store.tournaments[tournament.ID].StartDate.AddDate(0, 0, -2)

	if err := env.tournamentSvc.SweepLifecycleByDates(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got := env.tournament(t, tournament.ID)
	if got.Status != models.TournamentStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if got.PrizePaid {
		t.Fatal("prize paid on expiry")
	}
	if b := env.balance(t, alice); b != 100 {
		t.Fatalf("balance = %d, want fee returned 100", b)
	}

	refunds := 0
	for _, tx := range env.store.transactions {
		if tx.Kind == models.TransactionRefund {
			refunds++
			if tx.Amount != 50 {
				t.Fatalf("refund amount = %d, want 50", tx.Amount)
			}
		}
	}
	if refunds != 1 {
		t.Fatalf("refund audit rows = %d, want 1", refunds)
	}
}

func TestSweepAutoStartsWhenEnoughEnrolled(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)
	tournament := env.createTournament(t, creator, 10, 0, 2, 8)
	env.join(t, tournament.ID, env.addUser(t, "alice", 100))
	env.join(t, tournament.ID, env.addUser(t, "bob", 100))

	env.store.tournaments[tournament.ID].StartDate = env.store.tournaments[tournament.ID].StartDate.AddDate(0, 0, -1)

	if err := env.tournamentSvc.SweepLifecycleByDates(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got := env.tournament(t, tournament.ID)
	if got.Status != models.TournamentStatusActive {
		t.Fatalf("status = %s, want active after auto start", got.Status)
	}
	if n := len(env.roundMatches(t, tournament.ID, 1)); n != 1 {
		t.Fatalf("round 1 matches = %d, want 1", n)
	}
}

func TestEnsureWeeklyTournamentIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		if err := env.tournamentSvc.EnsureWeeklyTournament(context.Background()); err != nil {
			t.Fatalf("ensure weekly: %v", err)
		}
	}

	weeklies := 0
	for _, tr := range env.store.tournaments {
		if tr.IsWeekly {
			weeklies++
			if tr.Status != models.TournamentStatusUpcoming {
				t.Fatalf("weekly status = %s, want upcoming", tr.Status)
			}
		}
	}
	if weeklies != 1 {
		t.Fatalf("weekly tournaments = %d, want 1", weeklies)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	creator := env.addUser(t, "creator", 0)

	valid := func() CreateTournamentInput {
		start := time.Now().Add(time.Hour)
		return CreateTournamentInput{
			Name:            "Cup",
			MinParticipants: 2,
			MaxParticipants: 8,
			StartDate:       start,
			EndDate:         start.Add(24 * time.Hour),
		}
	}

	cases := []struct {
		name    string
		mutate  func(*CreateTournamentInput)
		wantErr error
	}{
		{"blank name", func(in *CreateTournamentInput) { in.Name = "   " }, ErrTournamentNameRequired},
		{"end before start", func(in *CreateTournamentInput) { in.EndDate = in.StartDate.Add(-1) }, ErrTournamentInvalidDateRange},
		{"min below two", func(in *CreateTournamentInput) { in.MinParticipants = 1 }, ErrTournamentInvalidCapacity},
		{"max below min", func(in *CreateTournamentInput) { in.MaxParticipants = 1 }, ErrTournamentInvalidCapacity},
		{"negative fee", func(in *CreateTournamentInput) { in.EntryFee = -5 }, ErrTournamentInvalidFee},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.mutate(&in)
			if _, err := env.tournamentSvc.Create(context.Background(), creator, in); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
