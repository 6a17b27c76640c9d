package services

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/cardarena/tournament-engine/brackets"
	"github.com/cardarena/tournament-engine/events"
	"github.com/cardarena/tournament-engine/models"
	"github.com/cardarena/tournament-engine/repositories"
	"github.com/google/uuid"
)

// memStore is a shared in-memory backing store for the repository fakes.
// The fake transactor serializes transactions with the store mutex, which
// stands in for the row locks the postgres repositories take.
type memStore struct {
	mu           sync.Mutex
	users        map[int]*models.User
	tournaments  map[int]*models.Tournament
	participants map[int]*models.Participant
	matches      map[int]*models.Match
	reports      map[int]map[int]*models.MatchReport
	transactions []models.Transaction
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int]*models.User),
		tournaments:  make(map[int]*models.Tournament),
		participants: make(map[int]*models.Participant),
		matches:      make(map[int]*models.Match),
		reports:      make(map[int]map[int]*models.MatchReport),
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

type memTransactor struct {
	store *memStore
}

func (t *memTransactor) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return fn(nil)
}

type memUserRepo struct{ store *memStore }

func (r *memUserRepo) Create(ctx context.Context, u *models.User) error {
	u.ID = r.store.id()
	u.CreatedAt = time.Now()
	stored := *u
	r.store.users[u.ID] = &stored
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	u, ok := r.store.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.store.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *memUserRepo) GetBalance(ctx context.Context, _ repositories.SQLExecutor, userID int) (int64, error) {
	u, ok := r.store.users[userID]
	if !ok {
		return 0, repositories.ErrUserNotFound
	}
	return u.Balance, nil
}

func (r *memUserRepo) Debit(ctx context.Context, _ repositories.SQLExecutor, userID int, amount int64) error {
	u, ok := r.store.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	if u.Balance < amount {
		return repositories.ErrInsufficientFunds
	}
	u.Balance -= amount
	return nil
}

func (r *memUserRepo) Credit(ctx context.Context, _ repositories.SQLExecutor, userID int, amount int64) error {
	u, ok := r.store.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Balance += amount
	return nil
}

type memTournamentRepo struct{ store *memStore }

func (r *memTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	t.ID = r.store.id()
	t.CreatedAt = time.Now()
	r.store.tournaments[t.ID] = t
	return nil
}

func (r *memTournamentRepo) get(id int) (*models.Tournament, error) {
	t, ok := r.store.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memTournamentRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.get(id)
}

func (r *memTournamentRepo) GetByIDForUpdate(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.get(id)
}

func (r *memTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	out := make([]models.Tournament, 0)
	for _, t := range r.store.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *memTournamentRepo) UpdateStatus(ctx context.Context, _ repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != from {
		return repositories.ErrStaleTournamentState
	}
	t.Status = to
	return nil
}

func (r *memTournamentRepo) AdvanceRound(ctx context.Context, _ repositories.SQLExecutor, id int, expectedRound int) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.CurrentRound != expectedRound {
		return repositories.ErrStaleTournamentState
	}
	t.CurrentRound++
	return nil
}

func (r *memTournamentRepo) SetTotalRounds(ctx context.Context, _ repositories.SQLExecutor, id int, totalRounds int) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.TotalRounds = totalRounds
	t.CurrentRound = 1
	return nil
}

func (r *memTournamentRepo) IncrementCollected(ctx context.Context, _ repositories.SQLExecutor, id int, amount int64) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.TotalCollected += amount
	return nil
}

func (r *memTournamentRepo) MarkPrizePaid(ctx context.Context, _ repositories.SQLExecutor, id int) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.PrizePaid {
		return repositories.ErrStaleTournamentState
	}
	t.PrizePaid = true
	return nil
}

func (r *memTournamentRepo) SetWinner(ctx context.Context, _ repositories.SQLExecutor, id int, winnerUserID int) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.WinnerUserID = &winnerUserID
	return nil
}

func (r *memTournamentRepo) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.BannerKey = bannerKey
	return nil
}

func (r *memTournamentRepo) ListDueForExpiry(ctx context.Context, _ repositories.SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	var due []*models.Tournament
	for _, t := range r.store.tournaments {
		if t.Status == models.TournamentStatusUpcoming && !t.StartDate.After(now) {
			copied := *t
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (r *memTournamentRepo) HasUpcomingWeekly(ctx context.Context) (bool, error) {
	for _, t := range r.store.tournaments {
		if t.IsWeekly && t.Status == models.TournamentStatusUpcoming {
			return true, nil
		}
	}
	return false, nil
}

type memParticipantRepo struct{ store *memStore }

func (r *memParticipantRepo) Create(ctx context.Context, _ repositories.SQLExecutor, p *models.Participant) error {
	for _, existing := range r.store.participants {
		if existing.TournamentID == p.TournamentID && existing.UserID == p.UserID {
			return repositories.ErrParticipantConflict
		}
	}
	p.ID = r.store.id()
	p.JoinedAt = time.Now()
	r.store.participants[p.ID] = p
	return nil
}

func (r *memParticipantRepo) FindByUserAndTournament(ctx context.Context, _ repositories.SQLExecutor, userID, tournamentID int) (*models.Participant, error) {
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID && p.UserID == userID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *memParticipantRepo) CountByTournament(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	count := 0
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID {
			count++
		}
	}
	return count, nil
}

func (r *memParticipantRepo) ListByTournament(ctx context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Participant, error) {
	out := make([]*models.Participant, 0)
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memParticipantRepo) UpdateStatus(ctx context.Context, _ repositories.SQLExecutor, id int, status models.ParticipantStatus) error {
	p, ok := r.store.participants[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	p.Status = status
	return nil
}

type memMatchRepo struct{ store *memStore }

func (r *memMatchRepo) Create(ctx context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	m.ID = r.store.id()
	m.CreatedAt = time.Now()
	r.store.matches[m.ID] = m
	return nil
}

func (r *memMatchRepo) get(id int) (*models.Match, error) {
	m, ok := r.store.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memMatchRepo) GetByID(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.get(id)
}

func (r *memMatchRepo) GetByIDForUpdate(ctx context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.get(id)
}

func (r *memMatchRepo) ListByTournament(ctx context.Context, _ repositories.SQLExecutor, tournamentID int, round *int) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	for _, m := range r.store.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if round != nil && m.Round != *round {
			continue
		}
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memMatchRepo) CountUnresolvedInRound(ctx context.Context, _ repositories.SQLExecutor, tournamentID, round int) (int, error) {
	count := 0
	for _, m := range r.store.matches {
		if m.TournamentID == tournamentID && m.Round == round && m.Status != models.MatchStatusCompleted {
			count++
		}
	}
	return count, nil
}

func (r *memMatchRepo) SetReportedFlag(ctx context.Context, _ repositories.SQLExecutor, matchID int, playerSlot int) error {
	m, ok := r.store.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if playerSlot == 1 {
		m.Player1Reported = true
	} else {
		m.Player2Reported = true
	}
	m.Status = models.MatchStatusInProgress
	return nil
}

func (r *memMatchRepo) Resolve(ctx context.Context, _ repositories.SQLExecutor, matchID int, winnerID int) error {
	m, ok := r.store.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if m.Status == models.MatchStatusCompleted {
		return repositories.ErrMatchAlreadyResolved
	}
	m.Status = models.MatchStatusCompleted
	m.WinnerID = &winnerID
	return nil
}

func (r *memMatchRepo) ListPastDeadlineUnresolved(ctx context.Context, _ repositories.SQLExecutor, now time.Time) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range r.store.matches {
		if m.Status != models.MatchStatusCompleted && m.MatchDeadline != nil && !m.MatchDeadline.After(now) {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memReportRepo struct{ store *memStore }

func (r *memReportRepo) Upsert(ctx context.Context, _ repositories.SQLExecutor, report *models.MatchReport) error {
	byReporter, ok := r.store.reports[report.MatchID]
	if !ok {
		byReporter = make(map[int]*models.MatchReport)
		r.store.reports[report.MatchID] = byReporter
	}
	if prior, exists := byReporter[report.ReporterID]; exists {
		report.ID = prior.ID
	} else {
		report.ID = r.store.id()
	}
	report.CreatedAt = time.Now()
	byReporter[report.ReporterID] = report
	return nil
}

func (r *memReportRepo) ListByMatch(ctx context.Context, _ repositories.SQLExecutor, matchID int) ([]*models.MatchReport, error) {
	out := make([]*models.MatchReport, 0, 2)
	for _, rep := range r.store.reports[matchID] {
		copied := *rep
		out = append(out, &copied)
	}
	return out, nil
}

type memTransactionRepo struct{ store *memStore }

func (r *memTransactionRepo) Create(ctx context.Context, _ repositories.SQLExecutor, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	r.store.transactions = append(r.store.transactions, *t)
	return nil
}

func (r *memTransactionRepo) ListByUser(ctx context.Context, userID int, limit int) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0)
	for _, t := range r.store.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0)
	for _, t := range r.store.transactions {
		if t.TournamentID != nil && *t.TournamentID == tournamentID {
			out = append(out, t)
		}
	}
	return out, nil
}

// memHub records published events; delivery is not under test here.
type memHub struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *memHub) Publish(tournamentID string, event events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	event.TournamentID = tournamentID
	h.events = append(h.events, event)
}

func (h *memHub) typesSeen() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]int)
	for _, e := range h.events {
		seen[e.Type]++
	}
	return seen
}

// testEnv wires the full service stack over the in-memory store with a
// deterministic pairing generator.
type testEnv struct {
	store *memStore
	hub   *memHub

	users        *memUserRepo
	tournaments  *memTournamentRepo
	participants *memParticipantRepo
	matches      *memMatchRepo
	reports      *memReportRepo
	transactions *memTransactionRepo

	ledger         *LedgerService
	tournamentSvc  TournamentService
	participantSvc ParticipantService
	matchSvc       MatchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	env := &testEnv{
		store:        store,
		hub:          &memHub{},
		users:        &memUserRepo{store: store},
		tournaments:  &memTournamentRepo{store: store},
		participants: &memParticipantRepo{store: store},
		matches:      &memMatchRepo{store: store},
		reports:      &memReportRepo{store: store},
		transactions: &memTransactionRepo{store: store},
	}

	tx := &memTransactor{store: store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	generator := brackets.NewRandomPairingGenerator(rand.New(rand.NewSource(7)))

	env.ledger = NewLedgerService(env.users, env.transactions)
	env.tournamentSvc = NewTournamentService(
		tx, env.tournaments, env.participants, env.matches,
		env.ledger, generator, env.hub, logger,
		48*time.Hour,
		WeeklyDefaults{CreatorID: 0, EntryFee: 25, PrizePool: 200, MaxParticipants: 64, MinParticipants: 4},
	)
	env.participantSvc = NewParticipantService(
		tx, env.tournaments, env.participants, env.users, env.ledger, env.hub,
	)
	env.matchSvc = NewMatchService(
		tx, env.matches, env.reports, env.tournaments, env.participants,
		env.tournamentSvc, nil, env.hub, logger,
	)
	return env
}

func (e *testEnv) addUser(t *testing.T, nickname string, balance int64) int {
	t.Helper()
	u := &models.User{
		Nickname: nickname,
		Email:    nickname + "@example.com",
		Role:     models.RolePlayer,
		Balance:  balance,
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", nickname, err)
	}
	return u.ID
}

func (e *testEnv) createTournament(t *testing.T, creatorID int, fee, prize int64, min, max int) *models.Tournament {
	t.Helper()
	tournament, err := e.tournamentSvc.Create(context.Background(), creatorID, CreateTournamentInput{
		Name:            "Arena Cup",
		MinParticipants: min,
		MaxParticipants: max,
		EntryFee:        fee,
		PrizePool:       prize,
		StartDate:       time.Now().Add(time.Hour),
		EndDate:         time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create tournament: %v", err)
	}
	return tournament
}

func (e *testEnv) join(t *testing.T, tournamentID, userID int) {
	t.Helper()
	if _, err := e.participantSvc.Join(context.Background(), tournamentID, userID); err != nil {
		t.Fatalf("user %d join tournament %d: %v", userID, tournamentID, err)
	}
}

func (e *testEnv) tournament(t *testing.T, id int) *models.Tournament {
	t.Helper()
	tournament, err := e.tournaments.GetByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("get tournament %d: %v", id, err)
	}
	return tournament
}

func (e *testEnv) roundMatches(t *testing.T, tournamentID, round int) []*models.Match {
	t.Helper()
	matches, err := e.matches.ListByTournament(context.Background(), nil, tournamentID, &round)
	if err != nil {
		t.Fatalf("list round %d matches: %v", round, err)
	}
	return matches
}

func (e *testEnv) balance(t *testing.T, userID int) int64 {
	t.Helper()
	balance, err := e.users.GetBalance(context.Background(), nil, userID)
	if err != nil {
		t.Fatalf("balance of user %d: %v", userID, err)
	}
	return balance
}

// reportBoth submits matching reports from both players and returns the
// outcome of the second submission.
func (e *testEnv) reportBoth(t *testing.T, m *models.Match, result models.ReportedResult) *ReportOutcome {
	t.Helper()
	if _, err := e.matchSvc.SubmitReport(context.Background(), m.ID, m.Player1ID, result); err != nil {
		t.Fatalf("player1 report on match %d: %v", m.ID, err)
	}
	outcome, err := e.matchSvc.SubmitReport(context.Background(), m.ID, *m.Player2ID, result)
	if err != nil {
		t.Fatalf("player2 report on match %d: %v", m.ID, err)
	}
	return outcome
}
