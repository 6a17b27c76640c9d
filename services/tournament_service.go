package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cardarena/tournament-engine/brackets"
	"github.com/cardarena/tournament-engine/events"
	"github.com/cardarena/tournament-engine/models"
	"github.com/cardarena/tournament-engine/repositories"
	"golang.org/x/sync/errgroup"
)

// RoundAdvancer is what resolution paths call after a match completes.
type RoundAdvancer interface {
	AdvanceIfReady(ctx context.Context, tournamentID int) error
}

type CreateTournamentInput struct {
	Name            string    `json:"name"`
	Description     *string   `json:"description"`
	MaxParticipants int       `json:"max_participants"`
	MinParticipants int       `json:"min_participants"`
	EntryFee        int64     `json:"entry_fee"`
	PrizePool       int64     `json:"prize_pool"`
	IsWeekly        bool      `json:"is_weekly"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
}

// WeeklyDefaults parameterize the automatically created weekly event.
type WeeklyDefaults struct {
	CreatorID       int
	EntryFee        int64
	PrizePool       int64
	MaxParticipants int
	MinParticipants int
}

type TournamentService interface {
	RoundAdvancer

	Create(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	// GetDetails loads the tournament with participants and matches.
	GetDetails(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	// Start transitions upcoming -> active and generates round 1.
	Start(ctx context.Context, tournamentID, actorID int) (*models.Tournament, error)
	// SweepLifecycleByDates starts or expires upcoming tournaments whose
	// start date has passed, depending on enrollment.
	SweepLifecycleByDates(ctx context.Context) error
	// EnsureWeeklyTournament creates the next weekly event when no
	// upcoming one exists.
	EnsureWeeklyTournament(ctx context.Context) error
}

type tournamentService struct {
	tx              repositories.Transactor
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	ledger          *LedgerService
	generator       brackets.Generator
	hub             events.Publisher
	logger          *slog.Logger
	reportWindow    time.Duration
	weekly          WeeklyDefaults
}

func NewTournamentService(
	tx repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	ledger *LedgerService,
	generator brackets.Generator,
	hub events.Publisher,
	logger *slog.Logger,
	reportWindow time.Duration,
	weekly WeeklyDefaults,
) TournamentService {
	return &tournamentService{
		tx:              tx,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		ledger:          ledger,
		generator:       generator,
		hub:             hub,
		logger:          logger,
		reportWindow:    reportWindow,
		weekly:          weekly,
	}
}

func (s *tournamentService) Create(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrTournamentNameRequired
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, ErrTournamentInvalidDateRange
	}
	if input.MinParticipants < 2 || input.MaxParticipants < input.MinParticipants {
		return nil, ErrTournamentInvalidCapacity
	}
	if input.EntryFee < 0 || input.PrizePool < 0 {
		return nil, ErrTournamentInvalidFee
	}

	tournament := &models.Tournament{
		Name:            strings.TrimSpace(input.Name),
		Description:     input.Description,
		CreatorID:       creatorID,
		Status:          models.TournamentStatusUpcoming,
		MaxParticipants: input.MaxParticipants,
		MinParticipants: input.MinParticipants,
		EntryFee:        input.EntryFee,
		PrizePool:       input.PrizePool,
		IsWeekly:        input.IsWeekly,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
	}
	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	return s.tournamentRepo.GetByID(ctx, nil, id)
}

func (s *tournamentService) GetDetails(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		participants, err := s.participantRepo.ListByTournament(gCtx, nil, id)
		if err != nil {
			return err
		}
		tournament.Participants = make([]models.Participant, 0, len(participants))
		for _, p := range participants {
			tournament.Participants = append(tournament.Participants, *p)
		}
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, nil, id, nil)
		if err != nil {
			return err
		}
		tournament.Matches = make([]models.Match, 0, len(matches))
		for _, m := range matches {
			tournament.Matches = append(tournament.Matches, *m)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

func (s *tournamentService) Start(ctx context.Context, tournamentID, actorID int) (*models.Tournament, error) {
	var started *models.Tournament

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.CreatorID != actorID {
			return ErrNotTournamentCreator
		}
		t, err := s.startLocked(ctx, exec, tournament)
		if err != nil {
			return err
		}
		started = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tournamentID, events.TypeTournamentStarted, started)
	return started, nil
}

// startLocked performs the upcoming -> active transition and generates
// round 1. The caller holds the tournament row lock.
func (s *tournamentService) startLocked(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) (*models.Tournament, error) {
	if tournament.Status != models.TournamentStatusUpcoming {
		return nil, ErrTournamentNotUpcoming
	}

	participants, err := s.participantRepo.ListByTournament(ctx, exec, tournament.ID)
	if err != nil {
		return nil, err
	}
	if len(participants) < tournament.MinParticipants {
		return nil, ErrMinParticipantsNotMet
	}

	if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournament.ID,
		models.TournamentStatusUpcoming, models.TournamentStatusActive); err != nil {
		return nil, err
	}
	totalRounds := brackets.RoundsFor(len(participants))
	if err := s.tournamentRepo.SetTotalRounds(ctx, exec, tournament.ID, totalRounds); err != nil {
		return nil, err
	}

	players := make([]int, 0, len(participants))
	for _, p := range participants {
		players = append(players, p.UserID)
	}
	if err := s.createRoundMatches(ctx, exec, tournament.ID, 1, players); err != nil {
		return nil, err
	}

	tournament.Status = models.TournamentStatusActive
	tournament.CurrentRound = 1
	tournament.TotalRounds = totalRounds
	return tournament, nil
}

// createRoundMatches persists the pairings of one round. Byes are
// inserted already completed with the bye player as winner and never
// get a deadline.
func (s *tournamentService) createRoundMatches(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int, players []int) error {
	pairings, err := s.generator.GenerateRound(ctx, brackets.GenerateRoundParams{
		Round:   round,
		Players: players,
	})
	if err != nil {
		return fmt.Errorf("failed to generate round %d for tournament %d: %w", round, tournamentID, err)
	}

	for _, pairing := range pairings {
		match := &models.Match{
			TournamentID: tournamentID,
			Round:        round,
			Player1ID:    pairing.Player1ID,
			Player2ID:    pairing.Player2ID,
			Status:       models.MatchStatusPending,
		}
		if pairing.IsBye() {
			winnerID := pairing.Player1ID
			match.Status = models.MatchStatusCompleted
			match.WinnerID = &winnerID
		} else {
			deadline := time.Now().Add(s.reportWindow)
			match.MatchDeadline = &deadline
		}
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return err
		}
	}
	return nil
}

// AdvanceIfReady advances the bracket by at most one round. It is
// idempotent: concurrent observers reacting to the same round completion
// collapse into a single advancement, the rest are no-ops.
func (s *tournamentService) AdvanceIfReady(ctx context.Context, tournamentID int) error {
	var (
		advancedTo int
		completed  *models.Tournament
		champion   int
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.TournamentStatusActive {
			return nil
		}

		unresolved, err := s.matchRepo.CountUnresolvedInRound(ctx, exec, tournamentID, tournament.CurrentRound)
		if err != nil {
			return err
		}
		if unresolved > 0 {
			return nil
		}

		round := tournament.CurrentRound
		matches, err := s.matchRepo.ListByTournament(ctx, exec, tournamentID, &round)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return nil
		}

		winners := make([]int, 0, len(matches))
		for _, m := range matches {
			if m.WinnerID == nil {
				return fmt.Errorf("completed match %d has no winner", m.ID)
			}
			winners = append(winners, *m.WinnerID)
		}

		if len(winners) == 1 {
			champion = winners[0]
			t, err := s.completeLocked(ctx, exec, tournament, champion)
			if err != nil {
				return err
			}
			completed = t
			return nil
		}

		if err := s.tournamentRepo.AdvanceRound(ctx, exec, tournamentID, tournament.CurrentRound); err != nil {
			if errors.Is(err, repositories.ErrStaleTournamentState) {
				// Another observer advanced first.
				return nil
			}
			return err
		}
		advancedTo = tournament.CurrentRound + 1
		return s.createRoundMatches(ctx, exec, tournamentID, advancedTo, winners)
	})
	if err != nil {
		return err
	}

	if completed != nil {
		s.publish(tournamentID, events.TypeTournamentCompleted, map[string]interface{}{
			"tournament": completed,
			"winner_id":  champion,
		})
	} else if advancedTo > 0 {
		s.publish(tournamentID, events.TypeRoundAdvanced, map[string]int{"round": advancedTo})
	}
	return nil
}

// completeLocked finishes the tournament and pays the prize exactly
// once: the payout runs only when the prize_paid gate flips.
func (s *tournamentService) completeLocked(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, championUserID int) (*models.Tournament, error) {
	if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournament.ID,
		models.TournamentStatusActive, models.TournamentStatusCompleted); err != nil {
		if errors.Is(err, repositories.ErrStaleTournamentState) {
			return tournament, nil
		}
		return nil, err
	}
	if err := s.tournamentRepo.SetWinner(ctx, exec, tournament.ID, championUserID); err != nil {
		return nil, err
	}

	if err := s.tournamentRepo.MarkPrizePaid(ctx, exec, tournament.ID); err != nil {
		if errors.Is(err, repositories.ErrStaleTournamentState) {
			// Prize already paid by an earlier completion trigger.
			return tournament, nil
		}
		return nil, err
	}
	if err := s.ledger.PayoutPrize(ctx, exec, tournament, championUserID); err != nil {
		return nil, err
	}

	if p, err := s.participantRepo.FindByUserAndTournament(ctx, exec, championUserID, tournament.ID); err == nil {
		if err := s.participantRepo.UpdateStatus(ctx, exec, p.ID, models.ParticipantStatusWinner); err != nil {
			return nil, err
		}
	}

	tournament.Status = models.TournamentStatusCompleted
	tournament.WinnerUserID = &championUserID
	tournament.PrizePaid = true
	return tournament, nil
}

func (s *tournamentService) SweepLifecycleByDates(ctx context.Context) error {
	due, err := s.tournamentRepo.ListDueForExpiry(ctx, nil, time.Now())
	if err != nil {
		return err
	}

	for _, t := range due {
		tournamentID := t.ID
		err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
			tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
			if err != nil {
				return err
			}
			if tournament.Status != models.TournamentStatusUpcoming {
				return nil
			}

			count, err := s.participantRepo.CountByTournament(ctx, exec, tournamentID)
			if err != nil {
				return err
			}
			if count >= tournament.MinParticipants {
				_, err := s.startLocked(ctx, exec, tournament)
				if err != nil {
					return err
				}
				s.logger.Info("auto-started tournament at start date",
					slog.Int("tournament_id", tournamentID), slog.Int("participants", count))
				return nil
			}
			return s.expireLocked(ctx, exec, tournament)
		})
		if err != nil {
			s.logger.Error("lifecycle sweep failed for tournament",
				slog.Int("tournament_id", tournamentID), slog.Any("error", err))
			continue
		}
	}
	return nil
}

// expireLocked terminates an under-enrolled tournament and refunds the
// collected entry fees. No prize is ever paid on this path.
func (s *tournamentService) expireLocked(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) error {
	if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournament.ID,
		models.TournamentStatusUpcoming, models.TournamentStatusExpired); err != nil {
		if errors.Is(err, repositories.ErrStaleTournamentState) {
			return nil
		}
		return err
	}

	participants, err := s.participantRepo.ListByTournament(ctx, exec, tournament.ID)
	if err != nil {
		return err
	}
	if err := s.ledger.RefundEntryFees(ctx, exec, tournament, participants); err != nil {
		return err
	}

	s.logger.Info("tournament expired",
		slog.Int("tournament_id", tournament.ID), slog.Int("refunded", len(participants)))
	s.publish(tournament.ID, events.TypeTournamentExpired, map[string]int{"refunded": len(participants)})
	return nil
}

func (s *tournamentService) EnsureWeeklyTournament(ctx context.Context) error {
	exists, err := s.tournamentRepo.HasUpcomingWeekly(ctx)
	if err != nil || exists {
		return err
	}

	start := nextSaturday(time.Now())
	description := "Weekly open tournament"
	tournament := &models.Tournament{
		Name:            fmt.Sprintf("Weekly Cup %s", start.Format("2006-01-02")),
		Description:     &description,
		CreatorID:       s.weekly.CreatorID,
		Status:          models.TournamentStatusUpcoming,
		MaxParticipants: s.weekly.MaxParticipants,
		MinParticipants: s.weekly.MinParticipants,
		EntryFee:        s.weekly.EntryFee,
		PrizePool:       s.weekly.PrizePool,
		IsWeekly:        true,
		StartDate:       start,
		EndDate:         start.Add(24 * time.Hour),
	}
	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return fmt.Errorf("failed to create weekly tournament: %w", err)
	}
	s.logger.Info("weekly tournament created",
		slog.Int("tournament_id", tournament.ID), slog.Time("start", start))
	return nil
}

func nextSaturday(from time.Time) time.Time {
	t := from.UTC()
	days := (int(time.Saturday) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	next := t.AddDate(0, 0, days)
	return time.Date(next.Year(), next.Month(), next.Day(), 18, 0, 0, 0, time.UTC)
}

func (s *tournamentService) publish(tournamentID int, eventType string, payload interface{}) {
	s.hub.Publish(strconv.Itoa(tournamentID), events.Event{Type: eventType, Payload: payload})
}
