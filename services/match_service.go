package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cardarena/tournament-engine/events"
	"github.com/cardarena/tournament-engine/leaderboard"
	"github.com/cardarena/tournament-engine/models"
	"github.com/cardarena/tournament-engine/repositories"
)

// ReportOutcome is returned to the reporter so the caller can tell a
// resolved match from one waiting for the opponent or for arbitration.
type ReportOutcome struct {
	Consensus models.ConsensusState `json:"consensus"`
	WinnerID  *int                  `json:"winner_id,omitempty"`
}

type MatchService interface {
	// SubmitReport upserts the reporter's claim and re-evaluates
	// consensus. A conflicting result is a successful call.
	SubmitReport(ctx context.Context, matchID, reporterID int, result models.ReportedResult) (*ReportOutcome, error)
	// ForceResolve is the creator's escape hatch for conflicting or
	// stalled matches. It bypasses consensus entirely.
	ForceResolve(ctx context.Context, matchID, winnerID, actorID int) error
	// ForfeitPastDeadline applies the forced-forfeit policy to matches
	// whose deadline has lapsed: a lone reporter's claim wins; matches
	// with no reports are left to the creator.
	ForfeitPastDeadline(ctx context.Context) error
	GetMatch(ctx context.Context, matchID int) (*models.Match, []*models.MatchReport, error)
	ListByTournament(ctx context.Context, tournamentID int, round *int) ([]*models.Match, error)
}

type matchService struct {
	tx              repositories.Transactor
	matchRepo       repositories.MatchRepository
	reportRepo      repositories.ReportRepository
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	advancer        RoundAdvancer
	board           leaderboard.Leaderboard
	hub             events.Publisher
	logger          *slog.Logger
}

func NewMatchService(
	tx repositories.Transactor,
	matchRepo repositories.MatchRepository,
	reportRepo repositories.ReportRepository,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	advancer RoundAdvancer,
	board leaderboard.Leaderboard,
	hub events.Publisher,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		tx:              tx,
		matchRepo:       matchRepo,
		reportRepo:      reportRepo,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		advancer:        advancer,
		board:           board,
		hub:             hub,
		logger:          logger,
	}
}

func (s *matchService) SubmitReport(ctx context.Context, matchID, reporterID int, result models.ReportedResult) (*ReportOutcome, error) {
	if !result.Valid() {
		return nil, ErrInvalidReportedResult
	}

	var (
		outcome      ReportOutcome
		tournamentID int
		loserID      *int
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		// Lock the match so two simultaneous submissions from both
		// players serialize and the second one sees both reports.
		match, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if match.IsBye() {
			return ErrByeMatch
		}
		if match.Status == models.MatchStatusCompleted {
			return ErrMatchResolved
		}
		if !match.HasPlayer(reporterID) {
			return ErrNotMatchParticipant
		}
		tournamentID = match.TournamentID

		tournament, err := s.tournamentRepo.GetByID(ctx, exec, match.TournamentID)
		if err != nil {
			return err
		}

		report := &models.MatchReport{
			MatchID:        matchID,
			ReporterID:     reporterID,
			ReportedResult: result,
			IsCreator:      reporterID == tournament.CreatorID,
		}
		if err := s.reportRepo.Upsert(ctx, exec, report); err != nil {
			return err
		}

		slot := 1
		if match.Player2ID != nil && reporterID == *match.Player2ID {
			slot = 2
		}
		if err := s.matchRepo.SetReportedFlag(ctx, exec, matchID, slot); err != nil {
			return err
		}

		reports, err := s.reportRepo.ListByMatch(ctx, exec, matchID)
		if err != nil {
			return err
		}

		derived := evaluateConsensus(match, reports)
		outcome = ReportOutcome{Consensus: derived.State, WinnerID: derived.WinnerID}
		if derived.State != models.ConsensusResolved {
			return nil
		}

		loser, err := s.resolveLocked(ctx, exec, match, *derived.WinnerID)
		if err != nil {
			return err
		}
		loserID = loser
		return nil
	})
	if err != nil {
		return nil, err
	}

	room := strconv.Itoa(tournamentID)
	s.hub.Publish(room, events.Event{Type: events.TypeMatchReported, Payload: map[string]interface{}{
		"match_id":  matchID,
		"consensus": outcome.Consensus,
	}})

	if outcome.Consensus == models.ConsensusResolved {
		s.afterResolution(ctx, tournamentID, matchID, *outcome.WinnerID, loserID)
	}
	return &outcome, nil
}

func (s *matchService) ForceResolve(ctx context.Context, matchID, winnerID, actorID int) error {
	var (
		tournamentID int
		loserID      *int
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if match.Status == models.MatchStatusCompleted {
			return ErrMatchResolved
		}
		if !match.HasPlayer(winnerID) {
			return ErrWinnerNotInMatch
		}
		tournamentID = match.TournamentID

		tournament, err := s.tournamentRepo.GetByID(ctx, exec, match.TournamentID)
		if err != nil {
			return err
		}
		if tournament.CreatorID != actorID {
			return ErrNotTournamentCreator
		}

		loser, err := s.resolveLocked(ctx, exec, match, winnerID)
		if err != nil {
			return err
		}
		loserID = loser
		return nil
	})
	if err != nil {
		return err
	}

	s.afterResolution(ctx, tournamentID, matchID, winnerID, loserID)
	return nil
}

func (s *matchService) ForfeitPastDeadline(ctx context.Context) error {
	overdue, err := s.matchRepo.ListPastDeadlineUnresolved(ctx, nil, time.Now())
	if err != nil {
		return err
	}

	for _, match := range overdue {
		matchID := match.ID
		var (
			winnerID int
			loserID  *int
			resolved bool
		)

		err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
			m, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
			if err != nil {
				return err
			}
			if m.Status == models.MatchStatusCompleted {
				return nil
			}

			reports, err := s.reportRepo.ListByMatch(ctx, exec, matchID)
			if err != nil {
				return err
			}
			if len(reports) != 1 {
				// Nobody reported, or the two reports conflict:
				// both stay with the creator.
				return nil
			}
			claimed := reports[0].ReportedResult.WinnerFor(m)
			if claimed == nil {
				return nil
			}

			loser, err := s.resolveLocked(ctx, exec, m, *claimed)
			if err != nil {
				return err
			}
			winnerID = *claimed
			loserID = loser
			resolved = true
			return nil
		})
		if err != nil {
			s.logger.Error("deadline forfeit failed for match",
				slog.Int("match_id", matchID), slog.Any("error", err))
			continue
		}
		if resolved {
			s.logger.Info("match forfeited past deadline",
				slog.Int("match_id", matchID), slog.Int("winner_id", winnerID))
			s.afterResolution(ctx, match.TournamentID, matchID, winnerID, loserID)
		}
	}
	return nil
}

// resolveLocked completes the match and eliminates the loser. The caller
// holds the match row lock. Returns the loser's user id, if any.
func (s *matchService) resolveLocked(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, winnerID int) (*int, error) {
	if err := s.matchRepo.Resolve(ctx, exec, match.ID, winnerID); err != nil {
		if errors.Is(err, repositories.ErrMatchAlreadyResolved) {
			return nil, ErrMatchResolved
		}
		return nil, err
	}

	var loserID *int
	if match.Player1ID != winnerID {
		id := match.Player1ID
		loserID = &id
	} else if match.Player2ID != nil && *match.Player2ID != winnerID {
		loserID = match.Player2ID
	}

	if loserID != nil {
		p, err := s.participantRepo.FindByUserAndTournament(ctx, exec, *loserID, match.TournamentID)
		if err != nil {
			return nil, err
		}
		if err := s.participantRepo.UpdateStatus(ctx, exec, p.ID, models.ParticipantStatusEliminated); err != nil {
			return nil, err
		}
	}
	return loserID, nil
}

// afterResolution runs the post-commit propagation: change feed,
// leaderboard points, round advancement. Leaderboard failures are
// logged, never escalated.
func (s *matchService) afterResolution(ctx context.Context, tournamentID, matchID, winnerID int, loserID *int) {
	s.hub.Publish(strconv.Itoa(tournamentID), events.Event{
		Type: events.TypeMatchResolved,
		Payload: map[string]interface{}{
			"match_id":  matchID,
			"winner_id": winnerID,
		},
	})

	if s.board != nil {
		if err := s.board.RecordResult(ctx, winnerID, loserID); err != nil {
			s.logger.Error("failed to record leaderboard points",
				slog.Int("match_id", matchID), slog.Any("error", err))
		}
	}

	if err := s.advancer.AdvanceIfReady(ctx, tournamentID); err != nil {
		s.logger.Error("round advancement after resolution failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}

func (s *matchService) GetMatch(ctx context.Context, matchID int) (*models.Match, []*models.MatchReport, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, nil, err
	}
	reports, err := s.reportRepo.ListByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, nil, err
	}
	return match, reports, nil
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int, round *int) ([]*models.Match, error) {
	return s.matchRepo.ListByTournament(ctx, nil, tournamentID, round)
}
