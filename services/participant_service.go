package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/cardarena/tournament-engine/events"
	"github.com/cardarena/tournament-engine/models"
	"github.com/cardarena/tournament-engine/repositories"
)

type JoinResult struct {
	Participant *models.Participant `json:"participant"`
	Balance     int64               `json:"balance"`
}

type ParticipantService interface {
	// Join enrolls the user: balance check, fee debit, participant
	// insert and collected-total increment happen in one transaction.
	Join(ctx context.Context, tournamentID, userID int) (*JoinResult, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error)
}

type participantService struct {
	tx              repositories.Transactor
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	userRepo        repositories.UserRepository
	ledger          *LedgerService
	hub             events.Publisher
}

func NewParticipantService(
	tx repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	userRepo repositories.UserRepository,
	ledger *LedgerService,
	hub events.Publisher,
) ParticipantService {
	return &participantService{
		tx:              tx,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		userRepo:        userRepo,
		ledger:          ledger,
		hub:             hub,
	}
}

func (s *participantService) Join(ctx context.Context, tournamentID, userID int) (*JoinResult, error) {
	var result JoinResult

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		// The row lock serializes concurrent joins for the same
		// tournament, so the capacity check cannot oversell.
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.TournamentStatusUpcoming {
			return ErrEnrollmentClosed
		}

		if _, err := s.participantRepo.FindByUserAndTournament(ctx, exec, userID, tournamentID); err == nil {
			return ErrAlreadyEnrolled
		} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
			return err
		}

		count, err := s.participantRepo.CountByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if count >= tournament.MaxParticipants {
			return ErrTournamentFull
		}

		if err := s.ledger.ChargeEntryFee(ctx, exec, userID, tournament); err != nil {
			return err
		}

		participant := &models.Participant{
			TournamentID: tournamentID,
			UserID:       userID,
			Status:       models.ParticipantStatusEnrolled,
		}
		if err := s.participantRepo.Create(ctx, exec, participant); err != nil {
			if errors.Is(err, repositories.ErrParticipantConflict) {
				return ErrAlreadyEnrolled
			}
			return err
		}

		if err := s.tournamentRepo.IncrementCollected(ctx, exec, tournamentID, tournament.EntryFee); err != nil {
			return err
		}

		balance, err := s.userRepo.GetBalance(ctx, exec, userID)
		if err != nil {
			return err
		}

		result.Participant = participant
		result.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.Publish(strconv.Itoa(tournamentID), events.Event{
		Type:    events.TypeParticipantJoined,
		Payload: result.Participant,
	})
	return &result, nil
}

func (s *participantService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	return s.participantRepo.ListByTournament(ctx, nil, tournamentID)
}
