package services

import (
	"context"
	"fmt"

	"github.com/cardarena/tournament-engine/models"
	"github.com/cardarena/tournament-engine/repositories"
)

// LedgerService owns every movement of virtual currency. Each movement
// is a conditional balance update plus an immutable audit row, executed
// inside the transaction of the operation that caused it.
type LedgerService struct {
	userRepo        repositories.UserRepository
	transactionRepo repositories.TransactionRepository
}

func NewLedgerService(
	userRepo repositories.UserRepository,
	transactionRepo repositories.TransactionRepository,
) *LedgerService {
	return &LedgerService{
		userRepo:        userRepo,
		transactionRepo: transactionRepo,
	}
}

// ChargeEntryFee debits the fee if the balance covers it and records the
// movement. Returns repositories.ErrInsufficientFunds when it does not.
func (s *LedgerService) ChargeEntryFee(ctx context.Context, exec repositories.SQLExecutor, userID int, t *models.Tournament) error {
	if t.EntryFee == 0 {
		return nil
	}
	if err := s.userRepo.Debit(ctx, exec, userID, t.EntryFee); err != nil {
		return err
	}
	record := &models.Transaction{
		UserID:       userID,
		TournamentID: &t.ID,
		Kind:         models.TransactionEntryFee,
		Amount:       -t.EntryFee,
	}
	if err := s.transactionRepo.Create(ctx, exec, record); err != nil {
		return fmt.Errorf("entry fee debited but audit record failed: %w", err)
	}
	return nil
}

// PayoutPrize credits the prize pool to the champion. The caller must
// hold the prize_paid gate for this tournament in the same transaction.
func (s *LedgerService) PayoutPrize(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, championUserID int) error {
	if t.PrizePool == 0 {
		return nil
	}
	if err := s.userRepo.Credit(ctx, exec, championUserID, t.PrizePool); err != nil {
		return err
	}
	record := &models.Transaction{
		UserID:       championUserID,
		TournamentID: &t.ID,
		Kind:         models.TransactionPrizePayout,
		Amount:       t.PrizePool,
	}
	if err := s.transactionRepo.Create(ctx, exec, record); err != nil {
		return fmt.Errorf("prize credited but audit record failed: %w", err)
	}
	return nil
}

// RefundEntryFees returns the fee to every participant of an expired
// tournament, one credit and one audit row each.
func (s *LedgerService) RefundEntryFees(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, participants []*models.Participant) error {
	if t.EntryFee == 0 {
		return nil
	}
	for _, p := range participants {
		if err := s.userRepo.Credit(ctx, exec, p.UserID, t.EntryFee); err != nil {
			return fmt.Errorf("failed to refund user %d: %w", p.UserID, err)
		}
		record := &models.Transaction{
			UserID:       p.UserID,
			TournamentID: &t.ID,
			Kind:         models.TransactionRefund,
			Amount:       t.EntryFee,
		}
		if err := s.transactionRepo.Create(ctx, exec, record); err != nil {
			return fmt.Errorf("refund credited but audit record failed for user %d: %w", p.UserID, err)
		}
	}
	return nil
}

type Wallet struct {
	Balance      int64                `json:"balance"`
	Transactions []models.Transaction `json:"transactions"`
}

func (s *LedgerService) GetWallet(ctx context.Context, userID int) (*Wallet, error) {
	balance, err := s.userRepo.GetBalance(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.transactionRepo.ListByUser(ctx, userID, 50)
	if err != nil {
		return nil, err
	}
	return &Wallet{Balance: balance, Transactions: transactions}, nil
}
