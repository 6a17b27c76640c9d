package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cardarena/tournament-engine/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentNameConflict   = errors.New("tournament name conflict for this creator")
	ErrTournamentInvalidCreator = errors.New("invalid creator reference")
	// ErrStaleTournamentState marks a lost compare-and-swap: another caller
	// already performed the transition.
	ErrStaleTournamentState = errors.New("tournament state changed concurrently")
)

type ListTournamentsFilter struct {
	CreatorID *int
	Status    *models.TournamentStatus
	IsWeekly  *bool
	Limit     int
	Offset    int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// GetByIDForUpdate locks the tournament row for the current transaction.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// UpdateStatus transitions the status only from the expected one;
	// a lost race returns ErrStaleTournamentState.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	// AdvanceRound flips current_round from expected to expected+1.
	AdvanceRound(ctx context.Context, exec SQLExecutor, id int, expectedRound int) error
	SetTotalRounds(ctx context.Context, exec SQLExecutor, id int, totalRounds int) error
	IncrementCollected(ctx context.Context, exec SQLExecutor, id int, amount int64) error
	// MarkPrizePaid is the single-writer gate for the payout. It succeeds
	// at most once per tournament.
	MarkPrizePaid(ctx context.Context, exec SQLExecutor, id int) error
	SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerUserID int) error
	UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error
	ListDueForExpiry(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error)
	HasUpcomingWeekly(ctx context.Context) (bool, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, description, creator_id, status, max_participants, min_participants,
	entry_fee, prize_pool, total_collected, prize_paid, current_round, total_rounds,
	is_weekly, winner_user_id, start_date, end_date, created_at, banner_key`

func scanTournament(row interface{ Scan(dest ...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.Name, &t.Description, &t.CreatorID, &t.Status, &t.MaxParticipants, &t.MinParticipants,
		&t.EntryFee, &t.PrizePool, &t.TotalCollected, &t.PrizePaid, &t.CurrentRound, &t.TotalRounds,
		&t.IsWeekly, &t.WinnerUserID, &t.StartDate, &t.EndDate, &t.CreatedAt, &t.BannerKey,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (
			name, description, creator_id, status, max_participants, min_participants,
			entry_fee, prize_pool, is_weekly, start_date, end_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.Description, t.CreatorID, t.Status, t.MaxParticipants, t.MinParticipants,
		t.EntryFee, t.PrizePool, t.IsWeekly, t.StartDate, t.EndDate,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) getOne(ctx context.Context, exec SQLExecutor, query string, id int) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := scanTournament(exec.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.getOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.CreatorID != nil {
		query += fmt.Sprintf(" AND creator_id = $%d", argID)
		args = append(args, *filter.CreatorID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.IsWeekly != nil {
		query += fmt.Sprintf(" AND is_weekly = $%d", argID)
		args = append(args, *filter.IsWeekly)
		argID++
	}

	query += " ORDER BY start_date DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrStaleTournamentState)
}

func (r *postgresTournamentRepository) AdvanceRound(ctx context.Context, exec SQLExecutor, id int, expectedRound int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET current_round = current_round + 1 WHERE id = $1 AND current_round = $2`
	result, err := executor.ExecContext(ctx, query, id, expectedRound)
	if err != nil {
		return fmt.Errorf("failed to advance round for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrStaleTournamentState)
}

func (r *postgresTournamentRepository) SetTotalRounds(ctx context.Context, exec SQLExecutor, id int, totalRounds int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET total_rounds = $1, current_round = 1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, totalRounds, id)
	if err != nil {
		return fmt.Errorf("failed to set total rounds for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) IncrementCollected(ctx context.Context, exec SQLExecutor, id int, amount int64) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET total_collected = total_collected + $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("failed to increment collected total for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) MarkPrizePaid(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET prize_paid = TRUE WHERE id = $1 AND prize_paid = FALSE`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark prize paid for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrStaleTournamentState)
}

func (r *postgresTournamentRepository) SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerUserID int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET winner_user_id = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, winnerUserID, id)
	if err != nil {
		return fmt.Errorf("failed to set winner for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	query := `UPDATE tournaments SET banner_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, bannerKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament banner key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// ListDueForExpiry returns upcoming tournaments whose start date has passed.
// The caller decides between starting and expiring based on enrollment.
func (r *postgresTournamentRepository) ListDueForExpiry(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE status = $1 AND start_date <= $2`

	rows, err := executor.QueryContext(ctx, query, models.TournamentStatusUpcoming, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due for expiry: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament due for expiry: %w", scanErr)
		}
		tournaments = append(tournaments, &t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) HasUpcomingWeekly(ctx context.Context) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM tournaments WHERE is_weekly = TRUE AND status = $1)`
	if err := r.db.QueryRowContext(ctx, query, models.TournamentStatusUpcoming).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for upcoming weekly tournament: %w", err)
	}
	return exists, nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_creator_id_name_key" {
				return ErrTournamentNameConflict
			}
		case "23503":
			if pqErr.Constraint == "tournaments_creator_id_fkey" {
				return ErrTournamentInvalidCreator
			}
		}
	}
	return err
}
