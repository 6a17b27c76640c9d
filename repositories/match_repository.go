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
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchPlayerInvalid   = errors.New("match player reference invalid")
	ErrMatchAlreadyResolved = errors.New("match is already resolved")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	// GetByIDForUpdate locks the match row so report submission and
	// resolution serialize per match.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int) ([]*models.Match, error)
	CountUnresolvedInRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error)
	SetReportedFlag(ctx context.Context, exec SQLExecutor, matchID int, playerSlot int) error
	// Resolve completes the match; the status guard makes a second
	// resolution attempt fail with ErrMatchAlreadyResolved.
	Resolve(ctx context.Context, exec SQLExecutor, matchID int, winnerID int) error
	ListPastDeadlineUnresolved(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, tournament_id, round, player1_id, player2_id, status, winner_id,
	player1_reported, player2_reported, match_deadline, created_at`

func scanMatch(row interface{ Scan(dest ...interface{}) error }, m *models.Match) error {
	return row.Scan(
		&m.ID, &m.TournamentID, &m.Round, &m.Player1ID, &m.Player2ID, &m.Status, &m.WinnerID,
		&m.Player1Reported, &m.Player2Reported, &m.MatchDeadline, &m.CreatedAt,
	)
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_matches
			(tournament_id, round, player1_id, player2_id, status, winner_id, match_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		m.TournamentID, m.Round, m.Player1ID, m.Player2ID, m.Status, m.WinnerID, m.MatchDeadline,
	).Scan(&m.ID, &m.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			switch pqErr.Constraint {
			case "tournament_matches_player1_id_fkey", "tournament_matches_player2_id_fkey":
				return ErrMatchPlayerInvalid
			}
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) getOne(ctx context.Context, exec SQLExecutor, query string, id int) (*models.Match, error) {
	m := &models.Match{}
	err := scanMatch(exec.QueryRowContext(ctx, query, id), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM tournament_matches WHERE id = $1`
	return r.getOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM tournament_matches WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM tournament_matches WHERE tournament_id = $1`
	args := []interface{}{tournamentID}

	if round != nil {
		query += ` AND round = $2`
		args = append(args, *round)
	}
	query += ` ORDER BY round ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var m models.Match
		if scanErr := scanMatch(rows, &m); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) CountUnresolvedInRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	query := `
		SELECT COUNT(*) FROM tournament_matches
		WHERE tournament_id = $1 AND round = $2 AND status <> $3`
	err := executor.QueryRowContext(ctx, query, tournamentID, round, models.MatchStatusCompleted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved matches for tournament %d round %d: %w", tournamentID, round, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) SetReportedFlag(ctx context.Context, exec SQLExecutor, matchID int, playerSlot int) error {
	executor := r.getExecutor(exec)
	var query string
	switch playerSlot {
	case 1:
		query = `UPDATE tournament_matches SET player1_reported = TRUE, status = $1 WHERE id = $2`
	case 2:
		query = `UPDATE tournament_matches SET player2_reported = TRUE, status = $1 WHERE id = $2`
	default:
		return fmt.Errorf("invalid player slot %d", playerSlot)
	}
	result, err := executor.ExecContext(ctx, query, models.MatchStatusInProgress, matchID)
	if err != nil {
		return fmt.Errorf("failed to set reported flag on match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Resolve(ctx context.Context, exec SQLExecutor, matchID int, winnerID int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournament_matches
		SET winner_id = $1, status = $2
		WHERE id = $3 AND status <> $2`
	result, err := executor.ExecContext(ctx, query, winnerID, models.MatchStatusCompleted, matchID)
	if err != nil {
		return fmt.Errorf("failed to resolve match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchAlreadyResolved)
}

func (r *postgresMatchRepository) ListPastDeadlineUnresolved(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + `
		FROM tournament_matches
		WHERE status <> $1 AND match_deadline IS NOT NULL AND match_deadline <= $2
		ORDER BY tournament_id, round, id`

	rows, err := executor.QueryContext(ctx, query, models.MatchStatusCompleted, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query past-deadline matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		var m models.Match
		if scanErr := scanMatch(rows, &m); scanErr != nil {
			return nil, fmt.Errorf("failed to scan past-deadline match: %w", scanErr)
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}
