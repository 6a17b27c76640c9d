package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cardarena/tournament-engine/models"
	"github.com/google/uuid"
)

// TransactionRepository appends to the immutable currency audit log.
// There is deliberately no update or delete.
type TransactionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tx *models.Transaction) error
	ListByUser(ctx context.Context, userID int, limit int) ([]models.Transaction, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Transaction, error)
}

type postgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) TransactionRepository {
	return &postgresTransactionRepository{db: db}
}

func (r *postgresTransactionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTransactionRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Transaction) error {
	executor := r.getExecutor(exec)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `
		INSERT INTO transactions (id, user_id, tournament_id, kind, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := executor.QueryRowContext(ctx, query,
		t.ID, t.UserID, t.TournamentID, t.Kind, t.Amount,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction record: %w", err)
	}
	return nil
}

func (r *postgresTransactionRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if scanErr := rows.Scan(&t.ID, &t.UserID, &t.TournamentID, &t.Kind, &t.Amount, &t.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", scanErr)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *postgresTransactionRepository) ListByUser(ctx context.Context, userID int, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, user_id, tournament_id, kind, amount, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

func (r *postgresTransactionRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Transaction, error) {
	query := `
		SELECT id, user_id, tournament_id, kind, amount, created_at
		FROM transactions
		WHERE tournament_id = $1
		ORDER BY created_at ASC`
	return r.list(ctx, query, tournamentID)
}
