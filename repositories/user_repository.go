package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cardarena/tournament-engine/models"
	"github.com/lib/pq"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserEmailConflict    = errors.New("email is already in use")
	ErrUserNicknameConflict = errors.New("nickname is already in use")
	ErrInsufficientFunds    = errors.New("insufficient funds")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetBalance(ctx context.Context, exec SQLExecutor, userID int) (int64, error)
	// Debit atomically subtracts amount if the balance covers it.
	// Returns ErrInsufficientFunds when the guard fails.
	Debit(ctx context.Context, exec SQLExecutor, userID int, amount int64) error
	Credit(ctx context.Context, exec SQLExecutor, userID int, amount int64) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresUserRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (nickname, email, password_hash, role, balance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		u.Nickname, u.Email, u.PasswordHash, u.Role, u.Balance,
	).Scan(&u.ID, &u.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_email_key":
				return ErrUserEmailConflict
			case "users_nickname_key":
				return ErrUserNicknameConflict
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *postgresUserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Nickname, &u.Email, &u.PasswordHash, &u.Role, &u.Balance, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, nickname, email, password_hash, role, balance, created_at FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, nickname, email, password_hash, role, balance, created_at FROM users WHERE email = $1`
	return r.findOne(ctx, query, email)
}

func (r *postgresUserRepository) GetBalance(ctx context.Context, exec SQLExecutor, userID int) (int64, error) {
	executor := r.getExecutor(exec)
	var balance int64
	err := executor.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}
	return balance, nil
}

func (r *postgresUserRepository) Debit(ctx context.Context, exec SQLExecutor, userID int, amount int64) error {
	executor := r.getExecutor(exec)
	// The balance guard lives in the WHERE clause so two concurrent debits
	// for the last affordable unit cannot both pass.
	query := `UPDATE users SET balance = balance - $1 WHERE id = $2 AND balance >= $1`
	result, err := executor.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("failed to debit user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrInsufficientFunds)
}

func (r *postgresUserRepository) Credit(ctx context.Context, exec SQLExecutor, userID int, amount int64) error {
	executor := r.getExecutor(exec)
	query := `UPDATE users SET balance = balance + $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("failed to credit user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}
