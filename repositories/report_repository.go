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
	ErrReportNotFound     = errors.New("match report not found")
	ErrReportMatchInvalid = errors.New("report match reference invalid")
)

type ReportRepository interface {
	// Upsert stores the reporter's claim, replacing any prior report from
	// the same reporter for the same match.
	Upsert(ctx context.Context, exec SQLExecutor, report *models.MatchReport) error
	ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.MatchReport, error)
}

type postgresReportRepository struct {
	db *sql.DB
}

func NewPostgresReportRepository(db *sql.DB) ReportRepository {
	return &postgresReportRepository{db: db}
}

func (r *postgresReportRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresReportRepository) Upsert(ctx context.Context, exec SQLExecutor, report *models.MatchReport) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_match_reports (match_id, reporter_id, reported_result, is_creator)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, reporter_id)
		DO UPDATE SET reported_result = EXCLUDED.reported_result, created_at = NOW()
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		report.MatchID, report.ReporterID, report.ReportedResult, report.IsCreator,
	).Scan(&report.ID, &report.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			if pqErr.Constraint == "tournament_match_reports_match_id_fkey" {
				return ErrReportMatchInvalid
			}
		}
		return fmt.Errorf("failed to upsert match report: %w", err)
	}
	return nil
}

func (r *postgresReportRepository) ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.MatchReport, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, match_id, reporter_id, reported_result, is_creator, created_at
		FROM tournament_match_reports
		WHERE match_id = $1
		ORDER BY created_at ASC`

	rows, err := executor.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports for match %d: %w", matchID, err)
	}
	defer rows.Close()

	reports := make([]*models.MatchReport, 0, 2)
	for rows.Next() {
		var rep models.MatchReport
		if scanErr := rows.Scan(
			&rep.ID, &rep.MatchID, &rep.ReporterID, &rep.ReportedResult, &rep.IsCreator, &rep.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", scanErr)
		}
		reports = append(reports, &rep)
	}
	return reports, rows.Err()
}
