package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/runbattle/runbattle-server/models"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunUserInvalid = errors.New("run references an unknown user")
)

type RunRepository interface {
	Create(ctx context.Context, exec SQLExecutor, run *models.Run) error
	GetByID(ctx context.Context, id int) (*models.Run, error)
	ListByUser(ctx context.Context, userID, limit, offset int) ([]models.Run, error)
}

type postgresRunRepository struct {
	db *sql.DB
}

func NewPostgresRunRepository(db *sql.DB) RunRepository {
	return &postgresRunRepository{db: db}
}

const runColumns = `
	id, user_id, distance_km, duration_seconds, avg_pace, avg_speed, calories_burned,
	start_lat, start_lng, end_lat, end_lng, started_at, completed_at, source, created_at`

func (r *postgresRunRepository) Create(ctx context.Context, exec SQLExecutor, run *models.Run) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		INSERT INTO runs (user_id, distance_km, duration_seconds, avg_pace, avg_speed, calories_burned,
			start_lat, start_lng, end_lat, end_lng, started_at, completed_at, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		run.UserID,
		run.DistanceKm,
		run.DurationSeconds,
		run.AvgPace,
		run.AvgSpeed,
		run.CaloriesBurned,
		run.StartLat,
		run.StartLng,
		run.EndLat,
		run.EndLng,
		run.StartedAt,
		run.CompletedAt,
		run.Source,
	).Scan(&run.ID, &run.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			if pqErr.Constraint == "runs_user_id_fkey" {
				return ErrRunUserInvalid
			}
		}
		return err
	}
	return nil
}

func (r *postgresRunRepository) GetByID(ctx context.Context, id int) (*models.Run, error) {
	query := `SELECT` + runColumns + ` FROM runs WHERE id = $1`

	run := &models.Run{}
	err := scanRunFields(r.db.QueryRowContext(ctx, query, id), run)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *postgresRunRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]models.Run, error) {
	query := `
		SELECT` + runColumns + `
		FROM runs
		WHERE user_id = $1
		ORDER BY completed_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for user %d: %w", userID, err)
	}
	defer rows.Close()

	runs := make([]models.Run, 0)
	for rows.Next() {
		var run models.Run
		if err := scanRunFields(rows, &run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRunFields(row rowScanner, run *models.Run) error {
	return row.Scan(
		&run.ID,
		&run.UserID,
		&run.DistanceKm,
		&run.DurationSeconds,
		&run.AvgPace,
		&run.AvgSpeed,
		&run.CaloriesBurned,
		&run.StartLat,
		&run.StartLng,
		&run.EndLat,
		&run.EndLng,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Source,
		&run.CreatedAt,
	)
}
