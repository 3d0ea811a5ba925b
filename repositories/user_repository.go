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
	ErrUserNotFound         = errors.New("user not found")
	ErrUserEmailConflict    = errors.New("user email conflict")
	ErrUserUsernameConflict = errors.New("user username conflict")
)

// RatingBand is the inclusive ELO range matchmaking searches within.
type RatingBand struct {
	Min int
	Max int
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateAvatarURL(ctx context.Context, id int, avatarURL string) error

	// FindByRatingBand returns users inside band, excluding excludeID and any
	// user who currently sits in a pending or active battle, ordered by
	// absolute rating distance to pivot (then id, for a stable order).
	FindByRatingBand(ctx context.Context, band RatingBand, excludeID, pivot, limit int) ([]models.User, error)

	// ApplyRatingChange atomically sets the new rating and derived tier, and
	// adds pointsDelta to the league points counter.
	ApplyRatingChange(ctx context.Context, exec SQLExecutor, id, newRating int, newTier models.LeagueTier, pointsDelta int) error

	// ApplyRunStats folds one run into the user's aggregate totals.
	ApplyRunStats(ctx context.Context, exec SQLExecutor, id int, distanceKm float64, durationSeconds int) error

	ListByRating(ctx context.Context, limit, offset int) ([]models.User, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

const userColumns = `
	id, email, username, password_hash, full_name, avatar_url, weight_kg,
	total_distance_km, total_duration_seconds, total_runs, avg_pace,
	elo_rating, league_tier, league_points, created_at`

func (r *postgresUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, full_name, weight_kg, elo_rating, league_tier, league_points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FullName,
		user.WeightKg,
		user.EloRating,
		user.LeagueTier,
		user.LeaguePoints,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_email_key":
				return ErrUserEmailConflict
			case "users_username_key":
				return ErrUserUsernameConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.db.QueryRowContext(ctx, query, email))
}

func (r *postgresUserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			email = $1,
			username = $2,
			password_hash = $3,
			full_name = $4,
			weight_kg = $5
		WHERE id = $6`

	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FullName,
		user.WeightKg,
		user.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_email_key":
				return ErrUserEmailConflict
			case "users_username_key":
				return ErrUserUsernameConflict
			}
		}
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) UpdateAvatarURL(ctx context.Context, id int, avatarURL string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = $1 WHERE id = $2`, avatarURL, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) FindByRatingBand(ctx context.Context, band RatingBand, excludeID, pivot, limit int) ([]models.User, error) {
	// The busy-user exclusion mirrors the battle store's idle predicate, so a
	// returned candidate is never already in a pending or active battle at the
	// time of the query. The final guard is still CreateIfIdle.
	query := `
		SELECT` + userColumns + `
		FROM users u
		WHERE u.id <> $1
		  AND u.elo_rating BETWEEN $2 AND $3
		  AND NOT EXISTS (
			SELECT 1 FROM battles b
			WHERE b.status IN ('pending', 'active')
			  AND (b.user1_id = u.id OR b.user2_id = u.id)
		  )
		ORDER BY ABS(u.elo_rating - $4) ASC, u.id ASC
		LIMIT $5`

	rows, err := r.db.QueryContext(ctx, query, excludeID, band.Min, band.Max, pivot, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating band candidates: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := scanUserFields(rows, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *postgresUserRepository) ApplyRatingChange(ctx context.Context, exec SQLExecutor, id, newRating int, newTier models.LeagueTier, pointsDelta int) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		UPDATE users SET
			elo_rating = $1,
			league_tier = $2,
			league_points = league_points + $3
		WHERE id = $4`

	result, err := exec.ExecContext(ctx, query, newRating, newTier, pointsDelta, id)
	if err != nil {
		return fmt.Errorf("failed to apply rating change for user %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) ApplyRunStats(ctx context.Context, exec SQLExecutor, id int, distanceKm float64, durationSeconds int) error {
	if exec == nil {
		exec = r.db
	}
	// avg_pace is minutes per km over lifetime totals.
	query := `
		UPDATE users SET
			total_distance_km = total_distance_km + $1,
			total_duration_seconds = total_duration_seconds + $2,
			total_runs = total_runs + 1,
			avg_pace = CASE
				WHEN total_distance_km + $1 > 0
				THEN ((total_duration_seconds + $2) / 60.0) / (total_distance_km + $1)
				ELSE 0
			END
		WHERE id = $3`

	result, err := exec.ExecContext(ctx, query, distanceKm, durationSeconds, id)
	if err != nil {
		return fmt.Errorf("failed to apply run stats for user %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) ListByRating(ctx context.Context, limit, offset int) ([]models.User, error) {
	query := `
		SELECT` + userColumns + `
		FROM users
		ORDER BY elo_rating DESC, league_points DESC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := scanUserFields(rows, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserFields(row rowScanner, user *models.User) error {
	var fullName sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&fullName,
		&user.AvatarURL,
		&user.WeightKg,
		&user.TotalDistanceKm,
		&user.TotalDurationSeconds,
		&user.TotalRuns,
		&user.AvgPace,
		&user.EloRating,
		&user.LeagueTier,
		&user.LeaguePoints,
		&user.CreatedAt,
	)
	if err != nil {
		return err
	}
	user.FullName = fullName.String
	return nil
}

func scanUserRow(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	if err := scanUserFields(row, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
