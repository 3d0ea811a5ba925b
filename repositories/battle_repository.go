package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/runbattle/runbattle-server/models"
)

var (
	ErrBattleNotFound = errors.New("battle not found")

	// ErrParticipantBusy is returned by CreateIfIdle when one of the named
	// participants already sits in a pending or active battle.
	ErrParticipantBusy = errors.New("participant already in a pending or active battle")

	// ErrBattleStatusConflict is returned by CompareAndTransition when the
	// battle's current status does not match the expected one. Exactly one of
	// any set of concurrent callers can win a given transition.
	ErrBattleStatusConflict = errors.New("battle status did not match expected status")
)

// BattlePatch carries the optional column updates applied together with a
// status transition. Nil fields are left untouched.
type BattlePatch struct {
	WinnerID      *int
	User1Pace     *float64
	User2Pace     *float64
	User1EloAfter *int
	User2EloAfter *int
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

type BattleRepository interface {
	GetByID(ctx context.Context, id int) (*models.Battle, error)

	// FindActiveForUser returns the user's current pending or active battle,
	// or ErrBattleNotFound when the user is idle.
	FindActiveForUser(ctx context.Context, userID int) (*models.Battle, error)

	// CreateIfIdle inserts a pending battle only if neither participant is in
	// a pending or active battle. The check and the insert are serialized per
	// participant, so two racing creations for the same user cannot both
	// succeed.
	CreateIfIdle(ctx context.Context, battle *models.Battle) error

	// CompareAndTransition moves the battle from expected to next and applies
	// patch in a single statement. rowsAffected==0 maps to
	// ErrBattleStatusConflict (or ErrBattleNotFound when the id is unknown).
	CompareAndTransition(ctx context.Context, exec SQLExecutor, id int, expected, next models.BattleStatus, patch BattlePatch) error

	// SetParticipantResult records one participant's reported result while
	// the battle is in flight (overwrite allowed) and returns the fresh row.
	SetParticipantResult(ctx context.Context, id, slot int, distanceKm float64, durationSeconds int, pace float64) (*models.Battle, error)

	ListForUser(ctx context.Context, userID int, status *models.BattleStatus, limit, offset int) ([]models.Battle, error)
}

type postgresBattleRepository struct {
	db *sql.DB
}

func NewPostgresBattleRepository(db *sql.DB) BattleRepository {
	return &postgresBattleRepository{db: db}
}

const battleColumns = `
	id, user1_id, user2_id, distance_km, winner_id,
	user1_distance, user2_distance, user1_time, user2_time, user1_pace, user2_pace,
	user1_elo_before, user2_elo_before, user1_elo_after, user2_elo_after,
	status, created_at, started_at, completed_at`

func (r *postgresBattleRepository) GetByID(ctx context.Context, id int) (*models.Battle, error) {
	query := `SELECT` + battleColumns + ` FROM battles WHERE id = $1`
	return scanBattle(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresBattleRepository) FindActiveForUser(ctx context.Context, userID int) (*models.Battle, error) {
	query := `
		SELECT` + battleColumns + `
		FROM battles
		WHERE (user1_id = $1 OR user2_id = $1)
		  AND status IN ('pending', 'active')
		ORDER BY created_at DESC
		LIMIT 1`
	return scanBattle(r.db.QueryRowContext(ctx, query, userID))
}

func (r *postgresBattleRepository) CreateIfIdle(ctx context.Context, battle *models.Battle) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin battle creation transaction: %w", err)
	}
	defer tx.Rollback()

	// Advisory locks serialize the idle-check plus insert per participant.
	// Locked in ascending id order so two creations touching the same pair
	// cannot deadlock.
	lo, hi := battle.User1ID, battle.User2ID
	if lo > hi {
		lo, hi = hi, lo
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1), pg_advisory_xact_lock($2)`, lo, hi); err != nil {
		return fmt.Errorf("failed to acquire participant locks: %w", err)
	}

	var busy bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM battles
			WHERE status IN ('pending', 'active')
			  AND (user1_id IN ($1, $2) OR user2_id IN ($1, $2))
		)`, battle.User1ID, battle.User2ID).Scan(&busy)
	if err != nil {
		return fmt.Errorf("failed to check participant availability: %w", err)
	}
	if busy {
		return ErrParticipantBusy
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO battles (user1_id, user2_id, distance_km, user1_elo_before, user2_elo_before, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		battle.User1ID,
		battle.User2ID,
		battle.DistanceKm,
		battle.User1EloBefore,
		battle.User2EloBefore,
		models.BattleStatusPending,
	).Scan(&battle.ID, &battle.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert battle: %w", err)
	}
	battle.Status = models.BattleStatusPending

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit battle creation: %w", err)
	}
	return nil
}

func (r *postgresBattleRepository) CompareAndTransition(ctx context.Context, exec SQLExecutor, id int, expected, next models.BattleStatus, patch BattlePatch) error {
	if exec == nil {
		exec = r.db
	}

	setClauses := []string{"status = $1"}
	args := []interface{}{next}

	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.WinnerID != nil {
		appendSet("winner_id", *patch.WinnerID)
	}
	if patch.User1Pace != nil {
		appendSet("user1_pace", *patch.User1Pace)
	}
	if patch.User2Pace != nil {
		appendSet("user2_pace", *patch.User2Pace)
	}
	if patch.User1EloAfter != nil {
		appendSet("user1_elo_after", *patch.User1EloAfter)
	}
	if patch.User2EloAfter != nil {
		appendSet("user2_elo_after", *patch.User2EloAfter)
	}
	if patch.StartedAt != nil {
		appendSet("started_at", *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		appendSet("completed_at", *patch.CompletedAt)
	}

	args = append(args, id, expected)
	query := fmt.Sprintf(
		"UPDATE battles SET %s WHERE id = $%d AND status = $%d",
		strings.Join(setClauses, ", "), len(args)-1, len(args),
	)

	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition battle %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a lost CAS from a missing battle.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrBattleStatusConflict
	}
	return nil
}

func (r *postgresBattleRepository) SetParticipantResult(ctx context.Context, id, slot int, distanceKm float64, durationSeconds int, pace float64) (*models.Battle, error) {
	var query string
	switch slot {
	case 1:
		query = `
			UPDATE battles
			SET user1_distance = $1, user1_time = $2, user1_pace = $3
			WHERE id = $4 AND status IN ('pending', 'active')
			RETURNING` + battleColumns
	case 2:
		query = `
			UPDATE battles
			SET user2_distance = $1, user2_time = $2, user2_pace = $3
			WHERE id = $4 AND status IN ('pending', 'active')
			RETURNING` + battleColumns
	default:
		return nil, fmt.Errorf("invalid participant slot %d", slot)
	}

	battle, err := scanBattle(r.db.QueryRowContext(ctx, query, distanceKm, durationSeconds, pace, id))
	if err != nil {
		if errors.Is(err, ErrBattleNotFound) {
			// The row exists but is terminal, or the id is unknown.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrBattleStatusConflict
		}
		return nil, err
	}
	return battle, nil
}

func (r *postgresBattleRepository) ListForUser(ctx context.Context, userID int, status *models.BattleStatus, limit, offset int) ([]models.Battle, error) {
	args := []interface{}{userID}
	query := `
		SELECT` + battleColumns + `
		FROM battles
		WHERE (user1_id = $1 OR user2_id = $1)`
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list battles for user %d: %w", userID, err)
	}
	defer rows.Close()

	battles := make([]models.Battle, 0)
	for rows.Next() {
		var battle models.Battle
		if err := scanBattleFields(rows, &battle); err != nil {
			return nil, err
		}
		battles = append(battles, battle)
	}
	return battles, rows.Err()
}

func scanBattleFields(row rowScanner, b *models.Battle) error {
	return row.Scan(
		&b.ID,
		&b.User1ID,
		&b.User2ID,
		&b.DistanceKm,
		&b.WinnerID,
		&b.User1Distance,
		&b.User2Distance,
		&b.User1Time,
		&b.User2Time,
		&b.User1Pace,
		&b.User2Pace,
		&b.User1EloBefore,
		&b.User2EloBefore,
		&b.User1EloAfter,
		&b.User2EloAfter,
		&b.Status,
		&b.CreatedAt,
		&b.StartedAt,
		&b.CompletedAt,
	)
}

func scanBattle(row *sql.Row) (*models.Battle, error) {
	battle := &models.Battle{}
	if err := scanBattleFields(row, battle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBattleNotFound
		}
		return nil, err
	}
	return battle, nil
}
