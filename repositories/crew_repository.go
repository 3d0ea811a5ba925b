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
	ErrCrewNotFound           = errors.New("crew not found")
	ErrCrewNameConflict       = errors.New("crew name conflict")
	ErrCrewMembershipConflict = errors.New("user is already a crew member")
	ErrCrewMembershipNotFound = errors.New("crew membership not found")
)

type CrewRepository interface {
	Create(ctx context.Context, exec SQLExecutor, crew *models.Crew) error
	GetByID(ctx context.Context, id int) (*models.Crew, error)
	ListPublic(ctx context.Context, limit, offset int) ([]models.Crew, error)
	Update(ctx context.Context, crew *models.Crew) error
	Delete(ctx context.Context, id int) error

	AddMember(ctx context.Context, exec SQLExecutor, membership *models.CrewMembership) error
	GetMembership(ctx context.Context, crewID, userID int) (*models.CrewMembership, error)
	GetMembershipForUser(ctx context.Context, userID int) (*models.CrewMembership, error)
	RemoveMember(ctx context.Context, exec SQLExecutor, crewID, userID int) error
	ListMembers(ctx context.Context, crewID int) ([]models.CrewMember, error)

	// AdjustMemberCount adds delta to total_members within the same atomic
	// unit as the membership change it accompanies.
	AdjustMemberCount(ctx context.Context, exec SQLExecutor, crewID, delta int) error

	GetCrewCaptainedBy(ctx context.Context, userID int) (*models.Crew, error)
}

type postgresCrewRepository struct {
	db *sql.DB
}

func NewPostgresCrewRepository(db *sql.DB) CrewRepository {
	return &postgresCrewRepository{db: db}
}

func (r *postgresCrewRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

const crewColumns = `id, name, description, captain_id, is_public, max_members, total_members, created_at, updated_at`

func (r *postgresCrewRepository) Create(ctx context.Context, exec SQLExecutor, crew *models.Crew) error {
	query := `
		INSERT INTO crews (name, description, captain_id, is_public, max_members, total_members)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		crew.Name,
		crew.Description,
		crew.CaptainID,
		crew.IsPublic,
		crew.MaxMembers,
		crew.TotalMembers,
	).Scan(&crew.ID, &crew.CreatedAt, &crew.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "crews_name_key" {
				return ErrCrewNameConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresCrewRepository) GetByID(ctx context.Context, id int) (*models.Crew, error) {
	query := `SELECT ` + crewColumns + ` FROM crews WHERE id = $1`
	return scanCrewRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresCrewRepository) ListPublic(ctx context.Context, limit, offset int) ([]models.Crew, error) {
	query := `
		SELECT ` + crewColumns + `
		FROM crews
		WHERE is_public = TRUE
		ORDER BY total_members DESC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list public crews: %w", err)
	}
	defer rows.Close()

	crews := make([]models.Crew, 0)
	for rows.Next() {
		var crew models.Crew
		if err := scanCrewFields(rows, &crew); err != nil {
			return nil, err
		}
		crews = append(crews, crew)
	}
	return crews, rows.Err()
}

func (r *postgresCrewRepository) Update(ctx context.Context, crew *models.Crew) error {
	query := `
		UPDATE crews SET
			description = $1,
			is_public = $2,
			max_members = $3,
			updated_at = NOW()
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query,
		crew.Description,
		crew.IsPublic,
		crew.MaxMembers,
		crew.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrCrewNotFound)
}

func (r *postgresCrewRepository) Delete(ctx context.Context, id int) error {
	// crew_members carries ON DELETE CASCADE for crew_id, so memberships go
	// with the crew.
	result, err := r.db.ExecContext(ctx, `DELETE FROM crews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrCrewNotFound)
}

func (r *postgresCrewRepository) AddMember(ctx context.Context, exec SQLExecutor, membership *models.CrewMembership) error {
	query := `
		INSERT INTO crew_members (crew_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING joined_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		membership.CrewID,
		membership.UserID,
		membership.Role,
	).Scan(&membership.JoinedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// crew_members_user_id_key: one crew per user.
			return ErrCrewMembershipConflict
		}
		return err
	}
	return nil
}

func (r *postgresCrewRepository) GetMembership(ctx context.Context, crewID, userID int) (*models.CrewMembership, error) {
	query := `
		SELECT crew_id, user_id, role, joined_at
		FROM crew_members
		WHERE crew_id = $1 AND user_id = $2`
	return scanMembership(r.db.QueryRowContext(ctx, query, crewID, userID))
}

func (r *postgresCrewRepository) GetMembershipForUser(ctx context.Context, userID int) (*models.CrewMembership, error) {
	query := `
		SELECT crew_id, user_id, role, joined_at
		FROM crew_members
		WHERE user_id = $1`
	return scanMembership(r.db.QueryRowContext(ctx, query, userID))
}

func (r *postgresCrewRepository) RemoveMember(ctx context.Context, exec SQLExecutor, crewID, userID int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`DELETE FROM crew_members WHERE crew_id = $1 AND user_id = $2`, crewID, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrCrewMembershipNotFound)
}

func (r *postgresCrewRepository) ListMembers(ctx context.Context, crewID int) ([]models.CrewMember, error) {
	query := `
		SELECT m.user_id, u.username, u.avatar_url, m.role, m.joined_at,
		       u.total_distance_km, u.total_runs
		FROM crew_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.crew_id = $1
		ORDER BY m.joined_at ASC`

	rows, err := r.db.QueryContext(ctx, query, crewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of crew %d: %w", crewID, err)
	}
	defer rows.Close()

	members := make([]models.CrewMember, 0)
	for rows.Next() {
		var m models.CrewMember
		err := rows.Scan(
			&m.UserID,
			&m.Username,
			&m.AvatarURL,
			&m.Role,
			&m.JoinedAt,
			&m.TotalDistanceKm,
			&m.TotalRuns,
		)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *postgresCrewRepository) AdjustMemberCount(ctx context.Context, exec SQLExecutor, crewID, delta int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE crews SET total_members = total_members + $1, updated_at = NOW() WHERE id = $2`,
		delta, crewID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrCrewNotFound)
}

func (r *postgresCrewRepository) GetCrewCaptainedBy(ctx context.Context, userID int) (*models.Crew, error) {
	query := `SELECT ` + crewColumns + ` FROM crews WHERE captain_id = $1`
	return scanCrewRow(r.db.QueryRowContext(ctx, query, userID))
}

func scanCrewFields(row rowScanner, crew *models.Crew) error {
	var description sql.NullString
	err := row.Scan(
		&crew.ID,
		&crew.Name,
		&description,
		&crew.CaptainID,
		&crew.IsPublic,
		&crew.MaxMembers,
		&crew.TotalMembers,
		&crew.CreatedAt,
		&crew.UpdatedAt,
	)
	if err != nil {
		return err
	}
	crew.Description = description.String
	return nil
}

func scanCrewRow(row *sql.Row) (*models.Crew, error) {
	crew := &models.Crew{}
	if err := scanCrewFields(row, crew); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCrewNotFound
		}
		return nil, err
	}
	return crew, nil
}

func scanMembership(row *sql.Row) (*models.CrewMembership, error) {
	m := &models.CrewMembership{}
	err := row.Scan(&m.CrewID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCrewMembershipNotFound
		}
		return nil, err
	}
	return m, nil
}
