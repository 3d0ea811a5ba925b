package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/runbattle/runbattle-server/models"
	"github.com/runbattle/runbattle-server/repositories"
)

const defaultCrewMaxMembers = 50

type CreateCrewInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
	MaxMembers  int    `json:"max_members"`
}

type UpdateCrewInput struct {
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
	MaxMembers  *int    `json:"max_members"`
}

type CrewService interface {
	Create(ctx context.Context, captainID int, input CreateCrewInput) (*models.Crew, error)
	ListPublic(ctx context.Context, limit, offset int) ([]models.Crew, error)
	GetByID(ctx context.Context, crewID int) (*models.Crew, error)
	ListMembers(ctx context.Context, crewID int) ([]models.CrewMember, error)
	Join(ctx context.Context, crewID, userID int) error
	Leave(ctx context.Context, crewID, userID int) error
	Update(ctx context.Context, crewID, actorID int, input UpdateCrewInput) (*models.Crew, error)
	Delete(ctx context.Context, crewID, actorID int) error
}

type crewService struct {
	crewRepo   repositories.CrewRepository
	transactor repositories.Transactor
}

func NewCrewService(
	crewRepo repositories.CrewRepository,
	transactor repositories.Transactor,
) CrewService {
	return &crewService{
		crewRepo:   crewRepo,
		transactor: transactor,
	}
}

func (s *crewService) Create(ctx context.Context, captainID int, input CreateCrewInput) (*models.Crew, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrCrewNameRequired
	}

	if _, err := s.crewRepo.GetCrewCaptainedBy(ctx, captainID); err == nil {
		return nil, ErrAlreadyCaptain
	} else if !errors.Is(err, repositories.ErrCrewNotFound) {
		return nil, fmt.Errorf("failed to check captaincy for user %d: %w", captainID, err)
	}

	if _, err := s.crewRepo.GetMembershipForUser(ctx, captainID); err == nil {
		return nil, ErrAlreadyInCrew
	} else if !errors.Is(err, repositories.ErrCrewMembershipNotFound) {
		return nil, fmt.Errorf("failed to check membership for user %d: %w", captainID, err)
	}

	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	maxMembers := input.MaxMembers
	if maxMembers <= 0 {
		maxMembers = defaultCrewMaxMembers
	}

	crew := &models.Crew{
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		CaptainID:    captainID,
		IsPublic:     isPublic,
		MaxMembers:   maxMembers,
		TotalMembers: 1,
	}

	// The crew row and the captain's membership land together.
	err := s.transactor.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.crewRepo.Create(ctx, exec, crew); err != nil {
			return err
		}
		return s.crewRepo.AddMember(ctx, exec, &models.CrewMembership{
			CrewID: crew.ID,
			UserID: captainID,
			Role:   models.CrewRoleCaptain,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrCrewNameConflict):
			return nil, ErrCrewNameConflict
		case errors.Is(err, repositories.ErrCrewMembershipConflict):
			return nil, ErrAlreadyInCrew
		}
		return nil, fmt.Errorf("failed to create crew: %w", err)
	}

	return crew, nil
}

func (s *crewService) ListPublic(ctx context.Context, limit, offset int) ([]models.Crew, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.crewRepo.ListPublic(ctx, limit, offset)
}

func (s *crewService) GetByID(ctx context.Context, crewID int) (*models.Crew, error) {
	return s.getCrew(ctx, crewID)
}

func (s *crewService) ListMembers(ctx context.Context, crewID int) ([]models.CrewMember, error) {
	if _, err := s.getCrew(ctx, crewID); err != nil {
		return nil, err
	}
	return s.crewRepo.ListMembers(ctx, crewID)
}

func (s *crewService) Join(ctx context.Context, crewID, userID int) error {
	crew, err := s.getCrew(ctx, crewID)
	if err != nil {
		return err
	}
	if !crew.IsPublic {
		return ErrCrewPrivate
	}
	if crew.TotalMembers >= crew.MaxMembers {
		return ErrCrewFull
	}

	if _, err := s.crewRepo.GetMembershipForUser(ctx, userID); err == nil {
		return ErrAlreadyInCrew
	} else if !errors.Is(err, repositories.ErrCrewMembershipNotFound) {
		return fmt.Errorf("failed to check membership for user %d: %w", userID, err)
	}

	err = s.transactor.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.crewRepo.AddMember(ctx, exec, &models.CrewMembership{
			CrewID: crewID,
			UserID: userID,
			Role:   models.CrewRoleMember,
		}); err != nil {
			return err
		}
		return s.crewRepo.AdjustMemberCount(ctx, exec, crewID, 1)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrCrewMembershipConflict) {
			return ErrAlreadyInCrew
		}
		return fmt.Errorf("failed to join crew %d: %w", crewID, err)
	}
	return nil
}

func (s *crewService) Leave(ctx context.Context, crewID, userID int) error {
	membership, err := s.crewRepo.GetMembership(ctx, crewID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrCrewMembershipNotFound) {
			return ErrNotCrewMember
		}
		return fmt.Errorf("failed to load membership: %w", err)
	}

	if membership.Role == models.CrewRoleCaptain {
		return ErrCaptainCannotLeave
	}

	err = s.transactor.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.crewRepo.RemoveMember(ctx, exec, crewID, userID); err != nil {
			return err
		}
		return s.crewRepo.AdjustMemberCount(ctx, exec, crewID, -1)
	})
	if err != nil {
		return fmt.Errorf("failed to leave crew %d: %w", crewID, err)
	}
	return nil
}

func (s *crewService) Update(ctx context.Context, crewID, actorID int, input UpdateCrewInput) (*models.Crew, error) {
	crew, err := s.getCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	if crew.CaptainID != actorID {
		return nil, ErrCaptainActionForbidden
	}

	if input.Description != nil {
		crew.Description = strings.TrimSpace(*input.Description)
	}
	if input.IsPublic != nil {
		crew.IsPublic = *input.IsPublic
	}
	if input.MaxMembers != nil {
		if *input.MaxMembers < crew.TotalMembers {
			return nil, fmt.Errorf("%w: max members cannot drop below current member count", ErrValidationFailed)
		}
		crew.MaxMembers = *input.MaxMembers
	}

	if err := s.crewRepo.Update(ctx, crew); err != nil {
		if errors.Is(err, repositories.ErrCrewNotFound) {
			return nil, ErrCrewNotFound
		}
		return nil, fmt.Errorf("failed to update crew %d: %w", crewID, err)
	}
	return crew, nil
}

func (s *crewService) Delete(ctx context.Context, crewID, actorID int) error {
	crew, err := s.getCrew(ctx, crewID)
	if err != nil {
		return err
	}
	if crew.CaptainID != actorID {
		return ErrCaptainActionForbidden
	}

	if err := s.crewRepo.Delete(ctx, crewID); err != nil {
		if errors.Is(err, repositories.ErrCrewNotFound) {
			return ErrCrewNotFound
		}
		return fmt.Errorf("failed to delete crew %d: %w", crewID, err)
	}
	return nil
}

func (s *crewService) getCrew(ctx context.Context, crewID int) (*models.Crew, error) {
	crew, err := s.crewRepo.GetByID(ctx, crewID)
	if err != nil {
		if errors.Is(err, repositories.ErrCrewNotFound) {
			return nil, ErrCrewNotFound
		}
		return nil, fmt.Errorf("failed to load crew %d: %w", crewID, err)
	}
	return crew, nil
}
