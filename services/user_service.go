package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/runbattle/runbattle-server/models"
	"github.com/runbattle/runbattle-server/repositories"
	"github.com/runbattle/runbattle-server/storage"
)

type UpdateProfileInput struct {
	FullName *string  `json:"full_name"`
	WeightKg *float64 `json:"weight_kg"`
}

type UserService interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	UpdateProfile(ctx context.Context, id int, input UpdateProfileInput) (*models.User, error)
	UploadAvatar(ctx context.Context, id int, contentType string, file io.Reader) (*models.User, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]models.User, error)
}

type userService struct {
	userRepo repositories.UserRepository
	uploader storage.FileUploader
}

func NewUserService(userRepo repositories.UserRepository, uploader storage.FileUploader) UserService {
	return &userService{
		userRepo: userRepo,
		uploader: uploader,
	}
}

func (s *userService) GetByID(ctx context.Context, id int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, id int, input UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}

	if input.FullName != nil {
		user.FullName = *input.FullName
	}
	if input.WeightKg != nil {
		if *input.WeightKg <= 0 {
			return nil, fmt.Errorf("%w: weight must be positive", ErrValidationFailed)
		}
		user.WeightKg = *input.WeightKg
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repositories.ErrUserEmailConflict):
			return nil, ErrUserEmailConflict
		case errors.Is(err, repositories.ErrUserUsernameConflict):
			return nil, ErrUserUsernameConflict
		case errors.Is(err, repositories.ErrUserNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user %d: %w", id, err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *userService) UploadAvatar(ctx context.Context, id int, contentType string, file io.Reader) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}

	// A timestamped key so a stale CDN entry never shadows a new avatar.
	key := fmt.Sprintf("avatars/%d/%d", user.ID, time.Now().UnixNano())

	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar for user %d: %w", id, err)
	}

	if err := s.userRepo.UpdateAvatarURL(ctx, user.ID, result.Location); err != nil {
		return nil, fmt.Errorf("failed to save avatar url for user %d: %w", id, err)
	}

	user.AvatarURL = &result.Location
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) Leaderboard(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.userRepo.ListByRating(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}
