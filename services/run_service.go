package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runbattle/runbattle-server/models"
	"github.com/runbattle/runbattle-server/repositories"
	"github.com/runbattle/runbattle-server/utils"
)

type LogRunInput struct {
	DistanceKm      float64  `json:"distance_km"`
	DurationSeconds int      `json:"duration_seconds"`
	CaloriesBurned  float64  `json:"calories_burned"`
	StartLat        *float64 `json:"start_lat"`
	StartLng        *float64 `json:"start_lng"`
	EndLat          *float64 `json:"end_lat"`
	EndLng          *float64 `json:"end_lng"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

type RunService interface {
	// LogRun stores a completed run and folds it into the user's aggregate
	// stats within one transaction.
	LogRun(ctx context.Context, userID int, input LogRunInput) (*models.Run, error)
	ListForUser(ctx context.Context, userID, limit, offset int) ([]models.Run, error)
	GetByID(ctx context.Context, runID, userID int) (*models.Run, error)
}

type runService struct {
	runRepo    repositories.RunRepository
	userRepo   repositories.UserRepository
	transactor repositories.Transactor
}

func NewRunService(
	runRepo repositories.RunRepository,
	userRepo repositories.UserRepository,
	transactor repositories.Transactor,
) RunService {
	return &runService{
		runRepo:    runRepo,
		userRepo:   userRepo,
		transactor: transactor,
	}
}

func (s *runService) LogRun(ctx context.Context, userID int, input LogRunInput) (*models.Run, error) {
	if input.DistanceKm <= 0 || input.DurationSeconds <= 0 {
		return nil, ErrInvalidResult
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	calories := input.CaloriesBurned
	if calories == 0 {
		calories = utils.CalculateCalories(input.DistanceKm, user.WeightKg)
	}

	completedAt := input.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	startedAt := input.StartedAt
	if startedAt.IsZero() {
		startedAt = completedAt.Add(-time.Duration(input.DurationSeconds) * time.Second)
	}

	run := &models.Run{
		UserID:          userID,
		DistanceKm:      input.DistanceKm,
		DurationSeconds: input.DurationSeconds,
		AvgPace:         utils.CalculatePace(input.DistanceKm, input.DurationSeconds),
		AvgSpeed:        utils.CalculateSpeed(input.DistanceKm, input.DurationSeconds),
		CaloriesBurned:  calories,
		StartLat:        input.StartLat,
		StartLng:        input.StartLng,
		EndLat:          input.EndLat,
		EndLng:          input.EndLng,
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		Source:          "app",
	}

	err = s.transactor.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.runRepo.Create(ctx, exec, run); err != nil {
			return err
		}
		return s.userRepo.ApplyRunStats(ctx, exec, userID, run.DistanceKm, run.DurationSeconds)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log run for user %d: %w", userID, err)
	}

	return run, nil
}

func (s *runService) ListForUser(ctx context.Context, userID, limit, offset int) ([]models.Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.runRepo.ListByUser(ctx, userID, limit, offset)
}

func (s *runService) GetByID(ctx context.Context, runID, userID int) (*models.Run, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repositories.ErrRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	// Runs are private to their owner.
	if run.UserID != userID {
		return nil, ErrRunNotFound
	}
	return run, nil
}
