package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/runbattle/runbattle-server/models"
	"github.com/runbattle/runbattle-server/repositories"
)

const (
	initialEloThreshold = 200
	maxEloThreshold     = 500
	eloThresholdStep    = 100
	candidateLimit      = 10
)

type MatchmakingService interface {
	// FindMatch pairs the requester with the closest-rated idle opponent and
	// creates a pending battle over distanceKm. Fails with ErrAlreadyInBattle
	// when the requester is busy and ErrNoOpponentAvailable when the widening
	// search exhausts its bound.
	FindMatch(ctx context.Context, userID int, distanceKm float64) (*models.Battle, error)
}

type matchmakingService struct {
	userRepo   repositories.UserRepository
	battleRepo repositories.BattleRepository
}

func NewMatchmakingService(
	userRepo repositories.UserRepository,
	battleRepo repositories.BattleRepository,
) MatchmakingService {
	return &matchmakingService{
		userRepo:   userRepo,
		battleRepo: battleRepo,
	}
}

func (s *matchmakingService) FindMatch(ctx context.Context, userID int, distanceKm float64) (*models.Battle, error) {
	if distanceKm == 0 {
		distanceKm = models.DefaultBattleDistanceKm
	}
	if distanceKm < 0 {
		return nil, ErrInvalidBattleDistance
	}

	requester, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load requester %d: %w", userID, err)
	}

	// Pre-check; CreateIfIdle re-checks atomically.
	if _, err := s.battleRepo.FindActiveForUser(ctx, userID); err == nil {
		return nil, ErrAlreadyInBattle
	} else if !errors.Is(err, repositories.ErrBattleNotFound) {
		return nil, fmt.Errorf("failed to check active battle for user %d: %w", userID, err)
	}

	// Widening search, bounded so matchmaking terminates: the recursive
	// threshold growth of the naive approach becomes an explicit loop.
	for threshold := initialEloThreshold; threshold <= maxEloThreshold; threshold += eloThresholdStep {
		band := repositories.RatingBand{
			Min: requester.EloRating - threshold,
			Max: requester.EloRating + threshold,
		}
		candidates, err := s.userRepo.FindByRatingBand(ctx, band, requester.ID, requester.EloRating, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to search opponents in band [%d, %d]: %w", band.Min, band.Max, err)
		}

		for i := range candidates {
			opponent := &candidates[i]

			battle := &models.Battle{
				User1ID:        requester.ID,
				User2ID:        opponent.ID,
				DistanceKm:     distanceKm,
				User1EloBefore: requester.EloRating,
				User2EloBefore: opponent.EloRating,
			}

			err := s.battleRepo.CreateIfIdle(ctx, battle)
			if err == nil {
				return battle, nil
			}
			if errors.Is(err, repositories.ErrParticipantBusy) {
				// Either the requester got matched by a concurrent request, or
				// this opponent was taken. Re-check the requester; if still
				// idle, move on to the next candidate.
				if _, activeErr := s.battleRepo.FindActiveForUser(ctx, userID); activeErr == nil {
					return nil, ErrAlreadyInBattle
				}
				continue
			}
			return nil, fmt.Errorf("failed to create battle for users %d and %d: %w", requester.ID, opponent.ID, err)
		}
	}

	return nil, ErrNoOpponentAvailable
}
