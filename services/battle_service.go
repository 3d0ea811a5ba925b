package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runbattle/runbattle-server/models"
	"github.com/runbattle/runbattle-server/repositories"
	"github.com/runbattle/runbattle-server/utils"
)

// completionTolerance is the fraction of the target distance a participant
// must cover to count as having finished (GPS noise allowance).
const completionTolerance = 0.99

// Battle events published to the live hub.
const (
	EventBattleStarted   = "BATTLE_STARTED"
	EventResultSubmitted = "RESULT_SUBMITTED"
	EventBattleCompleted = "BATTLE_COMPLETED"
	EventBattleCancelled = "BATTLE_CANCELLED"
)

// BattleNotifier publishes battle lifecycle events to connected clients.
type BattleNotifier interface {
	NotifyBattle(battleID int, eventType string, payload interface{})
}

type BattleService interface {
	GetByID(ctx context.Context, battleID, currentUserID int) (*models.Battle, error)
	ListForUser(ctx context.Context, userID int, status *models.BattleStatus, limit, offset int) ([]models.Battle, error)

	// Start moves a pending battle to active. Legal only for a participant
	// and only from the pending status.
	Start(ctx context.Context, battleID, actorID int) (*models.Battle, error)

	// SubmitResult records the actor's half of the result (last write wins
	// while the battle is in flight). Once both sides have a positive
	// distance the battle is resolved and returned completed.
	SubmitResult(ctx context.Context, battleID, actorID int, distanceKm float64, durationSeconds int) (*models.Battle, error)

	// Cancel moves a pending or active battle to cancelled. No rating effects.
	Cancel(ctx context.Context, battleID, actorID int) error
}

type battleService struct {
	battleRepo repositories.BattleRepository
	userRepo   repositories.UserRepository
	transactor repositories.Transactor
	notifier   BattleNotifier
}

func NewBattleService(
	battleRepo repositories.BattleRepository,
	userRepo repositories.UserRepository,
	transactor repositories.Transactor,
	notifier BattleNotifier,
) BattleService {
	return &battleService{
		battleRepo: battleRepo,
		userRepo:   userRepo,
		transactor: transactor,
		notifier:   notifier,
	}
}

func (s *battleService) GetByID(ctx context.Context, battleID, currentUserID int) (*models.Battle, error) {
	battle, err := s.getBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}

	// Non-completed battles are visible to participants only.
	if battle.Status != models.BattleStatusCompleted && !battle.HasParticipant(currentUserID) {
		return nil, ErrNotBattleParticipant
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := s.userRepo.GetByID(gCtx, battle.User1ID)
		if err != nil {
			return fmt.Errorf("failed to load participant %d: %w", battle.User1ID, err)
		}
		user.PasswordHash = ""
		battle.User1 = user
		return nil
	})
	g.Go(func() error {
		user, err := s.userRepo.GetByID(gCtx, battle.User2ID)
		if err != nil {
			return fmt.Errorf("failed to load participant %d: %w", battle.User2ID, err)
		}
		user.PasswordHash = ""
		battle.User2 = user
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return battle, nil
}

func (s *battleService) ListForUser(ctx context.Context, userID int, status *models.BattleStatus, limit, offset int) ([]models.Battle, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.battleRepo.ListForUser(ctx, userID, status, limit, offset)
}

func (s *battleService) Start(ctx context.Context, battleID, actorID int) (*models.Battle, error) {
	battle, err := s.getBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !battle.HasParticipant(actorID) {
		return nil, ErrNotBattleParticipant
	}
	if battle.Status != models.BattleStatusPending {
		return nil, invalidTransitionError(battle.Status, models.BattleStatusActive)
	}

	now := time.Now().UTC()
	err = s.battleRepo.CompareAndTransition(ctx, nil, battle.ID,
		models.BattleStatusPending, models.BattleStatusActive,
		repositories.BattlePatch{StartedAt: &now},
	)
	if err != nil {
		if errors.Is(err, repositories.ErrBattleStatusConflict) {
			// Someone beat us to a transition; report the status they left.
			current, getErr := s.getBattle(ctx, battleID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, invalidTransitionError(current.Status, models.BattleStatusActive)
		}
		return nil, err
	}

	battle.Status = models.BattleStatusActive
	battle.StartedAt = &now
	s.notify(battle, EventBattleStarted)
	return battle, nil
}

func (s *battleService) SubmitResult(ctx context.Context, battleID, actorID int, distanceKm float64, durationSeconds int) (*models.Battle, error) {
	if distanceKm <= 0 || durationSeconds <= 0 {
		return nil, ErrInvalidResult
	}

	battle, err := s.getBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !battle.HasParticipant(actorID) {
		return nil, ErrNotBattleParticipant
	}
	if battle.Status.IsTerminal() {
		return nil, invalidTransitionError(battle.Status, battle.Status)
	}

	slot := 1
	if actorID == battle.User2ID {
		slot = 2
	}
	pace := utils.CalculatePace(distanceKm, durationSeconds)

	battle, err = s.battleRepo.SetParticipantResult(ctx, battleID, slot, distanceKm, durationSeconds, pace)
	if err != nil {
		if errors.Is(err, repositories.ErrBattleStatusConflict) {
			// The battle went terminal between our check and the write.
			current, getErr := s.getBattle(ctx, battleID)
			if getErr != nil {
				return nil, getErr
			}
			if current.Status == models.BattleStatusCompleted {
				return current, nil
			}
			return nil, invalidTransitionError(current.Status, current.Status)
		}
		return nil, err
	}

	// Resolve once both sides have reported a positive distance.
	if battle.User1Distance > 0 && battle.User2Distance > 0 {
		return s.resolve(ctx, battle)
	}

	s.notify(battle, EventResultSubmitted)
	return battle, nil
}

func (s *battleService) Cancel(ctx context.Context, battleID, actorID int) error {
	for attempt := 0; attempt < 2; attempt++ {
		battle, err := s.getBattle(ctx, battleID)
		if err != nil {
			return err
		}
		if !battle.HasParticipant(actorID) {
			return ErrNotBattleParticipant
		}
		if battle.Status.IsTerminal() {
			return invalidTransitionError(battle.Status, models.BattleStatusCancelled)
		}

		err = s.battleRepo.CompareAndTransition(ctx, nil, battle.ID,
			battle.Status, models.BattleStatusCancelled, repositories.BattlePatch{})
		if err == nil {
			battle.Status = models.BattleStatusCancelled
			s.notify(battle, EventBattleCancelled)
			return nil
		}
		if errors.Is(err, repositories.ErrBattleStatusConflict) {
			// pending -> active slipped in between; re-read and retry once.
			continue
		}
		return err
	}

	battle, err := s.getBattle(ctx, battleID)
	if err != nil {
		return err
	}
	return invalidTransitionError(battle.Status, models.BattleStatusCancelled)
}

// resolve decides the winner, computes new ratings and applies the terminal
// transition and both rating updates in a single transaction, so a completed
// battle with stale ratings is never observable.
func (s *battleService) resolve(ctx context.Context, battle *models.Battle) (*models.Battle, error) {
	winnerID := resolveWinner(battle)
	loserID := battle.OpponentOf(winnerID)

	winner, err := s.userRepo.GetByID(ctx, winnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load winner %d: %w", winnerID, err)
	}
	loser, err := s.userRepo.GetByID(ctx, loserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load loser %d: %w", loserID, err)
	}

	newWinnerElo, newLoserElo := CalculateEloChange(winner.EloRating, loser.EloRating, DefaultKFactor)

	// Map winner/loser back to participant slots; the engine must not assume
	// slot one won.
	user1EloAfter, user2EloAfter := newWinnerElo, newLoserElo
	if winnerID == battle.User2ID {
		user1EloAfter, user2EloAfter = newLoserElo, newWinnerElo
	}

	completedAt := time.Now().UTC()
	patch := repositories.BattlePatch{
		WinnerID:      &winnerID,
		User1EloAfter: &user1EloAfter,
		User2EloAfter: &user2EloAfter,
		CompletedAt:   &completedAt,
	}

	txErr := s.transactor.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.battleRepo.CompareAndTransition(ctx, exec, battle.ID,
			battle.Status, models.BattleStatusCompleted, patch); err != nil {
			return err
		}
		winnerChange := newWinnerElo - winner.EloRating
		if err := s.userRepo.ApplyRatingChange(ctx, exec, winner.ID,
			newWinnerElo, TierFromElo(newWinnerElo), LeaguePointsForChange(winnerChange)); err != nil {
			return err
		}
		loserChange := newLoserElo - loser.EloRating
		return s.userRepo.ApplyRatingChange(ctx, exec, loser.ID,
			newLoserElo, TierFromElo(newLoserElo), LeaguePointsForChange(loserChange))
	})
	if txErr != nil {
		if errors.Is(txErr, repositories.ErrBattleStatusConflict) {
			current, getErr := s.getBattle(ctx, battle.ID)
			if getErr != nil {
				return nil, getErr
			}
			if current.Status == models.BattleStatusCompleted {
				// A concurrent submission resolved the battle first; exactly
				// one resolution ran, return its outcome.
				return current, nil
			}
			if !current.Status.IsTerminal() && current.Status != battle.Status {
				// A pending -> active start slipped in; retry from the
				// fresh status. The status can only advance once, so this
				// terminates.
				return s.resolve(ctx, current)
			}
			return nil, invalidTransitionError(current.Status, models.BattleStatusCompleted)
		}
		return nil, txErr
	}

	battle.Status = models.BattleStatusCompleted
	battle.WinnerID = &winnerID
	battle.User1EloAfter = &user1EloAfter
	battle.User2EloAfter = &user2EloAfter
	battle.CompletedAt = &completedAt

	s.notify(battle, EventBattleCompleted)
	return battle, nil
}

// resolveWinner picks the winner from both recorded results:
//   - both finished the target distance: shorter time wins;
//   - exactly one finished: that side wins regardless of time;
//   - neither finished: greater distance wins.
//
// Exact ties in the deciding metric go to participant slot one, which keeps
// resolution deterministic.
func resolveWinner(b *models.Battle) int {
	threshold := b.DistanceKm * completionTolerance
	user1Finished := b.User1Distance >= threshold
	user2Finished := b.User2Distance >= threshold

	switch {
	case user1Finished && user2Finished:
		if b.User2Time < b.User1Time {
			return b.User2ID
		}
		return b.User1ID
	case user1Finished:
		return b.User1ID
	case user2Finished:
		return b.User2ID
	default:
		if b.User2Distance > b.User1Distance {
			return b.User2ID
		}
		return b.User1ID
	}
}

func (s *battleService) getBattle(ctx context.Context, battleID int) (*models.Battle, error) {
	battle, err := s.battleRepo.GetByID(ctx, battleID)
	if err != nil {
		if errors.Is(err, repositories.ErrBattleNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("failed to load battle %d: %w", battleID, err)
	}
	return battle, nil
}

func (s *battleService) notify(battle *models.Battle, eventType string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyBattle(battle.ID, eventType, battle)
}

func invalidTransitionError(current, attempted models.BattleStatus) error {
	if current == attempted {
		return fmt.Errorf("%w: battle is already %s", ErrInvalidTransition, current)
	}
	return fmt.Errorf("%w: battle is %s, cannot move to %s", ErrInvalidTransition, current, attempted)
}
