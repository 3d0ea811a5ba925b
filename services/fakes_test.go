package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/runbattle/runbattle-server/models"
	"github.com/runbattle/runbattle-server/repositories"
)

// In-memory fakes for the repository interfaces. They hold the same
// invariants the SQL implementations enforce (conflict errors, lost-CAS
// detection, busy-participant exclusion) so service tests can exercise
// concurrent paths without a database.

type fakeTransactor struct{}

func (fakeTransactor) WithinTransaction(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type recordedEvent struct {
	BattleID  int
	EventType string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) NotifyBattle(battleID int, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{BattleID: battleID, EventType: eventType})
}

func (n *recordingNotifier) eventTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]string, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.EventType)
	}
	return types
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int]*models.User
	nextID int

	// When set, FindByRatingBand excludes users with a pending or active
	// battle, mirroring the SQL NOT EXISTS subquery.
	battles *fakeBattleRepo
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]*models.User), nextID: 1}
}

func (r *fakeUserRepo) add(user models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.nextID
	}
	if user.ID >= r.nextID {
		r.nextID = user.ID + 1
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	stored := user
	r.users[stored.ID] = &stored
	return &stored
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
		if existing.Username == user.Username {
			return repositories.ErrUserUsernameConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now().UTC()
	stored := *user
	r.users[stored.ID] = &stored
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.Email = user.Email
	stored.Username = user.Username
	stored.PasswordHash = user.PasswordHash
	stored.FullName = user.FullName
	stored.WeightKg = user.WeightKg
	return nil
}

func (r *fakeUserRepo) UpdateAvatarURL(ctx context.Context, id int, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.AvatarURL = &avatarURL
	return nil
}

func (r *fakeUserRepo) FindByRatingBand(ctx context.Context, band repositories.RatingBand, excludeID, pivot, limit int) ([]models.User, error) {
	r.mu.Lock()
	candidates := make([]models.User, 0)
	for _, user := range r.users {
		if user.ID == excludeID {
			continue
		}
		if user.EloRating < band.Min || user.EloRating > band.Max {
			continue
		}
		candidates = append(candidates, *user)
	}
	r.mu.Unlock()

	if r.battles != nil {
		idle := candidates[:0]
		for _, c := range candidates {
			if !r.battles.isBusy(c.ID) {
				idle = append(idle, c)
			}
		}
		candidates = idle
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := abs(candidates[i].EloRating - pivot)
		dj := abs(candidates[j].EloRating - pivot)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (r *fakeUserRepo) ApplyRatingChange(ctx context.Context, exec repositories.SQLExecutor, id, newRating int, newTier models.LeagueTier, pointsDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.EloRating = newRating
	user.LeagueTier = newTier
	user.LeaguePoints += pointsDelta
	return nil
}

func (r *fakeUserRepo) ApplyRunStats(ctx context.Context, exec repositories.SQLExecutor, id int, distanceKm float64, durationSeconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.TotalDistanceKm += distanceKm
	user.TotalDurationSeconds += durationSeconds
	user.TotalRuns++
	if user.TotalDistanceKm > 0 {
		user.AvgPace = (float64(user.TotalDurationSeconds) / 60) / user.TotalDistanceKm
	}
	return nil
}

func (r *fakeUserRepo) ListByRating(ctx context.Context, limit, offset int) ([]models.User, error) {
	r.mu.Lock()
	users := make([]models.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, *user)
	}
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].EloRating != users[j].EloRating {
			return users[i].EloRating > users[j].EloRating
		}
		if users[i].LeaguePoints != users[j].LeaguePoints {
			return users[i].LeaguePoints > users[j].LeaguePoints
		}
		return users[i].ID < users[j].ID
	})
	if offset >= len(users) {
		return []models.User{}, nil
	}
	users = users[offset:]
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

type fakeBattleRepo struct {
	mu      sync.Mutex
	battles map[int]*models.Battle
	nextID  int
}

func newFakeBattleRepo() *fakeBattleRepo {
	return &fakeBattleRepo{battles: make(map[int]*models.Battle), nextID: 1}
}

func (r *fakeBattleRepo) add(battle models.Battle) *models.Battle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if battle.ID == 0 {
		battle.ID = r.nextID
	}
	if battle.ID >= r.nextID {
		r.nextID = battle.ID + 1
	}
	if battle.CreatedAt.IsZero() {
		battle.CreatedAt = time.Now().UTC()
	}
	stored := battle
	r.battles[stored.ID] = &stored
	return &stored
}

func (r *fakeBattleRepo) get(id int) models.Battle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.battles[id]
}

func (r *fakeBattleRepo) isBusy(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busyLocked(userID)
}

func (r *fakeBattleRepo) busyLocked(userID int) bool {
	for _, b := range r.battles {
		if b.HasParticipant(userID) && !b.Status.IsTerminal() {
			return true
		}
	}
	return false
}

func (r *fakeBattleRepo) GetByID(ctx context.Context, id int) (*models.Battle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	battle, ok := r.battles[id]
	if !ok {
		return nil, repositories.ErrBattleNotFound
	}
	copied := *battle
	return &copied, nil
}

func (r *fakeBattleRepo) FindActiveForUser(ctx context.Context, userID int) (*models.Battle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.battles {
		if b.HasParticipant(userID) && !b.Status.IsTerminal() {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repositories.ErrBattleNotFound
}

func (r *fakeBattleRepo) CreateIfIdle(ctx context.Context, battle *models.Battle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busyLocked(battle.User1ID) || r.busyLocked(battle.User2ID) {
		return repositories.ErrParticipantBusy
	}
	battle.ID = r.nextID
	r.nextID++
	battle.Status = models.BattleStatusPending
	battle.CreatedAt = time.Now().UTC()
	stored := *battle
	r.battles[stored.ID] = &stored
	return nil
}

func (r *fakeBattleRepo) CompareAndTransition(ctx context.Context, exec repositories.SQLExecutor, id int, expected, next models.BattleStatus, patch repositories.BattlePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	battle, ok := r.battles[id]
	if !ok {
		return repositories.ErrBattleNotFound
	}
	if battle.Status != expected {
		return repositories.ErrBattleStatusConflict
	}
	battle.Status = next
	if patch.WinnerID != nil {
		battle.WinnerID = patch.WinnerID
	}
	if patch.User1Pace != nil {
		battle.User1Pace = *patch.User1Pace
	}
	if patch.User2Pace != nil {
		battle.User2Pace = *patch.User2Pace
	}
	if patch.User1EloAfter != nil {
		battle.User1EloAfter = patch.User1EloAfter
	}
	if patch.User2EloAfter != nil {
		battle.User2EloAfter = patch.User2EloAfter
	}
	if patch.StartedAt != nil {
		battle.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		battle.CompletedAt = patch.CompletedAt
	}
	return nil
}

func (r *fakeBattleRepo) SetParticipantResult(ctx context.Context, id, slot int, distanceKm float64, durationSeconds int, pace float64) (*models.Battle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	battle, ok := r.battles[id]
	if !ok {
		return nil, repositories.ErrBattleNotFound
	}
	if battle.Status.IsTerminal() {
		return nil, repositories.ErrBattleStatusConflict
	}
	switch slot {
	case 1:
		battle.User1Distance = distanceKm
		battle.User1Time = durationSeconds
		battle.User1Pace = pace
	case 2:
		battle.User2Distance = distanceKm
		battle.User2Time = durationSeconds
		battle.User2Pace = pace
	}
	copied := *battle
	return &copied, nil
}

func (r *fakeBattleRepo) ListForUser(ctx context.Context, userID int, status *models.BattleStatus, limit, offset int) ([]models.Battle, error) {
	r.mu.Lock()
	battles := make([]models.Battle, 0)
	for _, b := range r.battles {
		if !b.HasParticipant(userID) {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		battles = append(battles, *b)
	}
	r.mu.Unlock()

	sort.Slice(battles, func(i, j int) bool {
		return battles[i].CreatedAt.After(battles[j].CreatedAt)
	})
	if offset >= len(battles) {
		return []models.Battle{}, nil
	}
	battles = battles[offset:]
	if len(battles) > limit {
		battles = battles[:limit]
	}
	return battles, nil
}

type fakeRunRepo struct {
	mu     sync.Mutex
	runs   map[int]*models.Run
	nextID int
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[int]*models.Run), nextID: 1}
}

func (r *fakeRunRepo) Create(ctx context.Context, exec repositories.SQLExecutor, run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = r.nextID
	r.nextID++
	run.CreatedAt = time.Now().UTC()
	stored := *run
	r.runs[stored.ID] = &stored
	return nil
}

func (r *fakeRunRepo) GetByID(ctx context.Context, id int) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repositories.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (r *fakeRunRepo) ListByUser(ctx context.Context, userID, limit, offset int) ([]models.Run, error) {
	r.mu.Lock()
	runs := make([]models.Run, 0)
	for _, run := range r.runs {
		if run.UserID == userID {
			runs = append(runs, *run)
		}
	}
	r.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CompletedAt.After(runs[j].CompletedAt)
	})
	if offset >= len(runs) {
		return []models.Run{}, nil
	}
	runs = runs[offset:]
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

type membershipKey struct {
	crewID int
	userID int
}

type fakeCrewRepo struct {
	mu          sync.Mutex
	crews       map[int]*models.Crew
	memberships map[membershipKey]*models.CrewMembership
	nextID      int
}

func newFakeCrewRepo() *fakeCrewRepo {
	return &fakeCrewRepo{
		crews:       make(map[int]*models.Crew),
		memberships: make(map[membershipKey]*models.CrewMembership),
		nextID:      1,
	}
}

func (r *fakeCrewRepo) Create(ctx context.Context, exec repositories.SQLExecutor, crew *models.Crew) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.crews {
		if existing.Name == crew.Name {
			return repositories.ErrCrewNameConflict
		}
	}
	crew.ID = r.nextID
	r.nextID++
	crew.CreatedAt = time.Now().UTC()
	crew.UpdatedAt = crew.CreatedAt
	stored := *crew
	r.crews[stored.ID] = &stored
	return nil
}

func (r *fakeCrewRepo) GetByID(ctx context.Context, id int) (*models.Crew, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	crew, ok := r.crews[id]
	if !ok {
		return nil, repositories.ErrCrewNotFound
	}
	copied := *crew
	return &copied, nil
}

func (r *fakeCrewRepo) ListPublic(ctx context.Context, limit, offset int) ([]models.Crew, error) {
	r.mu.Lock()
	crews := make([]models.Crew, 0)
	for _, crew := range r.crews {
		if crew.IsPublic {
			crews = append(crews, *crew)
		}
	}
	r.mu.Unlock()

	sort.Slice(crews, func(i, j int) bool { return crews[i].ID < crews[j].ID })
	if offset >= len(crews) {
		return []models.Crew{}, nil
	}
	crews = crews[offset:]
	if len(crews) > limit {
		crews = crews[:limit]
	}
	return crews, nil
}

func (r *fakeCrewRepo) Update(ctx context.Context, crew *models.Crew) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.crews[crew.ID]
	if !ok {
		return repositories.ErrCrewNotFound
	}
	stored.Description = crew.Description
	stored.IsPublic = crew.IsPublic
	stored.MaxMembers = crew.MaxMembers
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeCrewRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.crews[id]; !ok {
		return repositories.ErrCrewNotFound
	}
	delete(r.crews, id)
	for key := range r.memberships {
		if key.crewID == id {
			delete(r.memberships, key)
		}
	}
	return nil
}

func (r *fakeCrewRepo) AddMember(ctx context.Context, exec repositories.SQLExecutor, membership *models.CrewMembership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.memberships {
		if key.userID == membership.UserID {
			return repositories.ErrCrewMembershipConflict
		}
	}
	membership.JoinedAt = time.Now().UTC()
	stored := *membership
	r.memberships[membershipKey{crewID: stored.CrewID, userID: stored.UserID}] = &stored
	return nil
}

func (r *fakeCrewRepo) GetMembership(ctx context.Context, crewID, userID int) (*models.CrewMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	membership, ok := r.memberships[membershipKey{crewID: crewID, userID: userID}]
	if !ok {
		return nil, repositories.ErrCrewMembershipNotFound
	}
	copied := *membership
	return &copied, nil
}

func (r *fakeCrewRepo) GetMembershipForUser(ctx context.Context, userID int) (*models.CrewMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, membership := range r.memberships {
		if key.userID == userID {
			copied := *membership
			return &copied, nil
		}
	}
	return nil, repositories.ErrCrewMembershipNotFound
}

func (r *fakeCrewRepo) RemoveMember(ctx context.Context, exec repositories.SQLExecutor, crewID, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := membershipKey{crewID: crewID, userID: userID}
	if _, ok := r.memberships[key]; !ok {
		return repositories.ErrCrewMembershipNotFound
	}
	delete(r.memberships, key)
	return nil
}

func (r *fakeCrewRepo) ListMembers(ctx context.Context, crewID int) ([]models.CrewMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]models.CrewMember, 0)
	for key, membership := range r.memberships {
		if key.crewID != crewID {
			continue
		}
		members = append(members, models.CrewMember{
			UserID:   membership.UserID,
			Role:     membership.Role,
			JoinedAt: membership.JoinedAt,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (r *fakeCrewRepo) AdjustMemberCount(ctx context.Context, exec repositories.SQLExecutor, crewID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	crew, ok := r.crews[crewID]
	if !ok {
		return repositories.ErrCrewNotFound
	}
	crew.TotalMembers += delta
	return nil
}

func (r *fakeCrewRepo) GetCrewCaptainedBy(ctx context.Context, userID int) (*models.Crew, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, crew := range r.crews {
		if crew.CaptainID == userID {
			copied := *crew
			return &copied, nil
		}
	}
	return nil, repositories.ErrCrewNotFound
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
