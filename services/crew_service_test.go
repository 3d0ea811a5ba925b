package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbattle/runbattle-server/models"
)

type crewFixture struct {
	crews   *fakeCrewRepo
	service CrewService
}

func newCrewFixture(t *testing.T) *crewFixture {
	t.Helper()
	crews := newFakeCrewRepo()
	return &crewFixture{
		crews:   crews,
		service: NewCrewService(crews, fakeTransactor{}),
	}
}

func TestCreateCrewAddsCaptainMembership(t *testing.T) {
	f := newCrewFixture(t)

	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)

	assert.Equal(t, "Night Runners", crew.Name)
	assert.Equal(t, 1, crew.CaptainID)
	assert.True(t, crew.IsPublic)
	assert.Equal(t, defaultCrewMaxMembers, crew.MaxMembers)
	assert.Equal(t, 1, crew.TotalMembers)

	membership, err := f.crews.GetMembership(context.Background(), crew.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.CrewRoleCaptain, membership.Role)
}

func TestCreateCrewNameRequired(t *testing.T) {
	f := newCrewFixture(t)

	_, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "   "})
	assert.ErrorIs(t, err, ErrCrewNameRequired)
}

func TestCreateCrewNameConflict(t *testing.T) {
	f := newCrewFixture(t)

	_, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)

	_, err = f.service.Create(context.Background(), 2, CreateCrewInput{Name: "Night Runners"})
	assert.ErrorIs(t, err, ErrCrewNameConflict)
}

func TestCreateCrewWhileAlreadyMember(t *testing.T) {
	f := newCrewFixture(t)

	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)
	require.NoError(t, f.service.Join(context.Background(), crew.ID, 2))

	_, err = f.service.Create(context.Background(), 2, CreateCrewInput{Name: "Dawn Patrol"})
	assert.ErrorIs(t, err, ErrAlreadyInCrew)

	_, err = f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Dawn Patrol"})
	assert.ErrorIs(t, err, ErrAlreadyCaptain)
}

func TestJoinCrew(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)

	require.NoError(t, f.service.Join(context.Background(), crew.ID, 2))

	updated, err := f.service.GetByID(context.Background(), crew.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.TotalMembers)

	membership, err := f.crews.GetMembership(context.Background(), crew.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.CrewRoleMember, membership.Role)
}

func TestJoinPrivateCrew(t *testing.T) {
	f := newCrewFixture(t)
	isPublic := false
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners", IsPublic: &isPublic})
	require.NoError(t, err)

	err = f.service.Join(context.Background(), crew.ID, 2)
	assert.ErrorIs(t, err, ErrCrewPrivate)
}

func TestJoinFullCrew(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners", MaxMembers: 2})
	require.NoError(t, err)
	require.NoError(t, f.service.Join(context.Background(), crew.ID, 2))

	err = f.service.Join(context.Background(), crew.ID, 3)
	assert.ErrorIs(t, err, ErrCrewFull)
}

func TestJoinCrewTwice(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)
	require.NoError(t, f.service.Join(context.Background(), crew.ID, 2))

	err = f.service.Join(context.Background(), crew.ID, 2)
	assert.ErrorIs(t, err, ErrAlreadyInCrew)
}

func TestLeaveCrew(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)
	require.NoError(t, f.service.Join(context.Background(), crew.ID, 2))

	require.NoError(t, f.service.Leave(context.Background(), crew.ID, 2))

	updated, err := f.service.GetByID(context.Background(), crew.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalMembers)

	err = f.service.Leave(context.Background(), crew.ID, 2)
	assert.ErrorIs(t, err, ErrNotCrewMember)
}

func TestCaptainCannotLeave(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)

	err = f.service.Leave(context.Background(), crew.ID, 1)
	assert.ErrorIs(t, err, ErrCaptainCannotLeave)
}

func TestUpdateCrewCaptainOnly(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)

	description := "evening intervals"
	updated, err := f.service.Update(context.Background(), crew.ID, 1, UpdateCrewInput{Description: &description})
	require.NoError(t, err)
	assert.Equal(t, "evening intervals", updated.Description)

	_, err = f.service.Update(context.Background(), crew.ID, 2, UpdateCrewInput{Description: &description})
	assert.ErrorIs(t, err, ErrCaptainActionForbidden)
}

func TestUpdateCrewMaxMembersBelowCurrent(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)
	require.NoError(t, f.service.Join(context.Background(), crew.ID, 2))

	tooSmall := 1
	_, err = f.service.Update(context.Background(), crew.ID, 1, UpdateCrewInput{MaxMembers: &tooSmall})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestDeleteCrewCaptainOnly(t *testing.T) {
	f := newCrewFixture(t)
	crew, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)

	err = f.service.Delete(context.Background(), crew.ID, 2)
	assert.ErrorIs(t, err, ErrCaptainActionForbidden)

	require.NoError(t, f.service.Delete(context.Background(), crew.ID, 1))

	_, err = f.service.GetByID(context.Background(), crew.ID)
	assert.ErrorIs(t, err, ErrCrewNotFound)
}

func TestListPublicCrewsExcludesPrivate(t *testing.T) {
	f := newCrewFixture(t)
	_, err := f.service.Create(context.Background(), 1, CreateCrewInput{Name: "Night Runners"})
	require.NoError(t, err)
	isPublic := false
	_, err = f.service.Create(context.Background(), 2, CreateCrewInput{Name: "Secret Pace", IsPublic: &isPublic})
	require.NoError(t, err)

	crews, err := f.service.ListPublic(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, crews, 1)
	assert.Equal(t, "Night Runners", crews[0].Name)
}

func TestListMembersUnknownCrew(t *testing.T) {
	f := newCrewFixture(t)

	_, err := f.service.ListMembers(context.Background(), 99)
	assert.ErrorIs(t, err, ErrCrewNotFound)
}
