package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory implementation of the user, team and check-in
// repositories. It enforces the same uniqueness and referential rules as
// the SQLite store, under one mutex, so concurrent tests are meaningful.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	users    map[string]*model.User // keyed by ID
	byName   map[string]string      // username → ID
	teams    map[string]*model.Team
	members  map[[2]string]*model.Membership // (teamID, userID)
	checkIns []model.CheckIn

	// set to simulate a database failure
	createUserErr error
	addMemberErr  error
	checkInErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*model.User),
		byName:  make(map[string]string),
		teams:   make(map[string]*model.Team),
		members: make(map[[2]string]*model.Membership),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%03d", prefix, f.nextID)
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createUserErr != nil {
		return f.createUserErr
	}
	if _, taken := f.byName[u.Username]; taken {
		return apperror.Conflict("Username already exists")
	}
	u.ID = f.id("user")
	u.CreatedAt = time.Now()
	copied := *u
	f.users[u.ID] = &copied
	f.byName[u.Username] = u.ID
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	id, ok := f.byName[username]
	f.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	return f.GetUserByID(context.Background(), id)
}

func (f *fakeStore) SetUserNew(_ context.Context, id string, isNew bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.IsNew = isNew
	return nil
}

func (f *fakeStore) CreateTeamWithOwner(_ context.Context, team *model.Team, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[ownerID]; !ok {
		return apperror.NotFound("user", ownerID)
	}
	team.ID = f.id("team")
	team.CreatedAt = time.Now()
	copied := *team
	f.teams[team.ID] = &copied
	f.members[[2]string{team.ID, ownerID}] = &model.Membership{
		TeamID: team.ID, UserID: ownerID, Weight: model.DefaultMemberWeight,
	}
	return nil
}

func (f *fakeStore) GetTeamByID(_ context.Context, id string) (*model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.teams[id]
	if !ok {
		return nil, apperror.NotFoundMessage("Team not found")
	}
	copied := *t
	return &copied, nil
}

func (f *fakeStore) AddMember(_ context.Context, m *model.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addMemberErr != nil {
		return f.addMemberErr
	}
	if _, ok := f.teams[m.TeamID]; !ok {
		return apperror.NotFoundMessage("Team not found")
	}
	key := [2]string{m.TeamID, m.UserID}
	if _, exists := f.members[key]; exists {
		return apperror.Conflict("User is already a team member")
	}
	m.JoinedAt = time.Now()
	copied := *m
	f.members[key] = &copied
	return nil
}

func (f *fakeStore) SetMemberWeight(_ context.Context, teamID, userID string, weight float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[[2]string{teamID, userID}]
	if !ok {
		return apperror.NotFound("membership", teamID+"/"+userID)
	}
	m.Weight = weight
	return nil
}

func (f *fakeStore) ListTeamIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.teams))
	for id := range f.teams {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) CreateCheckIn(_ context.Context, c *model.CheckIn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkInErr != nil {
		return f.checkInErr
	}
	if _, ok := f.teams[c.TeamID]; !ok {
		return apperror.NotFoundMessage("Team not found")
	}
	c.ID = f.id("checkin")
	c.CheckedInAt = time.Now()
	f.checkIns = append(f.checkIns, *c)
	return nil
}

func (f *fakeStore) memberCount(teamID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key := range f.members {
		if key[0] == teamID {
			n++
		}
	}
	return n
}

// fakeEvents records event names.
type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEvents) RecordEvent(event string) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

func (e *fakeEvents) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == event {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
