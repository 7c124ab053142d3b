package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"sprintboard/api/internal/authpw"
	"sprintboard/api/internal/config"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/search"
	"sprintboard/api/internal/store"
)

type fakeStore struct {
	createUserFn           func(context.Context, store.User) error
	getUserByUsernameFn    func(context.Context, string) (store.User, error)
	getUserByIDFn          func(context.Context, string) (store.User, error)
	insertStoryFn          func(context.Context, store.Story) error
	listStoriesFn          func(context.Context) ([]store.Story, error)
	getStoryFn             func(context.Context, string) (store.Story, error)
	updateStoryStatusFn    func(context.Context, string, string) (bool, error)
	updateStoryEstimateFn  func(context.Context, string, int) (bool, error)
	deleteStoryFn          func(context.Context, string) (bool, error)
	insertTaskFn           func(context.Context, store.Task) error
	setTaskDoneFn          func(context.Context, string, string, bool) (bool, error)
	deleteTaskFn           func(context.Context, string, string) (bool, error)
	archiveStoryFn         func(context.Context, store.ArchivedStory) error
	listArchivedBetweenFn  func(context.Context, time.Time, time.Time) ([]store.ArchivedStory, error)
	deleteArchivedFn       func(context.Context, string) (bool, error)
	lookupRefreshSessionFn func(context.Context, string) (store.User, error)
	isAccessTokenRevokedFn func(context.Context, string) (bool, error)
	searchStoriesFn        func(context.Context, string, int) ([]store.Story, error)
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if f.getUserByUsernameFn != nil {
		return f.getUserByUsernameFn(ctx, username)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) InsertStory(ctx context.Context, story store.Story) error {
	if f.insertStoryFn != nil {
		return f.insertStoryFn(ctx, story)
	}
	return nil
}
func (f *fakeStore) ListStories(ctx context.Context) ([]store.Story, error) {
	if f.listStoriesFn != nil {
		return f.listStoriesFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) GetStory(ctx context.Context, storyID string) (store.Story, error) {
	if f.getStoryFn != nil {
		return f.getStoryFn(ctx, storyID)
	}
	return store.Story{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateStoryStatus(ctx context.Context, storyID, status string) (bool, error) {
	if f.updateStoryStatusFn != nil {
		return f.updateStoryStatusFn(ctx, storyID, status)
	}
	return true, nil
}
func (f *fakeStore) UpdateStoryEstimate(ctx context.Context, storyID string, estimate int) (bool, error) {
	if f.updateStoryEstimateFn != nil {
		return f.updateStoryEstimateFn(ctx, storyID, estimate)
	}
	return true, nil
}
func (f *fakeStore) DeleteStory(ctx context.Context, storyID string) (bool, error) {
	if f.deleteStoryFn != nil {
		return f.deleteStoryFn(ctx, storyID)
	}
	return true, nil
}
func (f *fakeStore) InsertTask(ctx context.Context, task store.Task) error {
	if f.insertTaskFn != nil {
		return f.insertTaskFn(ctx, task)
	}
	return nil
}
func (f *fakeStore) SetTaskDone(ctx context.Context, storyID, taskID string, done bool) (bool, error) {
	if f.setTaskDoneFn != nil {
		return f.setTaskDoneFn(ctx, storyID, taskID, done)
	}
	return true, nil
}
func (f *fakeStore) DeleteTask(ctx context.Context, storyID, taskID string) (bool, error) {
	if f.deleteTaskFn != nil {
		return f.deleteTaskFn(ctx, storyID, taskID)
	}
	return true, nil
}
func (f *fakeStore) ArchiveStory(ctx context.Context, archived store.ArchivedStory) error {
	if f.archiveStoryFn != nil {
		return f.archiveStoryFn(ctx, archived)
	}
	return nil
}
func (f *fakeStore) ListArchivedBetween(ctx context.Context, from, to time.Time) ([]store.ArchivedStory, error) {
	if f.listArchivedBetweenFn != nil {
		return f.listArchivedBetweenFn(ctx, from, to)
	}
	return nil, nil
}
func (f *fakeStore) DeleteArchived(ctx context.Context, archiveID string) (bool, error) {
	if f.deleteArchivedFn != nil {
		return f.deleteArchivedFn(ctx, archiveID)
	}
	return true, nil
}
func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshSessionFn != nil {
		return f.lookupRefreshSessionFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) SearchStories(ctx context.Context, query string, limit int) ([]store.Story, error) {
	if f.searchStoriesFn != nil {
		return f.searchStoriesFn(ctx, query, limit)
	}
	return nil, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

func newTestService(fake *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:     fake,
		sessions:  fake,
		passwords: authpw.NewService(fake),
		search:    search.NewService(nil, fake),
		export:    export.NewService(),
	}
}

func sessionFor(userID, username, role string) Session {
	return Session{UserID: userID, UserName: username, Role: role}
}

func TestRegisterIssuesSession(t *testing.T) {
	var created store.User
	fake := &fakeStore{
		createUserFn: func(ctx context.Context, user store.User) error {
			created = user
			return nil
		},
	}
	svc := newTestService(fake)

	session, err := svc.Register(context.Background(), "ada", "hunter22", "manager")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Error("expected access and refresh tokens")
	}
	if session.UserID != created.ID {
		t.Errorf("session user %s does not match created user %s", session.UserID, created.ID)
	}
	if session.Role != "manager" {
		t.Errorf("expected role manager, got %s", session.Role)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	fake := &fakeStore{
		getUserByUsernameFn: func(ctx context.Context, username string) (store.User, error) {
			return store.User{ID: "usr_1", Username: username}, nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.Register(context.Background(), "ada", "hunter22", "")
	if !errors.Is(err, authpw.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	user := store.User{ID: "usr_1", Username: "ada", Role: "admin"}
	fake := &fakeStore{
		getUserByIDFn: func(ctx context.Context, id string) (store.User, error) {
			if id == user.ID {
				return user, nil
			}
			return store.User{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fake)

	issued, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}

	parsed, err := svc.SessionFromToken(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.UserID != user.ID || parsed.Role != "admin" || parsed.UserName != "ada" {
		t.Errorf("unexpected session: %+v", parsed)
	}
}

func TestSessionFromTokenRejectsRevokedJTI(t *testing.T) {
	user := store.User{ID: "usr_1", Username: "ada", Role: "admin"}
	fake := &fakeStore{
		getUserByIDFn: func(ctx context.Context, id string) (store.User, error) {
			return user, nil
		},
		isAccessTokenRevokedFn: func(ctx context.Context, jti string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fake)

	issued, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), issued.Token); err == nil {
		t.Error("expected error for revoked token")
	}
}

func TestRefreshReloadsUserRole(t *testing.T) {
	fake := &fakeStore{
		lookupRefreshSessionFn: func(ctx context.Context, tokenHash string) (store.User, error) {
			return store.User{ID: "usr_1"}, nil
		},
		getUserByIDFn: func(ctx context.Context, id string) (store.User, error) {
			// Role was bumped since the refresh token was minted.
			return store.User{ID: "usr_1", Username: "ada", Role: "admin"}, nil
		},
	}
	svc := newTestService(fake)

	session, err := svc.Refresh(context.Background(), "some-refresh-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Role != "admin" {
		t.Errorf("expected refreshed session to carry current role, got %s", session.Role)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	svc := newTestService(&fakeStore{})

	if _, err := svc.Refresh(context.Background(), "bogus"); err == nil {
		t.Error("expected error for unknown refresh token")
	}
}
