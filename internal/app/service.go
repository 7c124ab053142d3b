package app

import (
	"context"
	"time"

	"sprintboard/api/internal/auth"
	"sprintboard/api/internal/authpw"
	"sprintboard/api/internal/config"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/search"
	"sprintboard/api/internal/store"
	"sprintboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByUsername(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	InsertStory(context.Context, store.Story) error
	ListStories(context.Context) ([]store.Story, error)
	GetStory(context.Context, string) (store.Story, error)
	UpdateStoryStatus(context.Context, string, string) (bool, error)
	UpdateStoryEstimate(context.Context, string, int) (bool, error)
	DeleteStory(context.Context, string) (bool, error)
	InsertTask(context.Context, store.Task) error
	SetTaskDone(context.Context, string, string, bool) (bool, error)
	DeleteTask(context.Context, string, string) (bool, error)
	ArchiveStory(context.Context, store.ArchivedStory) error
	ListArchivedBetween(context.Context, time.Time, time.Time) ([]store.ArchivedStory, error)
	DeleteArchived(context.Context, string) (bool, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	SearchStories(context.Context, string, int) ([]store.Story, error)
	Ping(ctx context.Context) error
}

// RefreshStore holds refresh-token sessions. Redis serves this in production
// with the Postgres table as fallback.
type RefreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  RefreshStore
	passwords *authpw.Service
	search    *search.Service
	export    *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, exportService *export.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  dataStore,
		passwords: authpw.NewService(dataStore),
		search:    searchService,
		export:    exportService,
	}
}

// NewWithSessionStore builds a Service whose refresh tokens live in the given
// store instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions RefreshStore, searchService *search.Service, exportService *export.Service) *Service {
	service := New(cfg, dataStore, searchService, exportService)
	service.sessions = sessions
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Register(ctx context.Context, username, password, role string) (Session, error) {
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{
		Username: username,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.passwords.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Reload the user so a role change applies to the new access token.
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Username,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Username,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// SearchStories runs a story search for the given query text.
func (s *Service) SearchStories(ctx context.Context, query string, limit int) search.Response {
	return s.search.Search(ctx, search.Query{Text: query, Limit: limit})
}
