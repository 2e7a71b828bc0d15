package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"jotter/api/internal/auth"
	"jotter/api/internal/authpw"
	"jotter/api/internal/config"
	"jotter/api/internal/store"
	"jotter/api/internal/util"
)

const maxAvatarBytes = 5 << 20 // 5MB

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	ListNotes(context.Context, string) ([]store.Note, error)
	GetNote(context.Context, string, string) (store.Note, error)
	InsertNote(context.Context, store.Note) (store.Note, error)
	UpdateNote(context.Context, string, string, string, string) (store.Note, error)
	DeleteNote(context.Context, string, string) (bool, error)
	EnsureProfile(context.Context, string) (store.Profile, error)
	UpdateProfile(context.Context, string, string, string) (store.Profile, error)
	ReconcileProfile(context.Context, string) (store.Profile, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

// sessionStore keeps refresh tokens: Redis when configured, the Postgres
// store otherwise.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type identityService interface {
	SignUp(context.Context, authpw.SignUpRequest) (*authpw.SignUpResponse, error)
	SignIn(context.Context, authpw.SignInRequest) (store.User, error)
	ExchangeCode(context.Context, string) (store.User, error)
	FederatedConfigured() bool
}

type avatarStore interface {
	Upload(ctx context.Context, userID, contentType string, r io.Reader, size int64) (string, error)
}

type summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	identity   identityService
	avatars    avatarStore
	summarizer summarizer
}

func New(cfg config.Config, dataStore *store.PostgresStore, identity *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		identity: identity,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, identity *authpw.Service) *Service {
	svc := New(cfg, dataStore, identity)
	svc.sessions = sessions
	return svc
}

// SetAvatarStore wires the object-storage backend for avatar uploads.
func (s *Service) SetAvatarStore(avatars avatarStore) {
	s.avatars = avatars
}

// SetSummarizer wires the text-generation upstream for /api/summary.
func (s *Service) SetSummarizer(sum summarizer) {
	s.summarizer = sum
}

func (s *Service) Identity() identityService {
	return s.identity
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) FederatedSignIn(ctx context.Context, code string) (Session, error) {
	user, err := s.identity.ExchangeCode(ctx, code)
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
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The session store only guarantees the account id; hydrate the rest.
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
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
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + "." + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
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
		UserName:  user.DisplayName,
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

func (s *Service) ListNotes(ctx context.Context, userID string) ([]map[string]any, error) {
	notes, err := s.store.ListNotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, noteJSON(note))
	}
	return items, nil
}

func (s *Service) GetNote(ctx context.Context, noteID, userID string) (map[string]any, error) {
	note, err := s.store.GetNote(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	return noteJSON(note), nil
}

func (s *Service) CreateNote(ctx context.Context, userID, title, content string) (map[string]any, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and content are required", nil)
	}
	note, err := s.store.InsertNote(ctx, store.Note{
		ID:      util.NewID("note"),
		UserID:  userID,
		Title:   title,
		Content: content,
	})
	if err != nil {
		return nil, err
	}
	return noteJSON(note), nil
}

func (s *Service) UpdateNote(ctx context.Context, noteID, userID, title, content string) (map[string]any, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and content are required", nil)
	}
	note, err := s.store.UpdateNote(ctx, noteID, userID, title, content)
	if err != nil {
		return nil, err
	}
	return noteJSON(note), nil
}

func (s *Service) DeleteNote(ctx context.Context, noteID, userID string) error {
	deleted, err := s.store.DeleteNote(ctx, noteID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Note not found", nil)
	}
	return nil
}

// GetProfile is a pure read: the row is created empty on first access and
// any provider backfill happens only through ReconcileProfile.
func (s *Service) GetProfile(ctx context.Context, userID string) (map[string]any, error) {
	profile, err := s.store.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileJSON(profile), nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID, displayName, imageURL string) (map[string]any, error) {
	if _, err := s.store.EnsureProfile(ctx, userID); err != nil {
		return nil, err
	}
	profile, err := s.store.UpdateProfile(ctx, userID, displayName, imageURL)
	if err != nil {
		return nil, err
	}
	return profileJSON(profile), nil
}

// ReconcileProfile backfills display name and avatar from the federated
// identity. Idempotent: fields the user already set are never overwritten.
func (s *Service) ReconcileProfile(ctx context.Context, userID string) (map[string]any, error) {
	if _, err := s.store.EnsureProfile(ctx, userID); err != nil {
		return nil, err
	}
	profile, err := s.store.ReconcileProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileJSON(profile), nil
}

// UploadAvatar validates, stores the image, then patches the profile. The
// first failing step aborts the chain; a stored object whose profile update
// failed is left behind and overwritten by the next successful upload.
func (s *Service) UploadAvatar(ctx context.Context, userID, contentType string, r io.Reader, size int64) (string, map[string]any, error) {
	if s.avatars == nil {
		return "", nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Avatar storage not configured", nil)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "avatar must be an image", nil)
	}
	if size <= 0 || size > maxAvatarBytes {
		return "", nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "avatar must be 5MB or smaller", nil)
	}

	imageURL, err := s.avatars.Upload(ctx, userID, contentType, r, size)
	if err != nil {
		return "", nil, err
	}

	profile, err := s.UpdateProfile(ctx, userID, "", imageURL)
	if err != nil {
		return "", nil, err
	}
	return imageURL, profile, nil
}

func (s *Service) Summarize(ctx context.Context, content string) (string, error) {
	if s.summarizer == nil {
		return "", domainError(http.StatusInternalServerError, "SUMMARY_UNAVAILABLE", "Summarization not configured", nil)
	}
	summary, err := s.summarizer.Summarize(ctx, content)
	if err != nil {
		// Flat passthrough: callers get one message whatever the upstream cause.
		return "", domainError(http.StatusInternalServerError, "SUMMARY_UNAVAILABLE", err.Error(), nil)
	}
	return summary, nil
}

func noteJSON(note store.Note) map[string]any {
	return map[string]any{
		"id":         note.ID,
		"title":      note.Title,
		"content":    note.Content,
		"created_at": note.CreatedAt.UTC().Format(time.RFC3339Nano),
		"user_id":    note.UserID,
	}
}

func profileJSON(profile store.Profile) map[string]any {
	return map[string]any{
		"id":           profile.ID,
		"email":        profile.Email,
		"display_name": profile.DisplayName,
		"image_url":    profile.ImageURL,
		"created_at":   profile.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
