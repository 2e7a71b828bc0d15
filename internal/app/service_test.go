package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"jotter/api/internal/auth"
	"jotter/api/internal/authpw"
	"jotter/api/internal/config"
	"jotter/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn          func(context.Context, string) (store.User, error)
	listNotesFn            func(context.Context, string) ([]store.Note, error)
	getNoteFn              func(context.Context, string, string) (store.Note, error)
	insertNoteFn           func(context.Context, store.Note) (store.Note, error)
	updateNoteFn           func(context.Context, string, string, string, string) (store.Note, error)
	deleteNoteFn           func(context.Context, string, string) (bool, error)
	ensureProfileFn        func(context.Context, string) (store.Profile, error)
	updateProfileFn        func(context.Context, string, string, string) (store.Profile, error)
	reconcileProfileFn     func(context.Context, string) (store.Profile, error)
	saveRefreshFn          func(context.Context, string, string, time.Time) error
	lookupRefreshFn        func(context.Context, string) (store.User, error)
	revokeRefreshFn        func(context.Context, string) error
	revokeAccessFn         func(context.Context, string, time.Time) error
	isAccessTokenRevokedFn func(context.Context, string) (bool, error)
	pingFn                 func(context.Context) error
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Avery"}, nil
}
func (f *fakeStore) ListNotes(ctx context.Context, userID string) ([]store.Note, error) {
	if f.listNotesFn != nil {
		return f.listNotesFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) GetNote(ctx context.Context, noteID, userID string) (store.Note, error) {
	if f.getNoteFn != nil {
		return f.getNoteFn(ctx, noteID, userID)
	}
	return store.Note{}, sql.ErrNoRows
}
func (f *fakeStore) InsertNote(ctx context.Context, note store.Note) (store.Note, error) {
	if f.insertNoteFn != nil {
		return f.insertNoteFn(ctx, note)
	}
	note.CreatedAt = time.Now()
	return note, nil
}
func (f *fakeStore) UpdateNote(ctx context.Context, noteID, userID, title, content string) (store.Note, error) {
	if f.updateNoteFn != nil {
		return f.updateNoteFn(ctx, noteID, userID, title, content)
	}
	return store.Note{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteNote(ctx context.Context, noteID, userID string) (bool, error) {
	if f.deleteNoteFn != nil {
		return f.deleteNoteFn(ctx, noteID, userID)
	}
	return false, nil
}
func (f *fakeStore) EnsureProfile(ctx context.Context, userID string) (store.Profile, error) {
	if f.ensureProfileFn != nil {
		return f.ensureProfileFn(ctx, userID)
	}
	return store.Profile{ID: userID}, nil
}
func (f *fakeStore) UpdateProfile(ctx context.Context, userID, displayName, imageURL string) (store.Profile, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, userID, displayName, imageURL)
	}
	return store.Profile{ID: userID, DisplayName: displayName, ImageURL: imageURL}, nil
}
func (f *fakeStore) ReconcileProfile(ctx context.Context, userID string) (store.Profile, error) {
	if f.reconcileProfileFn != nil {
		return f.reconcileProfileFn(ctx, userID)
	}
	return store.Profile{ID: userID}, nil
}
func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshFn != nil {
		return f.saveRefreshFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}
func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshFn != nil {
		return f.lookupRefreshFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshFn != nil {
		return f.revokeRefreshFn(ctx, tokenHash)
	}
	return nil
}
func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if f.revokeAccessFn != nil {
		return f.revokeAccessFn(ctx, jti, expiresAt)
	}
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeIdentity struct {
	signUpFn       func(context.Context, authpw.SignUpRequest) (*authpw.SignUpResponse, error)
	signInFn       func(context.Context, authpw.SignInRequest) (store.User, error)
	exchangeCodeFn func(context.Context, string) (store.User, error)
	configured     bool
}

func (f *fakeIdentity) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, req)
	}
	return &authpw.SignUpResponse{UserID: "usr_1"}, nil
}
func (f *fakeIdentity) SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, req)
	}
	return store.User{}, authpw.ErrEmailExists
}
func (f *fakeIdentity) ExchangeCode(ctx context.Context, code string) (store.User, error) {
	if f.exchangeCodeFn != nil {
		return f.exchangeCodeFn(ctx, code)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeIdentity) FederatedConfigured() bool { return f.configured }

type fakeAvatars struct {
	uploadFn func(context.Context, string, string, io.Reader, int64) (string, error)
}

func (f *fakeAvatars) Upload(ctx context.Context, userID, contentType string, r io.Reader, size int64) (string, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, userID, contentType, r, size)
	}
	return "https://cdn.example.com/avatars/" + userID + ".png", nil
}

type fakeSummarizer struct {
	summarizeFn func(context.Context, string) (string, error)
}

func (f *fakeSummarizer) Summarize(ctx context.Context, content string) (string, error) {
	if f.summarizeFn != nil {
		return f.summarizeFn(ctx, content)
	}
	return "a summary", nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: fs,
		identity: &fakeIdentity{},
	}
}

func TestCreateSessionRoundTrip(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, DisplayName: "Avery"}, nil
		},
	}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatalf("expected token and refresh token, got %+v", session)
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if parsed.UserID != "usr_1" || parsed.UserName != "Avery" {
		t.Fatalf("unexpected session identity: %+v", parsed)
	}
	if parsed.JTI != session.JTI {
		t.Fatalf("expected jti %q, got %q", session.JTI, parsed.JTI)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	saved := map[string]string{}
	var revoked []string
	fs := &fakeStore{
		saveRefreshFn: func(_ context.Context, tokenHash, userID string, _ time.Time) error {
			saved[tokenHash] = userID
			return nil
		},
		lookupRefreshFn: func(_ context.Context, tokenHash string) (store.User, error) {
			userID, ok := saved[tokenHash]
			if !ok {
				return store.User{}, sql.ErrNoRows
			}
			return store.User{ID: userID}, nil
		},
		revokeRefreshFn: func(_ context.Context, tokenHash string) error {
			revoked = append(revoked, tokenHash)
			delete(saved, tokenHash)
			return nil
		},
	}
	svc := newTestService(fs)

	first, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}
	if len(revoked) != 1 || revoked[0] != auth.HashToken(first.RefreshToken) {
		t.Fatalf("expected first refresh token revoked, got %v", revoked)
	}

	// The consumed token must not work twice.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatalf("expected error refreshing with consumed token")
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	svc := newTestService(&fakeStore{})
	if _, err := svc.Refresh(context.Background(), "rft_unknown.xyz"); err == nil {
		t.Fatalf("expected error for unknown refresh token")
	}
}

func TestSessionFromTokenRejectsRevokedJTI(t *testing.T) {
	fs := &fakeStore{
		isAccessTokenRevokedFn: func(_ context.Context, _ string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), session.Token); err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}
}

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	var revokedJTI string
	var revokedRefresh string
	fs := &fakeStore{
		revokeAccessFn: func(_ context.Context, jti string, _ time.Time) error {
			revokedJTI = jti
			return nil
		},
		revokeRefreshFn: func(_ context.Context, tokenHash string) error {
			revokedRefresh = tokenHash
			return nil
		},
	}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := svc.Logout(context.Background(), session, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if revokedJTI != session.JTI {
		t.Fatalf("expected jti %q revoked, got %q", session.JTI, revokedJTI)
	}
	if revokedRefresh != auth.HashToken(session.RefreshToken) {
		t.Fatalf("expected refresh hash revoked")
	}
}

func TestCreateNoteRejectsBlankFields(t *testing.T) {
	svc := newTestService(&fakeStore{})

	for _, tc := range []struct{ title, content string }{
		{"", "body"},
		{"   ", "body"},
		{"title", ""},
		{"title", "  "},
	} {
		_, err := svc.CreateNote(context.Background(), "usr_1", tc.title, tc.content)
		var domainErr *DomainError
		if err == nil {
			t.Fatalf("expected validation error for %+v", tc)
		}
		if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
			t.Fatalf("expected VALIDATION_ERROR for %+v, got %v", tc, err)
		}
	}
}

func TestDeleteNoteMissingReturnsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{
		deleteNoteFn: func(_ context.Context, _, _ string) (bool, error) {
			return false, nil
		},
	})
	err := svc.DeleteNote(context.Background(), "note_missing", "usr_1")
	var domainErr *DomainError
	if err == nil || !errors.As(err, &domainErr) || domainErr.Status != 404 {
		t.Fatalf("expected 404 domain error, got %v", err)
	}
}

func TestSummarizeNotConfigured(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.Summarize(context.Background(), "hello")
	var domainErr *DomainError
	if err == nil || !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Code != "SUMMARY_UNAVAILABLE" || domainErr.Status != 500 {
		t.Fatalf("unexpected error: %+v", domainErr)
	}
}

func TestSummarizeUpstreamErrorFlattened(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.SetSummarizer(&fakeSummarizer{
		summarizeFn: func(_ context.Context, _ string) (string, error) {
			return "", errUpstream
		},
	})
	_, err := svc.Summarize(context.Background(), "hello")
	var domainErr *DomainError
	if err == nil || !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Status != 500 || !strings.Contains(domainErr.Message, "model overloaded") {
		t.Fatalf("expected flattened upstream message, got %+v", domainErr)
	}
}

var errUpstream = &upstreamError{}

type upstreamError struct{}

func (e *upstreamError) Error() string { return "model overloaded" }

