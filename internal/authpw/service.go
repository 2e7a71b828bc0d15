// Package authpw provides email/password and federated sign-in.
package authpw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/crypto/bcrypt"

	"jotter/api/internal/store"
	"jotter/api/internal/util"
)

var ErrEmailExists = errors.New("email already registered")

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	EnsureFederatedUser(ctx context.Context, user store.User) (store.User, error)
}

// OAuthConfig points at the external identity provider used for federated
// sign-in. Empty ClientID disables the federated path.
type OAuthConfig struct {
	TokenURL     string
	UserInfoURL  string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Provider     string
}

type Service struct {
	store UserStore
	oauth OAuthConfig
	http  *resty.Client
}

func NewService(userStore UserStore, oauth OAuthConfig) *Service {
	if oauth.Provider == "" {
		oauth.Provider = "oauth"
	}
	return &Service{
		store: userStore,
		oauth: oauth,
		http:  resty.New().SetTimeout(15 * time.Second),
	}
}

// FederatedConfigured reports whether the OAuth exchange is usable.
func (s *Service) FederatedConfigured() bool {
	return s.oauth.ClientID != "" && s.oauth.TokenURL != "" && s.oauth.UserInfoURL != ""
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	UserID string
}

// SignUp creates a new account with a bcrypt-hashed password.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.DisplayName) == "" {
		return nil, errors.New("email, password, and display name are required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(req.DisplayName),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &SignUpResponse{UserID: user.ID}, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user. Lookup and password failures are
// indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return store.User{}, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, errors.New("invalid email or password")
	}
	if user.PasswordHash == "" {
		// Federated-only account, no password to compare.
		return store.User{}, errors.New("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, errors.New("invalid email or password")
	}

	return user, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userInfoResponse struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ExchangeCode completes the federated redirect callback: the authorization
// code is traded for an access token, userinfo is fetched, and the account
// row is upserted by email.
func (s *Service) ExchangeCode(ctx context.Context, code string) (store.User, error) {
	if !s.FederatedConfigured() {
		return store.User{}, errors.New("federated sign-in not configured")
	}
	if strings.TrimSpace(code) == "" {
		return store.User{}, errors.New("authorization code is required")
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"code":          code,
			"client_id":     s.oauth.ClientID,
			"client_secret": s.oauth.ClientSecret,
			"redirect_uri":  s.oauth.RedirectURL,
		}).
		Post(s.oauth.TokenURL)
	if err != nil {
		return store.User{}, fmt.Errorf("token exchange request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return store.User{}, fmt.Errorf("token exchange failed: http %d", resp.StatusCode())
	}

	var token tokenResponse
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return store.User{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return store.User{}, errors.New("token exchange returned no access token")
	}

	infoResp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token.AccessToken).
		Get(s.oauth.UserInfoURL)
	if err != nil {
		return store.User{}, fmt.Errorf("userinfo request: %w", err)
	}
	if infoResp.StatusCode() != http.StatusOK {
		return store.User{}, fmt.Errorf("userinfo failed: http %d", infoResp.StatusCode())
	}

	var info userInfoResponse
	if err := json.Unmarshal(infoResp.Body(), &info); err != nil {
		return store.User{}, fmt.Errorf("decode userinfo: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" {
		return store.User{}, errors.New("identity provider returned no email")
	}

	user, err := s.store.EnsureFederatedUser(ctx, store.User{
		ID:                util.NewID("usr"),
		Email:             email,
		DisplayName:       strings.TrimSpace(info.Name),
		Provider:          s.oauth.Provider,
		ProviderName:      strings.TrimSpace(info.Name),
		ProviderAvatarURL: strings.TrimSpace(info.Picture),
	})
	if err != nil {
		return store.User{}, err
	}
	return user, nil
}
