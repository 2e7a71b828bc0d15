package notesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Note mirrors the server's note row.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile mirrors the server's profile row. The zero value doubles as the
// signed-out placeholder.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the notes API and keeps a per-client cache so views can
// read without a round trip after the first fetch. Mutations invalidate
// the affected keys; logout clears everything.
type Client struct {
	http  *resty.Client
	cache *cache

	mu           sync.RWMutex
	token        string
	refreshToken string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8788"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout),
		cache: newCache(),
	}
}

func (c *Client) SetTokens(token, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
	c.refreshToken = strings.TrimSpace(refreshToken)
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SignedIn reports whether the client currently holds an access token.
func (c *Client) SignedIn() bool {
	return c.Token() != ""
}

type sessionResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// SignUp registers a new account. The caller still has to sign in.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"email":       email,
			"password":    password,
			"displayName": displayName,
		}).
		Post("/api/auth/signup")
	if err != nil {
		return "", fmt.Errorf("signup request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return "", err
	}
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("decode signup response: %w", err)
	}
	return payload.UserID, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"email": email, "password": password}).
		Post("/api/auth/signin")
	if err != nil {
		return "", fmt.Errorf("signin request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return "", err
	}
	var payload sessionResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("decode signin response: %w", err)
	}
	c.SetTokens(payload.Token, payload.RefreshToken)
	return payload.UserID, nil
}

// Refresh trades the stored refresh token for a new session.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	refreshToken := c.refreshToken
	c.mu.RUnlock()
	if refreshToken == "" {
		return syncError(KindAuthRequired, "no refresh token")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"refreshToken": refreshToken}).
		Post("/api/session/refresh")
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return err
	}
	var payload sessionResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	c.SetTokens(payload.Token, payload.RefreshToken)
	return nil
}

// Logout ends the session server-side, drops the tokens, and clears the
// whole cache so nothing owned by the previous account survives.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	refreshToken := c.refreshToken
	c.mu.RUnlock()

	resp, err := c.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"refreshToken": refreshToken}).
		Post("/api/session/logout")
	if err == nil {
		err = mapResponseError(resp)
	}

	c.SetTokens("", "")
	c.cache.clear()
	return err
}

func (c *Client) authedRequest(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token := c.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

func mapResponseError(resp *resty.Response) error {
	status := resp.StatusCode()
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return nil
	}

	message := strings.TrimSpace(string(resp.Body()))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return syncError(KindAuthRequired, message)
	case status == http.StatusNotFound:
		return syncError(KindNotFound, message)
	case status == http.StatusBadRequest,
		status == http.StatusUnprocessableEntity,
		status == http.StatusConflict:
		return syncError(KindValidation, message)
	default:
		return syncError(KindRemoteFailure, fmt.Sprintf("http %d: %s", status, message))
	}
}
