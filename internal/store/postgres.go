package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Email, user.PasswordHash, user.DisplayName)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, provider, provider_name, provider_avatar_url, created_at
		FROM users
		WHERE email=$1
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Provider,
		&user.ProviderName,
		&user.ProviderAvatarURL,
		&user.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, provider, provider_name, provider_avatar_url, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Provider,
		&user.ProviderName,
		&user.ProviderAvatarURL,
		&user.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// EnsureFederatedUser upserts the account row for an identity coming from the
// external provider, keyed by email. Provider-supplied display name and avatar
// are kept on the user row so an explicit profile reconcile can backfill them.
func (s *PostgresStore) EnsureFederatedUser(ctx context.Context, user User) (User, error) {
	var out User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, provider, provider_name, provider_avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE
			SET provider=EXCLUDED.provider,
				provider_name=EXCLUDED.provider_name,
				provider_avatar_url=EXCLUDED.provider_avatar_url
		RETURNING id, email, password_hash, display_name, provider, provider_name, provider_avatar_url, created_at
	`, user.ID, user.Email, user.DisplayName, user.Provider, user.ProviderName, user.ProviderAvatarURL).Scan(
		&out.ID,
		&out.Email,
		&out.PasswordHash,
		&out.DisplayName,
		&out.Provider,
		&out.ProviderName,
		&out.ProviderAvatarURL,
		&out.CreatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("ensure federated user: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListNotes(ctx context.Context, userID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, created_at
		FROM notes
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID, userID string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, created_at
		FROM notes
		WHERE id=$1 AND user_id=$2
	`, noteID, userID).Scan(&item.ID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, item Note) (Note, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, user_id, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, item.ID, item.UserID, item.Title, item.Content).Scan(&item.CreatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, noteID, userID, title, content string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		UPDATE notes
		SET title=$3, content=$4
		WHERE id=$1 AND user_id=$2
		RETURNING id, user_id, title, content, created_at
	`, noteID, userID, title, content).Scan(&item.ID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1 AND user_id=$2`, noteID, userID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete note affected: %w", err)
	}
	return affected > 0, nil
}

// EnsureProfile returns the profile row for the account, creating an empty one
// on first access. The row starts with the account email and nothing else.
func (s *PostgresStore) EnsureProfile(ctx context.Context, userID string) (Profile, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email)
		SELECT id, email FROM users WHERE id=$1
		ON CONFLICT (id) DO NOTHING
	`, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}

	var item Profile
	err = s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, image_url, created_at
		FROM profiles
		WHERE id=$1
	`, userID).Scan(&item.ID, &item.Email, &item.DisplayName, &item.ImageURL, &item.CreatedAt)
	if err != nil {
		return Profile{}, err
	}
	return item, nil
}

// UpdateProfile mutates display_name and/or image_url. A blank argument keeps
// the stored value, so either field can be updated alone.
func (s *PostgresStore) UpdateProfile(ctx context.Context, userID, displayName, imageURL string) (Profile, error) {
	var item Profile
	err := s.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET display_name=COALESCE(NULLIF($2, ''), display_name),
			image_url=COALESCE(NULLIF($3, ''), image_url)
		WHERE id=$1
		RETURNING id, email, display_name, image_url, created_at
	`, userID, displayName, imageURL).Scan(&item.ID, &item.Email, &item.DisplayName, &item.ImageURL, &item.CreatedAt)
	if err != nil {
		return Profile{}, err
	}
	return item, nil
}

// ReconcileProfile backfills empty profile fields from the identity the
// external provider supplied at sign-in. Fields the user already set win.
func (s *PostgresStore) ReconcileProfile(ctx context.Context, userID string) (Profile, error) {
	var item Profile
	err := s.db.QueryRowContext(ctx, `
		UPDATE profiles p
		SET display_name=CASE WHEN p.display_name='' THEN u.provider_name ELSE p.display_name END,
			image_url=CASE WHEN p.image_url='' THEN u.provider_avatar_url ELSE p.image_url END
		FROM users u
		WHERE u.id=p.id AND p.id=$1
		RETURNING p.id, p.email, p.display_name, p.image_url, p.created_at
	`, userID).Scan(&item.ID, &item.Email, &item.DisplayName, &item.ImageURL, &item.CreatedAt)
	if err != nil {
		return Profile{}, err
	}
	return item, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return fmt.Errorf("database connection closed: %w", err)
		}
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
