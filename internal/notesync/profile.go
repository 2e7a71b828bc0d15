package notesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxAvatarBytes = 5 << 20

// GetProfile never fails for lack of a session: signed out, or rejected
// by the server as unauthenticated, it returns the empty placeholder so
// views can render unconditionally.
func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	if !c.SignedIn() {
		return Profile{}, nil
	}
	if cached, ok := c.cache.get(profileKey); ok {
		if profile, ok := cached.(Profile); ok {
			return profile, nil
		}
	}

	resp, err := c.authedRequest(ctx).Get("/api/profile")
	if err != nil {
		return Profile{}, fmt.Errorf("get profile request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		if IsKind(err, KindAuthRequired) {
			return Profile{}, nil
		}
		return Profile{}, err
	}

	var profile Profile
	if err := json.Unmarshal(resp.Body(), &profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile response: %w", err)
	}
	c.cache.put(profileKey, profile)
	return profile, nil
}

// UpdateProfile sends the changed fields (blank means keep) and
// overwrites the cached profile with the row the server returns.
func (c *Client) UpdateProfile(ctx context.Context, displayName, imageURL string) (Profile, error) {
	resp, err := c.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"display_name": displayName, "image_url": imageURL}).
		Put("/api/profile")
	if err != nil {
		return Profile{}, fmt.Errorf("update profile request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return Profile{}, err
	}

	var profile Profile
	if err := json.Unmarshal(resp.Body(), &profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile response: %w", err)
	}
	c.cache.put(profileKey, profile)
	return profile, nil
}

// ReconcileProfile asks the server to backfill empty profile fields from
// the federated identity, typically right after an OAuth login.
func (c *Client) ReconcileProfile(ctx context.Context) (Profile, error) {
	resp, err := c.authedRequest(ctx).Post("/api/profile/reconcile")
	if err != nil {
		return Profile{}, fmt.Errorf("reconcile profile request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return Profile{}, err
	}

	var profile Profile
	if err := json.Unmarshal(resp.Body(), &profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile response: %w", err)
	}
	c.cache.put(profileKey, profile)
	return profile, nil
}

// UploadAvatar validates locally before spending a request: only image
// content types and at most 5MB. On success the cached profile is
// overwritten with the patched row.
func (c *Client) UploadAvatar(ctx context.Context, fileName, contentType string, r io.Reader, size int64) (string, Profile, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", Profile{}, syncError(KindValidation, "avatar must be an image")
	}
	if size <= 0 || size > maxAvatarBytes {
		return "", Profile{}, syncError(KindValidation, "avatar must be 5MB or smaller")
	}

	resp, err := c.authedRequest(ctx).
		SetMultipartField("avatar", fileName, contentType, r).
		Post("/api/profile/avatar")
	if err != nil {
		return "", Profile{}, fmt.Errorf("avatar upload request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return "", Profile{}, err
	}

	var payload struct {
		ImageURL string  `json:"imageUrl"`
		Profile  Profile `json:"profile"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", Profile{}, fmt.Errorf("decode avatar response: %w", err)
	}
	c.cache.put(profileKey, payload.Profile)
	return payload.ImageURL, payload.Profile, nil
}
