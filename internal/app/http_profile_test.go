package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"jotter/api/internal/store"
)

func TestGetProfileCreatesEmptyRowOnFirstAccess(t *testing.T) {
	ensured := false
	fs := &fakeStore{
		ensureProfileFn: func(_ context.Context, userID string) (store.Profile, error) {
			ensured = true
			return store.Profile{ID: userID, Email: "avery@example.com", CreatedAt: time.Now().UTC()}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, http.MethodGet, "/api/profile", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !ensured {
		t.Fatalf("expected profile row ensured on read")
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["id"] != "usr_1" || payload["email"] != "avery@example.com" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["display_name"] != "" || payload["image_url"] != "" {
		t.Fatalf("expected empty profile fields on first access, got %v", payload)
	}
}

func TestUpdateProfilePartialKeepsOtherField(t *testing.T) {
	current := store.Profile{ID: "usr_1", DisplayName: "Avery", ImageURL: "https://cdn/a.png"}
	fs := &fakeStore{
		ensureProfileFn: func(_ context.Context, _ string) (store.Profile, error) {
			return current, nil
		},
		updateProfileFn: func(_ context.Context, _, displayName, imageURL string) (store.Profile, error) {
			if displayName != "" {
				current.DisplayName = displayName
			}
			if imageURL != "" {
				current.ImageURL = imageURL
			}
			return current, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, http.MethodPut, "/api/profile",
		[]byte(`{"display_name":"New Name"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["display_name"] != "New Name" {
		t.Fatalf("expected updated display_name, got %v", payload)
	}
	if payload["image_url"] != "https://cdn/a.png" {
		t.Fatalf("expected image_url untouched, got %v", payload)
	}
}

func TestReconcileBackfillsFromProvider(t *testing.T) {
	fs := &fakeStore{
		reconcileProfileFn: func(_ context.Context, userID string) (store.Profile, error) {
			return store.Profile{
				ID:          userID,
				DisplayName: "Avery From Provider",
				ImageURL:    "https://provider/avatar.png",
			}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, http.MethodPost, "/api/profile/reconcile", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["display_name"] != "Avery From Provider" {
		t.Fatalf("expected backfilled display_name, got %v", payload)
	}
}

func multipartAvatar(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="avatar"; filename="avatar.png"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestAvatarUploadPatchesProfile(t *testing.T) {
	var patchedImageURL string
	fs := &fakeStore{
		updateProfileFn: func(_ context.Context, userID, displayName, imageURL string) (store.Profile, error) {
			if displayName != "" {
				t.Fatalf("avatar upload must not touch display_name, got %q", displayName)
			}
			patchedImageURL = imageURL
			return store.Profile{ID: userID, ImageURL: imageURL}, nil
		},
	}
	svc := newTestService(fs)
	svc.SetAvatarStore(&fakeAvatars{
		uploadFn: func(_ context.Context, userID, contentType string, r io.Reader, size int64) (string, error) {
			if contentType != "image/png" {
				t.Fatalf("unexpected content type %q", contentType)
			}
			if _, err := io.Copy(io.Discard, r); err != nil {
				return "", err
			}
			return "https://cdn.example.com/avatars/" + userID + ".png", nil
		},
	})
	server := NewHTTPServer(svc, "*")

	body, contentType := multipartAvatar(t, "image/png", []byte("png-bytes"))
	req := authedRequest(t, http.MethodPost, "/api/profile/avatar", body.Bytes())
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if patchedImageURL != "https://cdn.example.com/avatars/usr_1.png" {
		t.Fatalf("expected profile patched with object URL, got %q", patchedImageURL)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["imageUrl"] != patchedImageURL {
		t.Fatalf("expected imageUrl in payload, got %v", payload)
	}
	profile, _ := payload["profile"].(map[string]any)
	if profile == nil || profile["image_url"] != patchedImageURL {
		t.Fatalf("expected updated profile in payload, got %v", payload)
	}
}

func TestAvatarUploadRejectsNonImage(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.SetAvatarStore(&fakeAvatars{})
	server := NewHTTPServer(svc, "*")

	body, contentType := multipartAvatar(t, "application/pdf", []byte("%PDF-1.4"))
	req := authedRequest(t, http.MethodPost, "/api/profile/avatar", body.Bytes())
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("expected VALIDATION_ERROR, got %s", rr.Body.String())
	}
}

func TestAvatarUploadWithoutStorageReturnsUnavailable(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	body, contentType := multipartAvatar(t, "image/png", []byte("png-bytes"))
	req := authedRequest(t, http.MethodPost, "/api/profile/avatar", body.Bytes())
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "STORAGE_UNAVAILABLE") {
		t.Fatalf("expected STORAGE_UNAVAILABLE, got %s", rr.Body.String())
	}
}
