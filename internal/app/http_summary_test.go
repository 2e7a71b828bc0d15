package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSummaryRequiresContent(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.SetSummarizer(&fakeSummarizer{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/summary", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["error"] != "Content is required" {
		t.Fatalf("expected 'Content is required', got %v", payload["error"])
	}
}

func TestSummaryUpstreamFailureReturnsFlatError(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.SetSummarizer(&fakeSummarizer{
		summarizeFn: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("upstream timeout")
		},
	})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/summary",
		bytes.NewBufferString(`{"content":"long text"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["error"] != "upstream timeout" {
		t.Fatalf("expected flat upstream message, got %v", payload["error"])
	}
	if payload["code"] != "SUMMARY_UNAVAILABLE" {
		t.Fatalf("expected code SUMMARY_UNAVAILABLE, got %v", payload["code"])
	}
}

func TestSummaryReturnsSummary(t *testing.T) {
	var received string
	svc := newTestService(&fakeStore{})
	svc.SetSummarizer(&fakeSummarizer{
		summarizeFn: func(_ context.Context, content string) (string, error) {
			received = content
			return "short version", nil
		},
	})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/summary",
		bytes.NewBufferString(`{"content":"a very long note body"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if received != "a very long note body" {
		t.Fatalf("expected raw content forwarded, got %q", received)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["summary"] != "short version" {
		t.Fatalf("expected summary in payload, got %v", payload)
	}
}

func TestSummaryNotConfiguredReturnsServerError(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	req := httptest.NewRequest(http.MethodPost, "/api/summary",
		bytes.NewBufferString(`{"content":"text"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d body=%s", rr.Code, rr.Body.String())
	}
}
