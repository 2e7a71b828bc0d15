package notesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Summarize sends note content to the summarization endpoint. Empty
// content is rejected locally; any non-2xx answer surfaces as a single
// summarization failure regardless of the upstream cause.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", syncError(KindValidation, "content is required")
	}

	resp, err := c.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"content": content}).
		Post("/api/summary")
	if err != nil {
		return "", fmt.Errorf("summary request: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		message := strings.TrimSpace(string(resp.Body()))
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(resp.Body(), &payload); err == nil && payload.Error != "" {
			message = payload.Error
		}
		return "", syncError(KindSummarizationUnavailable, message)
	}

	var payload struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("decode summary response: %w", err)
	}
	return payload.Summary, nil
}
