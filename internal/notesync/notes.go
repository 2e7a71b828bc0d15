package notesync

import (
	"context"
	"encoding/json"
	"fmt"
)

// ListNotes serves the cached list when it is fresh, otherwise fetches
// and caches the server's newest-first ordering.
func (c *Client) ListNotes(ctx context.Context) ([]Note, error) {
	if cached, ok := c.cache.get(notesKey); ok {
		if notes, ok := cached.([]Note); ok {
			return copyNotes(notes), nil
		}
	}

	resp, err := c.authedRequest(ctx).Get("/api/notes")
	if err != nil {
		return nil, fmt.Errorf("list notes request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return nil, err
	}

	var payload struct {
		Notes []Note `json:"notes"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decode notes response: %w", err)
	}
	if payload.Notes == nil {
		payload.Notes = []Note{}
	}
	c.cache.put(notesKey, payload.Notes)
	return copyNotes(payload.Notes), nil
}

// GetNote always refetches so a freshly opened note is never stale, then
// caches the result.
func (c *Client) GetNote(ctx context.Context, noteID string) (Note, error) {
	resp, err := c.authedRequest(ctx).Get("/api/notes/" + noteID)
	if err != nil {
		return Note{}, fmt.Errorf("get note request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return Note{}, err
	}

	var note Note
	if err := json.Unmarshal(resp.Body(), &note); err != nil {
		return Note{}, fmt.Errorf("decode note response: %w", err)
	}
	c.cache.put(noteKey(note.ID), note)
	return note, nil
}

func (c *Client) CreateNote(ctx context.Context, title, content string) (Note, error) {
	resp, err := c.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"title": title, "content": content}).
		Post("/api/notes")
	if err != nil {
		return Note{}, fmt.Errorf("create note request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return Note{}, err
	}

	var note Note
	if err := json.Unmarshal(resp.Body(), &note); err != nil {
		return Note{}, fmt.Errorf("decode note response: %w", err)
	}
	c.cache.invalidate(notesKey)
	return note, nil
}

// UpdateNote invalidates the list and the single-note entry, then eagerly
// writes the returned row into both so readers of the stale copies see
// the update before the next refetch.
func (c *Client) UpdateNote(ctx context.Context, noteID, title, content string) (Note, error) {
	resp, err := c.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"title": title, "content": content}).
		Put("/api/notes/" + noteID)
	if err != nil {
		return Note{}, fmt.Errorf("update note request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return Note{}, err
	}

	var note Note
	if err := json.Unmarshal(resp.Body(), &note); err != nil {
		return Note{}, fmt.Errorf("decode note response: %w", err)
	}

	c.cache.invalidate(notesKey)
	c.cache.invalidate(noteKey(note.ID))
	c.cache.patch(noteKey(note.ID), func(any) any { return note })
	c.cache.patch(notesKey, func(value any) any {
		notes, ok := value.([]Note)
		if !ok {
			return value
		}
		patched := copyNotes(notes)
		for i := range patched {
			if patched[i].ID == note.ID {
				patched[i] = note
			}
		}
		return patched
	})
	return note, nil
}

// DeleteNote invalidates the list and removes the single-note entry
// outright; a removed note must not linger even as a stale value.
func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	resp, err := c.authedRequest(ctx).Delete("/api/notes/" + noteID)
	if err != nil {
		return fmt.Errorf("delete note request: %w", err)
	}
	if err := mapResponseError(resp); err != nil {
		return err
	}

	c.cache.invalidate(notesKey)
	c.cache.remove(noteKey(noteID))
	return nil
}

// CachedNotes returns the list entry even when stale, for views that
// render whatever is on hand while a refetch is pending.
func (c *Client) CachedNotes() ([]Note, bool) {
	value, ok := c.cache.peek(notesKey)
	if !ok {
		return nil, false
	}
	notes, ok := value.([]Note)
	if !ok {
		return nil, false
	}
	return copyNotes(notes), true
}

func copyNotes(notes []Note) []Note {
	out := make([]Note, len(notes))
	copy(out, notes)
	return out
}
