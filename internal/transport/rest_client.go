package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"focuschat/internal/models"
)

type restClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newRESTClient(baseURL, token string) *restClient {
	return &restClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// InsertMessage persists a message under its client-generated UUID.
func (c *Client) InsertMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	body := map[string]interface{}{
		"id":            msg.ID,
		"content":       msg.Content,
		"created_at_ms": msg.CreatedAtMs,
	}
	var resp struct {
		Message models.ChatMessage `json:"message"`
	}
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(msg.ChannelID))
	if err := c.rest.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return models.ChatMessage{}, err
	}
	return resp.Message, nil
}

// SoftDeleteMessage marks a message deleted.
func (c *Client) SoftDeleteMessage(ctx context.Context, messageID string) error {
	return c.rest.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

// FetchRecentMessages loads the most recent channel history ascending.
func (c *Client) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error) {
	var resp struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", url.PathEscape(channelID), limit)
	if err := c.rest.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// InsertBan issues a ban.
func (c *Client) InsertBan(ctx context.Context, ban models.Ban) (models.Ban, error) {
	body := map[string]interface{}{
		"user_id": ban.UserID,
		"reason":  ban.Reason,
	}
	if ban.ExpiresAt != nil {
		minutes := int(math.Ceil(time.Until(*ban.ExpiresAt).Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		body["duration_minutes"] = minutes
	}
	var resp struct {
		Ban models.Ban `json:"ban"`
	}
	if err := c.rest.do(ctx, http.MethodPost, "/bans", body, &resp); err != nil {
		return models.Ban{}, err
	}
	return resp.Ban, nil
}

// DeleteBan lifts a user's active ban.
func (c *Client) DeleteBan(ctx context.Context, ban models.Ban) error {
	return c.rest.do(ctx, http.MethodDelete, "/bans/"+url.PathEscape(ban.UserID), nil, nil)
}

// FetchActiveBan returns the ban currently in force for a user, or nil.
func (c *Client) FetchActiveBan(ctx context.Context, userID string) (*models.Ban, error) {
	var resp struct {
		Ban *models.Ban `json:"ban"`
	}
	if err := c.rest.do(ctx, http.MethodGet, "/bans/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Ban, nil
}

// FetchRole returns the stored role of a user.
func (c *Client) FetchRole(ctx context.Context, userID string) (models.Role, error) {
	var resp struct {
		Role models.Role `json:"role"`
	}
	if err := c.rest.do(ctx, http.MethodGet, "/roles/"+url.PathEscape(userID), nil, &resp); err != nil {
		return "", err
	}
	return resp.Role, nil
}

func (c *restClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
