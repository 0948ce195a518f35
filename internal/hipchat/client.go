// Package hipchat talks to the HipChat v2 API: room notifications and
// webhook administration, plus the add-on capability descriptor served for
// room integration.
package hipchat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dzhang30/DZbot/internal/config"
	"github.com/dzhang30/DZbot/internal/status"
)

// Client is the HipChat API client.
type Client struct {
	host  string
	token string
	http  *http.Client
	log   *zap.Logger
}

// NewClient builds a client from injected configuration.
func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	return &Client{
		host:  strings.TrimRight(cfg.HipChatHost, "/"),
		token: cfg.HipChatToken,
		http:  &http.Client{Timeout: cfg.HTTPTimeout},
		log:   log,
	}
}

// SendRoomNotification posts a notification into a room. Format is plain
// text; color picks the message background.
func (c *Client) SendRoomNotification(ctx context.Context, roomIDOrName, message, color string) status.Status {
	body := map[string]string{
		"message":        message,
		"color":          color,
		"message_format": "text",
	}
	return c.postStatus(ctx, "/room/"+url.PathEscape(roomIDOrName)+"/notification", body)
}

// CreateWebhook registers a webhook on a room for messages matching the
// pattern.
func (c *Client) CreateWebhook(ctx context.Context, roomIDOrName, sendURL, pattern, event string) status.Status {
	body := map[string]string{
		"url":     sendURL,
		"pattern": pattern,
		"event":   event,
	}
	return c.postStatus(ctx, "/room/"+url.PathEscape(roomIDOrName)+"/webhook", body)
}

// ListRooms fetches every visible room.
func (c *Client) ListRooms(ctx context.Context, maxResults int) (json.RawMessage, status.Status) {
	query := url.Values{"max-results": []string{strconv.Itoa(maxResults)}}
	return c.getRaw(ctx, "/room", query)
}

// ListRoomWebhooks fetches the webhooks registered on a room.
func (c *Client) ListRoomWebhooks(ctx context.Context, roomIDOrName string, maxResults int) (json.RawMessage, status.Status) {
	query := url.Values{"max-results": []string{strconv.Itoa(maxResults)}}
	return c.getRaw(ctx, "/room/"+url.PathEscape(roomIDOrName)+"/webhook", query)
}

// DeleteRoomWebhook removes a webhook from a room.
func (c *Client) DeleteRoomWebhook(ctx context.Context, roomIDOrName, webhookID string) status.Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.host+"/room/"+url.PathEscape(roomIDOrName)+"/webhook/"+url.PathEscape(webhookID), nil)
	if err != nil {
		return status.Fail("could not delete webhook: %v", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return status.Fail("could not delete webhook: %v", err)
	}
	defer resp.Body.Close()

	return responseStatus(resp)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) postStatus(ctx context.Context, path string, body interface{}) status.Status {
	encoded, err := json.Marshal(body)
	if err != nil {
		return status.Fail("could not encode request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(encoded))
	if err != nil {
		return status.Fail("could not build request: %v", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("hipchat request failed", zap.String("path", path), zap.Error(err))
		return status.Fail("could not reach hipchat: %v", err)
	}
	defer resp.Body.Close()

	return responseStatus(resp)
}

func (c *Client) getRaw(ctx context.Context, path string, query url.Values) (json.RawMessage, status.Status) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, status.Fail("could not build request: %v", err)
	}
	c.setHeaders(req)
	req.URL.RawQuery = query.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("hipchat request failed", zap.String("path", path), zap.Error(err))
		return nil, status.Fail("could not reach hipchat: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status.Fail("could not read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, status.Fail("%s", body)
	}

	return body, status.OK("successfully retrieved entities")
}

func responseStatus(resp *http.Response) status.Status {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return status.OK("request was successful")
	}

	body, _ := io.ReadAll(resp.Body)
	return status.Fail("%s", body)
}
