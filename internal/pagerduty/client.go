// Package pagerduty talks to the PagerDuty REST v2 API: entity resolution,
// escalation-policy aggregation, incident and override writes, and the
// primary/secondary on-call audit. Every operation returns a result
// envelope; callers branch on Status.Success before reading the payload.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dzhang30/DZbot/internal/config"
	"github.com/dzhang30/DZbot/internal/status"
)

const acceptHeader = "application/vnd.pagerduty+json;version=2"

// pageLimit caps every collection fetch.
const pageLimit = "100"

// Client is the low-level PagerDuty API client.
type Client struct {
	host string
	key  string
	http *http.Client
	log  *zap.Logger
}

// NewClient builds a client from injected configuration.
func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	return &Client{
		host: strings.TrimRight(cfg.PagerDutyHost, "/"),
		key:  cfg.PagerDutyKey,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		log:  log,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Token token="+c.key)
	req.Header.Set("Accept", acceptHeader)
}

// get fetches a collection endpoint and returns the raw body. The label
// names the collection in failure messages.
func (c *Client) get(ctx context.Context, path string, query url.Values, label string) ([]byte, status.Status) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, status.Fail("could not retrieve all %s: %v", label, err)
	}
	c.setHeaders(req)
	req.URL.RawQuery = query.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("pagerduty request failed", zap.String("path", path), zap.Error(err))
		return nil, status.Fail("could not retrieve all %s: %v", label, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status.Fail("could not retrieve all %s: %v", label, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("pagerduty request rejected",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, status.Fail("could not retrieve all %s\nresponse: %s", label, body)
	}

	return body, status.OK("successfully got all %s", label)
}

// post sends a JSON payload. Extra headers (the incident From identity)
// are applied on top of the auth headers.
func (c *Client) post(ctx context.Context, path string, payload interface{}, headers map[string]string) (int, []byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("pagerduty post failed", zap.String("path", path), zap.Error(err))
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// decodeCollection unpacks the single-key wrapper every PagerDuty list
// response uses ({"users": [...]}, {"oncalls": [...]}, ...).
func decodeCollection(body []byte, key, label string, out interface{}) status.Status {
	wrapper := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return status.Fail("error: %v\ncould not retrieve all %s\nresponse: %s", err, label, body)
	}
	if err := json.Unmarshal(wrapper[key], out); err != nil {
		return status.Fail("error: %v\ncould not retrieve all %s\nresponse: %s", err, label, body)
	}
	return status.OK("successfully got all %s", label)
}

// listEntities fetches every entity of the given type. The name, when set,
// is passed as a server-side query hint; exact confirmation stays with the
// caller.
func (c *Client) listEntities(ctx context.Context, entityType EntityType, name string) ([]Entity, status.Status) {
	endpoint, ok := Endpoints()[entityType]
	if !ok {
		return nil, status.Fail("incorrect 'type' parameter: %s", entityType)
	}

	query := url.Values{"limit": []string{pageLimit}}
	if name != "" {
		query.Set("query", name)
	}

	body, st := c.get(ctx, endpoint, query, string(entityType))
	if !st.Success {
		return nil, st
	}

	var entities []Entity
	if st = decodeCollection(body, string(entityType), string(entityType), &entities); !st.Success {
		return nil, st
	}
	return entities, st
}

// oncallsForPolicy fetches the on-call assignments filtered to one
// escalation policy.
func (c *Client) oncallsForPolicy(ctx context.Context, policyID string) ([]Oncall, status.Status) {
	query := url.Values{
		"limit":                   []string{pageLimit},
		"escalation_policy_ids[]": []string{policyID},
	}

	body, st := c.get(ctx, Endpoints()[Oncalls], query, string(Oncalls))
	if !st.Success {
		return nil, st
	}

	var oncalls []Oncall
	if st = decodeCollection(body, string(Oncalls), string(Oncalls), &oncalls); !st.Success {
		return nil, st
	}
	return oncalls, st
}

// userContactMethods fetches the raw contact-method list for a user.
func (c *Client) userContactMethods(ctx context.Context, userID string) ([]ContactMethod, status.Status) {
	if userID == "" {
		return nil, status.Fail("must specify a user id in order to get the user's contact methods")
	}

	query := url.Values{"limit": []string{pageLimit}}
	body, st := c.get(ctx, "/users/"+userID+"/contact_methods", query, "contact methods")
	if !st.Success {
		return nil, st
	}

	var methods []ContactMethod
	if st = decodeCollection(body, "contact_methods", "contact methods", &methods); !st.Success {
		return nil, st
	}
	return methods, st
}
