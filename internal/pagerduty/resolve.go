package pagerduty

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/dzhang30/DZbot/internal/status"
)

// SearchEntity resolves a single named entity of the given type. Matching
// is a case-insensitive exact comparison on the name field; the server-side
// query hint only narrows the candidate set. A name carried by more than
// one entity of the type is an ambiguity failure rather than a silent
// first-match win.
func (c *Client) SearchEntity(ctx context.Context, name string, entityType EntityType) EntityResult {
	entities, st := c.listEntities(ctx, entityType, name)
	if !st.Success {
		return failEntity(st)
	}

	var matches []Entity
	for _, entity := range entities {
		if strings.EqualFold(entity.Name, name) {
			matches = append(matches, entity)
		}
	}

	switch len(matches) {
	case 0:
		return failEntity(status.Fail("could not find entity name: '%s' of type '%s'", name, entityType))
	case 1:
		match := matches[0]
		return EntityResult{
			Status: status.OK("successfully found %s: %s", entityType, name),
			Entity: &match,
		}
	default:
		return failEntity(status.Fail("found %d %s entries named '%s', the name is ambiguous", len(matches), entityType, name))
	}
}

// ListAllEntities fetches every entity of the given type and projects it to
// display names. For oncalls the projection is a deduplicated, sorted set
// (a user on call under several policies appears once); every other type
// keeps upstream order.
func (c *Client) ListAllEntities(ctx context.Context, entityType EntityType) ListResult {
	if entityType == Oncalls {
		return c.listAllOncallNames(ctx)
	}

	entities, st := c.listEntities(ctx, entityType, "")
	if !st.Success {
		return failList(st)
	}

	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		names = append(names, entity.Name)
	}
	return ListResult{Status: st, Names: names}
}

func (c *Client) listAllOncallNames(ctx context.Context) ListResult {
	body, st := c.get(ctx, Endpoints()[Oncalls], url.Values{"limit": []string{pageLimit}}, string(Oncalls))
	if !st.Success {
		return failList(st)
	}

	var oncalls []Oncall
	if st = decodeCollection(body, string(Oncalls), string(Oncalls), &oncalls); !st.Success {
		return failList(st)
	}

	seen := make(map[string]bool, len(oncalls))
	names := make([]string, 0, len(oncalls))
	for _, oncall := range oncalls {
		if !seen[oncall.User.Summary] {
			seen[oncall.User.Summary] = true
			names = append(names, oncall.User.Summary)
		}
	}
	sort.Strings(names)

	return ListResult{Status: st, Names: names}
}

// userLoginEmail resolves the chat sender's PagerDuty login email. The chat
// display name must match a PagerDuty user name.
func (c *Client) userLoginEmail(ctx context.Context, name string) (string, status.Status) {
	users, st := c.listEntities(ctx, Users, name)
	if !st.Success {
		return "", st
	}

	for _, user := range users {
		if strings.EqualFold(user.Name, name) && user.Email != "" {
			return user.Email, status.OK("found pagerduty login email for %s", name)
		}
	}

	return "", status.Fail("could not find pagerduty login email for %s, please make sure your "+
		"hipchat account name is the same as your pagerduty account name", name)
}
