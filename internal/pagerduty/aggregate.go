package pagerduty

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dzhang30/DZbot/internal/status"
)

// contactMethodFanout bounds the parallel contact-method lookups inside the
// level-map build.
const contactMethodFanout = 4

// statusError carries a failure Status across an errgroup boundary.
type statusError struct {
	status status.Status
}

func (e statusError) Error() string { return e.status.Content }

// ListContactMethods resolves a user and returns their contact methods
// grouped by channel.
func (c *Client) ListContactMethods(ctx context.Context, userName string) ContactMethodsResult {
	user := c.SearchEntity(ctx, userName, Users)
	if !user.Status.Success {
		return ContactMethodsResult{Status: user.Status}
	}

	methods, st := c.userContactMethods(ctx, user.Entity.ID)
	if !st.Success {
		return ContactMethodsResult{Status: st}
	}

	return ContactMethodsResult{
		Status:  status.OK("successfully got %s's contact methods", userName),
		Methods: CleanContactMethods(methods),
	}
}

// CleanContactMethods groups raw contact-method records by channel, keyed
// "phone" and "email" on the upstream type discriminators. Any other
// contact-method kind is dropped, not an error. Order within each channel
// follows the input.
func CleanContactMethods(methods []ContactMethod) ContactMethodSet {
	cleaned := make(ContactMethodSet)
	for _, method := range methods {
		switch method.Type {
		case "phone_contact_method":
			cleaned["phone"] = append(cleaned["phone"], method.Address)
		case "email_contact_method":
			cleaned["email"] = append(cleaned["email"], method.Address)
		}
	}
	return cleaned
}

// ListEPByLevel breaks an escalation policy out by escalation level, each
// level carrying "name, phone: p, email: e" descriptions of its on-call
// users, sorted ascending by level. The first failing sub-call aborts the
// whole build.
func (c *Client) ListEPByLevel(ctx context.Context, epName string) LevelsResult {
	oncalls, st := c.oncallsByPolicyName(ctx, epName)
	if !st.Success {
		return LevelsResult{Status: st}
	}
	if len(oncalls) == 0 {
		return LevelsResult{Status: status.Fail("escalation policy '%s' has no on-call entries", epName)}
	}

	// Contact-method lookups for the assignees are independent; run them
	// under a bounded group. Results land by index so upstream order
	// survives the fan-out.
	descriptions := make([]string, len(oncalls))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(contactMethodFanout)

	for i, oncall := range oncalls {
		i, oncall := i, oncall
		group.Go(func() error {
			cm := c.ListContactMethods(groupCtx, oncall.User.Summary)
			if !cm.Status.Success {
				return statusError{cm.Status}
			}
			descriptions[i] = oncall.User.Summary + ", " + cm.Methods.String()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		if se, ok := err.(statusError); ok {
			return LevelsResult{Status: se.status}
		}
		return LevelsResult{Status: status.Fail("%v", err)}
	}

	byLevel := make(map[int][]string)
	var order []int
	for i, oncall := range oncalls {
		if _, ok := byLevel[oncall.EscalationLevel]; !ok {
			order = append(order, oncall.EscalationLevel)
		}
		byLevel[oncall.EscalationLevel] = append(byLevel[oncall.EscalationLevel], descriptions[i])
	}

	levels := make(Levels, 0, len(order))
	for _, number := range order {
		levels = append(levels, Level{Number: number, Users: byLevel[number]})
	}
	levels.sort()

	return LevelsResult{Status: status.OK("got escalation policy by level"), Levels: levels}
}

// oncallsByPolicyName resolves an escalation policy and fetches its on-call
// assignments.
func (c *Client) oncallsByPolicyName(ctx context.Context, epName string) ([]Oncall, status.Status) {
	ep := c.SearchEntity(ctx, epName, EscalationPolicies)
	if !ep.Status.Success {
		return nil, status.Fail("%s is not a valid escalation policy", epName)
	}
	return c.oncallsForPolicy(ctx, ep.Entity.ID)
}

// EnsureOncalls audits every escalation policy for a primary (level 1) and
// secondary (level 2) on-call. One diagnostic line is emitted per deficient
// policy; a missing level 1 shadows a missing level 2. Policies with both
// levels are omitted. Any sub-fetch failure aborts the whole pass.
func (c *Client) EnsureOncalls(ctx context.Context) ListResult {
	policies, st := c.listEntities(ctx, EscalationPolicies, "")
	if !st.Success {
		return failList(st)
	}

	result := make([]string, 0)
	for _, policy := range policies {
		oncalls, st := c.oncallsForPolicy(ctx, policy.ID)
		if !st.Success {
			return failList(st)
		}

		levels := make(map[int]bool, len(oncalls))
		for _, oncall := range oncalls {
			levels[oncall.EscalationLevel] = true
		}

		if !levels[1] {
			result = append(result, fmt.Sprintf("%s: oncall level 1 does not exist", policy.Name))
		} else if !levels[2] {
			result = append(result, fmt.Sprintf("%s: oncall level 2 does not exist", policy.Name))
		}
	}

	return ListResult{
		Status: status.OK("successfully ensured all primary & secondary"),
		Names:  result,
	}
}
