package pagerduty

import (
	"context"

	"github.com/dzhang30/DZbot/internal/status"
)

type incidentBody struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

type serviceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type assignee struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type assignment struct {
	Assignee assignee `json:"assignee"`
}

type policyRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// userIncident assigns the incident directly to a user.
type userIncident struct {
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Body        incidentBody `json:"body"`
	Service     serviceRef   `json:"service"`
	Assignments []assignment `json:"assignments"`
}

// policyIncident hands the incident to an escalation policy.
type policyIncident struct {
	Type             string       `json:"type"`
	Title            string       `json:"title"`
	Body             incidentBody `json:"body"`
	Service          serviceRef   `json:"service"`
	EscalationPolicy policyRef    `json:"escalation_policy"`
}

type incidentEnvelope struct {
	Incident interface{} `json:"incident"`
}

func newUserIncident(title, message string, service, user *Entity) incidentEnvelope {
	return incidentEnvelope{Incident: userIncident{
		Type:    "incident",
		Title:   title,
		Body:    incidentBody{Type: "incident_body", Details: message},
		Service: serviceRef{ID: service.ID, Type: service.Type},
		Assignments: []assignment{
			{Assignee: assignee{ID: user.ID, Type: "user"}},
		},
	}}
}

func newPolicyIncident(title, message string, service, policy *Entity) incidentEnvelope {
	return incidentEnvelope{Incident: policyIncident{
		Type:             "incident",
		Title:            title,
		Body:             incidentBody{Type: "incident_body", Details: message},
		Service:          serviceRef{ID: service.ID, Type: service.Type},
		EscalationPolicy: policyRef{ID: policy.ID, Type: "escalation_policy_reference"},
	}}
}

type userReference struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type override struct {
	Start string        `json:"start"`
	End   string        `json:"end"`
	User  userReference `json:"user"`
}

type overrideEnvelope struct {
	Override override `json:"override"`
}

// SendIncident opens a PagerDuty incident against a user or an escalation
// policy, submitted as the chat sender. The sender's display name must
// resolve to a PagerDuty login email, and every resolved referent must
// carry an id before anything is posted.
func (c *Client) SendIncident(ctx context.Context, entityType EntityType, senderName, entityName, serviceName, title, message string) status.Status {
	if entityType != Users && entityType != EscalationPolicies {
		return status.Fail("incorrect 'type' parameter: %s", entityType)
	}

	email, emailStatus := c.userLoginEmail(ctx, senderName)
	entity := c.SearchEntity(ctx, entityName, entityType)
	service := c.SearchEntity(ctx, serviceName, Services)

	if !emailStatus.Success {
		return emailStatus
	}
	if resolved := validateResolved(entityType, entity, service); !resolved.Success {
		return resolved
	}

	var payload incidentEnvelope
	if entityType == Users {
		payload = newUserIncident(title, message, service.Entity, entity.Entity)
	} else {
		payload = newPolicyIncident(title, message, service.Entity, entity.Entity)
	}

	code, body, err := c.post(ctx, "/incidents", payload, map[string]string{"From": email})
	if err != nil {
		return status.Fail("could not send incident: %v", err)
	}
	if code < 200 || code > 299 {
		return status.Fail("%s", body)
	}

	return status.OK("successfully sent %s incident to %s", entityType, entityName)
}

// OverrideSchedule puts a temporary replacement assignment on a schedule
// for the given time window.
func (c *Client) OverrideSchedule(ctx context.Context, scheduleName, userName, start, end string) status.Status {
	user := c.SearchEntity(ctx, userName, Users)
	schedule := c.SearchEntity(ctx, scheduleName, Schedules)

	if resolved := validateResolved(Users, user, schedule); !resolved.Success {
		return resolved
	}

	payload := overrideEnvelope{Override: override{
		Start: start,
		End:   end,
		User:  userReference{ID: user.Entity.ID, Type: "user_reference"},
	}}

	code, body, err := c.post(ctx, "/schedules/"+schedule.Entity.ID+"/overrides", payload, nil)
	if err != nil {
		return status.Fail("could not create the override: %v", err)
	}
	if code < 200 || code > 299 {
		return status.Fail("%s", body)
	}

	return status.OK("successfully created the override for %s between %s - %s", user.Entity.Name, start, end)
}

// validateResolved is the shared write-path gate: both referents must have
// resolved and both must carry an id. The failure message names which side
// went wrong.
func validateResolved(entityType EntityType, entity, serviceOrSchedule EntityResult) status.Status {
	if !entity.Status.Success {
		return status.Fail("%s name error: %s", entityType, entity.Status.Content)
	}
	if !serviceOrSchedule.Status.Success {
		return status.Fail("service/sched name error: %s", serviceOrSchedule.Status.Content)
	}
	if entity.Entity.ID == "" || serviceOrSchedule.Entity.ID == "" {
		return status.Fail("the id field for %s or service/schedule is missing", entityType)
	}
	return status.OK("both the entity and service/schedule have been found")
}
