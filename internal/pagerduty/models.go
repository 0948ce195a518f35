package pagerduty

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dzhang30/DZbot/internal/status"
)

// EntityType identifies one of the PagerDuty directory collections.
type EntityType string

const (
	Users              EntityType = "users"
	EscalationPolicies EntityType = "escalation_policies"
	Services           EntityType = "services"
	Schedules          EntityType = "schedules"
	Oncalls            EntityType = "oncalls"
)

// Endpoints maps each entity type to its collection endpoint. Types outside
// this table are rejected as invalid input, never resolved by a fallback.
func Endpoints() map[EntityType]string {
	return map[EntityType]string{
		Users:              "/users",
		EscalationPolicies: "/escalation_policies",
		Oncalls:            "/oncalls",
		Services:           "/services",
		Schedules:          "/schedules",
	}
}

// ParseEntityType maps a chat-facing type name to an EntityType. The chat
// surface addresses escalation policies by the alias "eps".
func ParseEntityType(raw string) (EntityType, bool) {
	if raw == "eps" {
		return EscalationPolicies, true
	}
	et := EntityType(raw)
	_, ok := Endpoints()[et]
	return et, ok
}

// Entity is a row from any of the directory collections. Fields not present
// for a given type are left zero.
type Entity struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Email   string `json:"email"`
}

// UserRef is the nested user reference on an on-call entry.
type UserRef struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// Oncall is one on-call assignment under an escalation policy.
type Oncall struct {
	EscalationLevel int     `json:"escalation_level"`
	User            UserRef `json:"user"`
}

// ContactMethod is one raw contact-method record for a user.
type ContactMethod struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// ContactMethodSet groups contact-method addresses by channel ("phone",
// "email"), preserving upstream order within each channel.
type ContactMethodSet map[string][]string

// channelOrder fixes the rendering order of contact channels.
var channelOrder = []string{"phone", "email"}

// String renders the set as "phone: a & b, email: c".
func (s ContactMethodSet) String() string {
	parts := make([]string, 0, len(s))
	for _, channel := range channelOrder {
		if addresses, ok := s[channel]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", channel, strings.Join(addresses, " & ")))
		}
	}
	return strings.Join(parts, ", ")
}

// Level is one escalation level with its on-call user descriptions.
type Level struct {
	Number int
	Users  []string
}

// Levels is an escalation policy broken out by level, sorted ascending.
type Levels []Level

// String renders one "<level>: [users]" line per level.
func (l Levels) String() string {
	lines := make([]string, 0, len(l))
	for _, level := range l {
		lines = append(lines, fmt.Sprintf("%d: [%s]", level.Number, strings.Join(level.Users, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (l Levels) sort() {
	sort.Slice(l, func(i, j int) bool { return l[i].Number < l[j].Number })
}

// EntityResult is the outcome of resolving exactly one named entity. Entity
// is non-nil iff Status.Success.
type EntityResult struct {
	Status status.Status
	Entity *Entity
}

// ListResult is the outcome of a plural lookup projected to display names
// (or, for the on-call audit, diagnostic lines). Names is populated iff
// Status.Success.
type ListResult struct {
	Status status.Status
	Names  []string
}

// ContactMethodsResult carries a user's grouped contact methods.
type ContactMethodsResult struct {
	Status  status.Status
	Methods ContactMethodSet
}

// LevelsResult carries an escalation policy broken out by level.
type LevelsResult struct {
	Status status.Status
	Levels Levels
}

func failEntity(st status.Status) EntityResult {
	return EntityResult{Status: st}
}

func failList(st status.Status) ListResult {
	return ListResult{Status: st}
}
