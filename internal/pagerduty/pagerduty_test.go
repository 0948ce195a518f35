package pagerduty_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dzhang30/DZbot/internal/config"
	"github.com/dzhang30/DZbot/internal/pagerduty"
	"github.com/dzhang30/DZbot/internal/status"
)

// fakePD is a minimal stand-in for the PagerDuty API backed by httptest.
type fakePD struct {
	mu        sync.Mutex
	users     []map[string]string
	policies  []map[string]string
	services  []map[string]string
	schedules []map[string]string
	// oncalls per escalation policy id
	oncalls map[string][]map[string]interface{}
	// contact methods per user id
	contactMethods map[string][]map[string]string

	incidentPosts []map[string]interface{}
	overridePosts []map[string]interface{}
	fromHeaders   []string
}

func (f *fakePD) server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Path[len("/users/") : len(r.URL.Path)-len("/contact_methods")]
		writeJSON(w, map[string]interface{}{"contact_methods": f.contactMethods[userID]})
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"users": f.users})
	})
	mux.HandleFunc("/escalation_policies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"escalation_policies": f.policies})
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"services": f.services})
	})
	mux.HandleFunc("/schedules/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.overridePosts = append(f.overridePosts, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/schedules", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"schedules": f.schedules})
	})
	mux.HandleFunc("/oncalls", func(w http.ResponseWriter, r *http.Request) {
		policyIDs := r.URL.Query()["escalation_policy_ids[]"]
		if len(policyIDs) == 0 {
			all := make([]map[string]interface{}, 0)
			for _, entries := range f.oncalls {
				all = append(all, entries...)
			}
			writeJSON(w, map[string]interface{}{"oncalls": all})
			return
		}
		entries := f.oncalls[policyIDs[0]]
		if entries == nil {
			entries = []map[string]interface{}{}
		}
		writeJSON(w, map[string]interface{}{"oncalls": entries})
	})
	mux.HandleFunc("/incidents", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.incidentPosts = append(f.incidentPosts, body)
		f.fromHeaders = append(f.fromHeaders, r.Header.Get("From"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, fake *fakePD) *pagerduty.Client {
	t.Helper()
	srv := fake.server(t)
	cfg := &config.Config{
		PagerDutyHost: srv.URL,
		PagerDutyKey:  "test-key",
		HTTPTimeout:   5 * time.Second,
	}
	return pagerduty.NewClient(cfg, zap.NewNop())
}

func oncallEntry(level int, userSummary string) map[string]interface{} {
	return map[string]interface{}{
		"escalation_level": level,
		"user":             map[string]string{"summary": userSummary},
	}
}

func TestSearchEntity(t *testing.T) {
	fake := &fakePD{users: []map[string]string{
		{"id": "U1", "name": "Test User", "email": "testuser@example.com"},
		{"id": "U2", "name": "Other User", "email": "other@example.com"},
	}}
	client := newClient(t, fake)
	ctx := context.Background()

	t.Run("match is case-insensitive exact", func(t *testing.T) {
		exact := client.SearchEntity(ctx, "Test User", pagerduty.Users)
		lower := client.SearchEntity(ctx, "test user", pagerduty.Users)

		require.True(t, exact.Status.Success)
		require.True(t, lower.Status.Success)
		assert.Equal(t, exact.Entity.ID, lower.Entity.ID)
		assert.Equal(t, "U1", exact.Entity.ID)
	})

	t.Run("prefix is not a match", func(t *testing.T) {
		result := client.SearchEntity(ctx, "Test", pagerduty.Users)
		assert.False(t, result.Status.Success)
		assert.Nil(t, result.Entity)
		assert.Contains(t, result.Status.Content, "could not find entity name")
	})

	t.Run("failure leaves the entity empty", func(t *testing.T) {
		result := client.SearchEntity(ctx, "nobody", pagerduty.Users)
		require.False(t, result.Status.Success)
		assert.Nil(t, result.Entity)
	})

	t.Run("duplicate names are an ambiguity error", func(t *testing.T) {
		dupFake := &fakePD{users: []map[string]string{
			{"id": "U1", "name": "Dup"},
			{"id": "U2", "name": "dup"},
		}}
		dupClient := newClient(t, dupFake)

		result := dupClient.SearchEntity(ctx, "Dup", pagerduty.Users)
		assert.False(t, result.Status.Success)
		assert.Contains(t, result.Status.Content, "ambiguous")
	})
}

func TestListAllEntities(t *testing.T) {
	t.Run("keeps upstream order for plain types", func(t *testing.T) {
		fake := &fakePD{services: []map[string]string{
			{"id": "S2", "name": "Billing"},
			{"id": "S1", "name": "API"},
		}}
		client := newClient(t, fake)

		result := client.ListAllEntities(context.Background(), pagerduty.Services)
		require.True(t, result.Status.Success)
		assert.Equal(t, []string{"Billing", "API"}, result.Names)
	})

	t.Run("oncalls collapse to a set", func(t *testing.T) {
		fake := &fakePD{oncalls: map[string][]map[string]interface{}{
			"P1": {oncallEntry(1, "B"), oncallEntry(2, "A"), oncallEntry(1, "B")},
		}}
		client := newClient(t, fake)

		result := client.ListAllEntities(context.Background(), pagerduty.Oncalls)
		require.True(t, result.Status.Success)
		assert.Equal(t, []string{"A", "B"}, result.Names)
	})

	t.Run("unknown type is a validation failure", func(t *testing.T) {
		client := newClient(t, &fakePD{})

		result := client.ListAllEntities(context.Background(), pagerduty.EntityType("bogus"))
		assert.False(t, result.Status.Success)
		assert.Contains(t, result.Status.Content, "incorrect 'type' parameter")
	})

	t.Run("upstream failure propagates the error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"upstream broke"}`)
		}))
		t.Cleanup(srv.Close)
		cfg := &config.Config{PagerDutyHost: srv.URL, PagerDutyKey: "k", HTTPTimeout: time.Second}
		client := pagerduty.NewClient(cfg, zap.NewNop())

		result := client.ListAllEntities(context.Background(), pagerduty.Users)
		require.False(t, result.Status.Success)
		assert.Empty(t, result.Names)
		assert.Contains(t, result.Status.Content, "could not retrieve all users")
		assert.Contains(t, result.Status.Content, "upstream broke")
	})
}

func TestCleanContactMethods(t *testing.T) {
	methods := []pagerduty.ContactMethod{
		{Type: "phone_contact_method", Address: "1112223333"},
		{Type: "email_contact_method", Address: "a@example.com"},
		{Type: "phone_contact_method", Address: "2223334444"},
		{Type: "push_notification_contact_method", Address: "device-token"},
	}

	cleaned := pagerduty.CleanContactMethods(methods)

	assert.Equal(t, pagerduty.ContactMethodSet{
		"phone": {"1112223333", "2223334444"},
		"email": {"a@example.com"},
	}, cleaned)
}

func TestContactMethodSetString(t *testing.T) {
	set := pagerduty.ContactMethodSet{
		"phone": {"a", "b"},
		"email": {"c"},
	}
	assert.Equal(t, "phone: a & b, email: c", set.String())

	phoneOnly := pagerduty.ContactMethodSet{"phone": {"a"}}
	assert.Equal(t, "phone: a", phoneOnly.String())
}

func TestListContactMethods(t *testing.T) {
	fake := &fakePD{
		users: []map[string]string{{"id": "U1", "name": "Test User"}},
		contactMethods: map[string][]map[string]string{
			"U1": {
				{"type": "phone_contact_method", "address": "1112223333"},
				{"type": "email_contact_method", "address": "tu@example.com"},
			},
		},
	}
	client := newClient(t, fake)

	result := client.ListContactMethods(context.Background(), "Test User")
	require.True(t, result.Status.Success)
	assert.Equal(t, []string{"1112223333"}, result.Methods["phone"])
	assert.Equal(t, []string{"tu@example.com"}, result.Methods["email"])

	missing := client.ListContactMethods(context.Background(), "Nobody")
	assert.False(t, missing.Status.Success)
	assert.Empty(t, missing.Methods)
}

func TestListEPByLevel(t *testing.T) {
	fake := &fakePD{
		users: []map[string]string{
			{"id": "U1", "name": "User One"},
			{"id": "U2", "name": "User Two"},
			{"id": "U3", "name": "User Three"},
		},
		policies: []map[string]string{{"id": "P1", "name": "Web Escalation"}},
		oncalls: map[string][]map[string]interface{}{
			"P1": {
				oncallEntry(3, "User Three"),
				oncallEntry(1, "User One"),
				oncallEntry(2, "User Two"),
			},
		},
		contactMethods: map[string][]map[string]string{
			"U1": {{"type": "phone_contact_method", "address": "111"}},
			"U2": {{"type": "phone_contact_method", "address": "222"}},
			"U3": {{"type": "email_contact_method", "address": "three@example.com"}},
		},
	}
	client := newClient(t, fake)

	t.Run("levels come back sorted ascending", func(t *testing.T) {
		result := client.ListEPByLevel(context.Background(), "Web Escalation")
		require.True(t, result.Status.Success)
		require.Len(t, result.Levels, 3)
		assert.Equal(t, 1, result.Levels[0].Number)
		assert.Equal(t, 2, result.Levels[1].Number)
		assert.Equal(t, 3, result.Levels[2].Number)
		assert.Equal(t, []string{"User One, phone: 111"}, result.Levels[0].Users)
		assert.Equal(t, []string{"User Three, email: three@example.com"}, result.Levels[2].Users)
	})

	t.Run("unknown policy is a resolution failure", func(t *testing.T) {
		result := client.ListEPByLevel(context.Background(), "Nope")
		require.False(t, result.Status.Success)
		assert.Empty(t, result.Levels)
		assert.Contains(t, result.Status.Content, "is not a valid escalation policy")
	})

	t.Run("resolved policy without oncalls is its own error", func(t *testing.T) {
		emptyFake := &fakePD{
			policies: []map[string]string{{"id": "P9", "name": "Empty Policy"}},
			oncalls:  map[string][]map[string]interface{}{},
		}
		emptyClient := newClient(t, emptyFake)

		result := emptyClient.ListEPByLevel(context.Background(), "Empty Policy")
		require.False(t, result.Status.Success)
		assert.Contains(t, result.Status.Content, "has no on-call entries")
	})

	t.Run("assignee lookup failure aborts the build", func(t *testing.T) {
		brokenFake := &fakePD{
			users:    []map[string]string{{"id": "U1", "name": "User One"}},
			policies: []map[string]string{{"id": "P1", "name": "Web Escalation"}},
			oncalls: map[string][]map[string]interface{}{
				"P1": {oncallEntry(1, "User One"), oncallEntry(2, "Ghost User")},
			},
			contactMethods: map[string][]map[string]string{
				"U1": {{"type": "phone_contact_method", "address": "111"}},
			},
		}
		brokenClient := newClient(t, brokenFake)

		result := brokenClient.ListEPByLevel(context.Background(), "Web Escalation")
		require.False(t, result.Status.Success)
		assert.Empty(t, result.Levels)
	})
}

func TestLevelsString(t *testing.T) {
	levels := pagerduty.Levels{
		{Number: 1, Users: []string{"a", "b"}},
		{Number: 2, Users: []string{"c"}},
	}
	assert.Equal(t, "1: [a, b]\n2: [c]", levels.String())
}

func TestEnsureOncalls(t *testing.T) {
	t.Run("missing level 1 shadows level 2", func(t *testing.T) {
		fake := &fakePD{
			policies: []map[string]string{{"id": "P1", "name": "Ingestion"}},
			oncalls: map[string][]map[string]interface{}{
				"P1": {oncallEntry(2, "User Two")},
			},
		}
		client := newClient(t, fake)

		result := client.EnsureOncalls(context.Background())
		require.True(t, result.Status.Success)
		assert.Equal(t, []string{"Ingestion: oncall level 1 does not exist"}, result.Names)
	})

	t.Run("compliant policies are omitted", func(t *testing.T) {
		fake := &fakePD{
			policies: []map[string]string{{"id": "P1", "name": "Operations"}},
			oncalls: map[string][]map[string]interface{}{
				"P1": {oncallEntry(1, "User One"), oncallEntry(2, "User Two")},
			},
		}
		client := newClient(t, fake)

		result := client.EnsureOncalls(context.Background())
		require.True(t, result.Status.Success)
		assert.Empty(t, result.Names)
	})

	t.Run("level 2 reported when level 1 present", func(t *testing.T) {
		fake := &fakePD{
			policies: []map[string]string{{"id": "P1", "name": "Amp"}},
			oncalls: map[string][]map[string]interface{}{
				"P1": {oncallEntry(1, "User One"), oncallEntry(3, "User Three")},
			},
		}
		client := newClient(t, fake)

		result := client.EnsureOncalls(context.Background())
		require.True(t, result.Status.Success)
		assert.Equal(t, []string{"Amp: oncall level 2 does not exist"}, result.Names)
	})
}

func TestSendIncident(t *testing.T) {
	baseFake := func() *fakePD {
		return &fakePD{
			users: []map[string]string{
				{"id": "U1", "name": "Sender", "email": "sender@example.com"},
				{"id": "U2", "name": "Bob", "email": "bob@example.com"},
			},
			policies: []map[string]string{{"id": "P1", "name": "Web Escalation", "type": "escalation_policy"}},
			services: []map[string]string{{"id": "S1", "name": "Billing", "type": "service"}},
		}
	}
	ctx := context.Background()

	t.Run("user incident carries assignments and From identity", func(t *testing.T) {
		fake := baseFake()
		client := newClient(t, fake)

		result := client.SendIncident(ctx, pagerduty.Users, "Sender", "Bob", "Billing", "X", "Y")
		require.True(t, result.Success, result.Content)
		assert.Equal(t, "successfully sent users incident to Bob", result.Content)

		require.Len(t, fake.incidentPosts, 1)
		incident := fake.incidentPosts[0]["incident"].(map[string]interface{})
		assert.Equal(t, "incident", incident["type"])
		assert.Equal(t, "X", incident["title"])
		body := incident["body"].(map[string]interface{})
		assert.Equal(t, "incident_body", body["type"])
		assert.Equal(t, "Y", body["details"])
		assignments := incident["assignments"].([]interface{})
		require.Len(t, assignments, 1)
		assignee := assignments[0].(map[string]interface{})["assignee"].(map[string]interface{})
		assert.Equal(t, "U2", assignee["id"])
		assert.Equal(t, "user", assignee["type"])
		assert.Equal(t, "sender@example.com", fake.fromHeaders[0])
	})

	t.Run("policy incident carries an escalation policy reference", func(t *testing.T) {
		fake := baseFake()
		client := newClient(t, fake)

		result := client.SendIncident(ctx, pagerduty.EscalationPolicies, "Sender", "Web Escalation", "Billing", "X", "Y")
		require.True(t, result.Success, result.Content)

		require.Len(t, fake.incidentPosts, 1)
		incident := fake.incidentPosts[0]["incident"].(map[string]interface{})
		_, hasAssignments := incident["assignments"]
		assert.False(t, hasAssignments)
		ref := incident["escalation_policy"].(map[string]interface{})
		assert.Equal(t, "P1", ref["id"])
		assert.Equal(t, "escalation_policy_reference", ref["type"])
	})

	t.Run("unknown sender fails before any post", func(t *testing.T) {
		fake := baseFake()
		client := newClient(t, fake)

		result := client.SendIncident(ctx, pagerduty.Users, "Stranger", "Bob", "Billing", "X", "Y")
		require.False(t, result.Success)
		assert.Contains(t, result.Content, "Stranger")
		assert.Empty(t, fake.incidentPosts)
	})

	t.Run("unknown target fails before any post", func(t *testing.T) {
		fake := baseFake()
		client := newClient(t, fake)

		result := client.SendIncident(ctx, pagerduty.Users, "Sender", "Ghost", "Billing", "X", "Y")
		require.False(t, result.Success)
		assert.Contains(t, result.Content, "users name error")
		assert.Empty(t, fake.incidentPosts)
	})

	t.Run("only users and eps are valid targets", func(t *testing.T) {
		fake := baseFake()
		client := newClient(t, fake)

		result := client.SendIncident(ctx, pagerduty.Services, "Sender", "Billing", "Billing", "X", "Y")
		require.False(t, result.Success)
		assert.Empty(t, fake.incidentPosts)
	})
}

func TestOverrideSchedule(t *testing.T) {
	fake := &fakePD{
		users:     []map[string]string{{"id": "U1", "name": "Test User"}},
		schedules: []map[string]string{{"id": "SC1", "name": "Primary Schedule"}},
	}
	client := newClient(t, fake)
	ctx := context.Background()

	t.Run("posts the override record", func(t *testing.T) {
		result := client.OverrideSchedule(ctx, "Primary Schedule", "Test User",
			"2026-01-01T00:00:00Z", "2026-01-02T00:00:00Z")
		require.True(t, result.Success, result.Content)
		assert.Contains(t, result.Content, "Test User")
		assert.Contains(t, result.Content, "2026-01-01T00:00:00Z - 2026-01-02T00:00:00Z")

		require.Len(t, fake.overridePosts, 1)
		record := fake.overridePosts[0]["override"].(map[string]interface{})
		assert.Equal(t, "2026-01-01T00:00:00Z", record["start"])
		user := record["user"].(map[string]interface{})
		assert.Equal(t, "U1", user["id"])
		assert.Equal(t, "user_reference", user["type"])
	})

	t.Run("unknown schedule fails the shared validation", func(t *testing.T) {
		result := client.OverrideSchedule(ctx, "No Schedule", "Test User", "a", "b")
		require.False(t, result.Success)
		assert.Contains(t, result.Content, "service/sched name error")
	})
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent [][3]string
	fail bool
}

func (f *fakeNotifier) SendRoomNotification(_ context.Context, room, message, color string) status.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return status.Fail("notification rejected")
	}
	f.sent = append(f.sent, [3]string{room, message, color})
	return status.OK("request was successful")
}

func TestMonitorRun(t *testing.T) {
	fake := &fakePD{
		policies: []map[string]string{
			{"id": "P1", "name": "Ingestion"},
			{"id": "P2", "name": "SomethingElse"},
		},
		oncalls: map[string][]map[string]interface{}{
			"P1": {oncallEntry(2, "User Two")},
			"P2": {oncallEntry(2, "User Two")},
		},
	}
	cfg := &config.Config{MonitorRoom: "DevOps", MonitoredEPs: []string{"Ingestion"}}

	t.Run("notifies only monitored deficient policies", func(t *testing.T) {
		notifier := &fakeNotifier{}
		monitor := pagerduty.NewMonitor(newClient(t, fake), notifier, cfg, zap.NewNop())

		result := monitor.Run(context.Background())
		require.True(t, result.Success)
		assert.Equal(t, "Monitored successfully", result.Content)

		require.Len(t, notifier.sent, 1)
		assert.Equal(t, "DevOps", notifier.sent[0][0])
		assert.Equal(t, "Ingestion: oncall level 1 does not exist", notifier.sent[0][1])
	})

	t.Run("notification failure fails the pass", func(t *testing.T) {
		notifier := &fakeNotifier{fail: true}
		monitor := pagerduty.NewMonitor(newClient(t, fake), notifier, cfg, zap.NewNop())

		result := monitor.Run(context.Background())
		assert.False(t, result.Success)
	})
}
